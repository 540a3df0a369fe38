package httpx

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/md-rashed-zaman/clinicbook/libs/auth"
)

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	UserID string
	Role   string
}

type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*auth.Claims, error)
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity).(Identity)
	return id, ok
}

// RequireAuth verifies the bearer token and stores the caller identity on the
// request context. Requests without a valid token are rejected with 401.
func RequireAuth(verifier TokenVerifier, logger *slog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authz := r.Header.Get("Authorization")
			if !strings.HasPrefix(authz, "Bearer ") {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "missing_token", "bearer token required")
				return
			}
			claims, err := verifier.Verify(r.Context(), strings.TrimPrefix(authz, "Bearer "))
			if err != nil {
				if logger != nil {
					logger.Debug("token rejected", "request_id", RequestIDFromContext(r.Context()), "err", err)
				}
				WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid_token", "token is invalid or expired")
				return
			}
			ctx := WithIdentity(r.Context(), Identity{UserID: claims.Sub, Role: claims.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole must run after RequireAuth.
func RequireRole(roles ...string) Middleware {
	allowed := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		allowed[role] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				WriteError(w, http.StatusUnauthorized, "unauthorized", "missing_token", "bearer token required")
				return
			}
			if _, ok := allowed[id.Role]; !ok {
				WriteError(w, http.StatusForbidden, "forbidden", "role_not_allowed", "role "+id.Role+" may not call this endpoint")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
