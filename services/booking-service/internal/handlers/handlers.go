// Package handlers exposes the booking core over JSON/HTTP. Every route
// expects an identity placed on the context by httpx.RequireAuth.
package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/syncgw"
)

type API struct {
	bookings *booking.Service
	notifier *notify.Engine
	sync     *syncgw.Gateway
	logger   *slog.Logger
}

func New(bookings *booking.Service, notifier *notify.Engine, sync *syncgw.Gateway, logger *slog.Logger) *API {
	return &API{bookings: bookings, notifier: notifier, sync: sync, logger: logger}
}

// Routes returns the /api/v1 surface. Internal maintenance routes are
// restricted to the system role.
func (a *API) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/appointments", a.createAppointment)
	mux.HandleFunc("GET /api/v1/appointments", a.listAppointments)
	mux.HandleFunc("GET /api/v1/appointments/{id}", a.getAppointment)
	mux.HandleFunc("PUT /api/v1/appointments/{id}/status", a.updateStatus)

	mux.HandleFunc("POST /api/v1/schedule", a.setSchedule)
	mux.HandleFunc("GET /api/v1/schedule", a.ownSchedule)
	mux.HandleFunc("GET /api/v1/providers/{id}/schedule", a.providerSchedule)
	mux.HandleFunc("GET /api/v1/providers/{id}/slots", a.providerSlots)

	mux.HandleFunc("GET /api/v1/notifications", a.listNotifications)
	mux.HandleFunc("GET /api/v1/notifications/unread-count", a.unreadCount)
	mux.HandleFunc("PUT /api/v1/notifications/{id}/read", a.markRead)
	mux.HandleFunc("PUT /api/v1/notifications/read", a.markAllRead)

	mux.HandleFunc("GET /api/v1/sync", a.snapshot)

	systemOnly := httpx.RequireRole(auth.RoleSystem)
	mux.Handle("POST /api/v1/internal/appointments/complete", systemOnly(http.HandlerFunc(a.completePast)))
	mux.Handle("POST /api/v1/internal/messages", systemOnly(http.HandlerFunc(a.postMessage)))

	return mux
}

func actorFrom(w http.ResponseWriter, r *http.Request) (booking.Actor, bool) {
	id, ok := httpx.IdentityFromContext(r.Context())
	if !ok {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "missing_token", "bearer token required")
		return booking.Actor{}, false
	}
	return booking.Actor{UserID: id.UserID, Role: id.Role}, true
}

// writeError renders typed rejections as-is and hides everything else
// behind a 500.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if e, ok := apperr.As(err); ok {
		httpx.WriteError(w, apperr.HTTPStatus(e.Code), string(e.Code), e.Reason, e.Message)
		return
	}
	a.logger.Error("request failed",
		"request_id", httpx.RequestIDFromContext(r.Context()),
		"method", r.Method,
		"path", r.URL.Path,
		"err", err,
	)
	httpx.WriteError(w, http.StatusInternalServerError, "internal", "", "internal error")
}

func badRequest(w http.ResponseWriter, message string) {
	httpx.WriteError(w, http.StatusBadRequest, string(apperr.CodeValidation), apperr.ReasonMalformed, message)
}

func queryInt(r *http.Request, key string) (int, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func queryBool(r *http.Request, key string) (bool, bool) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return false, true
	}
	b, err := strconv.ParseBool(raw)
	return b, err == nil
}
