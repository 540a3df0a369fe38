// Package notify emits and tracks per-recipient notifications. Notifications
// are append-only; the only mutation is flipping the read flag.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

// Writer persists a notification, usually inside the transaction of the
// state change that produced it.
type Writer interface {
	InsertNotification(ctx context.Context, n model.Notification) error
}

type Filter struct {
	RecipientID string
	UnreadOnly  bool
	Limit       int
}

type Store interface {
	Writer
	ListNotifications(ctx context.Context, f Filter) ([]model.Notification, error)
	// MarkNotificationRead returns false when no notification with id belongs to recipientID.
	MarkNotificationRead(ctx context.Context, recipientID, id string) (bool, error)
	MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error)
	CountUnread(ctx context.Context, recipientID string) (int, error)
}

// Counter caches unread counts for the badge endpoint. Invalidate advances a
// per-recipient generation; Set must drop the value when gen is no longer
// current.
type Counter interface {
	Get(ctx context.Context, recipientID string) (int, bool, error)
	Generation(ctx context.Context, recipientID string) (int64, error)
	Set(ctx context.Context, recipientID string, n int, gen int64) error
	Invalidate(ctx context.Context, recipientIDs ...string) error
}

type Engine struct {
	store   Store
	counter Counter
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

type Option func(*Engine)

func WithCounter(c Counter) Option {
	return func(e *Engine) { e.counter = c }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store Store, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		store:   store,
		counter: NopCounter{},
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Emit appends a notification through w. Callers that emit inside a
// transaction must call Invalidate once it has committed.
func (e *Engine) Emit(ctx context.Context, w Writer, recipientID string, typ model.NotificationType, relatedID, message string) (model.Notification, error) {
	if strings.TrimSpace(recipientID) == "" {
		return model.Notification{}, apperr.Validation(apperr.ReasonMalformed, "notification recipient is required")
	}
	n := model.Notification{
		ID:          e.newID(),
		RecipientID: recipientID,
		Type:        typ,
		RelatedID:   relatedID,
		Message:     message,
		CreatedAt:   e.now().UTC(),
	}
	if err := w.InsertNotification(ctx, n); err != nil {
		return model.Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	return n, nil
}

// Message records a chat message notification. relatedID is the sender's
// user id so the recipient's client can open the thread directly.
func (e *Engine) Message(ctx context.Context, senderID, recipientID, preview string) (model.Notification, error) {
	if strings.TrimSpace(senderID) == "" {
		return model.Notification{}, apperr.Validation(apperr.ReasonMalformed, "message sender is required")
	}
	if senderID == recipientID {
		return model.Notification{}, apperr.Validation(apperr.ReasonMalformed, "sender and recipient must differ")
	}
	n, err := e.Emit(ctx, e.store, recipientID, model.NotifyMessage, senderID, MessageText(preview))
	if err != nil {
		return model.Notification{}, err
	}
	e.Invalidate(ctx, recipientID)
	return n, nil
}

func (e *Engine) MarkRead(ctx context.Context, recipientID, id string) error {
	ok, err := e.store.MarkNotificationRead(ctx, recipientID, id)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if !ok {
		return apperr.NotFound("notification %s not found", id)
	}
	e.Invalidate(ctx, recipientID)
	return nil
}

// MarkAllRead is idempotent; it returns how many notifications flipped.
func (e *Engine) MarkAllRead(ctx context.Context, recipientID string) (int64, error) {
	n, err := e.store.MarkAllNotificationsRead(ctx, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	if n > 0 {
		e.Invalidate(ctx, recipientID)
	}
	return n, nil
}

// List returns notifications newest first.
func (e *Engine) List(ctx context.Context, recipientID string, unreadOnly bool, limit int) ([]model.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}
	items, err := e.store.ListNotifications(ctx, Filter{RecipientID: recipientID, UnreadOnly: unreadOnly, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}

// UnreadCount serves from the counter cache when possible. Cache failures
// fall back to the store. The generation is read before counting so a fill
// that raced an invalidation is discarded by the counter.
func (e *Engine) UnreadCount(ctx context.Context, recipientID string) (int, error) {
	if n, ok, err := e.counter.Get(ctx, recipientID); err != nil {
		e.logger.Warn("unread counter get failed", "err", err)
	} else if ok {
		return n, nil
	}
	gen, genErr := e.counter.Generation(ctx, recipientID)
	if genErr != nil {
		e.logger.Warn("unread counter generation failed", "err", genErr)
	}
	n, err := e.store.CountUnread(ctx, recipientID)
	if err != nil {
		return 0, fmt.Errorf("count unread: %w", err)
	}
	if genErr == nil {
		if err := e.counter.Set(ctx, recipientID, n, gen); err != nil {
			e.logger.Warn("unread counter set failed", "err", err)
		}
	}
	return n, nil
}

func (e *Engine) Invalidate(ctx context.Context, recipientIDs ...string) {
	if len(recipientIDs) == 0 {
		return
	}
	if err := e.counter.Invalidate(ctx, recipientIDs...); err != nil {
		e.logger.Warn("unread counter invalidate failed", "err", err)
	}
}
