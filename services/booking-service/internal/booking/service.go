// Package booking turns weekly availability into dated appointments and
// drives their lifecycle. Every write runs in one Store transaction together
// with the notifications and outbox events it causes.
package booking

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/notify"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const maxReasonLength = 1000

// Actor is the authenticated caller on whose behalf an operation runs.
type Actor struct {
	UserID string
	Role   string
}

var System = Actor{UserID: "system", Role: auth.RoleSystem}

type Config struct {
	// Location is the single clinic timezone dates are resolved in.
	Location        *time.Location
	AllowSameDay    bool
	CompletionBatch int
}

type Service struct {
	store    Store
	notifier *notify.Engine
	logger   *slog.Logger
	loc      *time.Location
	resolver availability.Resolver
	batch    int
	now      func() time.Time
	newID    func() string
	tracer   trace.Tracer
}

type Option func(*Service)

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithIDs(newID func() string) Option {
	return func(s *Service) { s.newID = newID }
}

func NewService(store Store, notifier *notify.Engine, logger *slog.Logger, cfg Config, opts ...Option) *Service {
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.CompletionBatch <= 0 {
		cfg.CompletionBatch = 100
	}
	s := &Service{
		store:    store,
		notifier: notifier,
		logger:   logger,
		loc:      cfg.Location,
		resolver: availability.Resolver{AllowSameDay: cfg.AllowSameDay},
		batch:    cfg.CompletionBatch,
		now:      time.Now,
		newID:    uuid.NewString,
		tracer:   otel.Tracer("booking-service/booking"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now is the current time in the clinic location.
func (s *Service) Now() time.Time {
	return s.now().In(s.loc)
}

type BookRequest struct {
	ProviderID     string
	Weekday        time.Weekday
	StartTime      model.Clock
	Reason         string
	IdempotencyKey string
}

// Book validates a weekly slot selection and creates a pending appointment.
// The second return value is true when the request replayed an earlier
// submission with the same idempotency key.
func (s *Service) Book(ctx context.Context, actor Actor, req BookRequest) (appt model.Appointment, replayed bool, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.book", trace.WithAttributes(
		attribute.String("provider_id", req.ProviderID),
		attribute.String("weekday", model.WeekdayName(req.Weekday)),
	))
	defer func() { otelx.EndSpan(span, err) }()

	if actor.Role != auth.RoleRequester {
		return model.Appointment{}, false, apperr.Forbidden(apperr.ReasonRole, "only requesters can book appointments")
	}
	req.Reason = strings.TrimSpace(req.Reason)
	if req.Reason == "" {
		return model.Appointment{}, false, apperr.Validation(apperr.ReasonRequired, "reason is required")
	}
	if len(req.Reason) > maxReasonLength {
		return model.Appointment{}, false, apperr.Validation(apperr.ReasonMalformed, "reason must be at most %d characters", maxReasonLength)
	}
	req.ProviderID = strings.TrimSpace(req.ProviderID)
	if req.ProviderID == "" {
		return model.Appointment{}, false, apperr.Validation(apperr.ReasonMalformed, "providerId is required")
	}
	if req.ProviderID == actor.UserID {
		return model.Appointment{}, false, apperr.Validation(apperr.ReasonMalformed, "cannot book an appointment with yourself")
	}

	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if req.IdempotencyKey != "" {
			prior, err := tx.ClaimIdempotencyKey(ctx, actor.UserID, req.IdempotencyKey)
			if err != nil {
				return fmt.Errorf("claim idempotency key: %w", err)
			}
			if prior != "" {
				appt, err = tx.LockAppointment(ctx, prior)
				if err != nil {
					return err
				}
				if appt.ProviderID != req.ProviderID {
					return apperr.Conflict(apperr.ReasonIdempotencyKey, "idempotency key was used for a different request")
				}
				replayed = true
				return nil
			}
		}

		rule, ok, err := tx.GetRule(ctx, req.ProviderID, req.Weekday)
		if err != nil {
			return fmt.Errorf("load availability rule: %w", err)
		}
		if !ok || !rule.Active {
			return apperr.SlotUnavailable(apperr.ReasonNoActiveRule, "provider has no active availability on %s", model.WeekdayName(req.Weekday))
		}
		if !rule.Publishes(req.StartTime) {
			return apperr.SlotUnavailable(apperr.ReasonSlotNotOffered, "%s is not a published start time on %s", req.StartTime, model.WeekdayName(req.Weekday))
		}

		now := s.Now()
		date := s.resolver.Resolve(now, req.Weekday, req.StartTime)

		taken, err := tx.ActiveSlotTaken(ctx, req.ProviderID, date, req.StartTime)
		if err != nil {
			return fmt.Errorf("check slot: %w", err)
		}
		if taken {
			return apperr.SlotUnavailable(apperr.ReasonSlotTaken, "slot %s %s is already booked", date.Format(model.DateLayout), req.StartTime)
		}
		pending, err := tx.PendingExists(ctx, req.ProviderID, actor.UserID)
		if err != nil {
			return fmt.Errorf("check pending requests: %w", err)
		}
		if pending {
			return apperr.Conflict(apperr.ReasonPendingExists, "a request to this provider is already pending")
		}

		appt = model.Appointment{
			ID:          s.newID(),
			ProviderID:  req.ProviderID,
			RequesterID: actor.UserID,
			Date:        date,
			Time:        req.StartTime,
			Reason:      req.Reason,
			Status:      model.StatusPending,
			Version:     1,
			CreatedAt:   now.UTC(),
			UpdatedAt:   now.UTC(),
		}
		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return err
		}
		if _, err := s.notifier.Emit(ctx, tx, appt.ProviderID, model.NotifyAppointmentCreated, appt.ID, notify.CreatedText(appt)); err != nil {
			return err
		}
		evt, err := requestedEvent(appt)
		if err != nil {
			return err
		}
		if err := tx.InsertEvent(ctx, evt); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
		if req.IdempotencyKey != "" {
			if err := tx.CompleteIdempotencyKey(ctx, actor.UserID, req.IdempotencyKey, appt.ID); err != nil {
				return fmt.Errorf("store idempotency key: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return model.Appointment{}, false, err
	}
	if !replayed {
		s.notifier.Invalidate(ctx, appt.ProviderID)
		s.logger.Info("appointment requested",
			"appointment_id", appt.ID,
			"provider_id", appt.ProviderID,
			"date", appt.Date.Format(model.DateLayout),
			"time", appt.Time.String(),
		)
	}
	return appt, replayed, nil
}

// Transition moves an appointment to status to on behalf of actor. When
// expectedVersion is set the appointment must still be at that version.
// Requesting the status the appointment already has is a no-op.
func (s *Service) Transition(ctx context.Context, actor Actor, id string, to model.Status, expectedVersion *int) (appt model.Appointment, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.transition", trace.WithAttributes(
		attribute.String("appointment_id", id),
		attribute.String("to", string(to)),
	))
	defer func() { otelx.EndSpan(span, err) }()

	var recipient string
	err = s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		current, err := tx.LockAppointment(ctx, id)
		if err != nil {
			return err
		}
		if err := authorizeParty(actor, current); err != nil {
			return err
		}
		if expectedVersion != nil && *expectedVersion != current.Version {
			return apperr.Conflict(apperr.ReasonStaleVersion, "appointment is at version %d, not %d", current.Version, *expectedVersion)
		}
		if current.Status == to {
			if err := authorizeRepeat(actor, current); err != nil {
				return err
			}
			appt = current
			return nil
		}
		next, err := s.apply(actor, current, to)
		if err != nil {
			return err
		}
		if err := tx.UpdateAppointment(ctx, next); err != nil {
			return fmt.Errorf("update appointment: %w", err)
		}
		recipient, err = s.emitStatusChange(ctx, tx, actor, current.Status, next)
		if err != nil {
			return err
		}
		appt = next
		return nil
	})
	if err != nil {
		return model.Appointment{}, err
	}
	if recipient != "" {
		s.notifier.Invalidate(ctx, recipient)
		s.logger.Info("appointment status changed",
			"appointment_id", appt.ID,
			"status", string(appt.Status),
			"actor_id", actor.UserID,
			"version", appt.Version,
		)
	}
	return appt, nil
}

// apply checks the state machine and who may take the edge, and returns the
// updated appointment.
func (s *Service) apply(actor Actor, a model.Appointment, to model.Status) (model.Appointment, error) {
	if a.Status.Terminal() {
		return model.Appointment{}, apperr.InvalidTransition(apperr.ReasonTerminal, "appointment is already %s", a.Status)
	}
	if !model.CanTransition(a.Status, to) {
		return model.Appointment{}, apperr.InvalidTransition(apperr.ReasonNotAllowed, "cannot move appointment from %s to %s", a.Status, to)
	}

	switch {
	case to == model.StatusCompleted:
		if actor.Role != auth.RoleSystem {
			return model.Appointment{}, apperr.Forbidden(apperr.ReasonSystemOnly, "appointments are completed by the system once their date has passed")
		}
		if !a.Date.Before(model.DateOf(s.Now())) {
			return model.Appointment{}, apperr.InvalidTransition(apperr.ReasonNotAllowed, "appointment date has not passed yet")
		}
	case a.Status == model.StatusPending:
		if actor.UserID != a.ProviderID && actor.Role != auth.RoleSystem {
			return model.Appointment{}, apperr.Forbidden(apperr.ReasonProviderOnly, "only the provider can answer a pending request")
		}
	}

	a.Status = to
	a.Version++
	a.UpdatedAt = s.now().UTC()
	if to == model.StatusCancelled {
		a.CancelledBy = actor.UserID
	}
	return a, nil
}

// authorizeRepeat decides whether asking for the status an appointment already
// has is a harmless retry. Only the actor who could have taken the edge into
// that status gets the unchanged appointment back.
func authorizeRepeat(actor Actor, a model.Appointment) error {
	system := actor.Role == auth.RoleSystem
	switch a.Status {
	case model.StatusConfirmed:
		if system || actor.UserID == a.ProviderID {
			return nil
		}
		return apperr.Forbidden(apperr.ReasonProviderOnly, "only the provider can confirm a request")
	case model.StatusCancelled:
		if system || actor.UserID == a.CancelledBy {
			return nil
		}
		return apperr.InvalidTransition(apperr.ReasonTerminal, "appointment is already %s", a.Status)
	case model.StatusCompleted:
		if system {
			return nil
		}
		return apperr.Forbidden(apperr.ReasonSystemOnly, "appointments are completed by the system once their date has passed")
	default:
		return apperr.InvalidTransition(apperr.ReasonNotAllowed, "cannot move appointment from %s to %s", a.Status, a.Status)
	}
}

// emitStatusChange notifies the counterpart of actor and records the outbox
// event. It returns the notified user id.
func (s *Service) emitStatusChange(ctx context.Context, tx Tx, actor Actor, from model.Status, a model.Appointment) (string, error) {
	recipient := a.Counterpart(actor.UserID)
	if _, err := s.notifier.Emit(ctx, tx, recipient, model.NotifyAppointmentStatusChanged, a.ID, notify.StatusText(a, actorLabel(actor, a))); err != nil {
		return "", err
	}
	evt, err := statusChangedEvent(a, from, actor.UserID)
	if err != nil {
		return "", err
	}
	if err := tx.InsertEvent(ctx, evt); err != nil {
		return "", fmt.Errorf("insert outbox event: %w", err)
	}
	return recipient, nil
}

func actorLabel(actor Actor, a model.Appointment) string {
	switch actor.UserID {
	case a.ProviderID:
		return "provider"
	case a.RequesterID:
		return "requester"
	}
	return "system"
}

func authorizeParty(actor Actor, a model.Appointment) error {
	if actor.Role == auth.RoleSystem || actor.UserID == a.ProviderID || actor.UserID == a.RequesterID {
		return nil
	}
	return apperr.Forbidden(apperr.ReasonNotParty, "appointment %s does not involve the caller", a.ID)
}

// CompletePast moves every confirmed appointment dated before asOf to
// completed. Running it again for the same asOf changes nothing.
func (s *Service) CompletePast(ctx context.Context, asOf time.Time) (total int, err error) {
	ctx, span := s.tracer.Start(ctx, "booking.complete_past")
	defer func() {
		span.SetAttributes(attribute.Int("completed", total))
		otelx.EndSpan(span, err)
	}()

	day := model.DateOf(asOf.In(s.loc))
	for {
		var notified []string
		var n int
		err := s.store.InTx(ctx, func(ctx context.Context, tx Tx) error {
			due, err := tx.LockDueForCompletion(ctx, day, s.batch)
			if err != nil {
				return fmt.Errorf("load due appointments: %w", err)
			}
			n = len(due)
			for _, a := range due {
				next := a
				next.Status = model.StatusCompleted
				next.Version++
				next.UpdatedAt = s.now().UTC()
				if err := tx.UpdateAppointment(ctx, next); err != nil {
					return fmt.Errorf("complete appointment %s: %w", a.ID, err)
				}
				recipient, err := s.emitStatusChange(ctx, tx, System, a.Status, next)
				if err != nil {
					return err
				}
				notified = append(notified, recipient)
			}
			return nil
		})
		if err != nil {
			return total, err
		}
		total += n
		s.notifier.Invalidate(ctx, notified...)
		if n < s.batch {
			break
		}
	}
	if total > 0 {
		s.logger.Info("past appointments completed", "count", total, "before", day.Format(model.DateLayout))
	}
	return total, nil
}

// Get returns an appointment the actor is a party to.
func (s *Service) Get(ctx context.Context, actor Actor, id string) (model.Appointment, error) {
	a, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, err
	}
	if err := authorizeParty(actor, a); err != nil {
		return model.Appointment{}, err
	}
	return a, nil
}

// List returns the actor's appointments: providers see requests made to
// them, requesters see their own, system callers see everything.
// ListQuery narrows List. Upcoming starts the window at today's date in the
// clinic timezone; when From is also set the later of the two wins.
type ListQuery struct {
	Statuses []model.Status
	From     time.Time
	Upcoming bool
	Limit    int
}

func (s *Service) List(ctx context.Context, actor Actor, q ListQuery) ([]model.Appointment, error) {
	f := AppointmentFilter{Statuses: q.Statuses, Limit: q.Limit}
	if !q.From.IsZero() {
		f.From = model.DateOf(q.From)
	}
	if today := model.DateOf(s.Now()); q.Upcoming && f.From.Before(today) {
		f.From = today
	}
	switch actor.Role {
	case auth.RoleProvider:
		f.ProviderID = actor.UserID
	case auth.RoleRequester:
		f.RequesterID = actor.UserID
	case auth.RoleSystem:
	default:
		return nil, apperr.Forbidden(apperr.ReasonRole, "role %q cannot list appointments", actor.Role)
	}
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 500
	}
	items, err := s.store.ListAppointments(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	return items, nil
}
