package booking

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
)

// AppointmentFilter scopes appointment reads. Empty fields do not filter.
type AppointmentFilter struct {
	ProviderID  string
	RequesterID string
	Statuses    []model.Status
	From        time.Time
	Limit       int
}

// Store is the persistence port of the booking core. Postgres and the
// in-process adapter implement it with the same semantics.
type Store interface {
	// InTx runs fn in a serializable unit of work. Returning an error rolls
	// every write back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	ListRules(ctx context.Context, providerID string) ([]model.AvailabilityRule, error)
	ListAppointments(ctx context.Context, f AppointmentFilter) ([]model.Appointment, error)
	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
}

type Tx interface {
	notify.Writer

	ReplaceRules(ctx context.Context, providerID string, rules []model.AvailabilityRule) error
	GetRule(ctx context.Context, providerID string, weekday time.Weekday) (model.AvailabilityRule, bool, error)

	ActiveSlotTaken(ctx context.Context, providerID string, date time.Time, start model.Clock) (bool, error)
	PendingExists(ctx context.Context, providerID, requesterID string) (bool, error)
	// InsertAppointment must reject a second active appointment on the same
	// slot and a second pending request for the same pair even when the
	// checks above raced, returning apperr slot_taken / pending_request_exists.
	InsertAppointment(ctx context.Context, a model.Appointment) error
	// LockAppointment reads the appointment and holds it until commit.
	LockAppointment(ctx context.Context, id string) (model.Appointment, error)
	UpdateAppointment(ctx context.Context, a model.Appointment) error
	// LockDueForCompletion returns confirmed appointments dated before day,
	// skipping rows another worker already holds.
	LockDueForCompletion(ctx context.Context, day time.Time, limit int) ([]model.Appointment, error)

	// ClaimIdempotencyKey reserves key for requesterID. If the key was used
	// before, the id of the appointment it produced is returned.
	ClaimIdempotencyKey(ctx context.Context, requesterID, key string) (string, error)
	CompleteIdempotencyKey(ctx context.Context, requesterID, key, appointmentID string) error

	InsertEvent(ctx context.Context, evt outbox.Event) error
}
