package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
)

const (
	activeSlotIndex  = "appointments_active_slot_uidx"
	pendingPairIndex = "appointments_pending_pair_uidx"
)

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type pgTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *pgTx) InsertNotification(ctx context.Context, n model.Notification) error {
	return insertNotification(ctx, t.tx, n)
}

func insertNotification(ctx context.Context, ex execer, n model.Notification) error {
	_, err := ex.Exec(ctx, `
		INSERT INTO notifications (id, recipient_id, type, related_id, message, is_read, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, n.ID, n.RecipientID, string(n.Type), n.RelatedID, n.Message, n.IsRead, n.CreatedAt)
	return err
}

// ReplaceRules upserts the given weekdays and deactivates the provider's
// other rules.
func (t *pgTx) ReplaceRules(ctx context.Context, providerID string, rules []model.AvailabilityRule) error {
	weekdays := make([]int16, 0, len(rules))
	batch := &pgx.Batch{}
	for _, r := range rules {
		weekdays = append(weekdays, int16(r.Weekday))
		batch.Queue(`
			INSERT INTO availability_rules (provider_id, weekday, start_minute, end_minute, slot_minutes, is_active, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (provider_id, weekday) DO UPDATE SET
				start_minute = EXCLUDED.start_minute,
				end_minute = EXCLUDED.end_minute,
				slot_minutes = EXCLUDED.slot_minutes,
				is_active = EXCLUDED.is_active,
				updated_at = EXCLUDED.updated_at
		`, providerID, int16(r.Weekday), int(r.Start), int(r.End), r.SlotMinutes, r.Active, r.UpdatedAt)
	}
	batch.Queue(`
		UPDATE availability_rules
		SET is_active = FALSE, updated_at = now()
		WHERE provider_id = $1 AND is_active AND NOT (weekday = ANY($2))
	`, providerID, weekdays)
	return t.tx.SendBatch(ctx, batch).Close()
}

func (t *pgTx) GetRule(ctx context.Context, providerID string, weekday time.Weekday) (model.AvailabilityRule, bool, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT provider_id, weekday, start_minute, end_minute, slot_minutes, is_active, updated_at
		FROM availability_rules
		WHERE provider_id = $1 AND weekday = $2
		FOR SHARE
	`, providerID, int16(weekday))
	if err != nil {
		return model.AvailabilityRule{}, false, err
	}
	r, err := pgx.CollectExactlyOneRow(rows, scanRule)
	if db.IsNoRows(err) {
		return model.AvailabilityRule{}, false, nil
	}
	if err != nil {
		return model.AvailabilityRule{}, false, err
	}
	return r, true, nil
}

func (t *pgTx) ActiveSlotTaken(ctx context.Context, providerID string, date time.Time, start model.Clock) (bool, error) {
	var taken bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE provider_id = $1 AND appt_date = $2 AND start_minute = $3
			  AND status IN ('pending', 'confirmed')
		)
	`, providerID, date, int(start)).Scan(&taken)
	return taken, err
}

func (t *pgTx) PendingExists(ctx context.Context, providerID, requesterID string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE provider_id = $1 AND requester_id = $2 AND status = 'pending'
		)
	`, providerID, requesterID).Scan(&exists)
	return exists, err
}

// InsertAppointment relies on the partial unique indexes to settle races
// between concurrent bookings that both passed the existence checks.
func (t *pgTx) InsertAppointment(ctx context.Context, a model.Appointment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO appointments (id, provider_id, requester_id, appt_date, start_minute, reason, status, version, cancelled_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, a.ID, a.ProviderID, a.RequesterID, a.Date, int(a.Time), a.Reason, string(a.Status), a.Version, a.CancelledBy, a.CreatedAt, a.UpdatedAt)
	return mapInsertError(err)
}

func mapInsertError(err error) error {
	constraint, ok := db.UniqueViolation(err)
	if !ok {
		return err
	}
	switch constraint {
	case activeSlotIndex:
		return apperr.SlotUnavailable(apperr.ReasonSlotTaken, "slot is already booked")
	case pendingPairIndex:
		return apperr.Conflict(apperr.ReasonPendingExists, "a request to this provider is already pending")
	default:
		return apperr.Conflict(apperr.ReasonConcurrent, "appointment conflicts with a concurrent write")
	}
}

func (t *pgTx) LockAppointment(ctx context.Context, id string) (model.Appointment, error) {
	key, ok := parseID(id)
	if !ok {
		return model.Appointment{}, apperr.NotFound("appointment %s not found", id)
	}
	rows, err := t.tx.Query(ctx, lockAppointmentSQL, key)
	if err != nil {
		return model.Appointment{}, err
	}
	a, err := pgx.CollectExactlyOneRow(rows, scanAppointment)
	if db.IsNoRows(err) {
		return model.Appointment{}, apperr.NotFound("appointment %s not found", id)
	}
	return a, err
}

func (t *pgTx) UpdateAppointment(ctx context.Context, a model.Appointment) error {
	key, ok := parseID(a.ID)
	if !ok {
		return apperr.NotFound("appointment %s not found", a.ID)
	}
	tag, err := t.tx.Exec(ctx, updateAppointmentSQL, key, string(a.Status), a.Version, a.CancelledBy, a.UpdatedAt)
	if err != nil {
		return mapInsertError(err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("appointment %s not found", a.ID)
	}
	return nil
}

func (t *pgTx) LockDueForCompletion(ctx context.Context, day time.Time, limit int) ([]model.Appointment, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'confirmed' AND appt_date < $1
		ORDER BY appt_date, start_minute
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	`, day, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanAppointment)
}

// ClaimIdempotencyKey inserts the key or, when it exists, waits on its row
// lock so a concurrent first submission finishes before the replay reads it.
func (t *pgTx) ClaimIdempotencyKey(ctx context.Context, requesterID, key string) (string, error) {
	tag, err := t.tx.Exec(ctx, `
		INSERT INTO booking_idempotency_keys (requester_id, idempotency_key)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, requesterID, key)
	if err != nil {
		return "", err
	}
	if tag.RowsAffected() == 1 {
		return "", nil
	}
	var appointmentID *string
	err = t.tx.QueryRow(ctx, `
		SELECT appointment_id::text FROM booking_idempotency_keys
		WHERE requester_id = $1 AND idempotency_key = $2
		FOR UPDATE
	`, requesterID, key).Scan(&appointmentID)
	if err != nil {
		return "", err
	}
	if appointmentID == nil {
		return "", apperr.Conflict(apperr.ReasonConcurrent, "a request with this idempotency key is still in progress")
	}
	return *appointmentID, nil
}

func (t *pgTx) CompleteIdempotencyKey(ctx context.Context, requesterID, key, appointmentID string) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE booking_idempotency_keys SET appointment_id = $3
		WHERE requester_id = $1 AND idempotency_key = $2
	`, requesterID, key, appointmentID)
	return err
}

func (t *pgTx) InsertEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Insert(ctx, t.tx, evt)
}
