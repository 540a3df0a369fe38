// Package storage is the PostgreSQL adapter of the booking core. Simple
// statements are plain SQL; filtered list queries are built with goqu.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
)

var dialect = goqu.Dialect("postgres")

const appointmentColumns = `id::text, provider_id, requester_id, appt_date, start_minute, reason, status, version, cancelled_by, created_at, updated_at`

// Lookups by primary key compare the uuid column directly so the PK index
// serves them.
const (
	selectAppointmentSQL = `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	lockAppointmentSQL   = selectAppointmentSQL + ` FOR UPDATE`
	updateAppointmentSQL = `
		UPDATE appointments
		SET status = $2, version = $3, cancelled_by = $4, updated_at = $5
		WHERE id = $1`
	markNotificationReadSQL = `
		UPDATE notifications SET is_read = TRUE
		WHERE id = $1 AND recipient_id = $2`
)

// parseID canonicalises a client supplied id. Anything that is not a uuid
// cannot name a row.
func parseID(id string) (string, bool) {
	u, err := uuid.Parse(id)
	if err != nil {
		return "", false
	}
	return u.String(), true
}

type Store struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func New(pool *db.Pool, outboxRepo *outbox.Repository) *Store {
	return &Store{pool: pool, outbox: outboxRepo}
}

var (
	_ booking.Store = (*Store)(nil)
	_ notify.Store  = (*Store)(nil)
	_ booking.Tx    = (*pgTx)(nil)
)

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	return s.pool.WithTx(ctx, func(tx pgx.Tx) error {
		return fn(ctx, &pgTx{tx: tx, outbox: s.outbox})
	})
}

func (s *Store) ListRules(ctx context.Context, providerID string) ([]model.AvailabilityRule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT provider_id, weekday, start_minute, end_minute, slot_minutes, is_active, updated_at
		FROM availability_rules
		WHERE provider_id = $1
		ORDER BY weekday
	`, providerID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanRule)
}

func (s *Store) ListAppointments(ctx context.Context, f booking.AppointmentFilter) ([]model.Appointment, error) {
	query, args, err := appointmentQuery(f)
	if err != nil {
		return nil, fmt.Errorf("build appointment query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, scanAppointment)
}

func appointmentQuery(f booking.AppointmentFilter) (string, []any, error) {
	where := goqu.Ex{}
	if f.ProviderID != "" {
		where["provider_id"] = f.ProviderID
	}
	if f.RequesterID != "" {
		where["requester_id"] = f.RequesterID
	}
	if len(f.Statuses) > 0 {
		statuses := make([]string, len(f.Statuses))
		for i, st := range f.Statuses {
			statuses[i] = string(st)
		}
		where["status"] = statuses
	}
	ds := dialect.From("appointments").Prepared(true).
		Select(goqu.L(appointmentColumns)).
		Where(where).
		Order(goqu.C("appt_date").Asc(), goqu.C("start_minute").Asc(), goqu.C("created_at").Asc())
	if !f.From.IsZero() {
		ds = ds.Where(goqu.C("appt_date").Gte(f.From))
	}
	if f.Limit > 0 {
		ds = ds.Limit(uint(f.Limit))
	}
	return ds.ToSQL()
}

func (s *Store) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	key, ok := parseID(id)
	if !ok {
		return model.Appointment{}, apperr.NotFound("appointment %s not found", id)
	}
	rows, err := s.pool.Query(ctx, selectAppointmentSQL, key)
	if err != nil {
		return model.Appointment{}, err
	}
	a, err := pgx.CollectExactlyOneRow(rows, scanAppointment)
	if db.IsNoRows(err) {
		return model.Appointment{}, apperr.NotFound("appointment %s not found", id)
	}
	return a, err
}

func (s *Store) InsertNotification(ctx context.Context, n model.Notification) error {
	return insertNotification(ctx, s.pool, n)
}

func (s *Store) ListNotifications(ctx context.Context, f notify.Filter) ([]model.Notification, error) {
	query, args, err := notificationQuery(f)
	if err != nil {
		return nil, fmt.Errorf("build notification query: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Notification, error) {
		var n model.Notification
		var typ string
		err := row.Scan(&n.ID, &n.RecipientID, &typ, &n.RelatedID, &n.Message, &n.IsRead, &n.CreatedAt)
		n.Type = model.NotificationType(typ)
		return n, err
	})
}

func notificationQuery(f notify.Filter) (string, []any, error) {
	where := goqu.Ex{"recipient_id": f.RecipientID}
	if f.UnreadOnly {
		where["is_read"] = false
	}
	ds := dialect.From("notifications").Prepared(true).
		Select(goqu.L("id::text"), "recipient_id", "type", "related_id", "message", "is_read", "created_at").
		Where(where).
		Order(goqu.C("created_at").Desc(), goqu.C("id").Desc())
	if f.Limit > 0 {
		ds = ds.Limit(uint(f.Limit))
	}
	return ds.ToSQL()
}

func (s *Store) MarkNotificationRead(ctx context.Context, recipientID, id string) (bool, error) {
	key, ok := parseID(id)
	if !ok {
		return false, nil
	}
	tag, err := s.pool.Exec(ctx, markNotificationReadSQL, key, recipientID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) MarkAllNotificationsRead(ctx context.Context, recipientID string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE recipient_id = $1 AND is_read = FALSE
	`, recipientID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (s *Store) CountUnread(ctx context.Context, recipientID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT count(*) FROM notifications WHERE recipient_id = $1 AND is_read = FALSE
	`, recipientID).Scan(&n)
	return n, err
}

func scanRule(row pgx.CollectableRow) (model.AvailabilityRule, error) {
	var r model.AvailabilityRule
	var weekday int16
	var start, end int
	err := row.Scan(&r.ProviderID, &weekday, &start, &end, &r.SlotMinutes, &r.Active, &r.UpdatedAt)
	r.Weekday = time.Weekday(weekday)
	r.Start, r.End = model.Clock(start), model.Clock(end)
	return r, err
}

func scanAppointment(row pgx.CollectableRow) (model.Appointment, error) {
	var a model.Appointment
	var start int
	var status string
	err := row.Scan(&a.ID, &a.ProviderID, &a.RequesterID, &a.Date, &start, &a.Reason, &status,
		&a.Version, &a.CancelledBy, &a.CreatedAt, &a.UpdatedAt)
	a.Time = model.Clock(start)
	a.Status = model.Status(status)
	a.Date = model.DateOf(a.Date)
	return a, err
}
