package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppointmentQuery(t *testing.T) {
	query, args, err := appointmentQuery(booking.AppointmentFilter{
		ProviderID: "doc-1",
		Statuses:   []model.Status{model.StatusPending, model.StatusConfirmed},
		From:       time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		Limit:      20,
	})
	require.NoError(t, err)

	assert.Contains(t, query, `FROM "appointments"`)
	assert.Contains(t, query, `"provider_id" = $`)
	assert.Contains(t, query, `"status" IN ($`)
	assert.Contains(t, query, `"appt_date" >= $`)
	assert.Contains(t, query, `ORDER BY "appt_date" ASC, "start_minute" ASC, "created_at" ASC`)
	assert.Contains(t, query, "LIMIT ")
	assert.NotContains(t, query, "requester_id\" =")
	assert.Contains(t, args, "doc-1")
	assert.Contains(t, args, "pending")
}

func TestNotificationQuery(t *testing.T) {
	query, args, err := notificationQuery(notify.Filter{RecipientID: "pat-1", UnreadOnly: true, Limit: 5})
	require.NoError(t, err)
	assert.Contains(t, query, `"is_read" IS FALSE`)
	assert.Contains(t, query, `ORDER BY "created_at" DESC, "id" DESC`)
	assert.Contains(t, args, "pat-1")

	query, _, err = notificationQuery(notify.Filter{RecipientID: "pat-1"})
	require.NoError(t, err)
	assert.NotContains(t, query, "is_read\" IS")
}

func TestMapInsertError(t *testing.T) {
	slot := fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23505", ConstraintName: activeSlotIndex})
	assert.True(t, errors.Is(mapInsertError(slot), &apperr.Error{Code: apperr.CodeSlotUnavailable, Reason: apperr.ReasonSlotTaken}))

	pair := &pgconn.PgError{Code: "23505", ConstraintName: pendingPairIndex}
	assert.True(t, errors.Is(mapInsertError(pair), &apperr.Error{Code: apperr.CodeConflict, Reason: apperr.ReasonPendingExists}))

	other := errors.New("connection reset")
	assert.Equal(t, other, mapInsertError(other))
	assert.NoError(t, mapInsertError(nil))
}

func TestEmbeddedSchemaDeclaresIndexes(t *testing.T) {
	body, err := migrations.ReadFile("migrations/001_init.sql")
	require.NoError(t, err)
	schema := string(body)
	assert.Contains(t, schema, activeSlotIndex)
	assert.Contains(t, schema, pendingPairIndex)
	assert.Contains(t, schema, "notifications_recipient_idx")
}

func TestPrimaryKeyLookupsCompareUUIDColumn(t *testing.T) {
	for name, stmt := range map[string]string{
		"select": selectAppointmentSQL,
		"lock":   lockAppointmentSQL,
		"update": updateAppointmentSQL,
		"read":   markNotificationReadSQL,
	} {
		assert.Contains(t, stmt, "WHERE id = $1", name)
		assert.NotContains(t, stmt, "id::text = ", name)
	}
	assert.True(t, strings.HasSuffix(lockAppointmentSQL, "FOR UPDATE"))
}

func TestMalformedIDsAreNotFound(t *testing.T) {
	ctx := context.Background()
	s := New(nil, nil)
	tx := &pgTx{}

	_, err := s.GetAppointment(ctx, "not-a-uuid")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = tx.LockAppointment(ctx, "42")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	err = tx.UpdateAppointment(ctx, model.Appointment{ID: "x"})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	ok, err := s.MarkNotificationRead(ctx, "pat-1", "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	key, ok := parseID("6F9619FF-8B86-D011-B42D-00C04FC964FF")
	require.True(t, ok)
	assert.Equal(t, "6f9619ff-8b86-d011-b42d-00c04fc964ff", key)
}
