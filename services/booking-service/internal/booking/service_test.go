package booking_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/storage/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	doctor   = booking.Actor{UserID: "doc-1", Role: auth.RoleProvider}
	patient  = booking.Actor{UserID: "pat-1", Role: auth.RoleRequester}
	patient2 = booking.Actor{UserID: "pat-2", Role: auth.RoleRequester}
	stranger = booking.Actor{UserID: "pat-9", Role: auth.RoleRequester}
)

type fixture struct {
	svc      *booking.Service
	store    *memory.Store
	notifier *notify.Engine
	now      *time.Time
}

// Wednesday 2026-03-04 10:00 UTC.
func newFixture(t *testing.T, cfg booking.Config) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	now := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	f := &fixture{store: memory.New(), now: &now}
	clock := func() time.Time { return *f.now }
	var seq atomic.Int64
	ids := func() string { return fmt.Sprintf("id-%03d", seq.Add(1)) }

	f.notifier = notify.NewEngine(f.store, logger, notify.WithClock(clock))
	f.svc = booking.NewService(f.store, f.notifier, logger, cfg, booking.WithClock(clock), booking.WithIDs(ids))
	return f
}

func (f *fixture) publishMonday(t *testing.T) {
	t.Helper()
	_, err := f.svc.SetSchedule(context.Background(), doctor, []booking.RuleInput{
		{Weekday: time.Monday, Start: 9 * 60, End: 17 * 60, Active: true},
	})
	require.NoError(t, err)
}

func (f *fixture) unread(t *testing.T, user string) int {
	t.Helper()
	n, err := f.notifier.UnreadCount(context.Background(), user)
	require.NoError(t, err)
	return n
}

func mondayAt9(reason string) booking.BookRequest {
	return booking.BookRequest{ProviderID: doctor.UserID, Weekday: time.Monday, StartTime: 9 * 60, Reason: reason}
}

func requireCode(t *testing.T, err error, code apperr.Code, reason string) {
	t.Helper()
	require.Error(t, err)
	e, ok := apperr.As(err)
	require.True(t, ok, "expected *apperr.Error, got %v", err)
	assert.Equal(t, code, e.Code)
	if reason != "" {
		assert.Equal(t, reason, e.Reason)
	}
}

func TestBookResolvesNextMondayAndNotifiesProvider(t *testing.T) {
	f := newFixture(t, booking.Config{})
	f.publishMonday(t)
	before := f.unread(t, doctor.UserID)

	appt, replayed, err := f.svc.Book(context.Background(), patient, mondayAt9("checkup"))
	require.NoError(t, err)
	assert.False(t, replayed)

	assert.Equal(t, model.StatusPending, appt.Status)
	assert.Equal(t, time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC), appt.Date)
	assert.Equal(t, model.Clock(9*60), appt.Time)
	assert.Equal(t, patient.UserID, appt.RequesterID)
	assert.Equal(t, before+1, f.unread(t, doctor.UserID))

	items, err := f.notifier.List(context.Background(), doctor.UserID, true, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, model.NotifyAppointmentCreated, items[0].Type)
	assert.Equal(t, appt.ID, items[0].RelatedID)

	events := f.store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, outbox.TopicAppointmentRequested, events[0].EventType)
	assert.Equal(t, appt.ID, events[0].AggregateID)
}

func TestBookValidationOrder(t *testing.T) {
	f := newFixture(t, booking.Config{})
	ctx := context.Background()

	_, _, err := f.svc.Book(ctx, patient, mondayAt9("   "))
	requireCode(t, err, apperr.CodeValidation, apperr.ReasonRequired)

	_, _, err = f.svc.Book(ctx, patient, mondayAt9("checkup"))
	requireCode(t, err, apperr.CodeSlotUnavailable, apperr.ReasonNoActiveRule)

	f.publishMonday(t)
	req := mondayAt9("checkup")
	req.StartTime = 10 * 60
	_, _, err = f.svc.Book(ctx, patient, req)
	requireCode(t, err, apperr.CodeSlotUnavailable, apperr.ReasonSlotNotOffered)

	_, _, err = f.svc.Book(ctx, doctor, mondayAt9("checkup"))
	requireCode(t, err, apperr.CodeForbidden, "")

	list, err := f.svc.List(ctx, booking.System, booking.ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, list, "rejected requests must not persist")
	assert.Empty(t, f.store.Events())
}

func TestBookInactiveRule(t *testing.T) {
	f := newFixture(t, booking.Config{})
	_, err := f.svc.SetSchedule(context.Background(), doctor, []booking.RuleInput{
		{Weekday: time.Monday, Start: 9 * 60, End: 17 * 60, Active: false},
	})
	require.NoError(t, err)

	_, _, err = f.svc.Book(context.Background(), patient, mondayAt9("checkup"))
	requireCode(t, err, apperr.CodeSlotUnavailable, apperr.ReasonNoActiveRule)
}

func TestBookSlotTakenAndPendingPair(t *testing.T) {
	f := newFixture(t, booking.Config{})
	f.publishMonday(t)
	ctx := context.Background()

	_, _, err := f.svc.Book(ctx, patient, mondayAt9("checkup"))
	require.NoError(t, err)

	_, _, err = f.svc.Book(ctx, patient2, mondayAt9("follow-up"))
	requireCode(t, err, apperr.CodeSlotUnavailable, apperr.ReasonSlotTaken)

	_, err = f.svc.SetSchedule(ctx, doctor, []booking.RuleInput{
		{Weekday: time.Monday, Start: 9 * 60, End: 17 * 60, Active: true},
		{Weekday: time.Tuesday, Start: 9 * 60, End: 12 * 60, Active: true},
	})
	require.NoError(t, err)
	req := mondayAt9("second request")
	req.Weekday = time.Tuesday
	_, _, err = f.svc.Book(ctx, patient, req)
	requireCode(t, err, apperr.CodeConflict, apperr.ReasonPendingExists)
}

func TestCancelledAppointmentFreesSlot(t *testing.T) {
	f := newFixture(t, booking.Config{})
	f.publishMonday(t)
	ctx := context.Background()

	appt, _, err := f.svc.Book(ctx, patient, mondayAt9("checkup"))
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, doctor, appt.ID, model.StatusCancelled, nil)
	require.NoError(t, err)

	again, _, err := f.svc.Book(ctx, patient2, mondayAt9("checkup"))
	require.NoError(t, err)
	assert.Equal(t, appt.Date, again.Date)
}

func TestConcurrentBookingsCreateExactlyOne(t *testing.T) {
	f := newFixture(t, booking.Config{})
	f.publishMonday(t)

	const n = 16
	var wg sync.WaitGroup
	var created, rejected atomic.Int32
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			actor := booking.Actor{UserID: fmt.Sprintf("pat-%d", i), Role: auth.RoleRequester}
			_, _, err := f.svc.Book(context.Background(), actor, mondayAt9("checkup"))
			switch {
			case err == nil:
				created.Add(1)
			case errors.Is(err, apperr.ErrSlotUnavailable):
				rejected.Add(1)
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, created.Load())
	assert.EqualValues(t, n-1, rejected.Load())

	active, err := f.svc.List(context.Background(), doctor, booking.ListQuery{Statuses: []model.Status{model.StatusPending, model.StatusConfirmed}})
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestIdempotentBookingReplay(t *testing.T) {
	f := newFixture(t, booking.Config{})
	f.publishMonday(t)
	ctx := context.Background()

	req := mondayAt9("checkup")
	req.IdempotencyKey = "key-1"
	first, replayed, err := f.svc.Book(ctx, patient, req)
	require.NoError(t, err)
	require.False(t, replayed)

	second, replayed, err := f.svc.Book(ctx, patient, req)
	require.NoError(t, err)
	assert.True(t, replayed)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, f.unread(t, doctor.UserID), "replay must not notify twice")
	assert.Len(t, f.store.Events(), 1)
}

func TestIdempotencyKeyReleasedOnRejection(t *testing.T) {
	f := newFixture(t, booking.Config{})
	ctx := context.Background()

	req := mondayAt9("checkup")
	req.IdempotencyKey = "key-1"
	_, _, err := f.svc.Book(ctx, patient, req)
	requireCode(t, err, apperr.CodeSlotUnavailable, apperr.ReasonNoActiveRule)

	f.publishMonday(t)
	_, replayed, err := f.svc.Book(ctx, patient, req)
	require.NoError(t, err)
	assert.False(t, replayed)
}

func TestConfirmNotifiesRequesterAndIsIdempotent(t *testing.T) {
	f := newFixture(t, booking.Config{})
	f.publishMonday(t)
	ctx := context.Background()

	appt, _, err := f.svc.Book(ctx, patient, mondayAt9("checkup"))
	require.NoError(t, err)
	before := f.unread(t, patient.UserID)

	confirmed, err := f.svc.Transition(ctx, doctor, appt.ID, model.StatusConfirmed, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, confirmed.Status)
	assert.Equal(t, 2, confirmed.Version)
	assert.Equal(t, before+1, f.unread(t, patient.UserID))

	again, err := f.svc.Transition(ctx, doctor, appt.ID, model.StatusConfirmed, nil)
	require.NoError(t, err)
	assert.Equal(t, confirmed, again)
	assert.Equal(t, before+1, f.unread(t, patient.UserID), "no duplicate notification")
	assert.Len(t, f.store.Events(), 2)

	list, err := f.svc.List(ctx, patient, booking.ListQuery{})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestTransitionRules(t *testing.T) {
	f := newFixture(t, booking.Config{})
	f.publishMonday(t)
	ctx := context.Background()

	appt, _, err := f.svc.Book(ctx, patient, mondayAt9("checkup"))
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, patient, appt.ID, model.StatusConfirmed, nil)
	requireCode(t, err, apperr.CodeForbidden, apperr.ReasonProviderOnly)

	_, err = f.svc.Transition(ctx, stranger, appt.ID, model.StatusCancelled, nil)
	requireCode(t, err, apperr.CodeForbidden, apperr.ReasonNotParty)

	_, err = f.svc.Transition(ctx, doctor, appt.ID, model.StatusCompleted, nil)
	requireCode(t, err, apperr.CodeInvalidTransition, apperr.ReasonNotAllowed)

	_, err = f.svc.Transition(ctx, doctor, "missing", model.StatusConfirmed, nil)
	requireCode(t, err, apperr.CodeNotFound, "")

	got, err := f.svc.Get(ctx, patient, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, got.Status, "failed transitions leave state unchanged")
	assert.Equal(t, 1, got.Version)
}

func TestRepeatedStatusFollowsEdgeRules(t *testing.T) {
	f := newFixture(t, booking.Config{})
	f.publishMonday(t)
	ctx := context.Background()

	appt, _, err := f.svc.Book(ctx, patient, mondayAt9("checkup"))
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, patient, appt.ID, model.StatusPending, nil)
	requireCode(t, err, apperr.CodeInvalidTransition, apperr.ReasonNotAllowed)
	_, err = f.svc.Transition(ctx, doctor, appt.ID, model.StatusPending, nil)
	requireCode(t, err, apperr.CodeInvalidTransition, apperr.ReasonNotAllowed)

	_, err = f.svc.Transition(ctx, doctor, appt.ID, model.StatusConfirmed, nil)
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, patient, appt.ID, model.StatusConfirmed, nil)
	requireCode(t, err, apperr.CodeForbidden, apperr.ReasonProviderOnly)

	*f.now = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	_, err = f.svc.Transition(ctx, booking.System, appt.ID, model.StatusCompleted, nil)
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, patient, appt.ID, model.StatusCompleted, nil)
	requireCode(t, err, apperr.CodeForbidden, apperr.ReasonSystemOnly)
	_, err = f.svc.Transition(ctx, doctor, appt.ID, model.StatusCompleted, nil)
	requireCode(t, err, apperr.CodeForbidden, apperr.ReasonSystemOnly)
	again, err := f.svc.Transition(ctx, booking.System, appt.ID, model.StatusCompleted, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, again.Version)
}

func TestRepeatedCancelOnlyForCanceller(t *testing.T) {
	f := newFixture(t, booking.Config{})
	f.publishMonday(t)
	ctx := context.Background()

	appt, _, err := f.svc.Book(ctx, patient, mondayAt9("checkup"))
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, doctor, appt.ID, model.StatusCancelled, nil)
	require.NoError(t, err)

	again, err := f.svc.Transition(ctx, doctor, appt.ID, model.StatusCancelled, nil)
	require.NoError(t, err)
	assert.Equal(t, doctor.UserID, again.CancelledBy)

	_, err = f.svc.Transition(ctx, patient, appt.ID, model.StatusCancelled, nil)
	requireCode(t, err, apperr.CodeInvalidTransition, apperr.ReasonTerminal)
}

func TestRequesterCancelsConfirmedNotifiesProvider(t *testing.T) {
	f := newFixture(t, booking.Config{})
	f.publishMonday(t)
	ctx := context.Background()

	appt, _, err := f.svc.Book(ctx, patient, mondayAt9("checkup"))
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, doctor, appt.ID, model.StatusConfirmed, nil)
	require.NoError(t, err)
	_, err = f.notifier.MarkAllRead(ctx, doctor.UserID)
	require.NoError(t, err)

	cancelled, err := f.svc.Transition(ctx, patient, appt.ID, model.StatusCancelled, nil)
	require.NoError(t, err)
	assert.Equal(t, patient.UserID, cancelled.CancelledBy)
	assert.Equal(t, 1, f.unread(t, doctor.UserID))

	_, err = f.svc.Transition(ctx, doctor, appt.ID, model.StatusConfirmed, nil)
	requireCode(t, err, apperr.CodeInvalidTransition, apperr.ReasonTerminal)
}

func TestStaleVersionConflicts(t *testing.T) {
	f := newFixture(t, booking.Config{})
	f.publishMonday(t)
	ctx := context.Background()

	appt, _, err := f.svc.Book(ctx, patient, mondayAt9("checkup"))
	require.NoError(t, err)

	v := appt.Version
	_, err = f.svc.Transition(ctx, doctor, appt.ID, model.StatusConfirmed, &v)
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, doctor, appt.ID, model.StatusCancelled, &v)
	requireCode(t, err, apperr.CodeConflict, apperr.ReasonStaleVersion)
}

func TestConcurrentTransitionsApplyOnce(t *testing.T) {
	f := newFixture(t, booking.Config{})
	f.publishMonday(t)
	ctx := context.Background()

	appt, _, err := f.svc.Book(ctx, patient, mondayAt9("checkup"))
	require.NoError(t, err)

	targets := []model.Status{model.StatusConfirmed, model.StatusCancelled}
	results := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, to := range targets {
		wg.Add(1)
		go func(i int, to model.Status) {
			defer wg.Done()
			v := appt.Version
			_, results[i] = f.svc.Transition(ctx, doctor, appt.ID, to, &v)
		}(i, to)
	}
	wg.Wait()

	var ok int
	for _, err := range results {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, errors.Is(err, apperr.ErrConflict) || errors.Is(err, apperr.ErrInvalidTransition), "loser got %v", err)
	}
	assert.Equal(t, 1, ok)

	final, err := f.svc.Get(ctx, doctor, appt.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, final.Version)
}

func TestCompletePast(t *testing.T) {
	f := newFixture(t, booking.Config{CompletionBatch: 1})
	f.publishMonday(t)
	ctx := context.Background()

	first, _, err := f.svc.Book(ctx, patient, mondayAt9("checkup"))
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, doctor, first.ID, model.StatusConfirmed, nil)
	require.NoError(t, err)

	_, err = f.svc.SetSchedule(ctx, doctor, []booking.RuleInput{
		{Weekday: time.Monday, Start: 9 * 60, End: 17 * 60, Active: true},
		{Weekday: time.Thursday, Start: 8 * 60, End: 9 * 60, Active: true},
	})
	require.NoError(t, err)
	thursday := booking.BookRequest{ProviderID: doctor.UserID, Weekday: time.Thursday, StartTime: 8 * 60, Reason: "labs"}
	second, _, err := f.svc.Book(ctx, patient2, thursday)
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, doctor, second.ID, model.StatusConfirmed, nil)
	require.NoError(t, err)

	n, err := f.svc.CompletePast(ctx, time.Date(2026, 3, 9, 23, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, n, "only the Thursday appointment has passed")

	n, err = f.svc.CompletePast(ctx, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = f.svc.CompletePast(ctx, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n, "completion is idempotent")

	done, err := f.svc.Get(ctx, patient, first.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status)
}

func TestSystemCompleteRequiresPastDate(t *testing.T) {
	f := newFixture(t, booking.Config{})
	f.publishMonday(t)
	ctx := context.Background()

	appt, _, err := f.svc.Book(ctx, patient, mondayAt9("checkup"))
	require.NoError(t, err)
	_, err = f.svc.Transition(ctx, doctor, appt.ID, model.StatusConfirmed, nil)
	require.NoError(t, err)

	_, err = f.svc.Transition(ctx, booking.System, appt.ID, model.StatusCompleted, nil)
	requireCode(t, err, apperr.CodeInvalidTransition, apperr.ReasonNotAllowed)

	*f.now = time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC)
	done, err := f.svc.Transition(ctx, booking.System, appt.ID, model.StatusCompleted, nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, done.Status)
}

func TestSameDayOptIn(t *testing.T) {
	f := newFixture(t, booking.Config{AllowSameDay: true})
	_, err := f.svc.SetSchedule(context.Background(), doctor, []booking.RuleInput{
		{Weekday: time.Wednesday, Start: 14 * 60, End: 15 * 60, Active: true},
	})
	require.NoError(t, err)

	appt, _, err := f.svc.Book(context.Background(), patient, booking.BookRequest{
		ProviderID: doctor.UserID, Weekday: time.Wednesday, StartTime: 14 * 60, Reason: "today",
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 4, 0, 0, 0, 0, time.UTC), appt.Date)
}

func TestListScopesByRole(t *testing.T) {
	f := newFixture(t, booking.Config{})
	f.publishMonday(t)
	ctx := context.Background()

	_, _, err := f.svc.Book(ctx, patient, mondayAt9("checkup"))
	require.NoError(t, err)

	mine, err := f.svc.List(ctx, patient, booking.ListQuery{})
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	theirs, err := f.svc.List(ctx, patient2, booking.ListQuery{})
	require.NoError(t, err)
	assert.Empty(t, theirs)

	_, err = f.svc.List(ctx, booking.Actor{UserID: "x", Role: "admin"}, booking.ListQuery{})
	requireCode(t, err, apperr.CodeForbidden, "")
}

func TestListUpcomingAndFrom(t *testing.T) {
	f := newFixture(t, booking.Config{})
	f.publishMonday(t)
	ctx := context.Background()

	appt, _, err := f.svc.Book(ctx, patient, mondayAt9("checkup"))
	require.NoError(t, err)

	upcoming, err := f.svc.List(ctx, patient, booking.ListQuery{Upcoming: true})
	require.NoError(t, err)
	require.Len(t, upcoming, 1)
	assert.Equal(t, appt.ID, upcoming[0].ID)

	later, err := f.svc.List(ctx, patient, booking.ListQuery{From: time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Empty(t, later)

	*f.now = time.Date(2026, 3, 11, 8, 0, 0, 0, time.UTC)
	upcoming, err = f.svc.List(ctx, patient, booking.ListQuery{Upcoming: true})
	require.NoError(t, err)
	assert.Empty(t, upcoming, "past appointments drop out of the upcoming view")

	upcoming, err = f.svc.List(ctx, patient, booking.ListQuery{Upcoming: true, From: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)})
	require.NoError(t, err)
	assert.Empty(t, upcoming, "the later bound wins")

	all, err := f.svc.List(ctx, patient, booking.ListQuery{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
