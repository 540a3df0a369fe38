package memory

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
)

type tx struct {
	st     *state
	events []outbox.Event
}

func (t *tx) InsertNotification(_ context.Context, n model.Notification) error {
	t.st.notifications = append(t.st.notifications, n)
	return nil
}

func (t *tx) ReplaceRules(_ context.Context, providerID string, rules []model.AvailabilityRule) error {
	keep := make(map[time.Weekday]bool, len(rules))
	for _, r := range rules {
		t.st.rules[ruleKey{provider: providerID, weekday: r.Weekday}] = r
		keep[r.Weekday] = true
	}
	for k, r := range t.st.rules {
		if k.provider == providerID && !keep[k.weekday] && r.Active {
			r.Active = false
			t.st.rules[k] = r
		}
	}
	return nil
}

func (t *tx) GetRule(_ context.Context, providerID string, weekday time.Weekday) (model.AvailabilityRule, bool, error) {
	r, ok := t.st.rules[ruleKey{provider: providerID, weekday: weekday}]
	return r, ok, nil
}

func (t *tx) ActiveSlotTaken(_ context.Context, providerID string, date time.Time, start model.Clock) (bool, error) {
	for _, a := range t.st.appointments {
		if a.ProviderID == providerID && a.Date.Equal(date) && a.Time == start && a.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) PendingExists(_ context.Context, providerID, requesterID string) (bool, error) {
	for _, a := range t.st.appointments {
		if a.ProviderID == providerID && a.RequesterID == requesterID && a.Status == model.StatusPending {
			return true, nil
		}
	}
	return false, nil
}

// InsertAppointment enforces the same uniqueness the Postgres partial
// indexes do.
func (t *tx) InsertAppointment(ctx context.Context, a model.Appointment) error {
	if a.Status.Active() {
		taken, _ := t.ActiveSlotTaken(ctx, a.ProviderID, a.Date, a.Time)
		if taken {
			return apperr.SlotUnavailable(apperr.ReasonSlotTaken, "slot is already booked")
		}
	}
	if a.Status == model.StatusPending {
		pending, _ := t.PendingExists(ctx, a.ProviderID, a.RequesterID)
		if pending {
			return apperr.Conflict(apperr.ReasonPendingExists, "a request to this provider is already pending")
		}
	}
	t.st.appointments[a.ID] = a
	return nil
}

func (t *tx) LockAppointment(_ context.Context, id string) (model.Appointment, error) {
	a, ok := t.st.appointments[id]
	if !ok {
		return model.Appointment{}, apperr.NotFound("appointment %s not found", id)
	}
	return a, nil
}

func (t *tx) UpdateAppointment(_ context.Context, a model.Appointment) error {
	if _, ok := t.st.appointments[a.ID]; !ok {
		return apperr.NotFound("appointment %s not found", a.ID)
	}
	t.st.appointments[a.ID] = a
	return nil
}

func (t *tx) LockDueForCompletion(_ context.Context, day time.Time, limit int) ([]model.Appointment, error) {
	var due []model.Appointment
	for _, a := range t.st.appointments {
		if a.Status == model.StatusConfirmed && a.Date.Before(day) {
			due = append(due, a)
		}
	}
	sortAppointments(due)
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (t *tx) ClaimIdempotencyKey(_ context.Context, requesterID, key string) (string, error) {
	k := idemKey{requester: requesterID, key: key}
	if id, ok := t.st.idempotency[k]; ok {
		return id, nil
	}
	t.st.idempotency[k] = ""
	return "", nil
}

func (t *tx) CompleteIdempotencyKey(_ context.Context, requesterID, key, appointmentID string) error {
	t.st.idempotency[idemKey{requester: requesterID, key: key}] = appointmentID
	return nil
}

func (t *tx) InsertEvent(_ context.Context, evt outbox.Event) error {
	t.events = append(t.events, evt)
	return nil
}
