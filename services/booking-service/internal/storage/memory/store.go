// Package memory is an in-process Store with the same semantics as the
// Postgres adapter. Transactions are serialized by one lock and work on a
// copy of the state that replaces the original on commit.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
)

type ruleKey struct {
	provider string
	weekday  time.Weekday
}

type idemKey struct {
	requester string
	key       string
}

type state struct {
	rules         map[ruleKey]model.AvailabilityRule
	appointments  map[string]model.Appointment
	notifications []model.Notification
	idempotency   map[idemKey]string
}

func (st *state) clone() *state {
	c := &state{
		rules:         make(map[ruleKey]model.AvailabilityRule, len(st.rules)),
		appointments:  make(map[string]model.Appointment, len(st.appointments)),
		notifications: append([]model.Notification(nil), st.notifications...),
		idempotency:   make(map[idemKey]string, len(st.idempotency)),
	}
	for k, v := range st.rules {
		c.rules[k] = v
	}
	for k, v := range st.appointments {
		c.appointments[k] = v
	}
	for k, v := range st.idempotency {
		c.idempotency[k] = v
	}
	return c
}

// DefaultEventLimit bounds the committed outbox events kept in memory.
const DefaultEventLimit = 1024

// Outbox events and inbox ids live outside the cloned state. A transaction
// buffers its events and they are appended on commit.
type Store struct {
	mu         sync.Mutex
	st         *state
	events     []outbox.Event
	eventLimit int
	inbox      map[string]struct{}
}

type Option func(*Store)

// WithEventLimit keeps only the newest n committed events; n <= 0 falls back
// to DefaultEventLimit.
func WithEventLimit(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.eventLimit = n
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{
		st: &state{
			rules:        map[ruleKey]model.AvailabilityRule{},
			appointments: map[string]model.Appointment{},
			idempotency:  map[idemKey]string{},
		},
		eventLimit: DefaultEventLimit,
		inbox:      map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ booking.Store = (*Store)(nil)
	_ notify.Store  = (*Store)(nil)
	_ booking.Tx    = (*tx)(nil)
)

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx booking.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	work := &tx{st: s.st.clone()}
	if err := fn(ctx, work); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.st = work.st
	s.appendEvents(work.events)
	return nil
}

func (s *Store) appendEvents(evts []outbox.Event) {
	if len(evts) == 0 {
		return
	}
	s.events = append(s.events, evts...)
	if over := len(s.events) - s.eventLimit; over > 0 {
		n := copy(s.events, s.events[over:])
		clear(s.events[n:])
		s.events = s.events[:n]
	}
}

func (s *Store) ListRules(_ context.Context, providerID string) ([]model.AvailabilityRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.AvailabilityRule
	for k, r := range s.st.rules {
		if k.provider == providerID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Weekday < out[j].Weekday })
	return out, nil
}

func (s *Store) ListAppointments(_ context.Context, f booking.AppointmentFilter) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Appointment
	for _, a := range s.st.appointments {
		if f.ProviderID != "" && a.ProviderID != f.ProviderID {
			continue
		}
		if f.RequesterID != "" && a.RequesterID != f.RequesterID {
			continue
		}
		if len(f.Statuses) > 0 && !hasStatus(f.Statuses, a.Status) {
			continue
		}
		if !f.From.IsZero() && a.Date.Before(f.From) {
			continue
		}
		out = append(out, a)
	}
	sortAppointments(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.st.appointments[id]
	if !ok {
		return model.Appointment{}, apperr.NotFound("appointment %s not found", id)
	}
	return a, nil
}

func (s *Store) InsertNotification(_ context.Context, n model.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.notifications = append(s.st.notifications, n)
	return nil
}

func (s *Store) ListNotifications(_ context.Context, f notify.Filter) ([]model.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Notification
	// Walk backwards so equal timestamps keep newest-inserted first.
	for i := len(s.st.notifications) - 1; i >= 0; i-- {
		n := s.st.notifications[i]
		if n.RecipientID != f.RecipientID || (f.UnreadOnly && n.IsRead) {
			continue
		}
		out = append(out, n)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (s *Store) MarkNotificationRead(_ context.Context, recipientID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.st.notifications {
		n := &s.st.notifications[i]
		if n.ID == id && n.RecipientID == recipientID {
			n.IsRead = true
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) MarkAllNotificationsRead(_ context.Context, recipientID string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for i := range s.st.notifications {
		if s.st.notifications[i].RecipientID == recipientID && !s.st.notifications[i].IsRead {
			s.st.notifications[i].IsRead = true
			n++
		}
	}
	return n, nil
}

func (s *Store) CountUnread(_ context.Context, recipientID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, item := range s.st.notifications {
		if item.RecipientID == recipientID && !item.IsRead {
			n++
		}
	}
	return n, nil
}

// Record is the inbox check used by the message consumer; it reports
// whether eventID is new.
func (s *Store) Record(_ context.Context, eventID, _ string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.inbox[eventID]; ok {
		return false, nil
	}
	s.inbox[eventID] = struct{}{}
	return true, nil
}

// Forget releases eventID so a redelivery is applied again.
func (s *Store) Forget(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inbox, eventID)
	return nil
}

// Events returns the newest committed outbox events, oldest first.
func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Event(nil), s.events...)
}

func hasStatus(list []model.Status, s model.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func sortAppointments(out []model.Appointment) {
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
}
