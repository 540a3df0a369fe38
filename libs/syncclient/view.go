package syncclient

import (
	"sort"
	"sync"
	"time"
)

type entry struct {
	appt       Appointment
	optimistic bool
	addedAt    time.Time
}

// View is the client-side cache of appointments and unread notifications.
// It is safe for concurrent use by the poller and UI code.
type View struct {
	mu            sync.RWMutex
	now           func() time.Time
	appointments  map[string]entry
	notifications []Notification
	unread        int
	lastSync      time.Time
}

func NewView() *View {
	return &View{now: time.Now, appointments: map[string]entry{}}
}

// AddOptimistic shows a locally created appointment before the server has
// confirmed it. The next snapshot fetched after this call decides its fate.
func (v *View) AddOptimistic(a Appointment) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.appointments[a.ID] = entry{appt: a, optimistic: true, addedAt: v.now()}
}

// Apply reconciles snap into the view. Server records overwrite local ones
// with the same id. Optimistic entries missing from snap are dropped unless
// they were added after fetchStarted, in which case the fetch could not have
// seen them yet.
func (v *View) Apply(snap Snapshot, fetchStarted time.Time) {
	v.mu.Lock()
	defer v.mu.Unlock()

	next := make(map[string]entry, len(snap.Appointments))
	for _, a := range snap.Appointments {
		next[a.ID] = entry{appt: a}
	}
	for id, e := range v.appointments {
		if !e.optimistic {
			continue
		}
		if _, ok := next[id]; ok {
			continue
		}
		if e.addedAt.After(fetchStarted) {
			next[id] = e
		}
	}
	v.appointments = next
	v.notifications = append([]Notification(nil), snap.Notifications...)
	v.unread = snap.UnreadCount
	v.lastSync = snap.ServerTime
}

// Appointments returns the current view ordered by date and time.
func (v *View) Appointments() []Appointment {
	v.mu.RLock()
	out := make([]Appointment, 0, len(v.appointments))
	for _, e := range v.appointments {
		out = append(out, e.appt)
	}
	v.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		if out[i].Time != out[j].Time {
			return out[i].Time < out[j].Time
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (v *View) Pending(id string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	e, ok := v.appointments[id]
	return ok && e.optimistic
}

func (v *View) Unread() ([]Notification, int) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return append([]Notification(nil), v.notifications...), v.unread
}

func (v *View) LastSync() time.Time {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.lastSync
}
