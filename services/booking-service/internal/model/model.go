package model

import "time"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusCompleted Status = "completed"
)

var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled, StatusCompleted},
}

func ParseStatus(raw string) (Status, bool) {
	switch s := Status(raw); s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted:
		return s, true
	}
	return "", false
}

// Active appointments hold their slot.
func (s Status) Active() bool {
	return s == StatusPending || s == StatusConfirmed
}

func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// CanTransition reports whether from -> to is an edge of the appointment graph.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

type AvailabilityRule struct {
	ProviderID  string
	Weekday     time.Weekday
	Start       Clock
	End         Clock
	SlotMinutes int
	Active      bool
	UpdatedAt   time.Time
}

// Starts lists the published start times of the rule. Without a slot length
// the window publishes only its opening time.
func (r AvailabilityRule) Starts() []Clock {
	if r.SlotMinutes <= 0 {
		return []Clock{r.Start}
	}
	var out []Clock
	for c := r.Start; c+Clock(r.SlotMinutes) <= r.End; c += Clock(r.SlotMinutes) {
		out = append(out, c)
	}
	return out
}

func (r AvailabilityRule) Publishes(c Clock) bool {
	if c < r.Start || c >= r.End {
		return false
	}
	if r.SlotMinutes <= 0 {
		return c == r.Start
	}
	return int(c-r.Start)%r.SlotMinutes == 0 && c+Clock(r.SlotMinutes) <= r.End
}

type Appointment struct {
	ID          string
	ProviderID  string
	RequesterID string
	Date        time.Time
	Time        Clock
	Reason      string
	Status      Status
	Version     int
	CancelledBy string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// StartsAt combines the appointment date and time in loc.
func (a Appointment) StartsAt(loc *time.Location) time.Time {
	return time.Date(a.Date.Year(), a.Date.Month(), a.Date.Day(), int(a.Time)/60, int(a.Time)%60, 0, 0, loc)
}

// Counterpart returns the other party of the appointment relative to userID.
func (a Appointment) Counterpart(userID string) string {
	if userID == a.RequesterID {
		return a.ProviderID
	}
	return a.RequesterID
}

type NotificationType string

const (
	NotifyAppointmentCreated       NotificationType = "appointment_created"
	NotifyAppointmentStatusChanged NotificationType = "appointment_status_changed"
	NotifyMessage                  NotificationType = "message"
)

type Notification struct {
	ID          string
	RecipientID string
	Type        NotificationType
	RelatedID   string
	Message     string
	IsRead      bool
	CreatedAt   time.Time
}
