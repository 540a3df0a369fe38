package availability

import (
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

// NextDate returns the first calendar date strictly after anchor that falls
// on weekday. When anchor already is that weekday the result is one week out.
// Only the calendar date of anchor is used.
func NextDate(anchor time.Time, weekday time.Weekday) time.Time {
	day := model.DateOf(anchor)
	days := (int(weekday) - int(day.Weekday()) + 7) % 7
	if days == 0 {
		days = 7
	}
	return day.AddDate(0, 0, days)
}

// Resolver maps a weekly slot to the concrete date it will be booked on.
type Resolver struct {
	// AllowSameDay resolves to today when the slot has not started yet.
	AllowSameDay bool
}

// Resolve picks the date for (weekday, start) as seen from now. now must be
// expressed in the clinic's location.
func (r Resolver) Resolve(now time.Time, weekday time.Weekday, start model.Clock) time.Time {
	if r.AllowSameDay && now.Weekday() == weekday && start > model.ClockOf(now) {
		return model.DateOf(now)
	}
	return NextDate(now, weekday)
}
