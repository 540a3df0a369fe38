package availability

import (
	"sort"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
)

// Slot is one published start time of a provider resolved to a date.
type Slot struct {
	Weekday time.Weekday
	Date    time.Time
	Start   model.Clock
	End     model.Clock
	Taken   bool
}

// PublishedSlots expands the active rules into the next bookable occurrence
// of every published start, marking the ones held by an active appointment.
func PublishedSlots(rules []model.AvailabilityRule, busy []model.Appointment, now time.Time, resolver Resolver) []Slot {
	taken := make(map[slotKey]struct{}, len(busy))
	for _, a := range busy {
		if a.Status.Active() {
			taken[slotKey{date: a.Date, start: a.Time}] = struct{}{}
		}
	}

	var slots []Slot
	for _, rule := range rules {
		if !rule.Active {
			continue
		}
		length := model.Clock(rule.SlotMinutes)
		for _, start := range rule.Starts() {
			end := rule.End
			if length > 0 {
				end = start + length
			}
			date := resolver.Resolve(now, rule.Weekday, start)
			_, isTaken := taken[slotKey{date: date, start: start}]
			slots = append(slots, Slot{
				Weekday: rule.Weekday,
				Date:    date,
				Start:   start,
				End:     end,
				Taken:   isTaken,
			})
		}
	}
	sort.Slice(slots, func(i, j int) bool {
		if !slots[i].Date.Equal(slots[j].Date) {
			return slots[i].Date.Before(slots[j].Date)
		}
		return slots[i].Start < slots[j].Start
	})
	return slots
}

type slotKey struct {
	date  time.Time
	start model.Clock
}
