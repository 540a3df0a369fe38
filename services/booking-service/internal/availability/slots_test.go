package availability

import (
	"testing"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextDateProperties(t *testing.T) {
	anchor := date(2026, 1, 1)
	for i := 0; i < 28; i++ {
		a := anchor.AddDate(0, 0, i)
		for w := time.Sunday; w <= time.Saturday; w++ {
			got := NextDate(a, w)
			assert.Equal(t, w, got.Weekday())
			assert.True(t, got.After(a), "must be strictly after anchor")
			assert.LessOrEqual(t, got.Sub(a), 7*24*time.Hour)
		}
	}
}

func TestNextDateSameWeekdayIsNextWeek(t *testing.T) {
	monday := date(2026, 3, 9)
	assert.Equal(t, date(2026, 3, 16), NextDate(monday, time.Monday))
}

func TestNextDateFromWednesday(t *testing.T) {
	wednesday := date(2026, 3, 4)
	got := NextDate(wednesday, time.Monday)
	assert.Equal(t, date(2026, 3, 9), got)
}

func TestNextDateIgnoresTimeOfDayAndZone(t *testing.T) {
	loc := time.FixedZone("UTC-10", -10*3600)
	lateSunday := time.Date(2026, 3, 8, 23, 30, 0, 0, loc)
	assert.Equal(t, date(2026, 3, 9), NextDate(lateSunday, time.Monday))
}

func TestNextDateAcrossMonthAndYear(t *testing.T) {
	assert.Equal(t, date(2027, 1, 4), NextDate(date(2026, 12, 31), time.Monday))
	assert.Equal(t, date(2028, 3, 1), NextDate(date(2028, 2, 28), time.Wednesday))
}

func TestResolverSameDay(t *testing.T) {
	r := Resolver{AllowSameDay: true}
	mondayMorning := time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC)
	assert.Equal(t, date(2026, 3, 9), r.Resolve(mondayMorning, time.Monday, 9*60))

	mondayLate := time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, date(2026, 3, 16), r.Resolve(mondayLate, time.Monday, 9*60), "slot already started")

	assert.Equal(t, date(2026, 3, 16), Resolver{}.Resolve(mondayMorning, time.Monday, 9*60))
}

func TestPublishedSlots(t *testing.T) {
	rules := []model.AvailabilityRule{
		{ProviderID: "doc", Weekday: time.Tuesday, Start: 14 * 60, End: 15 * 60, SlotMinutes: 30, Active: true},
		{ProviderID: "doc", Weekday: time.Monday, Start: 9 * 60, End: 17 * 60, Active: true},
		{ProviderID: "doc", Weekday: time.Friday, Start: 9 * 60, End: 12 * 60, Active: false},
	}
	busy := []model.Appointment{
		{Date: date(2026, 3, 10), Time: 14*60 + 30, Status: model.StatusConfirmed},
		{Date: date(2026, 3, 10), Time: 14 * 60, Status: model.StatusCancelled},
	}
	now := time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)

	slots := PublishedSlots(rules, busy, now, Resolver{})
	require.Len(t, slots, 3)

	assert.Equal(t, date(2026, 3, 9), slots[0].Date)
	assert.Equal(t, model.Clock(9*60), slots[0].Start)
	assert.Equal(t, model.Clock(17*60), slots[0].End)
	assert.False(t, slots[0].Taken)

	assert.Equal(t, date(2026, 3, 10), slots[1].Date)
	assert.Equal(t, model.Clock(14*60), slots[1].Start)
	assert.False(t, slots[1].Taken, "cancelled appointments free the slot")

	assert.Equal(t, model.Clock(14*60+30), slots[2].Start)
	assert.True(t, slots[2].Taken)
}
