package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, Clock(570), c)
	assert.Equal(t, "09:30", c.String())

	end, err := ParseClock("24:00")
	require.NoError(t, err)
	assert.Equal(t, EndOfDay, end)

	for _, bad := range []string{"", "9", "9:5", "25:00", "24:01", "12:60", "ab:cd"} {
		_, err := ParseClock(bad)
		assert.Error(t, err, bad)
	}
}

func TestClockJSON(t *testing.T) {
	var v struct {
		Start Clock `json:"startTime"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"startTime":"17:05"}`), &v))
	assert.Equal(t, Clock(17*60+5), v.Start)

	out, err := json.Marshal(v)
	require.NoError(t, err)
	assert.JSONEq(t, `{"startTime":"17:05"}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"startTime":540}`), &v))
}

func TestParseWeekday(t *testing.T) {
	cases := map[string]time.Weekday{
		"Monday": time.Monday,
		"sun":    time.Sunday,
		"6":      time.Saturday,
		" FRI ":  time.Friday,
	}
	for raw, want := range cases {
		got, err := ParseWeekday(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}
	_, err := ParseWeekday("someday")
	assert.Error(t, err)
	_, err = ParseWeekday("7")
	assert.Error(t, err)
	assert.Equal(t, "wednesday", WeekdayName(time.Wednesday))
}

func TestTransitionGraph(t *testing.T) {
	allowed := [][2]Status{
		{StatusPending, StatusConfirmed},
		{StatusPending, StatusCancelled},
		{StatusConfirmed, StatusCancelled},
		{StatusConfirmed, StatusCompleted},
	}
	all := []Status{StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted}
	for _, from := range all {
		for _, to := range all {
			want := false
			for _, edge := range allowed {
				if edge[0] == from && edge[1] == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
	assert.True(t, StatusPending.Active())
	assert.False(t, StatusCancelled.Active())
	assert.True(t, StatusCompleted.Terminal())
}

func TestRuleStarts(t *testing.T) {
	rule := AvailabilityRule{Start: 9 * 60, End: 10*60 + 10, SlotMinutes: 30}
	assert.Equal(t, []Clock{540, 570}, rule.Starts())
	assert.True(t, rule.Publishes(570))
	assert.False(t, rule.Publishes(555))
	assert.False(t, rule.Publishes(600))

	single := AvailabilityRule{Start: 9 * 60, End: 17 * 60}
	assert.Equal(t, []Clock{540}, single.Starts())
	assert.True(t, single.Publishes(540))
	assert.False(t, single.Publishes(600))
}

func TestAppointmentHelpers(t *testing.T) {
	a := Appointment{
		ProviderID:  "doc",
		RequesterID: "pat",
		Date:        time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		Time:        9 * 60,
	}
	assert.Equal(t, "pat", a.Counterpart("doc"))
	assert.Equal(t, "doc", a.Counterpart("pat"))
	assert.Equal(t, "pat", a.Counterpart("system"))

	loc := time.FixedZone("X", 3*3600)
	assert.Equal(t, time.Date(2026, 3, 9, 9, 0, 0, 0, loc), a.StartsAt(loc))
}
