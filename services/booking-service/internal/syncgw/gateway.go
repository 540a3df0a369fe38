// Package syncgw serves the polling contract: one consistent read of the
// caller's appointments and unread notifications per poll.
package syncgw

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/notify"
)

const notificationLimit = 100

type Snapshot struct {
	ServerTime    time.Time
	PollInterval  time.Duration
	Appointments  []model.Appointment
	Notifications []model.Notification
	UnreadCount   int
}

type Gateway struct {
	bookings *booking.Service
	notifier *notify.Engine
	interval time.Duration
}

func New(bookings *booking.Service, notifier *notify.Engine, interval time.Duration) *Gateway {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Gateway{bookings: bookings, notifier: notifier, interval: interval}
}

func (g *Gateway) Interval() time.Duration {
	return g.interval
}

// Snapshot returns what the actor's client should display. Staleness is
// bounded by the advertised poll interval; no stronger ordering is promised
// between the appointment and notification reads.
func (g *Gateway) Snapshot(ctx context.Context, actor booking.Actor) (Snapshot, error) {
	appts, err := g.bookings.List(ctx, actor, booking.ListQuery{})
	if err != nil {
		return Snapshot{}, err
	}
	unread, err := g.notifier.List(ctx, actor.UserID, true, notificationLimit)
	if err != nil {
		return Snapshot{}, err
	}
	count := len(unread)
	if count >= notificationLimit {
		if count, err = g.notifier.UnreadCount(ctx, actor.UserID); err != nil {
			return Snapshot{}, err
		}
	}
	return Snapshot{
		ServerTime:    g.bookings.Now(),
		PollInterval:  g.interval,
		Appointments:  appts,
		Notifications: unread,
		UnreadCount:   count,
	}, nil
}
