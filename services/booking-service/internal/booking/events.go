package booking

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/clinicbook/services/booking-service/internal/outbox"
)

type appointmentRequested struct {
	AppointmentID string    `json:"appointmentId"`
	ProviderID    string    `json:"providerId"`
	RequesterID   string    `json:"requesterId"`
	Date          string    `json:"date"`
	Time          string    `json:"time"`
	Reason        string    `json:"reason"`
	OccurredAt    time.Time `json:"occurredAt"`
}

type appointmentStatusChanged struct {
	AppointmentID string    `json:"appointmentId"`
	ProviderID    string    `json:"providerId"`
	RequesterID   string    `json:"requesterId"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	ActorID       string    `json:"actorId"`
	Version       int       `json:"version"`
	OccurredAt    time.Time `json:"occurredAt"`
}

func requestedEvent(a model.Appointment) (outbox.Event, error) {
	payload, err := json.Marshal(appointmentRequested{
		AppointmentID: a.ID,
		ProviderID:    a.ProviderID,
		RequesterID:   a.RequesterID,
		Date:          a.Date.Format(model.DateLayout),
		Time:          a.Time.String(),
		Reason:        a.Reason,
		OccurredAt:    a.CreatedAt,
	})
	if err != nil {
		return outbox.Event{}, err
	}
	return outbox.Event{
		AggregateType: "appointment",
		AggregateID:   a.ID,
		EventType:     outbox.TopicAppointmentRequested,
		Payload:       payload,
	}, nil
}

func statusChangedEvent(a model.Appointment, from model.Status, actorID string) (outbox.Event, error) {
	payload, err := json.Marshal(appointmentStatusChanged{
		AppointmentID: a.ID,
		ProviderID:    a.ProviderID,
		RequesterID:   a.RequesterID,
		From:          string(from),
		To:            string(a.Status),
		ActorID:       actorID,
		Version:       a.Version,
		OccurredAt:    a.UpdatedAt,
	})
	if err != nil {
		return outbox.Event{}, err
	}
	return outbox.Event{
		AggregateType: "appointment",
		AggregateID:   a.ID,
		EventType:     outbox.TopicAppointmentStatusChanged,
		Payload:       payload,
	}, nil
}
