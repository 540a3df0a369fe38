package outbox

import "time"

// Topics carry one event type each; the Kafka topic equals EventType.
const (
	TopicAppointmentRequested     = "booking.appointment.requested.v1"
	TopicAppointmentStatusChanged = "booking.appointment.status_changed.v1"
)

// Event is the envelope written next to the state change that caused it.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// Record is a stored event waiting to be relayed.
type Record struct {
	ID            int64
	EventID       string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
	Traceparent   string
	Tracestate    string
	CreatedAt     time.Time
}
