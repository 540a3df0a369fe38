package outbox

import (
	"context"
	"testing"

	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TestToMessage(t *testing.T) {
	otel.SetTextMapPropagator(propagation.TraceContext{})
	traceparent := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"

	msg := toMessage(context.Background(), Record{
		ID:          7,
		EventID:     "evt-1",
		AggregateID: "appt-1",
		EventType:   TopicAppointmentRequested,
		Payload:     []byte(`{"appointmentId":"appt-1"}`),
		Traceparent: traceparent,
	})

	assert.Equal(t, TopicAppointmentRequested, msg.Topic)
	assert.Equal(t, "appt-1", string(msg.Key))
	assert.Equal(t, "evt-1", kafkax.HeaderValue(msg.Headers, kafkax.HeaderEventID))
	assert.Equal(t, TopicAppointmentRequested, kafkax.HeaderValue(msg.Headers, kafkax.HeaderEventType))
	assert.Equal(t, traceparent, kafkax.HeaderValue(msg.Headers, "traceparent"))
}
