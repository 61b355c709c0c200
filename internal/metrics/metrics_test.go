package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New()

	m.MessageDispatched("whatsapp", "sent")
	m.MessageDispatched("whatsapp", "sent")
	m.WebhookEvent("stored")
	m.InvitationSent(false)
	m.ObserveRequest("POST", "/functions/v1/send-message", 200, 15*time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.MessagesDispatched.WithLabelValues("whatsapp", "sent")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhookEvents.WithLabelValues("stored")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.InvitationsSent.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RequestsTotal.WithLabelValues("POST", "/functions/v1/send-message", "200")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.MessageDispatched("whatsapp", "sent")
		m.InstanceResolved("explicit")
		m.WebhookEvent("skipped")
		m.InvitationSent(true)
		m.Booking("created")
		m.ReminderFired("task")
		m.SocketDelta(1)
		m.InFlight(1)
		m.ObserveRequest("GET", "/health", 200, time.Millisecond)
	})
}
