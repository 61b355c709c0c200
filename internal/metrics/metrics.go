package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "embudo"

// Metrics holds the Prometheus collectors of the CRM backend. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	RequestsTotal    *prometheus.CounterVec
	RequestDuration  *prometheus.HistogramVec
	RequestsInFlight prometheus.Gauge

	MessagesDispatched *prometheus.CounterVec
	InstanceResolution *prometheus.CounterVec
	WebhookEvents      *prometheus.CounterVec
	InvitationsSent    *prometheus.CounterVec
	Bookings           *prometheus.CounterVec
	RemindersFired     *prometheus.CounterVec

	ActiveSockets prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),

		RequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"method", "route"}),

		RequestsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_requests_in_flight",
			Help:      "Number of HTTP requests being served",
		}),

		MessagesDispatched: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_dispatched_total",
			Help:      "Outbound messages by channel and outcome",
		}, []string{"channel", "status"}),

		InstanceResolution: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "instance_resolution_total",
			Help:      "How the sending instance was chosen",
		}, []string{"resolved_by"}),

		WebhookEvents: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_events_total",
			Help:      "Inbound webhook events by outcome",
		}, []string{"result"}),

		InvitationsSent: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invitations_total",
			Help:      "Team invitations created, by email delivery outcome",
		}, []string{"email"}),

		Bookings: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bookings_total",
			Help:      "Public booking attempts by outcome",
		}, []string{"result"}),

		RemindersFired: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminders_total",
			Help:      "Reminder notifications created by kind",
		}, []string{"kind"}),

		ActiveSockets: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "websocket_connections",
			Help:      "Open dashboard websocket connections",
		}),
	}
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.RequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) InFlight(delta float64) {
	if m == nil {
		return
	}
	m.RequestsInFlight.Add(delta)
}

func (m *Metrics) MessageDispatched(channel, status string) {
	if m == nil {
		return
	}
	m.MessagesDispatched.WithLabelValues(channel, status).Inc()
}

func (m *Metrics) InstanceResolved(resolvedBy string) {
	if m == nil {
		return
	}
	m.InstanceResolution.WithLabelValues(resolvedBy).Inc()
}

func (m *Metrics) WebhookEvent(result string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(result).Inc()
}

func (m *Metrics) InvitationSent(emailSent bool) {
	if m == nil {
		return
	}
	label := "failed"
	if emailSent {
		label = "sent"
	}
	m.InvitationsSent.WithLabelValues(label).Inc()
}

func (m *Metrics) Booking(result string) {
	if m == nil {
		return
	}
	m.Bookings.WithLabelValues(result).Inc()
}

func (m *Metrics) ReminderFired(kind string) {
	if m == nil {
		return
	}
	m.RemindersFired.WithLabelValues(kind).Inc()
}

func (m *Metrics) SocketDelta(delta float64) {
	if m == nil {
		return
	}
	m.ActiveSockets.Add(delta)
}
