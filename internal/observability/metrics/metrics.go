package metrics

import "github.com/prometheus/client_golang/prometheus"

// MessagingMetrics exposes counters/histograms for the booking bot flows.
type MessagingMetrics struct {
	inboundTotal    *prometheus.CounterVec
	gatewayAttempts *prometheus.CounterVec
	bookingOutcomes *prometheus.CounterVec
	webhookLatency  *prometheus.HistogramVec
}

func NewMessagingMetrics(reg prometheus.Registerer) *MessagingMetrics {
	m := &MessagingMetrics{
		inboundTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agendabot",
			Subsystem: "messaging",
			Name:      "inbound_webhook_total",
			Help:      "Total inbound gateway webhooks by processing result",
		}, []string{"result"}),
		gatewayAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agendabot",
			Subsystem: "gateway",
			Name:      "attempt_total",
			Help:      "Total gateway request attempts by operation and outcome",
		}, []string{"op", "outcome"}),
		bookingOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agendabot",
			Subsystem: "booking",
			Name:      "outcome_total",
			Help:      "Total booking submissions by outcome",
		}, []string{"outcome"}),
		webhookLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agendabot",
			Subsystem: "messaging",
			Name:      "webhook_latency_seconds",
			Help:      "Latency of inbound webhook processing",
			Buckets:   prometheus.DefBuckets,
		}, []string{"result"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.inboundTotal, m.gatewayAttempts, m.bookingOutcomes, m.webhookLatency)
	return m
}

func (m *MessagingMetrics) ObserveInbound(result string) {
	if m == nil {
		return
	}
	m.inboundTotal.WithLabelValues(result).Inc()
}

func (m *MessagingMetrics) ObserveGatewayAttempt(op, outcome string) {
	if m == nil {
		return
	}
	m.gatewayAttempts.WithLabelValues(op, outcome).Inc()
}

func (m *MessagingMetrics) ObserveBooking(outcome string) {
	if m == nil {
		return
	}
	m.bookingOutcomes.WithLabelValues(outcome).Inc()
}

func (m *MessagingMetrics) ObserveWebhookLatency(result string, seconds float64) {
	if m == nil {
		return
	}
	m.webhookLatency.WithLabelValues(result).Observe(seconds)
}
