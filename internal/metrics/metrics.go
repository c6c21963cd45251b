package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/illegalcall/bank-relay/internal/models"
)

// RelayMetrics exports per-outcome counters and latency for relay requests.
type RelayMetrics struct {
	requests  *prometheus.CounterVec
	envelopes *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewRelayMetrics registers the relay metrics on the provided registerer.
func NewRelayMetrics(reg prometheus.Registerer) *RelayMetrics {
	if reg == nil {
		return &RelayMetrics{}
	}
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_requests_total",
		Help: "Relay POST requests by outcome.",
	}, []string{"outcome"})
	envelopes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "relay_envelopes_total",
		Help: "Envelopes returned by success flag.",
	}, []string{"success"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "relay_request_duration_seconds",
		Help:    "Time spent handling relay POST requests, outbound call included.",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"outcome"})
	reg.MustRegister(requests, envelopes, duration)
	return &RelayMetrics{
		requests:  requests,
		envelopes: envelopes,
		duration:  duration,
	}
}

// Observe records one relay request.
func (m *RelayMetrics) Observe(ev models.ConnectionTestEvent) {
	if m == nil || m.requests == nil {
		return
	}
	outcome := normalizeLabel(ev.Outcome)
	m.requests.WithLabelValues(outcome).Inc()
	m.envelopes.WithLabelValues(strconv.FormatBool(ev.Success)).Inc()
	m.duration.WithLabelValues(outcome).Observe((time.Duration(ev.DurationMS) * time.Millisecond).Seconds())
}

func normalizeLabel(outcome models.Outcome) string {
	if outcome == "" {
		return "unknown"
	}
	return string(outcome)
}
