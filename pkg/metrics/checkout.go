package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CheckoutMetrics records checkout progress and gateway latency.
type CheckoutMetrics struct {
	transitions    *prometheus.CounterVec
	outcomes       *prometheus.CounterVec
	gatewayLatency *prometheus.HistogramVec
	reconciliation prometheus.Counter
}

// NewCheckoutMetrics registers the checkout metrics on the provided registerer.
// A nil registerer yields a no-op recorder.
func NewCheckoutMetrics(reg prometheus.Registerer) *CheckoutMetrics {
	if reg == nil {
		return &CheckoutMetrics{}
	}
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_state_transitions_total",
		Help: "Checkout attempts entering each state.",
	}, []string{"state"})
	outcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_outcomes_total",
		Help: "Terminal checkout outcomes by reason.",
	}, []string{"outcome"})
	gatewayLatency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payment_gateway_request_duration_seconds",
		Help:    "Latency of payment gateway calls in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "result"})
	reconciliation := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "checkout_reconciliations_total",
		Help: "Captured payments flagged for manual reconciliation.",
	})
	reg.MustRegister(transitions, outcomes, gatewayLatency, reconciliation)
	return &CheckoutMetrics{
		transitions:    transitions,
		outcomes:       outcomes,
		gatewayLatency: gatewayLatency,
		reconciliation: reconciliation,
	}
}

// ObserveState counts an attempt entering state.
func (m *CheckoutMetrics) ObserveState(state string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(state)).Inc()
}

// ObserveOutcome counts a terminal outcome such as complete or signature_mismatch.
func (m *CheckoutMetrics) ObserveOutcome(outcome string) {
	if m == nil || m.outcomes == nil {
		return
	}
	m.outcomes.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveGateway records the latency of one gateway call.
func (m *CheckoutMetrics) ObserveGateway(operation string, duration time.Duration, err error) {
	if m == nil || m.gatewayLatency == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.gatewayLatency.WithLabelValues(normalizeLabel(operation), result).Observe(duration.Seconds())
}

// IncReconciliation counts a payment flagged for manual follow-up.
func (m *CheckoutMetrics) IncReconciliation() {
	if m == nil || m.reconciliation == nil {
		return
	}
	m.reconciliation.Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
