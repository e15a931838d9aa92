package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestCheckoutMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCheckoutMetrics(reg)

	m.ObserveState("validating")
	m.ObserveState("validating")
	m.ObserveOutcome("complete")
	m.ObserveGateway("create_order", 120*time.Millisecond, nil)
	m.ObserveGateway("create_order", 10*time.Millisecond, errors.New("boom"))
	m.IncReconciliation()

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	if got, err := fetchCounterValue(mfs, "checkout_state_transitions_total", "state", "validating"); err != nil {
		t.Fatalf("fetch transitions: %v", err)
	} else if got != 2 {
		t.Fatalf("expected transitions=2, got %f", got)
	}
	if got, err := fetchCounterValue(mfs, "checkout_outcomes_total", "outcome", "complete"); err != nil {
		t.Fatalf("fetch outcomes: %v", err)
	} else if got != 1 {
		t.Fatalf("expected outcome=1, got %f", got)
	}
	if got, err := fetchHistogramSum(mfs, "payment_gateway_request_duration_seconds", "result", "ok"); err != nil {
		t.Fatalf("fetch latency: %v", err)
	} else if got <= 0 {
		t.Fatalf("expected latency sum > 0, got %f", got)
	}
	if got := testutil.ToFloat64(m.reconciliation); got != 1 {
		t.Fatalf("expected reconciliation=1, got %f", got)
	}
}

func TestPublisherMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPublisherMetrics(reg)
	m.ObserveDuration("order_paid", 250*time.Millisecond)
	m.IncSuccess("order_paid")
	m.IncFailure("")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_published_total", "event_type", "order_paid"); err != nil || got != 1 {
		t.Fatalf("expected published=1, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "outbox_publish_failures_total", "event_type", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected failures=1 under unknown label, got %f err=%v", got, err)
	}
}

func TestHTTPMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetrics(reg)
	m.Observe("/api/v1/cart", "GET", 200, 5*time.Millisecond)

	if got := testutil.ToFloat64(m.requests.WithLabelValues("/api/v1/cart", "GET", "200")); got != 1 {
		t.Fatalf("expected one request, got %f", got)
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	NewCheckoutMetrics(nil).ObserveState("idle")
	NewPublisherMetrics(nil).IncSuccess("x")
	NewHTTPMetrics(nil).Observe("r", "GET", 200, time.Millisecond)
	var m *CheckoutMetrics
	m.ObserveOutcome("failed")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetCounter().GetValue(), nil
		}
	}
	return 0, fmt.Errorf("metric %q missing label %s=%s", name, label, value)
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	mf := findMetricFamily(mfs, name)
	if mf == nil {
		return 0, fmt.Errorf("metric %q not found", name)
	}
	for _, metric := range mf.GetMetric() {
		if matchesLabel(metric.GetLabel(), label, value) {
			return metric.GetHistogram().GetSampleSum(), nil
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func findMetricFamily(mfs []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}
