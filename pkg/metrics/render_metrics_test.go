package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	var m dto.Metric
	if err := vec.WithLabelValues(labels...).Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestRenderMetrics_Counters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewRenderMetrics(reg)

	m.IncSubmission("fashn", "ok")
	m.IncSubmission("fashn", "ok")
	m.IncSubmission("", "error")
	m.IncWebhook("provider", "completed")
	m.IncCreditConsumed()
	m.ObserveRenderDuration("fashn", 2*time.Second)

	if got := counterValue(t, m.submissions, "fashn", "ok"); got != 2 {
		t.Fatalf("expected 2 fashn submissions, got %v", got)
	}
	if got := counterValue(t, m.submissions, "unknown", "error"); got != 1 {
		t.Fatalf("expected empty provider to normalize to unknown, got %v", got)
	}
	if got := counterValue(t, m.webhookOutcomes, "provider", "completed"); got != 1 {
		t.Fatalf("expected 1 webhook outcome, got %v", got)
	}
}

func TestRenderMetrics_NilSafe(t *testing.T) {
	var m *RenderMetrics
	m.IncSubmission("fashn", "ok")
	m.IncWebhook("provider", "completed")
	m.IncCreditConsumed()
	m.ObserveRenderDuration("fashn", time.Second)

	empty := NewRenderMetrics(nil)
	empty.IncSubmission("fashn", "ok")
}
