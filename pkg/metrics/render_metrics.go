package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// RenderMetrics records submission and reconciliation outcomes.
type RenderMetrics struct {
	submissions     *prometheus.CounterVec
	webhookOutcomes *prometheus.CounterVec
	creditsConsumed prometheus.Counter
	renderDuration  *prometheus.HistogramVec
}

// NewRenderMetrics registers the render metrics on the provided registerer.
func NewRenderMetrics(reg prometheus.Registerer) *RenderMetrics {
	if reg == nil {
		return &RenderMetrics{}
	}
	submissions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "render_submissions_total",
		Help: "Render submissions by provider and outcome.",
	}, []string{"provider", "outcome"})
	webhookOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Webhook deliveries by source and outcome.",
	}, []string{"source", "outcome"})
	creditsConsumed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "credits_consumed_total",
		Help: "Credits charged for completed renders.",
	})
	renderDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "render_duration_seconds",
		Help:    "Time from job creation to terminal state.",
		Buckets: prometheus.DefBuckets,
	}, []string{"provider"})
	reg.MustRegister(submissions, webhookOutcomes, creditsConsumed, renderDuration)
	return &RenderMetrics{
		submissions:     submissions,
		webhookOutcomes: webhookOutcomes,
		creditsConsumed: creditsConsumed,
		renderDuration:  renderDuration,
	}
}

// IncSubmission counts one provider submission attempt outcome.
func (m *RenderMetrics) IncSubmission(provider, outcome string) {
	if m == nil || m.submissions == nil {
		return
	}
	m.submissions.WithLabelValues(normalizeLabel(provider), normalizeLabel(outcome)).Inc()
}

// IncWebhook counts one webhook delivery outcome.
func (m *RenderMetrics) IncWebhook(source, outcome string) {
	if m == nil || m.webhookOutcomes == nil {
		return
	}
	m.webhookOutcomes.WithLabelValues(normalizeLabel(source), normalizeLabel(outcome)).Inc()
}

// IncCreditConsumed counts one charged credit.
func (m *RenderMetrics) IncCreditConsumed() {
	if m == nil || m.creditsConsumed == nil {
		return
	}
	m.creditsConsumed.Inc()
}

// ObserveRenderDuration records how long a job took to reach a terminal state.
func (m *RenderMetrics) ObserveRenderDuration(provider string, d time.Duration) {
	if m == nil || m.renderDuration == nil {
		return
	}
	m.renderDuration.WithLabelValues(normalizeLabel(provider)).Observe(d.Seconds())
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
