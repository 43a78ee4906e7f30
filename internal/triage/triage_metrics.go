package triage

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/linnemanlabs/lookout/internal/pii"
)

// Metrics holds Prometheus metrics for the triage subsystem.
type Metrics struct {
	TriagesTotal      *prometheus.CounterVec
	TriageDuration    prometheus.Histogram
	TriageConfidence  *prometheus.HistogramVec
	ValidationErrors  prometheus.Counter
	RedactionsTotal   *prometheus.CounterVec
	NarrativeTotal    *prometheus.CounterVec
	NarrativeDuration *prometheus.HistogramVec
	NarrativeTokens   prometheus.Counter
	NarrativeCost     prometheus.Counter
	SubmitsTotal      *prometheus.CounterVec
	NotifyTotal       *prometheus.CounterVec
}

// NewMetrics registers and returns triage metrics on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		TriagesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lookout_triages_total",
			Help: "Total triage decisions by severity, escalation and narrative source.",
		}, []string{"severity", "escalated", "narrative_source"}),
		TriageDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lookout_triage_duration_seconds",
			Help:    "Duration of a single ticket triage in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.001, 4, 10), // 1ms .. ~262s
		}),
		TriageConfidence: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lookout_triage_confidence",
			Help:    "Classifier confidence per decision.",
			Buckets: prometheus.LinearBuckets(0.05, 0.05, 20), // 0.05 .. 1.0
		}, []string{"severity"}),
		ValidationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lookout_ticket_validation_errors_total",
			Help: "Tickets rejected as malformed.",
		}),
		RedactionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lookout_pii_redactions_total",
			Help: "PII spans replaced by category.",
		}, []string{"category"}),
		NarrativeTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lookout_narrative_calls_total",
			Help: "Narrative backend calls by backend and outcome.",
		}, []string{"backend", "outcome"}),
		NarrativeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lookout_narrative_duration_seconds",
			Help:    "Duration of narrative backend calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms .. ~20s
		}, []string{"backend"}),
		NarrativeTokens: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lookout_narrative_tokens_total",
			Help: "Total tokens consumed by narrative backends.",
		}),
		NarrativeCost: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lookout_narrative_cost_usd_total",
			Help: "Estimated narrative backend spend in USD.",
		}),
		SubmitsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lookout_submits_total",
			Help: "Total ticket submissions by result.",
		}, []string{"result"}),
		NotifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lookout_escalation_notifications_total",
			Help: "Escalation notifications by outcome.",
		}, []string{"outcome"}),
	}

	reg.MustRegister(
		m.TriagesTotal,
		m.TriageDuration,
		m.TriageConfidence,
		m.ValidationErrors,
		m.RedactionsTotal,
		m.NarrativeTotal,
		m.NarrativeDuration,
		m.NarrativeTokens,
		m.NarrativeCost,
		m.SubmitsTotal,
		m.NotifyTotal,
	)

	return m
}

// Hooks returns an EngineHooks that increments the corresponding metrics.
func (m *Metrics) Hooks() EngineHooks {
	return EngineHooks{
		OnValidationError: m.ValidationErrors.Inc,
		OnRedaction: func(c pii.Category, n int) {
			m.RedactionsTotal.WithLabelValues(string(c)).Add(float64(n))
		},
		OnNarrative: func(backend, outcome string, duration float64, tokens int, cost float64) {
			m.NarrativeTotal.WithLabelValues(backend, outcome).Inc()
			m.NarrativeDuration.WithLabelValues(backend).Observe(duration)
			m.NarrativeTokens.Add(float64(tokens))
			m.NarrativeCost.Add(cost)
		},
		OnDecision: func(e *DecisionEvent) {
			escalated := "false"
			if e.Escalate {
				escalated = "true"
			}
			m.TriagesTotal.WithLabelValues(string(e.Severity), escalated, e.NarrativeSource).Inc()
			m.TriageDuration.Observe(e.Duration)
			m.TriageConfidence.WithLabelValues(string(e.Severity)).Observe(e.Confidence)
		},
	}
}

func (m *Metrics) submit(result string) {
	if m != nil {
		m.SubmitsTotal.WithLabelValues(result).Inc()
	}
}

func (m *Metrics) notify(outcome string) {
	if m != nil {
		m.NotifyTotal.WithLabelValues(outcome).Inc()
	}
}
