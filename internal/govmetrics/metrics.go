// Package govmetrics exposes Prometheus instrumentation for the governance
// pipeline: evaluation outcomes, verification verdicts, fee charges,
// escalations, and event-bus drops.
package govmetrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds every Prometheus collector the governance subsystem emits.
type Metrics struct {
	EvaluationsTotal  *prometheus.CounterVec
	EvaluationLatency *prometheus.HistogramVec
	RiskScore         *prometheus.HistogramVec

	VerificationsTotal *prometheus.CounterVec
	VerificationDelta  *prometheus.HistogramVec

	FeesCharged     *prometheus.CounterVec
	WalletBalance   *prometheus.GaugeVec
	PaymentRequired *prometheus.CounterVec

	EscalationsTotal *prometheus.CounterVec
	AutoKillSwitch   *prometheus.CounterVec

	EventBusPublished *prometheus.CounterVec
	EventBusDropped   *prometheus.CounterVec
	EventBusSubscribers *prometheus.GaugeVec
}

// New creates and registers every collector against the default registry.
func New() *Metrics {
	return &Metrics{
		EvaluationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governor_evaluations_total",
				Help: "Total number of actions evaluated by the governance pipeline.",
			},
			[]string{"tool", "decision"},
		),
		EvaluationLatency: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "governor_evaluation_duration_seconds",
				Help:    "End-to-end duration of a single pipeline evaluation.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"tool"},
		),
		RiskScore: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "governor_risk_score",
				Help:    "Final risk score produced by an evaluation.",
				Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
			},
			[]string{"tool"},
		),

		VerificationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governor_verifications_total",
				Help: "Total number of post-execution verification runs.",
			},
			[]string{"tool", "verdict"},
		),
		VerificationDelta: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "governor_verification_risk_delta",
				Help:    "Risk delta accumulated by verification findings.",
				Buckets: []float64{0, 10, 25, 50, 75, 100},
			},
			[]string{"tool"},
		),

		FeesCharged: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governor_fees_charged_total",
				Help: "Total number of fee charges, by tier.",
			},
			[]string{"agent_id"},
		),
		WalletBalance: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "governor_wallet_balance",
				Help: "Current wallet balance for an agent.",
			},
			[]string{"agent_id"},
		),
		PaymentRequired: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governor_payment_required_total",
				Help: "Total number of requests refused admission for depleted balance.",
			},
			[]string{"agent_id"},
		),

		EscalationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governor_escalations_total",
				Help: "Total number of escalation events created, by severity.",
			},
			[]string{"severity", "trigger"},
		),
		AutoKillSwitch: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governor_auto_kill_switch_total",
				Help: "Total number of automatic kill-switch engagements, by trigger.",
			},
			[]string{"trigger"},
		),

		EventBusPublished: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governor_event_bus_published_total",
				Help: "Total number of events published on the in-process bus.",
			},
			[]string{"event_type"},
		),
		EventBusDropped: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "governor_event_bus_dropped_total",
				Help: "Total number of events dropped because a subscriber queue was full.",
			},
			[]string{"event_type"},
		),
		EventBusSubscribers: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "governor_event_bus_subscribers",
				Help: "Current number of active event bus subscribers.",
			},
			[]string{},
		),
	}
}

// OnPublished satisfies govevents.PublishRecorder.
func (m *Metrics) OnPublished(eventType string) {
	m.EventBusPublished.WithLabelValues(eventType).Inc()
}

// OnDropped satisfies govevents.PublishRecorder.
func (m *Metrics) OnDropped(eventType string) {
	m.EventBusDropped.WithLabelValues(eventType).Inc()
}
