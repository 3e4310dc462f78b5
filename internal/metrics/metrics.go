package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics captures generation and promo outcomes for billing reconciliation.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	generations       *prometheus.CounterVec
	generationLatency prometheus.Histogram
	refunds           *prometheus.CounterVec
	rejections        *prometheus.CounterVec
	redemptions       *prometheus.CounterVec
	staleLocks        prometheus.Counter
}

// New registers the instruments on reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snaplist",
			Name:      "generation_attempts_total",
			Help:      "Generation attempts that reached the model, by outcome.",
		}, []string{"status"}),
		generationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "snaplist",
			Name:      "generation_call_seconds",
			Help:      "Duration of the external generation call.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}),
		refunds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snaplist",
			Name:      "credit_refunds_total",
			Help:      "Compensating refunds, by cause.",
		}, []string{"cause"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snaplist",
			Name:      "generation_rejections_total",
			Help:      "Generation requests refused before the model call, by reason.",
		}, []string{"reason"}),
		redemptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "snaplist",
			Name:      "promo_redemptions_total",
			Help:      "Promo redemption attempts, by outcome.",
		}, []string{"outcome"}),
		staleLocks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "snaplist",
			Name:      "stale_locks_released_total",
			Help:      "Generation locks cleared by the reaper.",
		}),
	}

	reg.MustRegister(
		m.generations,
		m.generationLatency,
		m.refunds,
		m.rejections,
		m.redemptions,
		m.staleLocks,
	)
	return m
}

func (m *Metrics) ObserveGeneration(status string, took time.Duration) {
	if m == nil {
		return
	}
	m.generations.WithLabelValues(status).Inc()
	m.generationLatency.Observe(took.Seconds())
}

func (m *Metrics) IncRefund(cause string) {
	if m == nil {
		return
	}
	m.refunds.WithLabelValues(cause).Inc()
}

func (m *Metrics) IncRejection(reason string) {
	if m == nil {
		return
	}
	m.rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) IncRedemption(outcome string) {
	if m == nil {
		return
	}
	m.redemptions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) AddStaleLocks(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.staleLocks.Add(float64(n))
}
