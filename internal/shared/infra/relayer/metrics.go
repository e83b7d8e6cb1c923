package relayer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics agrupa los colectores del relay. Un *Metrics nil no registra nada.
type Metrics struct {
	published     *prometheus.CounterVec
	failures      *prometheus.CounterVec
	unmarked      *prometheus.CounterVec
	skipped       prometheus.Counter
	drainDuration prometheus.Histogram
}

// NewMetrics registra los colectores en 'reg' (prometheus.DefaultRegisterer en producción).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		published: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outbox_published_total",
				Help: "Outbox entries published to the broker, by topic",
			},
			[]string{"topic"},
		),
		failures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outbox_publish_failures_total",
				Help: "Failed publish attempts of outbox entries, by topic",
			},
			[]string{"topic"},
		),
		unmarked: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "outbox_unmarked_total",
				Help: "Entries published but left pending because marking them failed, by topic",
			},
			[]string{"topic"},
		),
		skipped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "outbox_drains_skipped_total",
				Help: "Drain ticks dropped because a drain was already in progress",
			},
		),
		drainDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "outbox_drain_duration_seconds",
				Help:    "Duration of outbox drain cycles in seconds",
				Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
			},
		),
	}
}

func (m *Metrics) incPublished(topic string) {
	if m != nil {
		m.published.WithLabelValues(topic).Inc()
	}
}

func (m *Metrics) incFailure(topic string) {
	if m != nil {
		m.failures.WithLabelValues(topic).Inc()
	}
}

func (m *Metrics) incUnmarked(topic string) {
	if m != nil {
		m.unmarked.WithLabelValues(topic).Inc()
	}
}

func (m *Metrics) incSkipped() {
	if m != nil {
		m.skipped.Inc()
	}
}

func (m *Metrics) observeDrain(d time.Duration) {
	if m != nil {
		m.drainDuration.Observe(d.Seconds())
	}
}
