// Package metrics exposes prometheus instruments for the generation path.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
)

// Metrics holds the generation-path instruments. One instance per process,
// registered on its own registry so tests can construct it freely.
type Metrics struct {
	Registry *prometheus.Registry

	generations  *prometheus.CounterVec
	tokens       *prometheus.CounterVec
	rateLimited  prometheus.Counter
	poolWaits    prometheus.Counter
	duration     *prometheus.HistogramVec
}

func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		Registry: registry,
		generations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "generation_requests_total",
			Help: "Generation attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		tokens: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "generation_tokens_total",
			Help: "Tokens consumed per provider.",
		}, []string{"provider"}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keypool_rate_limited_total",
			Help: "Pool keys placed in cooldown after upstream 429s.",
		}),
		poolWaits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "keypool_backoff_waits_total",
			Help: "Requests that waited for a pool key to recover.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "generation_duration_seconds",
			Help:    "End-to-end generation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
	}

	registry.MustRegister(m.generations, m.tokens, m.rateLimited, m.poolWaits, m.duration)
	return m
}

func (m *Metrics) RecordGeneration(provider, outcome string, tokens int64, elapsed time.Duration) {
	m.generations.WithLabelValues(provider, outcome).Inc()
	if tokens > 0 {
		m.tokens.WithLabelValues(provider).Add(float64(tokens))
	}
	m.duration.WithLabelValues(provider).Observe(elapsed.Seconds())
}

func (m *Metrics) RecordRateLimit() { m.rateLimited.Inc() }

func (m *Metrics) RecordPoolWait() { m.poolWaits.Inc() }

var Module = fx.Module("metrics",
	fx.Provide(New),
)
