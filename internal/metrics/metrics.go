// Package metrics exposes Prometheus counters for advice traffic.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the application metrics on its own registry, so several
// collectors can coexist in tests. All methods are safe on a nil Collector.
type Collector struct {
	registry *prometheus.Registry

	AdviceRequests        *prometheus.CounterVec
	Feedback              *prometheus.CounterVec
	CollaboratorFailures  *prometheus.CounterVec
	CollaboratorDurations *prometheus.HistogramVec
}

// NewCollector creates and registers the metrics under namespace.
func NewCollector(namespace string) *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		AdviceRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "advice_requests_total",
				Help:      "Total number of advice requests",
			},
			[]string{"tone", "channel", "guest"},
		),
		Feedback: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feedback_total",
				Help:      "Accept and reject verdicts recorded",
			},
			[]string{"verdict"},
		),
		CollaboratorFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "collaborator_failures_total",
				Help:      "Rewriting collaborator calls that fell back to an error text",
			},
			[]string{"operation", "reason"},
		),
		CollaboratorDurations: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "collaborator_duration_seconds",
				Help:      "Rewriting collaborator call latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),
	}

	c.registry.MustRegister(
		c.AdviceRequests,
		c.Feedback,
		c.CollaboratorFailures,
		c.CollaboratorDurations,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

func (c *Collector) ObserveAdvice(tone, channel string, guest bool) {
	if c == nil {
		return
	}
	g := "false"
	if guest {
		g = "true"
	}
	c.AdviceRequests.WithLabelValues(tone, channel, g).Inc()
}

func (c *Collector) ObserveFeedback(accepted bool) {
	if c == nil {
		return
	}
	verdict := "rejected"
	if accepted {
		verdict = "accepted"
	}
	c.Feedback.WithLabelValues(verdict).Inc()
}

func (c *Collector) ObserveCollaborator(operation string, seconds float64) {
	if c == nil {
		return
	}
	c.CollaboratorDurations.WithLabelValues(operation).Observe(seconds)
}

func (c *Collector) ObserveCollaboratorFailure(operation, reason string) {
	if c == nil {
		return
	}
	c.CollaboratorFailures.WithLabelValues(operation, reason).Inc()
}
