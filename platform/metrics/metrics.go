// Package metrics holds the prometheus collectors shared by the modules.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry owns the application collectors.
type Registry struct {
	reg *prometheus.Registry

	ClassificationRequests *prometheus.CounterVec
	ClassificationLatency  prometheus.Histogram
	Transitions            *prometheus.CounterVec
	OrderRejections        *prometheus.CounterVec
	TokenEntries           *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		ClassificationRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "classification_requests_total",
			Help: "Photo classification calls by outcome (success, fallback).",
		}, []string{"outcome"}),
		ClassificationLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "classification_duration_seconds",
			Help:    "Latency of vision model calls.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30},
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lifecycle_transitions_total",
			Help: "Accepted state transitions by entity and target status.",
		}, []string{"entity", "to"}),
		OrderRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "order_create_rejections_total",
			Help: "Order creations refused, by error code.",
		}, []string{"code"}),
		TokenEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ekotoken_ledger_entries_total",
			Help: "EkoToken ledger entries appended, by reason.",
		}, []string{"reason"}),
	}

	r.reg.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		r.ClassificationRequests,
		r.ClassificationLatency,
		r.Transitions,
		r.OrderRejections,
		r.TokenEntries,
	)
	return r
}

// Handler exposes the registry in the prometheus text format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{})
}

// Gatherer returns the underlying registry for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// ObserveTransition counts an accepted lifecycle transition. Safe on nil.
func (r *Registry) ObserveTransition(entity, to string) {
	if r == nil {
		return
	}
	r.Transitions.WithLabelValues(entity, to).Inc()
}

// ObserveClassification counts a classification outcome. Safe on nil.
func (r *Registry) ObserveClassification(outcome string, seconds float64) {
	if r == nil {
		return
	}
	r.ClassificationRequests.WithLabelValues(outcome).Inc()
	r.ClassificationLatency.Observe(seconds)
}

// ObserveOrderRejection counts a refused order creation. Safe on nil.
func (r *Registry) ObserveOrderRejection(code string) {
	if r == nil {
		return
	}
	r.OrderRejections.WithLabelValues(code).Inc()
}

// ObserveTokenEntry counts a ledger append. Safe on nil.
func (r *Registry) ObserveTokenEntry(reason string) {
	if r == nil {
		return
	}
	r.TokenEntries.WithLabelValues(reason).Inc()
}
