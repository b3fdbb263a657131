// Package metrics owns the Prometheus collectors exported on /metrics.
// A nil *Metrics is valid and records nothing, which keeps services usable
// in tests without a registry.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups the counters the services update.
type Metrics struct {
	registry     *prometheus.Registry
	resolves     *prometheus.CounterVec
	sideEffects  *prometheus.CounterVec
	reservations *prometheus.CounterVec
	linksCreated prometheus.Counter
}

// New registers every collector on a fresh registry, together with the
// Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shortlink_resolves_total",
			Help: "Short code resolutions by result (hit, miss, invalid, error).",
		}, []string{"result"}),
		sideEffects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "shortlink_scan_side_effect_failures_total",
			Help: "Scan bookkeeping failures that were swallowed.",
		}, []string{"kind"}),
		reservations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "slot_reservations_total",
			Help: "Reservation attempts by outcome.",
		}, []string{"outcome"}),
		linksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "shortlink_created_total",
			Help: "Short links created through the generator.",
		}),
	}
	reg.MustRegister(
		m.resolves, m.sideEffects, m.reservations, m.linksCreated,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Resolve counts one resolution.
func (m *Metrics) Resolve(result string) {
	if m == nil {
		return
	}
	m.resolves.WithLabelValues(result).Inc()
}

// SideEffectFailed counts a swallowed scan increment or log append failure.
func (m *Metrics) SideEffectFailed(kind string) {
	if m == nil {
		return
	}
	m.sideEffects.WithLabelValues(kind).Inc()
}

// Reservation counts one reservation attempt.
func (m *Metrics) Reservation(outcome string) {
	if m == nil {
		return
	}
	m.reservations.WithLabelValues(outcome).Inc()
}

// LinkCreated counts one generated link.
func (m *Metrics) LinkCreated() {
	if m == nil {
		return
	}
	m.linksCreated.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
