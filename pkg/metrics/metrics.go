// Package metrics exposes the Server Manager's own operational counters —
// admissions, reuses, evictions, and current predicted resource usage — as
// Prometheus collectors. This is distinct from client-usage telemetry
// (which the system explicitly keeps out of scope): it is self-observability
// of the scheduler itself, the kind any long-lived daemon in this corpus
// exposes on a `/metrics` endpoint.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Scheduler collects the admission-path counters and gauges described in
// SPEC_FULL.md's domain stack: admissions, reuses, and evictions broken out
// by alias, plus a live gauge of predicted RAM/VRAM usage.
type Scheduler struct {
	Admissions      *prometheus.CounterVec
	Reuses          *prometheus.CounterVec
	Evictions       *prometheus.CounterVec
	InfeasibleTotal prometheus.Counter
	PredictedRAMMB  prometheus.Gauge
	PredictedVRAMMB prometheus.Gauge
}

// NewScheduler registers a fresh set of scheduler collectors against reg.
// Passing a non-nil, non-default registry keeps test suites from colliding
// on Prometheus's global default registry when multiple managers exist in
// the same process.
func NewScheduler(reg prometheus.Registerer) *Scheduler {
	s := &Scheduler{
		Admissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modelmux",
			Subsystem: "scheduler",
			Name:      "admissions_total",
			Help:      "Total number of get_or_start_server admissions, by alias.",
		}, []string{"alias"}),
		Reuses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modelmux",
			Subsystem: "scheduler",
			Name:      "reuses_total",
			Help:      "Total number of admissions satisfied by reusing a running server, by alias.",
		}, []string{"alias"}),
		Evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "modelmux",
			Subsystem: "scheduler",
			Name:      "evictions_total",
			Help:      "Total number of servers evicted to make room for an admission, by evicted alias.",
		}, []string{"alias"}),
		InfeasibleTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "modelmux",
			Subsystem: "scheduler",
			Name:      "infeasible_requests_total",
			Help:      "Total number of admissions refused as InfeasibleRequest.",
		}),
		PredictedRAMMB: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "modelmux",
			Subsystem: "scheduler",
			Name:      "predicted_ram_mb",
			Help:      "Sum of predicted RAM usage, in MB, across all tracked servers.",
		}),
		PredictedVRAMMB: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "modelmux",
			Subsystem: "scheduler",
			Name:      "predicted_vram_mb",
			Help:      "Sum of predicted VRAM usage, in MB, across all tracked servers.",
		}),
	}

	reg.MustRegister(s.Admissions, s.Reuses, s.Evictions, s.InfeasibleTotal, s.PredictedRAMMB, s.PredictedVRAMMB)
	return s
}

// Handler returns the HTTP handler to mount at /metrics for reg.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
