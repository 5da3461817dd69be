package manager

import "github.com/prometheus/client_golang/prometheus"

// Load results.
const (
	loadReady       = "ready"
	loadUnavailable = "unavailable"
	loadError       = "error"
)

var (
	runnerLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelrunner",
			Subsystem: "manager",
			Name:      "runner_loads_total",
			Help:      "Runner constructions by backend and result (ready, unavailable, error)",
		},
		[]string{"backend", "result"},
	)

	cachedRunners = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "modelrunner",
			Subsystem: "manager",
			Name:      "cached_runners",
			Help:      "Runners currently held in the cache",
		},
	)

	evictionsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "modelrunner",
			Subsystem: "manager",
			Name:      "evictions_total",
			Help:      "Runners removed from the cache",
		},
	)
)

func init() {
	prometheus.MustRegister(runnerLoadsTotal, cachedRunners, evictionsTotal)
}
