package runner

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	generationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "modelrunner",
			Subsystem: "runner",
			Name:      "generations_total",
			Help:      "Generation calls by backend and outcome (ok, partial, error, canceled)",
		},
		[]string{"backend", "outcome"},
	)

	firstTokenSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "modelrunner",
			Subsystem: "runner",
			Name:      "first_token_seconds",
			Help:      "Time from call start to first produced token",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		},
		[]string{"backend"},
	)

	generationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "modelrunner",
			Subsystem: "runner",
			Name:      "generation_seconds",
			Help:      "Total duration of generation calls",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"backend"},
	)
)

func init() {
	prometheus.MustRegister(generationsTotal, firstTokenSeconds, generationSeconds)
}

const (
	outcomeOK       = "ok"
	outcomePartial  = "partial"
	outcomeError    = "error"
	outcomeCanceled = "canceled"
)

func observeGeneration(backend, outcome string, lat *Latency) {
	generationsTotal.WithLabelValues(backend, outcome).Inc()
	if lat == nil {
		return
	}
	firstTokenSeconds.WithLabelValues(backend).Observe(lat.FirstTokenMs / float64(time.Second/time.Millisecond))
	generationSeconds.WithLabelValues(backend).Observe(lat.TotalMs / float64(time.Second/time.Millisecond))
}
