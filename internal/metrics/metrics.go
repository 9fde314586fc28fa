package metrics

import (
	"errors"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Package-level Prometheus collectors. They are registered via Register.
var (
	regOK atomic.Bool

	cyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "scraperd",
			Subsystem: "daemon",
			Name:      "cycles_total",
			Help:      "Number of completed scrape cycles.",
		},
	)
	cycleDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "scraperd",
			Subsystem: "daemon",
			Name:      "cycle_duration_seconds",
			Help:      "Wall-clock duration of a full cycle.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		},
	)
	running = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "scraperd",
			Subsystem: "daemon",
			Name:      "running",
			Help:      "1 while a cycle is actively executing a stage, 0 when idle.",
		},
	)
	stageRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scraperd",
			Subsystem: "stage",
			Name:      "runs_total",
			Help:      "Number of stage executions.",
		}, []string{"stage"},
	)
	stageFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "scraperd",
			Subsystem: "stage",
			Name:      "failures_total",
			Help:      "Number of stage executions with a nonzero exit code.",
		}, []string{"stage"},
	)
	stageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "scraperd",
			Subsystem: "stage",
			Name:      "duration_seconds",
			Help:      "Wall-clock duration per stage execution.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 4, 10),
		}, []string{"stage"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{cyclesTotal, cycleDuration, running, stageRuns, stageFailures, stageDuration}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
			// If already registered, ignore (allows double Register with default registry)
			var are prometheus.AlreadyRegisteredError
			if errors.As(err, &are) {
				continue
			}
			return err
		}
	}
	regOK.Store(true)
	return nil
}

// Handler returns an http.Handler that serves Prometheus metrics for the DefaultGatherer.
// The caller is responsible for starting an HTTP server and wiring the route.
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func IncCycle() {
	if regOK.Load() {
		cyclesTotal.Inc()
	}
}

func ObserveCycleDuration(seconds float64) {
	if regOK.Load() {
		cycleDuration.Observe(seconds)
	}
}

func SetRunning(v bool) {
	if regOK.Load() {
		if v {
			running.Set(1)
		} else {
			running.Set(0)
		}
	}
}

func IncStageRun(stage string) {
	if regOK.Load() {
		stageRuns.WithLabelValues(stage).Inc()
	}
}

func IncStageFailure(stage string) {
	if regOK.Load() {
		stageFailures.WithLabelValues(stage).Inc()
	}
}

func ObserveStageDuration(stage string, seconds float64) {
	if regOK.Load() {
		stageDuration.WithLabelValues(stage).Observe(seconds)
	}
}
