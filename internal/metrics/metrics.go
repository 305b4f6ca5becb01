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

	healthChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "benchrig",
			Subsystem: "health",
			Name:      "checks_total",
			Help:      "Number of health checks performed, by result.",
		}, []string{"service", "result"},
	)
	healthCheckDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "benchrig",
			Subsystem: "health",
			Name:      "check_duration_seconds",
			Help:      "Response latency of health checks.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"service"},
	)
	serviceUp = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "benchrig",
			Subsystem: "health",
			Name:      "service_up",
			Help:      "Whether a monitored service is currently healthy (1) or not (0).",
		}, []string{"service"},
	)
	statusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "benchrig",
			Subsystem: "health",
			Name:      "status_transitions_total",
			Help:      "Number of healthy/unhealthy status transitions per service.",
		}, []string{"service", "from", "to"},
	)
	processStarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "benchrig",
			Subsystem: "process",
			Name:      "starts_total",
			Help:      "Number of dependency process starts.",
		}, []string{"service"},
	)
	processStops = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "benchrig",
			Subsystem: "process",
			Name:      "stops_total",
			Help:      "Number of dependency process stops (graceful or forced).",
		}, []string{"service"},
	)
)

// Register registers all metrics with the provided registerer.
// It is safe to call multiple times; subsequent calls after success are no-ops.
func Register(r prometheus.Registerer) error {
	if regOK.Load() {
		return nil
	}
	cs := []prometheus.Collector{healthChecks, healthCheckDuration, serviceUp, statusTransitions, processStarts, processStops}
	for _, c := range cs {
		if err := r.Register(c); err != nil {
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
func Handler() http.Handler { return promhttp.Handler() }

// Below are lightweight helpers used by internal packages to record metrics.
// They no-op if Register hasn't been called.

func ObserveHealthCheck(service string, healthy bool, seconds float64) {
	if !regOK.Load() {
		return
	}
	result := "success"
	if !healthy {
		result = "failure"
	}
	healthChecks.WithLabelValues(service, result).Inc()
	healthCheckDuration.WithLabelValues(service).Observe(seconds)
}

func SetServiceUp(service string, up bool) {
	if regOK.Load() {
		var v float64
		if up {
			v = 1
		}
		serviceUp.WithLabelValues(service).Set(v)
	}
}

func RecordStatusTransition(service, from, to string) {
	if regOK.Load() {
		statusTransitions.WithLabelValues(service, from, to).Inc()
	}
}

func IncProcessStart(service string) {
	if regOK.Load() {
		processStarts.WithLabelValues(service).Inc()
	}
}

func IncProcessStop(service string) {
	if regOK.Load() {
		processStops.WithLabelValues(service).Inc()
	}
}
