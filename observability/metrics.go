package observability

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type moduleMetrics struct {
	requests  *prometheus.CounterVec
	errors    *prometheus.CounterVec
	latency   *prometheus.HistogramVec
	throttles *prometheus.CounterVec
}

// RuntimeMetrics tracks transaction execution.
type RuntimeMetrics struct {
	transactions *prometheus.CounterVec
	latency      *prometheus.HistogramVec
	waves        prometheus.Histogram
	height       prometheus.Gauge
}

var (
	moduleMetricsOnce sync.Once
	moduleRegistry    *moduleMetrics

	runtimeMetricsOnce sync.Once
	runtimeRegistry    *RuntimeMetrics
)

// ModuleMetrics returns the lazily-initialised registry used to record RPC
// method activity.
func ModuleMetrics() *moduleMetrics {
	moduleMetricsOnce.Do(func() {
		moduleRegistry = &moduleMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "c2e",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total JSON-RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			errors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "c2e",
				Subsystem: "rpc",
				Name:      "errors_total",
				Help:      "Total JSON-RPC errors segmented by method and error code.",
			}, []string{"method", "code"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "c2e",
				Subsystem: "rpc",
				Name:      "request_duration_seconds",
				Help:      "Latency distribution for JSON-RPC handlers.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
			throttles: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "c2e",
				Subsystem: "rpc",
				Name:      "throttles_total",
				Help:      "Count of requests rejected by the rate limiter.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			moduleRegistry.requests,
			moduleRegistry.errors,
			moduleRegistry.latency,
			moduleRegistry.throttles,
		)
	})
	return moduleRegistry
}

// Observe records the outcome of one RPC call. code is the JSON-RPC error code,
// zero on success.
func (m *moduleMetrics) Observe(method string, code int, duration time.Duration) {
	if m == nil {
		return
	}
	if method == "" {
		method = "unknown"
	}
	outcome := "success"
	if code != 0 {
		outcome = "error"
		m.errors.WithLabelValues(method, fmt.Sprintf("%d", code)).Inc()
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordThrottle increments the throttle counter. Reasons should be stable
// strings such as "rate_limit".
func (m *moduleMetrics) RecordThrottle(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unspecified"
	}
	m.throttles.WithLabelValues(reason).Inc()
}

// Runtime returns the singleton runtime metrics registry.
func Runtime() *RuntimeMetrics {
	runtimeMetricsOnce.Do(func() {
		runtimeRegistry = &RuntimeMetrics{
			transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "c2e",
				Subsystem: "runtime",
				Name:      "transactions_total",
				Help:      "Executed transactions segmented by instruction and result kind.",
			}, []string{"instruction", "kind"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "c2e",
				Subsystem: "runtime",
				Name:      "instruction_duration_seconds",
				Help:      "Handler execution time per instruction.",
				Buckets:   []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
			}, []string{"instruction"}),
			waves: prometheus.NewHistogram(prometheus.HistogramOpts{
				Namespace: "c2e",
				Subsystem: "runtime",
				Name:      "batch_waves",
				Help:      "Number of conflict-free waves a batch was split into.",
				Buckets:   prometheus.LinearBuckets(1, 1, 10),
			}),
			height: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "c2e",
				Subsystem: "runtime",
				Name:      "height",
				Help:      "Latest committed height.",
			}),
		}
		prometheus.MustRegister(
			runtimeRegistry.transactions,
			runtimeRegistry.latency,
			runtimeRegistry.waves,
			runtimeRegistry.height,
		)
	})
	return runtimeRegistry
}

// ObserveTransaction records one executed transaction. kind is empty on
// success.
func (m *RuntimeMetrics) ObserveTransaction(instruction, kind string, duration time.Duration) {
	if m == nil {
		return
	}
	if instruction == "" {
		instruction = "unknown"
	}
	if kind == "" {
		kind = "ok"
	}
	m.transactions.WithLabelValues(instruction, kind).Inc()
	m.latency.WithLabelValues(instruction).Observe(duration.Seconds())
}

func (m *RuntimeMetrics) ObserveBatch(waves int) {
	if m == nil {
		return
	}
	m.waves.Observe(float64(waves))
}

func (m *RuntimeMetrics) SetHeight(height uint64) {
	if m == nil {
		return
	}
	m.height.Set(float64(height))
}
