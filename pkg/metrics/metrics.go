// Package metrics holds the Prometheus instrumentation for the harness. The
// collector is built on its own registry and injected into everything that
// records, so tests can assert on a private registry and two collectors never
// fight over global registration.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns all harness metrics and the registry they live in.
type Collector struct {
	registry *prometheus.Registry

	// HTTP surface.
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Failure scenarios.
	ScenariosTotal  *prometheus.CounterVec
	ProbesTotal     *prometheus.CounterVec
	ProbeLatency    *prometheus.HistogramVec
	RecoverySeconds prometheus.Histogram

	// Performance runs.
	BenchOpsTotal   *prometheus.CounterVec
	BenchOpLatency  *prometheus.HistogramVec
	BenchThroughput *prometheus.GaugeVec
}

// NewCollector builds the metric set on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		registry: reg,
		RequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeoff_http_requests_total",
			Help: "HTTP requests by path, method and status code.",
		}, []string{"path", "method", "code"}),
		RequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradeoff_http_request_duration_seconds",
			Help:    "HTTP request latency by path.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path"}),
		ScenariosTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeoff_failure_scenarios_total",
			Help: "Failure scenarios by kind and outcome.",
		}, []string{"kind", "outcome"}),
		ProbesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeoff_probes_total",
			Help: "Availability probes by store and result.",
		}, []string{"store", "result"}),
		ProbeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradeoff_probe_latency_seconds",
			Help:    "Successful probe round-trip latency by store.",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2},
		}, []string{"store"}),
		RecoverySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradeoff_recovery_seconds",
			Help:    "Observed recovery time after restoring failed nodes.",
			Buckets: []float64{1, 2, 3, 5, 8, 10, 15},
		}),
		BenchOpsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tradeoff_benchmark_operations_total",
			Help: "Benchmark operations by store, operation and result.",
		}, []string{"store", "operation", "result"}),
		BenchOpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tradeoff_benchmark_operation_latency_seconds",
			Help:    "Benchmark operation latency by store and operation.",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"store", "operation"}),
		BenchThroughput: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tradeoff_benchmark_throughput_ops",
			Help: "Most recent benchmark throughput in operations per second.",
		}, []string{"store"}),
	}
	reg.MustRegister(
		c.RequestsTotal,
		c.RequestDuration,
		c.ScenariosTotal,
		c.ProbesTotal,
		c.ProbeLatency,
		c.RecoverySeconds,
		c.BenchOpsTotal,
		c.BenchOpLatency,
		c.BenchThroughput,
	)
	return c
}

// Registry exposes the underlying registry for the /metrics handler.
func (c *Collector) Registry() *prometheus.Registry { return c.registry }
