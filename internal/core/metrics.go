package core

import (
	"expvar"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MetricsRecorder receives service-level operation outcomes and federation
// scan counters. Implementations must be safe for concurrent use.
type MetricsRecorder interface {
	// ObserveOp records one completed service operation with its outcome
	// ("ok" or an error class) and duration.
	ObserveOp(op, status string, d time.Duration)
	// ObserveScan records one federation fan-out: how many partitions were
	// scanned and how many of those reads failed.
	ObserveScan(partitions, failed int)
}

// NopMetrics discards all observations.
type NopMetrics struct{}

var _ MetricsRecorder = NopMetrics{}

func (NopMetrics) ObserveOp(string, string, time.Duration) {}

func (NopMetrics) ObserveScan(int, int) {}

// PrometheusMetrics exports operation and federation metrics through a
// prometheus registry.
type PrometheusMetrics struct {
	ops        *prometheus.CounterVec
	opDuration *prometheus.HistogramVec
	partitions prometheus.Counter
	failures   prometheus.Counter
}

var _ MetricsRecorder = (*PrometheusMetrics)(nil)

// NewPrometheusMetrics registers the permitdesk collectors on reg and returns
// the recorder. Registration happens once per process.
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "permitdesk_ops_total",
			Help: "Completed service operations by operation and outcome.",
		}, []string{"op", "status"}),
		opDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "permitdesk_op_duration_seconds",
			Help:    "Service operation latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		partitions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "permitdesk_federation_partitions_scanned_total",
			Help: "Partitions read during federated project queries.",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "permitdesk_federation_partition_failures_total",
			Help: "Partition reads that failed during federated queries.",
		}),
	}
	for _, c := range []prometheus.Collector{m.ops, m.opDuration, m.partitions, m.failures} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return m, nil
}

func (m *PrometheusMetrics) ObserveOp(op, status string, d time.Duration) {
	m.ops.WithLabelValues(op, status).Inc()
	m.opDuration.WithLabelValues(op).Observe(d.Seconds())
}

func (m *PrometheusMetrics) ObserveScan(partitions, failed int) {
	m.partitions.Add(float64(partitions))
	m.failures.Add(float64(failed))
}

// ExpvarMetrics publishes coarse counters under the "permitdesk" expvar map
// for environments without a Prometheus scraper.
type ExpvarMetrics struct {
	ops        *expvar.Map
	partitions *expvar.Int
	failures   *expvar.Int
}

var _ MetricsRecorder = (*ExpvarMetrics)(nil)

// NewExpvarMetrics publishes under the given expvar name.
func NewExpvarMetrics(name string) *ExpvarMetrics {
	root := expvar.NewMap(name)
	m := &ExpvarMetrics{
		ops:        new(expvar.Map).Init(),
		partitions: new(expvar.Int),
		failures:   new(expvar.Int),
	}
	root.Set("ops", m.ops)
	root.Set("federation_partitions_scanned", m.partitions)
	root.Set("federation_partition_failures", m.failures)
	return m
}

func (m *ExpvarMetrics) ObserveOp(op, status string, _ time.Duration) {
	m.ops.Add(op+":"+status, 1)
}

func (m *ExpvarMetrics) ObserveScan(partitions, failed int) {
	m.partitions.Add(int64(partitions))
	m.failures.Add(int64(failed))
}
