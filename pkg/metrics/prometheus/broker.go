// Package prometheus provides the concrete Prometheus-backed
// implementations of pkg/metrics' collector interfaces, following the
// teacher's promauto.With(registry) idiom.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/halvorsen-oss/mongobroker/pkg/metrics"
)

func init() {
	metrics.RegisterPoolMetricsConstructor(NewPoolMetrics)
	metrics.RegisterQueueMetricsConstructor(NewQueueMetrics)
	metrics.RegisterHandlerMetricsConstructor(NewHandlerMetrics)
}

type poolMetrics struct {
	active        prometheus.Gauge
	idle          prometheus.Gauge
	acquireWait   prometheus.Histogram
	exhaustedHits prometheus.Counter
}

// NewPoolMetrics returns a Prometheus-backed metrics.PoolMetrics, or nil if
// metrics are disabled.
func NewPoolMetrics() metrics.PoolMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &poolMetrics{
		active: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "mongobroker_pool_active_sessions",
			Help: "Number of storage sessions currently leased out of the pool.",
		}),
		idle: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "mongobroker_pool_idle_sessions",
			Help: "Number of storage sessions sitting idle in the pool.",
		}),
		acquireWait: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "mongobroker_pool_acquire_wait_seconds",
			Help:    "Time spent creating a new session when the idle set was empty.",
			Buckets: prometheus.DefBuckets,
		}),
		exhaustedHits: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "mongobroker_pool_exhausted_total",
			Help: "Total number of Acquire calls rejected because the pool was at capacity.",
		}),
	}
}

func (m *poolMetrics) SetActive(n int) {
	if m == nil {
		return
	}
	m.active.Set(float64(n))
}

func (m *poolMetrics) SetIdle(n int) {
	if m == nil {
		return
	}
	m.idle.Set(float64(n))
}

func (m *poolMetrics) ObserveAcquire(waited time.Duration) {
	if m == nil {
		return
	}
	m.acquireWait.Observe(waited.Seconds())
}

func (m *poolMetrics) IncExhausted() {
	if m == nil {
		return
	}
	m.exhaustedHits.Inc()
}

type queueMetrics struct {
	depth         prometheus.Gauge
	dropped       prometheus.Counter
	batchSize     prometheus.Histogram
	flushDuration prometheus.Histogram
}

// NewQueueMetrics returns a Prometheus-backed metrics.QueueMetrics, or nil
// if metrics are disabled.
func NewQueueMetrics() metrics.QueueMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &queueMetrics{
		depth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "mongobroker_telemetry_queue_depth",
			Help: "Number of metric records currently buffered in the telemetry queue.",
		}),
		dropped: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "mongobroker_telemetry_queue_dropped_total",
			Help: "Total number of metric records dropped because the queue was saturated.",
		}),
		batchSize: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "mongobroker_telemetry_batch_size",
			Help:    "Number of metric records drained per batch flush.",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
		}),
		flushDuration: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "mongobroker_telemetry_flush_duration_seconds",
			Help:    "Duration of a batch flush to the telemetry sink.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *queueMetrics) SetDepth(n int) {
	if m == nil {
		return
	}
	m.depth.Set(float64(n))
}

func (m *queueMetrics) IncDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *queueMetrics) ObserveBatchSize(n int) {
	if m == nil {
		return
	}
	m.batchSize.Observe(float64(n))
}

func (m *queueMetrics) ObserveFlushDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.flushDuration.Observe(d.Seconds())
}

type handlerMetrics struct {
	duration *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

// NewHandlerMetrics returns a Prometheus-backed metrics.HandlerMetrics, or
// nil if metrics are disabled.
func NewHandlerMetrics() metrics.HandlerMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	reg := metrics.GetRegistry()

	return &handlerMetrics{
		duration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mongobroker_handler_duration_seconds",
			Help:    "Handler execution duration by action.",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),
		errors: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "mongobroker_handler_errors_total",
			Help: "Total handler failures by action and error kind.",
		}, []string{"action", "kind"}),
	}
}

func (m *handlerMetrics) ObserveDuration(action string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(action).Observe(d.Seconds())
}

func (m *handlerMetrics) IncErrors(action, kind string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(action, kind).Inc()
}
