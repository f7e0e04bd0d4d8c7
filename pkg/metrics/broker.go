package metrics

import "time"

// PoolMetrics is implemented by the Prometheus pool collector. A nil
// PoolMetrics is always safe to call (every method is nil-receiver safe).
type PoolMetrics interface {
	SetActive(n int)
	SetIdle(n int)
	ObserveAcquire(waited time.Duration)
	IncExhausted()
}

// QueueMetrics is implemented by the Prometheus telemetry-queue collector.
type QueueMetrics interface {
	SetDepth(n int)
	IncDropped()
	ObserveBatchSize(n int)
	ObserveFlushDuration(d time.Duration)
}

// HandlerMetrics is implemented by the Prometheus handler-duration
// collector.
type HandlerMetrics interface {
	ObserveDuration(action string, d time.Duration)
	IncErrors(action, kind string)
}

// newPoolMetrics and friends are registered by pkg/metrics/prometheus's
// package init, mirroring the teacher's indirection to avoid an import
// cycle between this package (used by internal/store, internal/server)
// and the concrete Prometheus collector implementations.
var (
	newPoolMetrics    func() PoolMetrics
	newQueueMetrics   func() QueueMetrics
	newHandlerMetrics func() HandlerMetrics
)

// RegisterPoolMetricsConstructor is called by pkg/metrics/prometheus's
// package init to install the concrete constructor.
func RegisterPoolMetricsConstructor(ctor func() PoolMetrics) { newPoolMetrics = ctor }

// RegisterQueueMetricsConstructor is called by pkg/metrics/prometheus's
// package init to install the concrete constructor.
func RegisterQueueMetricsConstructor(ctor func() QueueMetrics) { newQueueMetrics = ctor }

// RegisterHandlerMetricsConstructor is called by pkg/metrics/prometheus's
// package init to install the concrete constructor.
func RegisterHandlerMetricsConstructor(ctor func() HandlerMetrics) { newHandlerMetrics = ctor }

// NewPoolMetrics returns nil when metrics are disabled or no Prometheus
// implementation has registered itself yet.
func NewPoolMetrics() PoolMetrics {
	if !IsEnabled() || newPoolMetrics == nil {
		return nil
	}
	return newPoolMetrics()
}

// NewQueueMetrics returns nil when metrics are disabled or no Prometheus
// implementation has registered itself yet.
func NewQueueMetrics() QueueMetrics {
	if !IsEnabled() || newQueueMetrics == nil {
		return nil
	}
	return newQueueMetrics()
}

// NewHandlerMetrics returns nil when metrics are disabled or no Prometheus
// implementation has registered itself yet.
func NewHandlerMetrics() HandlerMetrics {
	if !IsEnabled() || newHandlerMetrics == nil {
		return nil
	}
	return newHandlerMetrics()
}
