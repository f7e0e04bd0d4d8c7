// Package telemetrypipe implements the telemetry pipeline (C8): per-handler
// metric capture, a bounded multi-producer/single-consumer queue with
// non-blocking enqueue, and a single background drain worker that batches
// records into one of two sinks.
package telemetrypipe

import (
	"context"
	"log/slog"
	"time"

	"github.com/halvorsen-oss/mongobroker/pkg/metrics"
)

// Metric is one captured handler invocation, matching the metric record
// shape from §3.
type Metric struct {
	Action        string
	Database      string
	Collection    string
	Size          int
	Duration      time.Duration
	Timestamp     time.Time
	Application   string
	CorrelationID string
	Message       string
	EntityID      string
}

// Sink persists a batch of metrics. Implementations (mongosink, ilp) must
// tolerate partial failure by returning an error without panicking; the
// pipeline logs and drops the batch on error rather than retrying, since
// metrics are best-effort by design (§4.8).
type Sink interface {
	Write(ctx context.Context, batch []Metric) error
	Close() error
}

// Config sizes the queue and the drain worker's batching behavior.
type Config struct {
	QueueSize     int
	BatchSize     int
	FlushInterval time.Duration
}

// Pipeline owns the bounded queue and the background drain worker.
type Pipeline struct {
	cfg  Config
	sink Sink
	log  *slog.Logger

	queue   chan Metric
	done    chan struct{}
	drained chan struct{}

	metrics metrics.QueueMetrics
}

// New constructs a Pipeline bound to sink. Call Run to start the drain
// worker and Close to stop it with a best-effort final flush.
func New(cfg Config, sink Sink, log *slog.Logger) *Pipeline {
	if log == nil {
		log = slog.Default()
	}
	return &Pipeline{
		cfg:     cfg,
		sink:    sink,
		log:     log,
		queue:   make(chan Metric, cfg.QueueSize),
		done:    make(chan struct{}),
		drained: make(chan struct{}),
		metrics: metrics.NewQueueMetrics(),
	}
}

// Capture enqueues a metric without blocking. On queue saturation the
// record is dropped and a counter is incremented (§4.8 transport).
func (p *Pipeline) Capture(m Metric) {
	select {
	case p.queue <- m:
		if p.metrics != nil {
			p.metrics.SetDepth(len(p.queue))
		}
	default:
		if p.metrics != nil {
			p.metrics.IncDropped()
		}
		p.log.Warn("telemetry queue saturated, dropping metric", "action", m.Action)
	}
}

// Run starts the single background drain worker. It returns once Close is
// called and the final flush completes.
func (p *Pipeline) Run(ctx context.Context) {
	defer close(p.drained)

	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	batch := make([]Metric, 0, p.cfg.BatchSize)

	flush := func() {
		if len(batch) == 0 {
			return
		}
		start := time.Now()
		if err := p.sink.Write(ctx, batch); err != nil {
			p.log.Error("telemetry sink write failed", "error", err, "batchSize", len(batch))
		}
		if p.metrics != nil {
			p.metrics.ObserveBatchSize(len(batch))
			p.metrics.ObserveFlushDuration(time.Since(start))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-p.done:
			for {
				select {
				case m := <-p.queue:
					batch = append(batch, m)
				default:
					flush()
					return
				}
			}
		case m := <-p.queue:
			batch = append(batch, m)
			if p.metrics != nil {
				p.metrics.SetDepth(len(p.queue))
			}
			if len(batch) >= p.cfg.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// QueueDepth reports the number of metrics currently buffered, for the
// operator-facing stats surface.
func (p *Pipeline) QueueDepth() int {
	return len(p.queue)
}

// Close signals the drain worker to perform a final flush and stop, then
// waits for it to finish.
func (p *Pipeline) Close() error {
	close(p.done)
	<-p.drained
	return p.sink.Close()
}
