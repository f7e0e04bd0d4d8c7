package telemetrypipe

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSink struct {
	mu      sync.Mutex
	batches [][]Metric
	closed  bool
}

func (s *fakeSink) Write(ctx context.Context, batch []Metric) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]Metric, len(batch))
	copy(cp, batch)
	s.batches = append(s.batches, cp)
	return nil
}

func (s *fakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *fakeSink) total() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func TestPipelineFlushesOnBatchSize(t *testing.T) {
	sink := &fakeSink{}
	p := New(Config{QueueSize: 100, BatchSize: 3, FlushInterval: time.Hour}, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	for i := 0; i < 3; i++ {
		p.Capture(Metric{Action: "create"})
	}

	require.Eventually(t, func() bool { return sink.total() == 3 }, time.Second, 10*time.Millisecond)
	require.NoError(t, p.Close())
	assert.True(t, sink.closed)
}

func TestPipelineFlushesOnInterval(t *testing.T) {
	sink := &fakeSink{}
	p := New(Config{QueueSize: 100, BatchSize: 1000, FlushInterval: 20 * time.Millisecond}, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Capture(Metric{Action: "retrieve"})

	require.Eventually(t, func() bool { return sink.total() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, p.Close())
}

func TestPipelineDropsOnSaturation(t *testing.T) {
	sink := &fakeSink{}
	p := New(Config{QueueSize: 1, BatchSize: 1000, FlushInterval: time.Hour}, sink, nil)

	// No Run() goroutine draining: the queue fills after one Capture.
	p.Capture(Metric{Action: "a"})
	p.Capture(Metric{Action: "b"})

	assert.Equal(t, 1, len(p.queue))
}

func TestPipelineFinalFlushOnClose(t *testing.T) {
	sink := &fakeSink{}
	p := New(Config{QueueSize: 100, BatchSize: 1000, FlushInterval: time.Hour}, sink, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go p.Run(ctx)

	p.Capture(Metric{Action: "create"})
	p.Capture(Metric{Action: "delete"})

	require.NoError(t, p.Close())
	assert.Equal(t, 2, sink.total())
}
