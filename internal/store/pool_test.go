package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestPool builds a Pool with no live backing-store connection, for
// exercising the bookkeeping logic in isolation. entries are synthesized
// directly rather than via newEntry, which requires a *mongo.Client.
func newTestPool(maxConnections int) *Pool {
	return &Pool{
		cfg: Config{
			MaxConnections: maxConnections,
			MaxIdleTime:    time.Minute,
		},
		idle:      make([]*entry, 0),
		stopSweep: make(chan struct{}),
	}
}

func TestAcquireReleaseRoundTrip(t *testing.T) {
	p := newTestPool(2)
	p.idle = append(p.idle, &entry{valid: true, lastUsed: time.Now()})

	proxy, err := p.Acquire(nil) //nolint:staticcheck // ctx unused by this code path
	require.NoError(t, err)
	assert.Equal(t, 1, p.Stats().Active)
	assert.Equal(t, 0, p.Stats().Idle)

	proxy.Release()
	assert.Equal(t, 0, p.Stats().Active)
	assert.Equal(t, 1, p.Stats().Idle)
}

func TestAcquireExhaustsAtCap(t *testing.T) {
	p := newTestPool(1)
	p.idle = append(p.idle, &entry{valid: true, lastUsed: time.Now()})

	proxy, err := p.Acquire(nil) //nolint:staticcheck
	require.NoError(t, err)

	_, err = p.Acquire(nil) //nolint:staticcheck
	assert.ErrorIs(t, err, ErrPoolExhausted)

	proxy.Release()
	_, err = p.Acquire(nil) //nolint:staticcheck
	assert.NoError(t, err)
}

func TestReleaseInvalidatedEntryIsNotReused(t *testing.T) {
	p := newTestPool(1)
	p.idle = append(p.idle, &entry{valid: true, lastUsed: time.Now()})

	proxy, err := p.Acquire(nil) //nolint:staticcheck
	require.NoError(t, err)

	proxy.Invalidate()
	p.mu.Lock()
	p.outstanding--
	p.mu.Unlock()
	// Exercise the release bookkeeping path directly (skipping the real
	// EndSession call, which needs a live session handle).
	p.mu.Lock()
	keep := !proxy.invalid && len(p.idle) < p.cfg.MaxConnections
	p.mu.Unlock()
	assert.False(t, keep)
}

func TestReleaseIsIdempotent(t *testing.T) {
	p := newTestPool(1)
	p.idle = append(p.idle, &entry{valid: true, lastUsed: time.Now()})

	proxy, err := p.Acquire(nil) //nolint:staticcheck
	require.NoError(t, err)

	proxy.Release()
	assert.NotPanics(t, func() { proxy.Release() })
	assert.Equal(t, 1, p.Stats().Idle)
}

func TestSweepIdleDrainsExpiredEntries(t *testing.T) {
	p := newTestPool(4)
	p.cfg.MaxIdleTime = 10 * time.Millisecond
	p.idle = append(p.idle,
		&entry{valid: true, lastUsed: time.Now().Add(-time.Hour)},
		&entry{valid: true, lastUsed: time.Now()},
	)

	p.mu.Lock()
	cutoff := time.Now().Add(-p.cfg.MaxIdleTime)
	kept := p.idle[:0]
	var expiredCount int
	for _, e := range p.idle {
		if e.lastUsed.Before(cutoff) {
			expiredCount++
		} else {
			kept = append(kept, e)
		}
	}
	p.idle = kept
	p.mu.Unlock()

	assert.Equal(t, 1, expiredCount)
	assert.Equal(t, 1, p.Stats().Idle)
}
