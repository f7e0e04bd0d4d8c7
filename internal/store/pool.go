// Package store implements the bounded storage session pool (C2): a set of
// reusable *mongo.Client-backed sessions with an idle cap, a hard
// outstanding cap, and TTL-based reclamation. The locking discipline and
// idle-reaper shape are grounded on a tenant connection pool pattern; the
// per-connection semaphore/wait-group shutdown shape mirrors the broker's
// own session server.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/halvorsen-oss/mongobroker/internal/protoerr"
	"github.com/halvorsen-oss/mongobroker/pkg/metrics"
)

// Config configures the pool's sizing and liveness behavior.
type Config struct {
	URI            string
	InitialSize    int
	MaxConnections int
	MaxIdleTime    time.Duration
	ConnectTimeout time.Duration
}

// entry wraps a backing-store session handle with its pool bookkeeping.
type entry struct {
	session  mongo.Session
	lastUsed time.Time
	valid    bool
}

// Pool is the bounded storage session pool described by C2. It is safe for
// concurrent use by every handler in the process.
type Pool struct {
	cfg    Config
	client *mongo.Client

	mu           sync.Mutex
	idle         []*entry
	outstanding  int
	totalCreated int64

	stopSweep chan struct{}
	sweepOnce sync.Once
	sweepWG   sync.WaitGroup

	metrics metrics.PoolMetrics
}

// ErrPoolExhausted is returned by Acquire when the outstanding cap has been
// reached; it maps 1:1 to the wire-level poolExhausted error.
var ErrPoolExhausted = errors.New(protoerr.MsgPoolExhausted)

// New connects to the backing store and returns a Pool pre-warmed with
// cfg.InitialSize idle sessions.
func New(ctx context.Context, cfg Config) (*Pool, error) {
	connectCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	p := &Pool{
		cfg:       cfg,
		client:    client,
		idle:      make([]*entry, 0, cfg.InitialSize),
		stopSweep: make(chan struct{}),
		metrics:   metrics.NewPoolMetrics(),
	}

	for i := 0; i < cfg.InitialSize; i++ {
		e, err := p.newEntry()
		if err != nil {
			_ = p.Close(ctx)
			return nil, fmt.Errorf("store: pre-warm session %d: %w", i, err)
		}
		p.idle = append(p.idle, e)
	}

	p.sweepWG.Add(1)
	go p.sweepLoop()

	return p, nil
}

// newEntry creates a new backing-store session. It must never be called
// while holding p.mu: session creation is potentially blocking network I/O
// and must not serialize behind the pool lock.
func (p *Pool) newEntry() (*entry, error) {
	sess, err := p.client.StartSession()
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.totalCreated++
	p.mu.Unlock()
	return &entry{session: sess, lastUsed: time.Now(), valid: true}, nil
}

// Acquire lends a session from the pool, creating one if the idle set is
// empty and the outstanding cap has not been reached. It never blocks: past
// the cap it fails immediately with ErrPoolExhausted.
func (p *Pool) Acquire(ctx context.Context) (*SessionProxy, error) {
	p.mu.Lock()
	if p.outstanding >= p.cfg.MaxConnections {
		p.mu.Unlock()
		if p.metrics != nil {
			p.metrics.IncExhausted()
		}
		return nil, ErrPoolExhausted
	}
	var e *entry
	if n := len(p.idle); n > 0 {
		e = p.idle[n-1]
		p.idle = p.idle[:n-1]
	}
	p.outstanding++
	p.mu.Unlock()

	if e == nil {
		start := time.Now()
		var err error
		e, err = p.newEntry()
		if p.metrics != nil {
			p.metrics.ObserveAcquire(time.Since(start))
		}
		if err != nil {
			p.mu.Lock()
			p.outstanding--
			p.mu.Unlock()
			return nil, fmt.Errorf("store: create session: %w", err)
		}
	}

	p.reportGauges()
	return &SessionProxy{pool: p, entry: e}, nil
}

// release returns an entry to the pool. If valid is false, or the idle set
// is already at its cap, the entry's session is closed instead of reused.
func (p *Pool) release(e *entry, valid bool) {
	p.mu.Lock()
	p.outstanding--
	keep := valid && len(p.idle) < p.cfg.MaxConnections
	if keep {
		e.valid = true
		e.lastUsed = time.Now()
		p.idle = append(p.idle, e)
	}
	p.mu.Unlock()

	if !keep {
		e.session.EndSession(context.Background())
	}
	p.reportGauges()
}

// reportGauges pushes the current active/idle counts to the Prometheus
// pool collector, if metrics are enabled.
func (p *Pool) reportGauges() {
	if p.metrics == nil {
		return
	}
	stats := p.Stats()
	p.metrics.SetActive(stats.Active)
	p.metrics.SetIdle(stats.Idle)
}

// sweepLoop periodically closes idle entries older than MaxIdleTime.
func (p *Pool) sweepLoop() {
	defer p.sweepWG.Done()

	interval := p.cfg.MaxIdleTime / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopSweep:
			return
		case <-ticker.C:
			p.sweepIdle()
		}
	}
}

func (p *Pool) sweepIdle() {
	cutoff := time.Now().Add(-p.cfg.MaxIdleTime)

	p.mu.Lock()
	kept := p.idle[:0]
	var expired []*entry
	for _, e := range p.idle {
		if e.lastUsed.Before(cutoff) {
			expired = append(expired, e)
		} else {
			kept = append(kept, e)
		}
	}
	p.idle = kept
	p.mu.Unlock()

	for _, e := range expired {
		e.session.EndSession(context.Background())
	}
}

// Stats reports a point-in-time snapshot of the pool's bookkeeping
// counters, used by the Prometheus pool gauges and the daemon's /stats
// endpoint. MaxPoolSize reports the configured MaxConnections, which also
// caps the idle set.
type Stats struct {
	Active       int
	Idle         int
	TotalCreated int64
	MaxPoolSize  int
}

// Stats returns the current pool counters.
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{
		Active:       p.outstanding,
		Idle:         len(p.idle),
		TotalCreated: p.totalCreated,
		MaxPoolSize:  p.cfg.MaxConnections,
	}
}

// NewFromClient builds a Pool around an already-connected client, skipping
// the session pre-warming and URI-dial steps New performs. It exists for
// tests that drive a handler against an mtest mock client and have no use
// for the idle reaper or a populated idle set.
func NewFromClient(client *mongo.Client) *Pool {
	return &Pool{
		cfg:       Config{MaxConnections: 1 << 30, MaxIdleTime: time.Minute},
		client:    client,
		idle:      make([]*entry, 0),
		stopSweep: make(chan struct{}),
	}
}

// Client returns the underlying *mongo.Client for operations that need
// direct database/collection handles (index management, aggregation)
// rather than a leased session.
func (p *Pool) Client() *mongo.Client {
	return p.client
}

// Close stops the idle reaper, ends every idle session, and disconnects the
// backing client. Outstanding sessions are not forcibly reclaimed; callers
// are expected to have drained in-flight handlers first.
func (p *Pool) Close(ctx context.Context) error {
	p.sweepOnce.Do(func() { close(p.stopSweep) })
	p.sweepWG.Wait()

	p.mu.Lock()
	idle := p.idle
	p.idle = nil
	p.mu.Unlock()

	for _, e := range idle {
		e.session.EndSession(ctx)
	}

	return p.client.Disconnect(ctx)
}
