package store

import "go.mongodb.org/mongo-driver/mongo"

// SessionProxy owns a leased pool entry for the duration of one handler
// invocation. Release is idempotent and safe to defer immediately after
// Acquire succeeds, guaranteeing the entry returns to the pool on every
// exit path including a panic recovery higher up the call stack.
type SessionProxy struct {
	pool     *Pool
	entry    *entry
	released bool
	invalid  bool
}

// Session returns the underlying backing-store session handle.
func (p *SessionProxy) Session() mongo.Session {
	return p.entry.session
}

// Invalidate marks the leased session as unfit for reuse; Release will
// close it instead of returning it to the idle set. Call this when a
// command on the session fails in a way that may have left it in a bad
// state (e.g. a transaction abort that did not clean up).
func (p *SessionProxy) Invalidate() {
	p.invalid = true
}

// Release returns the entry to the pool. Calling Release more than once is
// a no-op.
func (p *SessionProxy) Release() {
	if p.released {
		return
	}
	p.released = true
	p.pool.release(p.entry, !p.invalid)
}
