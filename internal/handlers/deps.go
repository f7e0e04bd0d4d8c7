// Package handlers implements the CRUD (C4) and DDL (C5) action handlers.
// Every handler has the same shape: given a decoded request envelope, it
// performs its backing-store work and returns a response document that is
// always well-formed, even on failure — handlers never return a Go error to
// the dispatcher (§7 propagation policy).
package handlers

import (
	"context"
	"log/slog"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/halvorsen-oss/mongobroker/internal/protoerr"
	"github.com/halvorsen-oss/mongobroker/internal/store"
	"github.com/halvorsen-oss/mongobroker/internal/version"
)

// Deps bundles the collaborators every handler needs: the storage session
// pool, the version-history writer, and a logger for out-of-band failures
// (async DDL cleanup) that cannot be surfaced in a response.
type Deps struct {
	Pool    *store.Pool
	Version *version.Writer
	Log     *slog.Logger
}

func (d *Deps) collection(database, collectionName string) *mongo.Collection {
	return d.Pool.Client().Database(database).Collection(collectionName)
}

func (d *Deps) logger() *slog.Logger {
	if d.Log != nil {
		return d.Log
	}
	return slog.Default()
}

// withSession leases a session from C2's pool for the duration of fn,
// scoping every operation fn performs to that session by handing it a
// mongo.SessionContext in place of ctx, and releases the session back to
// the pool before returning. A pool at its outstanding cap fails the
// request with poolExhausted before fn ever runs, matching §7's
// propagation policy and making C2's bounded-pool contract reachable from
// every action, not only the transaction executor.
func (d *Deps) withSession(ctx context.Context, fn func(ctx context.Context) bson.Raw) bson.Raw {
	proxy, err := d.Pool.Acquire(ctx)
	if err != nil {
		return protoerr.New(protoerr.MsgPoolExhausted)
	}
	defer proxy.Release()

	var resp bson.Raw
	runErr := mongo.WithSession(ctx, proxy.Session(), func(sessCtx mongo.SessionContext) error {
		resp = fn(sessCtx)
		return nil
	})
	if runErr != nil {
		proxy.Invalidate()
		return protoerr.New(protoerr.MsgUnexpectedError)
	}
	return resp
}
