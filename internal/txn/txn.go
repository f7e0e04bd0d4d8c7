// Package txn implements the transaction executor (C7): a single session,
// single transaction, ordered multi-statement batch with per-statement
// abort. The empty `update` branch documented in the design notes' open
// question 3 is preserved verbatim — an `update` item inside a transaction
// neither mutates anything nor reports an error.
package txn

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/halvorsen-oss/mongobroker/internal/bsonutil"
	"github.com/halvorsen-oss/mongobroker/internal/protoerr"
	"github.com/halvorsen-oss/mongobroker/internal/store"
	"github.com/halvorsen-oss/mongobroker/internal/version"
)

const idKey = "_id"

// abortErr signals a deliberate transaction abort; its message is logged
// but never surfaces verbatim on the wire (the caller always emits
// protoerr.TransactionError).
type abortErr struct{ reason string }

func (e *abortErr) Error() string { return e.reason }

// Executor runs transaction (C7) requests.
type Executor struct {
	Pool    *store.Pool
	Version *version.Writer
}

// item mirrors one element of document.items: a full sub-request.
type item struct {
	Action     string   `bson:"action"`
	Database   string   `bson:"database"`
	Collection string   `bson:"collection"`
	Document   bson.Raw `bson:"document"`
	Metadata   bson.Raw `bson:"metadata"`
	SkipVer    bool     `bson:"skipVersion"`
}

func respond(v bson.M) bson.Raw {
	doc, err := bson.Marshal(v)
	if err != nil {
		return protoerr.New(protoerr.MsgUnexpectedError)
	}
	return doc
}

// Execute runs the transaction (C7) described by req.Document.items.
func (e *Executor) Execute(ctx context.Context, req *bsonutil.Request) bson.Raw {
	rawItems, ok := bsonutil.ArrayValues(req.Document, "items")
	if !ok {
		return protoerr.New(protoerr.MsgMissingField)
	}

	items := make([]item, 0, len(rawItems))
	for _, v := range rawItems {
		doc, ok := v.DocumentOK()
		if !ok {
			return protoerr.New(protoerr.MsgMissingField)
		}
		var it item
		if err := bson.Unmarshal(doc, &it); err != nil {
			return protoerr.New(protoerr.MsgMissingField)
		}
		items = append(items, it)
	}

	proxy, err := e.Pool.Acquire(ctx)
	if err != nil {
		return protoerr.New(protoerr.MsgPoolExhausted)
	}
	defer proxy.Release()

	sess := proxy.Session()
	wc := writeconcern.Majority()
	wc.Journal = boolPtr(true)
	txnOpts := options.Transaction().
		SetWriteConcern(wc).
		SetReadConcern(readconcern.Majority())

	var created, updated, deleted int
	var historyCreated, historyDeleted []any

	result, err := sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		created, updated, deleted = 0, 0, 0
		historyCreated, historyDeleted = nil, nil

		for _, it := range items {
			if e.Version.Location().Is(it.Database, it.Collection) {
				proxy.Invalidate()
				return nil, &abortErr{reason: "write to version history location forbidden"}
			}

			switch it.Action {
			case "create":
				coll := e.Pool.Client().Database(it.Database).Collection(it.Collection)
				res, err := coll.InsertOne(sc, it.Document)
				if err != nil {
					return nil, &abortErr{reason: "insert failed"}
				}
				_ = res
				created++
				if !it.SkipVer {
					vid, err := e.Version.Record(sc, sess, it.Database, it.Collection, "create", it.Document, it.Metadata)
					if err != nil {
						return nil, &abortErr{reason: "version write failed"}
					}
					historyCreated = append(historyCreated, vid)
				}
			case "delete":
				coll := e.Pool.Client().Database(it.Database).Collection(it.Collection)
				var pre bson.M
				if err := coll.FindOne(sc, it.Document).Decode(&pre); err != nil {
					return nil, &abortErr{reason: "delete target not found"}
				}
				preRaw, err := bson.Marshal(pre)
				if err != nil {
					return nil, &abortErr{reason: "delete snapshot failed"}
				}
				if !it.SkipVer {
					vid, err := e.Version.Record(sc, sess, it.Database, it.Collection, "delete", preRaw, it.Metadata)
					if err != nil {
						return nil, &abortErr{reason: "version write failed"}
					}
					historyDeleted = append(historyDeleted, vid)
				}
				if _, err := coll.DeleteOne(sc, bson.D{{Key: idKey, Value: pre[idKey]}}); err != nil {
					return nil, &abortErr{reason: "delete failed"}
				}
				deleted++
			case "update":
				// Intentionally a no-op: the original implementation's
				// transaction executor has an empty branch for `update`.
				// Preserved as-is per design notes open question 3.
			default:
				return nil, &abortErr{reason: "unsupported transaction item action"}
			}
		}
		return nil, nil
	}, txnOpts)
	_ = result

	if err != nil {
		return protoerr.New(protoerr.MsgTransactionError)
	}

	return respond(bson.M{
		"created": created,
		"updated": updated,
		"deleted": deleted,
		"history": bson.M{
			"database":   e.Version.Location().Database,
			"collection": e.Version.Location().Collection,
			"created":    nonNil(historyCreated),
			"deleted":    nonNil(historyDeleted),
		},
	})
}

func nonNil(s []any) []any {
	if s == nil {
		return []any{}
	}
	return s
}

func boolPtr(b bool) *bool { return &b }
