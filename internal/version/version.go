// Package version implements the version-history writer (C6): an append
// audit trail of every mutation, written to a configured database and
// collection distinct from user data.
package version

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
)

// Location names the configured history database/collection pair. Writes
// to this pair via the user-facing path are forbidden (§7: invalidAction).
type Location struct {
	Database   string
	Collection string
}

// Is reports whether database/collection names this history location.
func (l Location) Is(database, collection string) bool {
	return database == l.Database && collection == l.Collection
}

// Writer appends version-history records.
type Writer struct {
	location Location
	client   *mongo.Client
}

// New returns a Writer that appends records to the given history location
// using client for collections outside of any caller-supplied session.
func New(client *mongo.Client, location Location) *Writer {
	return &Writer{location: location, client: client}
}

// Location returns the configured history location.
func (w *Writer) Location() Location {
	return w.location
}

// Record appends one version-history entry: source database/collection,
// action, a point-in-time snapshot of the affected document (post-state for
// create/update/replace, pre-state for delete), and an optional opaque
// metadata document copied verbatim from the request. It returns the new
// record's id.
//
// When sess is non-nil, the insert runs inside the caller's session so it
// participates in that session's transaction, if one is active.
func (w *Writer) Record(ctx context.Context, sess mongo.Session, database, collection, action string, snapshot bson.Raw, metadata bson.Raw) (primitive.ObjectID, error) {
	if w.location.Is(database, collection) {
		return primitive.NilObjectID, fmt.Errorf("version: writes to the history location are forbidden")
	}

	id := primitive.NewObjectID()
	record := bson.D{
		{Key: "_id", Value: id},
		{Key: "database", Value: database},
		{Key: "collection", Value: collection},
		{Key: "action", Value: action},
		{Key: "entity", Value: snapshot},
		{Key: "created", Value: primitive.NewDateTimeFromTime(time.Now().UTC())},
	}
	if metadata != nil {
		record = append(record, bson.E{Key: "metadata", Value: metadata})
	}

	coll := w.client.Database(w.location.Database).Collection(w.location.Collection)

	insert := func(sessCtx context.Context) error {
		_, err := coll.InsertOne(sessCtx, record)
		return err
	}

	if sess != nil {
		if err := mongo.WithSession(ctx, sess, func(sessCtx mongo.SessionContext) error {
			return insert(sessCtx)
		}); err != nil {
			return primitive.NilObjectID, fmt.Errorf("version: insert: %w", err)
		}
		return id, nil
	}

	if err := insert(ctx); err != nil {
		return primitive.NilObjectID, fmt.Errorf("version: insert: %w", err)
	}
	return id, nil
}

// RenameCollection updates every history record whose collection field
// equals oldCollection under database to newCollection. Intended to be
// called out-of-band after a synchronous renameCollection response, per
// §4.5; its caller is responsible for logging failure since it does not
// affect the synchronous response.
func (w *Writer) RenameCollection(ctx context.Context, database, oldCollection, newCollection string) error {
	coll := w.client.Database(w.location.Database).Collection(w.location.Collection)
	_, err := coll.UpdateMany(ctx,
		bson.D{{Key: "database", Value: database}, {Key: "collection", Value: oldCollection}},
		bson.D{{Key: "$set", Value: bson.D{{Key: "collection", Value: newCollection}}}},
	)
	return err
}

// ClearCollection deletes every history record for database/collection.
// Intended to be called out-of-band after a dropCollection response whose
// request set clearVersionHistory, per §4.5.
func (w *Writer) ClearCollection(ctx context.Context, database, collection string) error {
	coll := w.client.Database(w.location.Database).Collection(w.location.Collection)
	_, err := coll.DeleteMany(ctx,
		bson.D{{Key: "database", Value: database}, {Key: "collection", Value: collection}},
	)
	return err
}

// EnsureIndexes creates the indexes documented in §6 for the history
// collection: database+collection+action, entity._id, and created. Index
// creation is idempotent and safe to call on every startup.
func (w *Writer) EnsureIndexes(ctx context.Context) error {
	coll := w.client.Database(w.location.Database).Collection(w.location.Collection)
	_, err := coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "database", Value: 1}, {Key: "collection", Value: 1}, {Key: "action", Value: 1}}},
		{Keys: bson.D{{Key: "entity._id", Value: 1}}},
		{Keys: bson.D{{Key: "created", Value: 1}}},
	})
	return err
}
