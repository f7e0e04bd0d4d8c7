// Package mongosink implements the unacknowledged insert-many telemetry
// sink: the first of the two batch drain backends from §4.8, grounded on
// original_source/src/queue/poller.cpp's MongoClient::save (an
// unacknowledged single-document insert, generalized here to InsertMany).
package mongosink

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/halvorsen-oss/mongobroker/internal/telemetrypipe"
)

// Sink writes batches of telemetrypipe.Metric into a metrics collection
// with unacknowledged write concern: the broker does not wait for, or
// retry on, a failed metric write.
type Sink struct {
	coll *mongo.Collection
}

// New returns a Sink that inserts into database.collection using an
// unacknowledged-write-concern handle derived from client.
func New(client *mongo.Client, database, collection string) *Sink {
	coll := client.Database(database).Collection(collection, options.Collection().SetWriteConcern(writeconcern.Unacknowledged()))
	return &Sink{coll: coll}
}

// Write inserts batch as a single unacknowledged InsertMany call.
func (s *Sink) Write(ctx context.Context, batch []telemetrypipe.Metric) error {
	if len(batch) == 0 {
		return nil
	}
	docs := make([]interface{}, 0, len(batch))
	for _, m := range batch {
		docs = append(docs, bson.M{
			"action":        m.Action,
			"database":      m.Database,
			"collection":    m.Collection,
			"size":          m.Size,
			"duration":      m.Duration.Nanoseconds(),
			"timestamp":     m.Timestamp,
			"application":   m.Application,
			"correlationId": m.CorrelationID,
			"message":       m.Message,
			"entityId":      m.EntityID,
		})
	}
	if _, err := s.coll.InsertMany(ctx, docs); err != nil {
		return fmt.Errorf("mongosink: insert many: %w", err)
	}
	return nil
}

// Close is a no-op: the sink shares the broker's *mongo.Client, which the
// caller is responsible for disconnecting.
func (s *Sink) Close() error { return nil }
