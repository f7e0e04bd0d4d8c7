package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/halvorsen-oss/mongobroker/internal/bsonutil"
)

type fakeLocation struct {
	database, collection string
}

func (f fakeLocation) Is(database, collection string) bool {
	return database == f.database && collection == f.collection
}

func mustRequest(t *testing.T, fields bson.M) *bsonutil.Request {
	t.Helper()
	buf, err := bson.Marshal(fields)
	require.NoError(t, err)
	req, err := bsonutil.OwnedDocument(buf)
	require.NoError(t, err)
	return req
}

func TestDispatchMissingFields(t *testing.T) {
	d := New(nil, nil, nil)
	req := mustRequest(t, bson.M{"action": "retrieve"})

	resp := d.Dispatch(context.Background(), req)

	var parsed bson.M
	require.NoError(t, bson.Unmarshal(resp, &parsed))
	assert.Equal(t, "Request missing required field", parsed["error"])
	assert.NotEmpty(t, parsed["fields"])
}

func TestDispatchUnrecognizedAction(t *testing.T) {
	d := New(nil, nil, nil)
	req := mustRequest(t, bson.M{
		"action": "frobnicate", "database": "d", "collection": "c", "document": bson.M{},
	})

	resp := d.Dispatch(context.Background(), req)

	var parsed bson.M
	require.NoError(t, bson.Unmarshal(resp, &parsed))
	assert.Equal(t, "Unrecognized action", parsed["error"])
}

func TestDispatchRejectsWriteToHistoryLocation(t *testing.T) {
	called := false
	handlers := map[string]Handler{
		"create": func(ctx context.Context, req *bsonutil.Request) bson.Raw {
			called = true
			doc, _ := bson.Marshal(bson.M{"ok": true})
			return doc
		},
	}
	d := New(handlers, fakeLocation{database: "mongobroker", collection: "versionHistory"}, nil)
	req := mustRequest(t, bson.M{
		"action": "create", "database": "mongobroker", "collection": "versionHistory", "document": bson.M{"_id": "x"},
	})

	resp := d.Dispatch(context.Background(), req)

	var parsed bson.M
	require.NoError(t, bson.Unmarshal(resp, &parsed))
	assert.Equal(t, "Unrecognized action", parsed["error"])
	assert.False(t, called)
}

func TestDispatchRoutesToHandler(t *testing.T) {
	handlers := map[string]Handler{
		"retrieve": func(ctx context.Context, req *bsonutil.Request) bson.Raw {
			doc, _ := bson.Marshal(bson.M{"result": bson.M{"key": "value"}})
			return doc
		},
	}
	d := New(handlers, fakeLocation{database: "mongobroker", collection: "versionHistory"}, nil)
	req := mustRequest(t, bson.M{
		"action": "retrieve", "database": "itest", "collection": "test", "document": bson.M{"_id": "x"},
	})

	resp := d.Dispatch(context.Background(), req)

	var parsed bson.M
	require.NoError(t, bson.Unmarshal(resp, &parsed))
	result, ok := parsed["result"].(bson.M)
	require.True(t, ok)
	assert.Equal(t, "value", result["key"])
}

func TestDispatchCapturesMetricUnlessSkipped(t *testing.T) {
	handlers := map[string]Handler{
		"retrieve": func(ctx context.Context, req *bsonutil.Request) bson.Raw {
			doc, _ := bson.Marshal(bson.M{"result": bson.M{}})
			return doc
		},
	}

	var captured []CapturedMetric
	d := New(handlers, nil, func(m CapturedMetric) { captured = append(captured, m) })

	req := mustRequest(t, bson.M{
		"action": "retrieve", "database": "itest", "collection": "test", "document": bson.M{"_id": "x"},
	})
	d.Dispatch(context.Background(), req)
	require.Len(t, captured, 1)
	assert.Equal(t, "retrieve", captured[0].Action)

	skipReq := mustRequest(t, bson.M{
		"action": "retrieve", "database": "itest", "collection": "test", "document": bson.M{"_id": "x"}, "skipMetric": true,
	})
	d.Dispatch(context.Background(), skipReq)
	assert.Len(t, captured, 1)
}

func TestActionsReflectsHandlerMap(t *testing.T) {
	handlers := map[string]Handler{
		"retrieve": func(ctx context.Context, req *bsonutil.Request) bson.Raw { return nil },
		"create":   func(ctx context.Context, req *bsonutil.Request) bson.Raw { return nil },
	}
	d := New(handlers, nil, nil)
	assert.ElementsMatch(t, []string{"retrieve", "create"}, d.Actions())
}
