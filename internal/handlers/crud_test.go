package handlers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/halvorsen-oss/mongobroker/internal/bsonutil"
	"github.com/halvorsen-oss/mongobroker/internal/protoerr"
	"github.com/halvorsen-oss/mongobroker/internal/store"
	"github.com/halvorsen-oss/mongobroker/internal/version"
)

func errorField(t *testing.T, raw bson.Raw) string {
	t.Helper()
	var m bson.M
	require.NoError(t, bson.Unmarshal(raw, &m))
	msg, _ := m["error"].(string)
	return msg
}

func newTestDeps(client *mtest.T) *Deps {
	loc := version.Location{Database: "mongobroker", Collection: "versionHistory"}
	return &Deps{
		Pool:    store.NewFromClient(client.Client),
		Version: version.New(client.Client, loc),
	}
}

func TestRetrieveMissingDocument(t *testing.T) {
	d := &Deps{Pool: store.NewFromClient(nil), Version: version.New(nil, version.Location{})}
	req := &bsonutil.Request{Database: "itest", Collection: "test"}
	resp := d.Retrieve(nil, req) //nolint:staticcheck
	assert.Equal(t, protoerr.MsgMissingField, errorField(t, resp))
}

func TestRetrieveByIDFound(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("found", func(mt *mtest.T) {
		d := newTestDeps(mt)
		first := mtest.CreateCursorResponse(0, "itest.test", mtest.FirstBatch, bson.D{
			{Key: "_id", Value: "507f1f77bcf86cd799439011"}, {Key: "name", Value: "a"},
		})
		mt.AddMockResponses(first)

		doc, err := bson.Marshal(bson.M{"_id": "507f1f77bcf86cd799439011"})
		require.NoError(t, err)
		req := &bsonutil.Request{Database: "itest", Collection: "test", Document: doc}

		resp := d.Retrieve(mt.Ctx, req)
		var out bson.M
		require.NoError(t, bson.Unmarshal(resp, &out))
		assert.Contains(t, out, "result")
	})
}

func TestRetrieveByIDNotFound(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("not found", func(mt *mtest.T) {
		d := newTestDeps(mt)
		empty := mtest.CreateCursorResponse(0, "itest.test", mtest.FirstBatch)
		mt.AddMockResponses(empty)

		doc, err := bson.Marshal(bson.M{"_id": "missing"})
		require.NoError(t, err)
		req := &bsonutil.Request{Database: "itest", Collection: "test", Document: doc}

		resp := d.Retrieve(mt.Ctx, req)
		assert.Equal(t, protoerr.MsgNotFound, errorField(t, resp))
	})
}

func TestCreateMissingDocument(t *testing.T) {
	d := &Deps{Pool: store.NewFromClient(nil), Version: version.New(nil, version.Location{})}
	req := &bsonutil.Request{Database: "itest", Collection: "test"}
	resp := d.Create(nil, req) //nolint:staticcheck
	assert.Equal(t, protoerr.MsgMissingField, errorField(t, resp))
}

func TestCreateMissingID(t *testing.T) {
	d := &Deps{Pool: store.NewFromClient(nil), Version: version.New(nil, version.Location{})}
	doc, err := bson.Marshal(bson.M{"name": "a"})
	require.NoError(t, err)
	req := &bsonutil.Request{Database: "itest", Collection: "test", Document: doc}
	resp := d.Create(nil, req) //nolint:staticcheck
	assert.Equal(t, protoerr.MsgMissingID, errorField(t, resp))
}

func TestCreateSuccess(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("insert", func(mt *mtest.T) {
		d := newTestDeps(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse(), mtest.CreateSuccessResponse())

		doc, err := bson.Marshal(bson.M{"_id": "507f1f77bcf86cd799439011", "name": "a"})
		require.NoError(t, err)
		req := &bsonutil.Request{Database: "itest", Collection: "test", Document: doc}

		resp := d.Create(mt.Ctx, req)
		var out bson.M
		require.NoError(t, bson.Unmarshal(resp, &out))
		assert.Equal(t, "mongobroker", out["database"])
		assert.Equal(t, "versionHistory", out["collection"])
	})
}

func TestCreateSkipVersion(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("insert-skip-version", func(mt *mtest.T) {
		d := newTestDeps(mt)
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		doc, err := bson.Marshal(bson.M{"_id": "507f1f77bcf86cd799439011", "name": "a"})
		require.NoError(t, err)
		req := &bsonutil.Request{Database: "itest", Collection: "test", Document: doc, SkipVersion: true}

		resp := d.Create(mt.Ctx, req)
		var out bson.M
		require.NoError(t, bson.Unmarshal(resp, &out))
		assert.Equal(t, true, out["skipVersion"])
	})
}

func TestUpdateMissingDocument(t *testing.T) {
	d := &Deps{Pool: store.NewFromClient(nil), Version: version.New(nil, version.Location{})}
	req := &bsonutil.Request{Database: "itest", Collection: "test"}
	resp := d.Update(nil, req) //nolint:staticcheck
	assert.Equal(t, protoerr.MsgMissingField, errorField(t, resp))
}

func TestUpdateUnrecognizedShape(t *testing.T) {
	d := &Deps{Pool: store.NewFromClient(nil), Version: version.New(nil, version.Location{})}
	doc, err := bson.Marshal(bson.M{"garbage": true})
	require.NoError(t, err)
	req := &bsonutil.Request{Database: "itest", Collection: "test", Document: doc}
	resp := d.Update(nil, req) //nolint:staticcheck
	assert.Equal(t, protoerr.MsgInvalidUpdate, errorField(t, resp))
}

func TestDeleteMissingDocument(t *testing.T) {
	d := &Deps{Pool: store.NewFromClient(nil), Version: version.New(nil, version.Location{})}
	req := &bsonutil.Request{Database: "itest", Collection: "test"}
	resp := d.Delete(nil, req) //nolint:staticcheck
	assert.Equal(t, protoerr.MsgMissingField, errorField(t, resp))
}

func TestDistinctMissingField(t *testing.T) {
	d := &Deps{Pool: store.NewFromClient(nil), Version: version.New(nil, version.Location{})}
	req := &bsonutil.Request{Database: "itest", Collection: "test"}
	resp := d.Distinct(nil, req) //nolint:staticcheck
	assert.Equal(t, protoerr.MsgMissingField, errorField(t, resp))
}

func TestPipelineMissingField(t *testing.T) {
	d := &Deps{Pool: store.NewFromClient(nil), Version: version.New(nil, version.Location{})}
	req := &bsonutil.Request{Database: "itest", Collection: "test"}
	resp := d.Pipeline(nil, req) //nolint:staticcheck
	assert.Equal(t, protoerr.MsgMissingField, errorField(t, resp))
}

func TestBulkMissingField(t *testing.T) {
	d := &Deps{Pool: store.NewFromClient(nil), Version: version.New(nil, version.Location{})}
	req := &bsonutil.Request{Database: "itest", Collection: "test"}
	resp := d.Bulk(nil, req) //nolint:staticcheck
	assert.Equal(t, protoerr.MsgMissingField, errorField(t, resp))
}

func TestCountDefaultsToEmptyFilter(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("count", func(mt *mtest.T) {
		d := newTestDeps(mt)
		cursor := mtest.CreateCursorResponse(0, "itest.test", mtest.FirstBatch, bson.D{{Key: "n", Value: 3}})
		mt.AddMockResponses(cursor)

		req := &bsonutil.Request{Database: "itest", Collection: "test"}
		resp := d.Count(mt.Ctx, req)
		var out bson.M
		require.NoError(t, bson.Unmarshal(resp, &out))
		assert.Contains(t, out, "count")
	})
}
