package bsonutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func mustMarshal(t *testing.T, v any) bson.Raw {
	t.Helper()
	raw, err := bson.Marshal(v)
	require.NoError(t, err)
	return raw
}

func TestExtractors(t *testing.T) {
	doc := mustMarshal(t, bson.M{
		"flag":   true,
		"count":  int32(7),
		"big":    int64(9000000000),
		"ratio":  1.5,
		"name":   "widget",
		"nested": bson.M{"a": 1},
		"items":  bson.A{1, 2, 3},
	})

	b, ok := Bool(doc, "flag")
	assert.True(t, ok)
	assert.True(t, b)

	_, ok = Bool(doc, "missing")
	assert.False(t, ok)

	i32, ok := Int32(doc, "count")
	assert.True(t, ok)
	assert.Equal(t, int32(7), i32)

	i64, ok := Int64(doc, "big")
	assert.True(t, ok)
	assert.Equal(t, int64(9000000000), i64)

	d, ok := Double(doc, "ratio")
	assert.True(t, ok)
	assert.Equal(t, 1.5, d)

	s, ok := String(doc, "name")
	assert.True(t, ok)
	assert.Equal(t, "widget", s)

	_, ok = String(doc, "count")
	assert.False(t, ok, "wrong type should fail, not coerce")

	nested, ok := Document(doc, "nested")
	assert.True(t, ok)
	assert.NotEmpty(t, nested)

	values, ok := ArrayValues(doc, "items")
	assert.True(t, ok)
	assert.Len(t, values, 3)

	assert.True(t, HasKey(doc, "flag"))
	assert.False(t, HasKey(doc, "nope"))

	assert.Equal(t, "widget", StringOrDefault(doc, "name", "x"))
	assert.Equal(t, "x", StringOrDefault(doc, "nope", "x"))
	assert.True(t, BoolOrDefault(doc, "nope", true))
}

func TestOwnedDocumentParsesEnvelope(t *testing.T) {
	buf := mustMarshal(t, bson.M{
		"action":     "retrieve",
		"database":   "itest",
		"collection": "test",
		"document":   bson.M{"_id": "507f1f77bcf86cd799439011"},
	})

	req, err := OwnedDocument(buf)
	require.NoError(t, err)
	assert.Equal(t, "retrieve", req.Action)
	assert.Equal(t, "itest", req.Database)
	assert.Equal(t, "test", req.Collection)
	assert.NotNil(t, req.Document)
	assert.Empty(t, req.MissingFields())
	assert.True(t, req.Owned())
	assert.Equal(t, len(buf), req.Size())
}

func TestMissingFields(t *testing.T) {
	buf := mustMarshal(t, bson.M{"database": "itest"})
	req, err := BorrowedDocument(buf)
	require.NoError(t, err)
	assert.False(t, req.Owned())
	assert.ElementsMatch(t, []string{"action", "collection", "document"}, req.MissingFields())
}

func TestOwnedDocumentRejectsNonBSON(t *testing.T) {
	_, err := OwnedDocument([]byte("hello world"))
	assert.Error(t, err)
}
