package txn

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/halvorsen-oss/mongobroker/internal/bsonutil"
	"github.com/halvorsen-oss/mongobroker/internal/version"
)

func TestExecuteMissingItemsField(t *testing.T) {
	e := &Executor{Version: version.New(nil, version.Location{Database: "mongobroker", Collection: "versionHistory"})}

	doc, err := bson.Marshal(bson.M{
		"action":     "transaction",
		"database":   "itest",
		"collection": "test",
		"document":   bson.M{},
	})
	assert.NoError(t, err)

	req, err := bsonutil.OwnedDocument(doc)
	assert.NoError(t, err)

	resp := e.Execute(nil, req) //nolint:staticcheck

	var parsed bson.M
	assert.NoError(t, bson.Unmarshal(resp, &parsed))
	assert.Equal(t, "Request missing required field", parsed["error"])
}

func TestExecuteRejectsMalformedItem(t *testing.T) {
	e := &Executor{Version: version.New(nil, version.Location{Database: "mongobroker", Collection: "versionHistory"})}

	doc, err := bson.Marshal(bson.M{
		"action":     "transaction",
		"database":   "itest",
		"collection": "test",
		"document": bson.M{
			"items": bson.A{"not-a-document"},
		},
	})
	assert.NoError(t, err)

	req, err := bsonutil.OwnedDocument(doc)
	assert.NoError(t, err)

	resp := e.Execute(nil, req) //nolint:staticcheck

	var parsed bson.M
	assert.NoError(t, bson.Unmarshal(resp, &parsed))
	assert.Equal(t, "Request missing required field", parsed["error"])
}
