package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

func TestLocationIs(t *testing.T) {
	loc := Location{Database: "mongobroker", Collection: "versionHistory"}
	assert.True(t, loc.Is("mongobroker", "versionHistory"))
	assert.False(t, loc.Is("itest", "test"))
}

func TestRecordRejectsHistoryLocation(t *testing.T) {
	loc := Location{Database: "mongobroker", Collection: "versionHistory"}
	w := New(nil, loc)

	snapshot, err := bson.Marshal(bson.M{"key": "value"})
	require.NoError(t, err)

	_, err = w.Record(nil, nil, "mongobroker", "versionHistory", "create", snapshot, nil) //nolint:staticcheck
	assert.Error(t, err)
}

func TestRecordInsertsSnapshot(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("insert", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		w := New(mt.Client, Location{Database: "mongobroker", Collection: "versionHistory"})

		snapshot, err := bson.Marshal(bson.M{"_id": "507f1f77bcf86cd799439011", "key": "value"})
		require.NoError(t, err)

		id, err := w.Record(mt.Ctx, nil, "itest", "test", "create", snapshot, nil)
		require.NoError(t, err)
		assert.False(t, id.IsZero())
	})
}
