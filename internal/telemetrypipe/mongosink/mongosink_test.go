package mongosink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/halvorsen-oss/mongobroker/internal/telemetrypipe"
)

func TestWriteInsertsBatch(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("insert", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		sink := New(mt.Client, "mongobroker", "metrics")

		batch := []telemetrypipe.Metric{
			{Action: "create", Database: "itest", Collection: "test", Size: 10, Duration: time.Millisecond, Timestamp: time.Now()},
			{Action: "retrieve", Database: "itest", Collection: "test", Size: 20, Duration: 2 * time.Millisecond, Timestamp: time.Now()},
		}

		err := sink.Write(mt.Ctx, batch)
		require.NoError(t, err)
	})
}

func TestWriteEmptyBatchIsNoop(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))
	defer mt.Close()

	mt.Run("noop", func(mt *mtest.T) {
		sink := New(mt.Client, "mongobroker", "metrics")
		err := sink.Write(mt.Ctx, nil)
		require.NoError(t, err)
	})
}
