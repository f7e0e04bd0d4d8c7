package server

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/halvorsen-oss/mongobroker/internal/bsonutil"
	"github.com/halvorsen-oss/mongobroker/internal/frame"
)

func echoDispatcher() Dispatcher {
	return WrapDispatcher(func(ctx context.Context, req *bsonutil.Request) []byte {
		doc, _ := bson.Marshal(bson.M{"echoedAction": req.Action})
		return doc
	})
}

func startTestServer(t *testing.T) (*Server, func()) {
	t.Helper()
	s := New(Config{Listen: "127.0.0.1:0", Workers: 2}, echoDispatcher())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx) }()

	require.Eventually(t, func() bool { return s.Addr() != "" }, time.Second, time.Millisecond)

	return s, func() {
		cancel()
		s.Stop()
	}
}

func TestServerRoundTripsOneRequest(t *testing.T) {
	s, stop := startTestServer(t)
	defer stop()

	conn, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	defer conn.Close()

	req, err := bson.Marshal(bson.M{
		"action": "retrieve", "database": "itest", "collection": "test", "document": bson.M{},
	})
	require.NoError(t, err)

	_, err = conn.Write(frame.Encode(req))
	require.NoError(t, err)

	resp, err := frame.ReadFrame(conn, 0)
	require.NoError(t, err)

	var parsed bson.M
	require.NoError(t, bson.Unmarshal(resp, &parsed))
	assert.Equal(t, "retrieve", parsed["echoedAction"])
}

func TestServerEchoesPing(t *testing.T) {
	s, stop := startTestServer(t)
	defer stop()

	conn, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte{0x01, 0x02})
	require.NoError(t, err)
	// Half-close so the server sees the stream end after two bytes.
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	echo := make([]byte, 2)
	_, err = io.ReadFull(conn, echo)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x01, 0x02}, echo)
	require.NoError(t, conn.Close())
}

func TestServerRejectsOversizedFrame(t *testing.T) {
	s := New(Config{Listen: "127.0.0.1:0", Workers: 2, MaxFrameBytes: 16}, echoDispatcher())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = s.Serve(ctx) }()
	require.Eventually(t, func() bool { return s.Addr() != "" }, time.Second, time.Millisecond)
	defer s.Stop()

	conn, err := net.Dial("tcp", s.Addr())
	require.NoError(t, err)
	defer conn.Close()

	big, err := bson.Marshal(bson.M{"document": bson.M{"padding": make([]byte, 64)}})
	require.NoError(t, err)
	_, err = conn.Write(frame.Encode(big))
	require.NoError(t, err)

	resp, err := frame.ReadFrame(conn, 0)
	require.NoError(t, err)

	var parsed bson.M
	require.NoError(t, bson.Unmarshal(resp, &parsed))
	assert.Equal(t, "Payload exceeds maximum frame size", parsed["error"])
}
