package ilp

import (
	"bufio"
	"context"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halvorsen-oss/mongobroker/internal/telemetrypipe"
)

func TestSinkWritesLineProtocolOverTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	received := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		received <- line
	}()

	sink := NewSink(ln.Addr().String(), time.Second)
	defer sink.Close()

	batch := []telemetrypipe.Metric{{
		Action:     "retrieve",
		Database:   "itest",
		Collection: "test",
		Size:       42,
		Duration:   5 * time.Millisecond,
		Timestamp:  time.Unix(0, 1700000000000000000),
	}}

	err = sink.Write(context.Background(), batch)
	require.NoError(t, err)

	select {
	case line := <-received:
		assert.True(t, strings.HasPrefix(line, "mongobroker_request,"))
		assert.Contains(t, line, "action=retrieve")
		assert.Contains(t, line, "size=42i")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for line-protocol payload")
	}
}

func TestSinkWriteEmptyBatchIsNoop(t *testing.T) {
	sink := NewSink("127.0.0.1:1", time.Millisecond)
	err := sink.Write(context.Background(), nil)
	assert.NoError(t, err)
}
