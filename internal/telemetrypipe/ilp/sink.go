package ilp

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/halvorsen-oss/mongobroker/internal/telemetrypipe"
)

// Sink writes batches of telemetrypipe.Metric as line-protocol text over a
// persistent TCP connection to a time-series endpoint, grounded on
// original_source/src/ilp/builder.cpp (no line-protocol client library
// appears anywhere in the reference corpus, so this transport is
// hand-rolled).
type Sink struct {
	addr    string
	dialer  net.Dialer
	timeout time.Duration

	mu   sync.Mutex
	conn net.Conn
	w    *bufio.Writer
}

// NewSink returns a Sink that lazily dials addr on the first Write and
// reuses the connection across batches, redialing on write failure.
func NewSink(addr string, dialTimeout time.Duration) *Sink {
	return &Sink{addr: addr, timeout: dialTimeout}
}

func (s *Sink) ensureConn(ctx context.Context) error {
	if s.conn != nil {
		return nil
	}
	dialCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	conn, err := s.dialer.DialContext(dialCtx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("ilp: dial %s: %w", s.addr, err)
	}
	s.conn = conn
	s.w = bufio.NewWriter(conn)
	return nil
}

// Write encodes batch as line-protocol text and writes it to the
// persistent connection, reconnecting once on a write error before giving
// up and reporting failure to the caller.
func (s *Sink) Write(ctx context.Context, batch []telemetrypipe.Metric) error {
	if len(batch) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ensureConn(ctx); err != nil {
		return err
	}

	payload := encodeBatch(batch)

	if err := s.writeLocked(payload); err != nil {
		s.resetLocked()
		if err := s.ensureConn(ctx); err != nil {
			return err
		}
		if err := s.writeLocked(payload); err != nil {
			s.resetLocked()
			return fmt.Errorf("ilp: write after reconnect: %w", err)
		}
	}
	return nil
}

func (s *Sink) writeLocked(payload string) error {
	if _, err := s.w.WriteString(payload); err != nil {
		return err
	}
	return s.w.Flush()
}

func (s *Sink) resetLocked() {
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.conn = nil
	s.w = nil
}

// Close closes the underlying connection, if one is open.
func (s *Sink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	err := s.conn.Close()
	s.conn = nil
	s.w = nil
	return err
}

// encodeBatch renders every metric in batch as a line-protocol line using
// the fixed "mongobroker_request" measurement, tagged by action/database/
// collection and carrying the remaining fields numerically.
func encodeBatch(batch []telemetrypipe.Metric) string {
	var out string
	for _, m := range batch {
		fields := map[string]any{
			"size":     int64(m.Size),
			"duration": m.Duration.Nanoseconds(),
		}
		if m.Application != "" {
			fields["application"] = m.Application
		}
		if m.CorrelationID != "" {
			fields["correlationId"] = m.CorrelationID
		}
		if m.Message != "" {
			fields["message"] = m.Message
		}
		if m.EntityID != "" {
			fields["entityId"] = m.EntityID
		}

		out += EncodeMetric(Metric{
			Measurement: "mongobroker_request",
			Tags: map[string]string{
				"action":     m.Action,
				"database":   m.Database,
				"collection": m.Collection,
			},
			Fields:      fields,
			TimestampNs: m.Timestamp.UnixNano(),
		})
	}
	return out
}
