// Package server implements the session server (C9): a TCP accept loop
// whose connections are serviced by an independent cooperative task, each
// running a strict read-frame/validate/dispatch/write-frame loop. The
// accept-loop/listener-ready/sync.WaitGroup shutdown shape is grounded on
// internal/protocol/portmap/server.go's Serve, generalized from RPC record
// marking to this broker's length-prefix framing.
package server

import (
	"context"
	"net"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/halvorsen-oss/mongobroker/internal/bsonutil"
	"github.com/halvorsen-oss/mongobroker/internal/frame"
	"github.com/halvorsen-oss/mongobroker/internal/logger"
	"github.com/halvorsen-oss/mongobroker/internal/protoerr"
	"github.com/halvorsen-oss/mongobroker/pkg/bufpool"
)

// Dispatcher is implemented by *dispatch.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, req *bsonutil.Request) []byte
}

// dispatcherFunc lets internal/dispatch.Dispatcher (which returns
// bson.Raw, a []byte alias) satisfy Dispatcher without this package
// importing the bson package just for that type.
type dispatcherFunc func(ctx context.Context, req *bsonutil.Request) []byte

func (f dispatcherFunc) Dispatch(ctx context.Context, req *bsonutil.Request) []byte { return f(ctx, req) }

// WrapDispatcher adapts any func(ctx, *bsonutil.Request) bson.Raw-shaped
// dispatcher into the Dispatcher interface this package depends on.
func WrapDispatcher(fn func(ctx context.Context, req *bsonutil.Request) []byte) Dispatcher {
	return dispatcherFunc(fn)
}

// Config controls the listener address, worker pool size, and per-frame
// limits for the session server.
type Config struct {
	Listen          string
	Workers         int
	MaxFrameBytes   uint32
	ShutdownTimeout time.Duration
}

// Server accepts TCP connections and services each with a C9 session loop.
type Server struct {
	cfg        Config
	dispatcher Dispatcher

	listener net.Listener

	shutdown     chan struct{}
	shutdownOnce sync.Once
	wg           sync.WaitGroup
}

// New constructs a Server bound to dispatcher. Call Serve to start
// accepting connections.
func New(cfg Config, dispatcher Dispatcher) *Server {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	return &Server{cfg: cfg, dispatcher: dispatcher, shutdown: make(chan struct{})}
}

// Addr returns the listener's bound address; empty until Serve has started
// listening.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Serve binds the listener and blocks, servicing connections until ctx is
// canceled or Stop is called. Accepted connections are handed to a worker
// pool bounded by cfg.Workers so concurrent connection handling never
// exceeds that cap (§5).
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return err
	}
	s.listener = ln

	logger.Info("session server listening", "address", ln.Addr().String(), "workers", s.cfg.Workers)

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(s.cfg.Workers)

	go func() {
		select {
		case <-ctx.Done():
			s.Stop()
		case <-s.shutdown:
		}
	}()

	s.wg.Add(1)
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				_ = group.Wait()
				return nil
			default:
				logger.Warn("session server accept error", "error", err)
				_ = group.Wait()
				return err
			}
		}

		group.Go(func() error {
			s.handleConn(gctx, conn)
			return nil
		})
	}
}

// Stop closes the listener, which unblocks Accept and causes Serve to
// return.
func (s *Server) Stop() {
	s.shutdownOnce.Do(func() {
		close(s.shutdown)
		if s.listener != nil {
			_ = s.listener.Close()
		}
	})
}

// handleConn runs the per-connection session loop: read a frame, validate
// it, dispatch it, write the response frame, repeat until the peer closes
// the connection or an unrecoverable I/O error occurs (§4.9).
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	addr := conn.RemoteAddr().String()

	for {
		buf, err := frame.ReadFrame(conn, s.cfg.MaxFrameBytes)
		switch {
		case err == nil:
			// fallthrough to ping/dispatch handling below
		case err == frame.ErrPing:
			if _, werr := conn.Write(buf); werr != nil {
				logger.Debug("session: write ping echo failed", "client", addr, "error", werr)
				return
			}
			continue
		case err == frame.ErrNotBson:
			logger.Debug("session: non-bson payload, replying and continuing", "client", addr)
			if !s.writeResponse(conn, addr, protoerr.New(protoerr.MsgNotBson)) {
				return
			}
			continue
		case err == frame.ErrTooLarge:
			logger.Warn("session: oversized frame, closing connection", "client", addr)
			_, _ = conn.Write(protoerr.New(protoerr.MsgPayloadTooLarge))
			return
		default:
			logger.Debug("session: read frame error", "client", addr, "error", err)
			return
		}

		doc, err := frame.Validate(buf)
		if err != nil {
			bufpool.Put(buf)
			s.writeResponse(conn, addr, protoerr.New(protoerr.MsgNotBson))
			continue
		}

		req, err := bsonutil.OwnedDocument(doc)
		if err != nil {
			bufpool.Put(buf)
			s.writeResponse(conn, addr, protoerr.New(protoerr.MsgNotBson))
			continue
		}

		// req owns buf (it holds the decoded view over it); Dispatch is the
		// last user of that view, so the buffer can go back to the pool as
		// soon as Dispatch returns.
		resp := s.dispatcher.Dispatch(ctx, req)
		bufpool.Put(buf)
		if !s.writeResponse(conn, addr, resp) {
			return
		}
	}
}

func (s *Server) writeResponse(conn net.Conn, addr string, resp []byte) bool {
	if _, err := conn.Write(frame.Encode(resp)); err != nil {
		logger.Debug("session: write response failed", "client", addr, "error", err)
		return false
	}
	return true
}
