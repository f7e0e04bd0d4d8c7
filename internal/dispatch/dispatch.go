// Package dispatch implements the action dispatcher (C3): a map from action
// tag to handler, built once at startup, plus the shared envelope
// validation every request goes through before a handler ever sees it.
package dispatch

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/halvorsen-oss/mongobroker/internal/bsonutil"
	"github.com/halvorsen-oss/mongobroker/internal/protoerr"
	"github.com/halvorsen-oss/mongobroker/pkg/metrics"
)

// Handler executes one action against an already-validated request.
type Handler func(ctx context.Context, req *bsonutil.Request) bson.Raw

// HistoryLocation is implemented by internal/version.Writer; it is the
// dispatcher's one piece of shared validation state beyond the handler map.
type HistoryLocation interface {
	Is(database, collection string) bool
}

// Capture is called once per handler invocation unless the request opts
// out with skipMetric (§4.8 capture). The caller supplies an adapter
// closing over a *telemetrypipe.Pipeline so this package never needs to
// import telemetrypipe.
type Capture func(m CapturedMetric)

// CapturedMetric is the subset of telemetrypipe.Metric the dispatcher can
// observe without importing that package, avoiding a dependency cycle
// (telemetrypipe's sinks never need to reach back into dispatch).
type CapturedMetric struct {
	Action        string
	Database      string
	Collection    string
	Size          int
	Duration      time.Duration
	Timestamp     time.Time
	Application   string
	CorrelationID string
}

// mutatingActions is the set of action tags that write to the backing
// store and are therefore subject to the history-location rejection.
var mutatingActions = map[string]bool{
	"create":           true,
	"createTimeseries": true,
	"update":           true,
	"delete":           true,
	"createCollection": true,
	"renameCollection": true,
	"dropCollection":   true,
	"index":            true,
	"dropIndex":        true,
	"bulk":             true,
	"transaction":      true,
}

// Dispatcher routes a decoded request envelope to its handler.
type Dispatcher struct {
	handlers map[string]Handler
	history  HistoryLocation
	capture  Capture
	metrics  metrics.HandlerMetrics
}

// New builds a Dispatcher from a fixed action-to-handler map. handlers must
// name every action tag in §3's enumeration that this broker supports;
// handlers is copied so later mutation by the caller has no effect. capture
// may be nil, in which case no metric records are produced.
func New(handlers map[string]Handler, history HistoryLocation, capture Capture) *Dispatcher {
	copied := make(map[string]Handler, len(handlers))
	for k, v := range handlers {
		copied[k] = v
	}
	return &Dispatcher{handlers: copied, history: history, capture: capture, metrics: metrics.NewHandlerMetrics()}
}

// Dispatch validates req and, if valid, routes it to its handler. Rejection
// paths never invoke a handler and return one of the §7 error documents.
// A successful or failed handler invocation produces one metric record
// unless req.SkipMetric is set (§4.8).
func (d *Dispatcher) Dispatch(ctx context.Context, req *bsonutil.Request) bson.Raw {
	if missing := req.MissingFields(); len(missing) > 0 {
		return protoerr.WithFields(protoerr.MsgMissingField, missing)
	}

	handler, ok := d.handlers[req.Action]
	if !ok {
		return protoerr.New(protoerr.MsgInvalidAction)
	}

	if mutatingActions[req.Action] && d.history != nil && d.history.Is(req.Database, req.Collection) {
		return protoerr.New(protoerr.MsgInvalidAction)
	}

	start := time.Now()
	resp := handler(ctx, req)
	duration := time.Since(start)

	if d.metrics != nil {
		d.metrics.ObserveDuration(req.Action, duration)
		if kind, failed := errorKind(resp); failed {
			d.metrics.IncErrors(req.Action, kind)
		}
	}

	if !req.SkipMetric && d.capture != nil {
		d.capture(CapturedMetric{
			Action:        req.Action,
			Database:      req.Database,
			Collection:    req.Collection,
			Size:          req.Size(),
			Duration:      duration,
			Timestamp:     start,
			Application:   req.Application,
			CorrelationID: req.CorrelationID,
		})
	}

	return resp
}

func errorKind(resp bson.Raw) (string, bool) {
	if resp == nil {
		return "", false
	}
	v, err := resp.LookupErr("error")
	if err != nil {
		return "", false
	}
	s, ok := v.StringValueOK()
	if !ok {
		return "", true
	}
	return s, true
}

// Actions returns the action tags this dispatcher recognizes, in no
// particular order (they come from ranging over the handler map).
func (d *Dispatcher) Actions() []string {
	actions := make([]string, 0, len(d.handlers))
	for action := range d.handlers {
		actions = append(actions, action)
	}
	return actions
}
