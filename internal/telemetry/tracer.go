package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for broker operations.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// ========================================================================
	// Client attributes
	// ========================================================================
	AttrClientIP   = "client.ip"
	AttrClientAddr = "client.address"

	// ========================================================================
	// Request envelope attributes
	// ========================================================================
	AttrAction         = "request.action"     // create, retrieve, update, delete, ...
	AttrDatabase       = "request.database"   // target database name
	AttrCollection     = "request.collection" // target collection name
	AttrCorrelationID  = "request.correlation_id"
	AttrApplication    = "request.application"
	AttrSkipVersion    = "request.skip_version"
	AttrSkipMetric     = "request.skip_metric"

	// ========================================================================
	// Response attributes
	// ========================================================================
	AttrErrorCode   = "response.error_code"
	AttrMatched     = "response.matched"
	AttrModified    = "response.modified"
	AttrDocCount    = "response.document_count"

	// ========================================================================
	// Storage session pool attributes
	// ========================================================================
	AttrPoolSize   = "pool.size"
	AttrPoolIdle   = "pool.idle"
	AttrPoolActive = "pool.active"
	AttrPoolWait   = "pool.wait_ms"

	// ========================================================================
	// Telemetry pipeline attributes
	// ========================================================================
	AttrSink        = "telemetry.sink"
	AttrQueueDepth  = "telemetry.queue_depth"
	AttrBatchSize   = "telemetry.batch_size"

	// ========================================================================
	// Transaction attributes
	// ========================================================================
	AttrTxnItemCount = "transaction.item_count"
	AttrTxnCreated   = "transaction.created"
	AttrTxnUpdated   = "transaction.updated"
	AttrTxnDeleted   = "transaction.deleted"
)

// Span names for broker operations.
// Format: <component>.<operation>
const (
	// Root span for a single session-protocol request
	SpanRequest = "session.request"

	// Action handler spans, named after the wire action tag
	SpanActionCreate             = "action.create"
	SpanActionCreateTimeSeries   = "action.createTimeSeries"
	SpanActionRetrieve           = "action.retrieve"
	SpanActionUpdate             = "action.update"
	SpanActionDelete             = "action.delete"
	SpanActionCount              = "action.count"
	SpanActionDistinct           = "action.distinct"
	SpanActionPipeline           = "action.pipeline"
	SpanActionBulk               = "action.bulk"
	SpanActionIndex              = "action.index"
	SpanActionDropIndex          = "action.dropIndex"
	SpanActionCreateCollection   = "action.createCollection"
	SpanActionDropCollection     = "action.dropCollection"
	SpanActionRenameCollection   = "action.renameCollection"
	SpanActionTransaction        = "action.transaction"

	// Internal component spans
	SpanPoolAcquire     = "pool.acquire"
	SpanPoolRelease     = "pool.release"
	SpanVersionWrite    = "version.write"
	SpanTelemetryEnqueue = "telemetry.enqueue"
	SpanTelemetryFlush   = "telemetry.flush"
)

// ClientIP returns an attribute for client IP address.
func ClientIP(ip string) attribute.KeyValue {
	return attribute.String(AttrClientIP, ip)
}

// ClientAddr returns an attribute for the full client address.
func ClientAddr(addr string) attribute.KeyValue {
	return attribute.String(AttrClientAddr, addr)
}

// Action returns an attribute for the request action tag.
func Action(action string) attribute.KeyValue {
	return attribute.String(AttrAction, action)
}

// Database returns an attribute for the target database name.
func Database(name string) attribute.KeyValue {
	return attribute.String(AttrDatabase, name)
}

// Collection returns an attribute for the target collection name.
func Collection(name string) attribute.KeyValue {
	return attribute.String(AttrCollection, name)
}

// CorrelationID returns an attribute for a request's correlation id.
func CorrelationID(id string) attribute.KeyValue {
	return attribute.String(AttrCorrelationID, id)
}

// Application returns an attribute for the originating application name.
func Application(name string) attribute.KeyValue {
	return attribute.String(AttrApplication, name)
}

// ErrorCode returns an attribute for a response's error code.
func ErrorCode(code string) attribute.KeyValue {
	return attribute.String(AttrErrorCode, code)
}

// DocumentCount returns an attribute for the number of documents a response
// describes (matched, deleted, or returned).
func DocumentCount(count int64) attribute.KeyValue {
	return attribute.Int64(AttrDocCount, count)
}

// PoolSize returns an attribute for the current pool capacity.
func PoolSize(size int) attribute.KeyValue {
	return attribute.Int(AttrPoolSize, size)
}

// PoolIdle returns an attribute for the current idle session count.
func PoolIdle(idle int) attribute.KeyValue {
	return attribute.Int(AttrPoolIdle, idle)
}

// PoolActive returns an attribute for the current active session count.
func PoolActive(active int) attribute.KeyValue {
	return attribute.Int(AttrPoolActive, active)
}

// Sink returns an attribute for the telemetry-pipeline sink name.
func Sink(name string) attribute.KeyValue {
	return attribute.String(AttrSink, name)
}

// QueueDepth returns an attribute for the telemetry queue depth.
func QueueDepth(depth int) attribute.KeyValue {
	return attribute.Int(AttrQueueDepth, depth)
}

// StartActionSpan starts a span for a dispatched action handler.
// This is a convenience wrapper that attaches the common request
// attributes every handler span carries.
func StartActionSpan(ctx context.Context, spanName, action, database, collection string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := []attribute.KeyValue{
		Action(action),
		Database(database),
		Collection(collection),
	}
	allAttrs = append(allAttrs, attrs...)

	return StartSpan(ctx, spanName, trace.WithAttributes(allAttrs...))
}

// StartPoolSpan starts a span for a storage session pool operation.
func StartPoolSpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, spanName, trace.WithAttributes(attrs...))
}

// StartTelemetrySpan starts a span for a telemetry-pipeline operation.
func StartTelemetrySpan(ctx context.Context, spanName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, spanName, trace.WithAttributes(attrs...))
}
