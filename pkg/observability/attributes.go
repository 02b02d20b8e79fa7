package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Semantic convention attributes for engine telemetry.
var (
	AttrOperation = attribute.Key("ecoproof.operation")
	AttrActionID  = attribute.Key("ecoproof.action.id")
	AttrEventType = attribute.Key("ecoproof.journal.event_type")
	AttrSequence  = attribute.Key("ecoproof.journal.sequence")
	AttrErrorKind = attribute.Key("ecoproof.error.kind")

	AttrHTTPMethod = attribute.Key("http.request.method")
	AttrHTTPRoute  = attribute.Key("http.route")
)

// JournalEvent creates attributes for an appended journal entry.
func JournalEvent(eventType string, seq, actionID uint64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrEventType.String(eventType),
		AttrSequence.Int64(int64(seq)),
		AttrActionID.Int64(int64(actionID)),
	}
}

// HTTPOperation creates attributes for a routed HTTP request.
func HTTPOperation(method, route string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrHTTPMethod.String(method),
		AttrHTTPRoute.String(route),
	}
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}
