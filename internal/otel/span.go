// Package otel provides OpenTelemetry instrumentation utilities for the sync service.
package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by tick and registry call spans
const (
	AttrTarget      = attribute.Key("sync.target")
	AttrTargetType  = attribute.Key("sync.target_type")
	AttrTickID      = attribute.Key("sync.tick_id")
	AttrArticleID   = attribute.Key("article.id")
	AttrOperation   = attribute.Key("registry.operation")
	AttrResultCount = attribute.Key("result.count")
	AttrErrorKind   = attribute.Key("error.kind")
	AttrBatchSize   = attribute.Key("sync.batch_size")
	AttrTickOutcome = attribute.Key("sync.tick_outcome")
	AttrResult      = attribute.Key("registry.result")
)

// StartSpan starts a span on tracer. A nil tracer yields the span already in ctx,
// which is a no-op span when tracing is disabled.
func StartSpan(
	ctx context.Context,
	tracer trace.Tracer,
	name string,
	opts ...trace.SpanStartOption,
) (context.Context, trace.Span) {
	if tracer == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return tracer.Start(ctx, name, opts...)
}

// RecordError records err as a span event and marks the span as failed.
// The status description stays generic because registry errors may quote
// request URLs; the event carries the full message.
func RecordError(span trace.Span, err error) {
	if err != nil && span != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "operation failed")
	}
}

// StartOperation starts a client span around one registry call for one article
func StartOperation(ctx context.Context, tracer trace.Tracer, operation, articleID string) (context.Context, trace.Span) {
	return StartSpan(ctx, tracer, "registry."+operation,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			AttrOperation.String(operation),
			AttrArticleID.String(articleID),
		))
}

// EndOperation stamps the call result and ends the span. On failure result is
// expected to be the error kind.
func EndOperation(span trace.Span, result string, err error) {
	span.SetAttributes(AttrResult.String(result))
	if err != nil {
		span.SetAttributes(AttrErrorKind.String(result))
		RecordError(span, err)
	}
	span.End()
}
