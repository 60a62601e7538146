package otel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace"
)

func recordingTracer(t *testing.T) (*tracetest.InMemoryExporter, trace.Tracer) {
	t.Helper()
	exporter := tracetest.NewInMemoryExporter()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return exporter, tp.Tracer("biblio-sync-test")
}

func attrs(span sdktrace.ReadOnlySpan) map[attribute.Key]attribute.Value {
	out := make(map[attribute.Key]attribute.Value)
	for _, kv := range span.Attributes() {
		out[kv.Key] = kv.Value
	}
	return out
}

func TestStartSpan_NilTracer(t *testing.T) {
	t.Parallel()

	ctx, span := StartSpan(context.Background(), nil, "sync.DoUpdate")
	require.NotNil(t, ctx)
	assert.False(t, span.SpanContext().IsValid())
	assert.NotPanics(t, func() { span.End() })
}

func TestStartSpan_ValidTracer(t *testing.T) {
	t.Parallel()

	exporter, tracer := recordingTracer(t)
	_, span := StartSpan(context.Background(), tracer, "sync.DoUpdate",
		trace.WithAttributes(AttrTarget.String("crossref-main")))
	assert.True(t, span.SpanContext().IsValid())
	span.End()

	spans := exporter.GetSpans().Snapshots()
	require.Len(t, spans, 1)
	assert.Equal(t, "sync.DoUpdate", spans[0].Name())
	assert.Equal(t, "crossref-main", attrs(spans[0])[AttrTarget].AsString())
}

func TestRecordError(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() { RecordError(nil, errors.New("boom")) })

	exporter, tracer := recordingTracer(t)

	_, clean := tracer.Start(context.Background(), "clean")
	RecordError(clean, nil)
	clean.End()

	_, failed := tracer.Start(context.Background(), "failed")
	RecordError(failed, errors.New("POST https://api.crossref.org/deposit?pwd=secret: 503"))
	failed.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)

	assert.Equal(t, codes.Unset, spans[0].Status.Code)
	assert.Empty(t, spans[0].Events)

	assert.Equal(t, codes.Error, spans[1].Status.Code)
	assert.Equal(t, "operation failed", spans[1].Status.Description)
	require.Len(t, spans[1].Events, 1)
	assert.Equal(t, "exception", spans[1].Events[0].Name)
}

func TestOperationSpan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		operation  string
		result     string
		err        error
		wantStatus codes.Code
	}{
		{name: "submit accepted", operation: "submit", result: "pending", wantStatus: codes.Unset},
		{name: "identify found", operation: "identify", result: "found", wantStatus: codes.Unset},
		{name: "check rejected", operation: "check", result: "auth", err: errors.New("login failed"), wantStatus: codes.Error},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			exporter, tracer := recordingTracer(t)
			parentCtx, parent := tracer.Start(context.Background(), "sync.DoUpdate")

			_, span := StartOperation(parentCtx, tracer, tt.operation, "42")
			EndOperation(span, tt.result, tt.err)
			parent.End()

			spans := exporter.GetSpans().Snapshots()
			require.Len(t, spans, 2)
			call := spans[0]

			assert.Equal(t, "registry."+tt.operation, call.Name())
			assert.Equal(t, trace.SpanKindClient, call.SpanKind())
			assert.Equal(t, parent.SpanContext().SpanID(), call.Parent().SpanID())
			assert.Equal(t, tt.wantStatus, call.Status().Code)

			got := attrs(call)
			assert.Equal(t, tt.operation, got[AttrOperation].AsString())
			assert.Equal(t, "42", got[AttrArticleID].AsString())
			assert.Equal(t, tt.result, got[AttrResult].AsString())
			if tt.err != nil {
				assert.Equal(t, tt.result, got[AttrErrorKind].AsString())
			} else {
				assert.NotContains(t, got, AttrErrorKind)
			}
		})
	}
}
