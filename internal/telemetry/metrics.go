// Package telemetry provides OpenTelemetry instrumentation for the sync service.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// SyncMetricsMeterName is the name used for the sync metrics meter
	SyncMetricsMeterName = "github.com/stacklok/biblio-sync/sync"
)

// Tick outcomes recorded on the tick duration histogram
const (
	TickResultCompleted = "completed"
	TickResultStopped   = "stopped"
	TickResultAborted   = "aborted"
	TickResultFailed    = "failed"
)

// SyncMetrics holds the OpenTelemetry instruments for sync ticks and registry operations
type SyncMetrics struct {
	tickDuration metric.Float64Histogram
	operations   metric.Int64Counter
	queueDepth   metric.Int64Gauge
}

// NewSyncMetrics creates a new SyncMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewSyncMetrics(provider metric.MeterProvider) (*SyncMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(SyncMetricsMeterName)

	tickDuration, err := meter.Float64Histogram(
		"biblio_sync_tick_duration_seconds",
		metric.WithDescription("Duration of sync ticks in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300),
	)
	if err != nil {
		return nil, err
	}

	operations, err := meter.Int64Counter(
		"biblio_sync_operations_total",
		metric.WithDescription("Number of registry operations by outcome"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, err
	}

	queueDepth, err := meter.Int64Gauge(
		"biblio_sync_queue_depth",
		metric.WithDescription("Number of articles waiting in each selection queue"),
		metric.WithUnit("{article}"),
	)
	if err != nil {
		return nil, err
	}

	return &SyncMetrics{
		tickDuration: tickDuration,
		operations:   operations,
		queueDepth:   queueDepth,
	}, nil
}

// RecordTickDuration records the duration of one tick of a target
func (m *SyncMetrics) RecordTickDuration(ctx context.Context, target string, duration time.Duration, result string) {
	if m == nil || m.tickDuration == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("target", target),
		attribute.String("result", result),
	}

	m.tickDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordOperation counts one registry operation on an article
func (m *SyncMetrics) RecordOperation(ctx context.Context, target, operation, result string) {
	if m == nil || m.operations == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("target", target),
		attribute.String("operation", operation),
		attribute.String("result", result),
	}

	m.operations.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordQueueDepth records the size of one selection queue of a target
func (m *SyncMetrics) RecordQueueDepth(ctx context.Context, target, queue string, depth int) {
	if m == nil || m.queueDepth == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("target", target),
		attribute.String("queue", queue),
	}

	m.queueDepth.Record(ctx, int64(depth), metric.WithAttributes(attrs...))
}
