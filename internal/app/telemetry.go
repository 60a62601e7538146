package app

import (
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/biblio-sync/internal/telemetry"
)

func telemetryTracer(t *telemetry.Telemetry) trace.Tracer {
	if t == nil {
		return nil
	}
	return t.Tracer(SyncTracerName)
}
