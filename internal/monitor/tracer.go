package monitor

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "gistrun"

// Tracer wraps OpenTelemetry tracing for the fetch/cache/run pipeline.
// Spans are no-ops unless the process installs a TracerProvider.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer creates a new Tracer using the global TracerProvider.
func NewTracer() *Tracer {
	return &Tracer{
		tracer: otel.Tracer(tracerName),
	}
}

// StartSpan creates a new span and returns the updated context.
// A nil Tracer falls back to the global provider.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tr := otel.Tracer(tracerName)
	if t != nil {
		tr = t.tracer
	}
	return tr.Start(ctx, fmt.Sprintf("gistrun.%s", name),
		trace.WithAttributes(attrs...),
	)
}

// Common attribute keys.
var (
	AttrRunID    = attribute.Key("gistrun.run.id")
	AttrUser     = attribute.Key("gistrun.user")
	AttrFile     = attribute.Key("gistrun.file")
	AttrCacheKey = attribute.Key("gistrun.cache.key")
	AttrCacheHit = attribute.Key("gistrun.cache.hit")
	AttrURL      = attribute.Key("gistrun.url")
	AttrPage     = attribute.Key("gistrun.page")
	AttrExitCode = attribute.Key("gistrun.exit_code")
)
