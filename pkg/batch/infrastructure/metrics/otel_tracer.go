package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/surfin-dualdb/pkg/batch/core/metrics"
)

const instrumentationName = "github.com/tigerroll/surfin-dualdb"

// OpenTelemetryTracer is an implementation of metrics.Tracer using OpenTelemetry.
type OpenTelemetryTracer struct {
	tracer trace.Tracer
}

// NewOpenTelemetryTracer creates a tracer on provider.
func NewOpenTelemetryTracer(provider trace.TracerProvider) *OpenTelemetryTracer {
	return &OpenTelemetryTracer{tracer: provider.Tracer(instrumentationName)}
}

// StartInvocationSpan starts a span for one job invocation.
func (t *OpenTelemetryTracer) StartInvocationSpan(ctx context.Context, invocation model.JobInvocation) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "batch.invocation",
		trace.WithAttributes(
			attribute.String("batch.invocation.key", invocation.Key()),
			attribute.String("batch.database", invocation.Database.String()),
			attribute.String("batch.source", invocation.Filename),
			attribute.Int64("batch.invocation.sequence", int64(invocation.Sequence)),
		),
	)
	return ctx, func() { span.End() }
}

// StartChunkSpan starts a span for one chunk write.
func (t *OpenTelemetryTracer) StartChunkSpan(ctx context.Context, database dbctx.Identifier, chunk int, size int) (context.Context, func()) {
	ctx, span := t.tracer.Start(ctx, "batch.chunk",
		trace.WithAttributes(
			attribute.String("batch.database", database.String()),
			attribute.Int("batch.chunk.index", chunk),
			attribute.Int("batch.chunk.size", size),
		),
	)
	return ctx, func() { span.End() }
}

// RecordError records err on the current span and marks it failed.
func (t *OpenTelemetryTracer) RecordError(ctx context.Context, module string, err error) {
	if err == nil {
		return
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err, trace.WithAttributes(attribute.String("batch.module", module)))
	span.SetStatus(codes.Error, err.Error())
}

// RecordEvent adds an event to the current span.
func (t *OpenTelemetryTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
	attrs := make([]attribute.KeyValue, 0, len(attributes))
	for k, v := range attributes {
		switch val := v.(type) {
		case string:
			attrs = append(attrs, attribute.String(k, val))
		case int:
			attrs = append(attrs, attribute.Int(k, val))
		case int64:
			attrs = append(attrs, attribute.Int64(k, val))
		case bool:
			attrs = append(attrs, attribute.Bool(k, val))
		case float64:
			attrs = append(attrs, attribute.Float64(k, val))
		default:
			attrs = append(attrs, attribute.String(k, fmt.Sprint(val)))
		}
	}
	trace.SpanFromContext(ctx).AddEvent(name, trace.WithAttributes(attrs...))
}

var _ metrics.Tracer = (*OpenTelemetryTracer)(nil)
