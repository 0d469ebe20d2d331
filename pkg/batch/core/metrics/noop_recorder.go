package metrics

import (
	"context"
	"time"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
)

// NoOpMetricRecorder is a MetricRecorder that does nothing.
// It is used when metrics are disabled and in tests.
type NoOpMetricRecorder struct{}

// NewNoOpMetricRecorder creates a new NoOpMetricRecorder.
func NewNoOpMetricRecorder() MetricRecorder {
	return &NoOpMetricRecorder{}
}

func (r *NoOpMetricRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {}
func (r *NoOpMetricRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution)   {}
func (r *NoOpMetricRecorder) RecordItemRead(ctx context.Context, database dbctx.Identifier)     {}
func (r *NoOpMetricRecorder) RecordChunkCommit(ctx context.Context, database dbctx.Identifier, count int) {
}
func (r *NoOpMetricRecorder) RecordChunkRollback(ctx context.Context, database dbctx.Identifier) {}
func (r *NoOpMetricRecorder) RecordMetadataRace(ctx context.Context, database dbctx.Identifier)  {}
func (r *NoOpMetricRecorder) RecordResourcesProvisioned(ctx context.Context, database dbctx.Identifier) {
}
func (r *NoOpMetricRecorder) RecordResourcesDestroyed(ctx context.Context, database dbctx.Identifier) {
}
func (r *NoOpMetricRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
}

var _ MetricRecorder = (*NoOpMetricRecorder)(nil)

// NoOpTracer is a Tracer that does nothing.
type NoOpTracer struct{}

// NewNoOpTracer creates a new NoOpTracer.
func NewNoOpTracer() Tracer {
	return &NoOpTracer{}
}

func (t *NoOpTracer) StartInvocationSpan(ctx context.Context, invocation model.JobInvocation) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) StartChunkSpan(ctx context.Context, database dbctx.Identifier, chunk int, size int) (context.Context, func()) {
	return ctx, func() {}
}

func (t *NoOpTracer) RecordError(ctx context.Context, module string, err error) {}

func (t *NoOpTracer) RecordEvent(ctx context.Context, name string, attributes map[string]interface{}) {
}

var _ Tracer = (*NoOpTracer)(nil)
