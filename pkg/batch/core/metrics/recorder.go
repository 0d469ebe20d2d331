package metrics

import (
	"context"
	"time"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
)

// MetricRecorder records metrics of invocations, chunks and database resources.
// Every series carries the target database so Primary and Secondary can be compared.
type MetricRecorder interface {
	// RecordJobStart records the start of a JobExecution.
	RecordJobStart(ctx context.Context, execution *model.JobExecution)
	// RecordJobEnd records the end of a JobExecution (status, duration, counts).
	RecordJobEnd(ctx context.Context, execution *model.JobExecution)
	// RecordItemRead records one record read from the source file.
	RecordItemRead(ctx context.Context, database dbctx.Identifier)
	// RecordChunkCommit records a committed chunk of count records.
	RecordChunkCommit(ctx context.Context, database dbctx.Identifier, count int)
	// RecordChunkRollback records a rolled back chunk.
	RecordChunkRollback(ctx context.Context, database dbctx.Identifier)
	// RecordMetadataRace records an optimistic locking failure on a bookkeeping row.
	RecordMetadataRace(ctx context.Context, database dbctx.Identifier)
	// RecordResourcesProvisioned records a DatabaseResources bundle being created.
	RecordResourcesProvisioned(ctx context.Context, database dbctx.Identifier)
	// RecordResourcesDestroyed records a DatabaseResources bundle being torn down.
	RecordResourcesDestroyed(ctx context.Context, database dbctx.Identifier)
	// RecordDuration records the execution time of a named operation.
	RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string)
}

// Tracer opens spans around invocations and chunks.
type Tracer interface {
	// StartInvocationSpan starts a span for one job invocation.
	StartInvocationSpan(ctx context.Context, invocation model.JobInvocation) (context.Context, func())
	// StartChunkSpan starts a span for one chunk write.
	StartChunkSpan(ctx context.Context, database dbctx.Identifier, chunk int, size int) (context.Context, func())
	// RecordError records an error in the current span.
	RecordError(ctx context.Context, module string, err error)
	// RecordEvent records an event in the current span.
	RecordEvent(ctx context.Context, name string, attributes map[string]interface{})
}
