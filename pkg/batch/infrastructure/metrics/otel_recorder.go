package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/surfin-dualdb/pkg/batch/core/metrics"
)

// OTelRecorder is an OpenTelemetry metrics implementation of metrics.MetricRecorder.
// It exports the same series as PrometheusRecorder through an OTLP meter provider.
type OTelRecorder struct {
	jobDuration       metric.Float64Histogram
	jobStatus         metric.Int64Counter
	readCount         metric.Int64Counter
	writeCount        metric.Int64Counter
	commitCount       metric.Int64Counter
	rollbackCount     metric.Int64Counter
	metadataRaceCount metric.Int64Counter
	openResources     metric.Int64UpDownCounter
	operationDuration metric.Float64Histogram
}

// NewOTelRecorder creates the instruments on provider.
func NewOTelRecorder(provider metric.MeterProvider) (*OTelRecorder, error) {
	meter := provider.Meter(instrumentationName)
	r := &OTelRecorder{}
	var err error

	if r.jobDuration, err = meter.Float64Histogram("batch.job.duration",
		metric.WithDescription("Duration of batch job executions."), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("failed to create batch.job.duration: %w", err)
	}
	if r.jobStatus, err = meter.Int64Counter("batch.job.status",
		metric.WithDescription("Batch job executions by status.")); err != nil {
		return nil, fmt.Errorf("failed to create batch.job.status: %w", err)
	}
	if r.readCount, err = meter.Int64Counter("batch.read",
		metric.WithDescription("Records read from source files.")); err != nil {
		return nil, fmt.Errorf("failed to create batch.read: %w", err)
	}
	if r.writeCount, err = meter.Int64Counter("batch.write",
		metric.WithDescription("Records written.")); err != nil {
		return nil, fmt.Errorf("failed to create batch.write: %w", err)
	}
	if r.commitCount, err = meter.Int64Counter("batch.chunk.commit",
		metric.WithDescription("Chunk commits.")); err != nil {
		return nil, fmt.Errorf("failed to create batch.chunk.commit: %w", err)
	}
	if r.rollbackCount, err = meter.Int64Counter("batch.chunk.rollback",
		metric.WithDescription("Chunk rollbacks.")); err != nil {
		return nil, fmt.Errorf("failed to create batch.chunk.rollback: %w", err)
	}
	if r.metadataRaceCount, err = meter.Int64Counter("batch.metadata.race",
		metric.WithDescription("Optimistic locking failures on bookkeeping rows.")); err != nil {
		return nil, fmt.Errorf("failed to create batch.metadata.race: %w", err)
	}
	if r.openResources, err = meter.Int64UpDownCounter("batch.resources.open",
		metric.WithDescription("Database resource bundles currently provisioned.")); err != nil {
		return nil, fmt.Errorf("failed to create batch.resources.open: %w", err)
	}
	if r.operationDuration, err = meter.Float64Histogram("batch.operation.duration",
		metric.WithDescription("Duration of named batch operations."), metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("failed to create batch.operation.duration: %w", err)
	}
	return r, nil
}

func dbAttr(database dbctx.Identifier) metric.MeasurementOption {
	return metric.WithAttributes(attribute.String("database", database.String()))
}

func (r *OTelRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	r.jobStatus.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_name", execution.JobName),
		attribute.String("database", execution.Database.String()),
		attribute.String("status", execution.Status.String()),
	))
}

func (r *OTelRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	if execution.EndTime == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("job_name", execution.JobName),
		attribute.String("database", execution.Database.String()),
		attribute.String("status", execution.Status.String()),
	)
	r.jobStatus.Add(ctx, 1, attrs)
	r.jobDuration.Record(ctx, execution.Duration().Seconds(), attrs)
}

func (r *OTelRecorder) RecordItemRead(ctx context.Context, database dbctx.Identifier) {
	r.readCount.Add(ctx, 1, dbAttr(database))
}

func (r *OTelRecorder) RecordChunkCommit(ctx context.Context, database dbctx.Identifier, count int) {
	r.commitCount.Add(ctx, 1, dbAttr(database))
	r.writeCount.Add(ctx, int64(count), dbAttr(database))
}

func (r *OTelRecorder) RecordChunkRollback(ctx context.Context, database dbctx.Identifier) {
	r.rollbackCount.Add(ctx, 1, dbAttr(database))
}

func (r *OTelRecorder) RecordMetadataRace(ctx context.Context, database dbctx.Identifier) {
	r.metadataRaceCount.Add(ctx, 1, dbAttr(database))
}

func (r *OTelRecorder) RecordResourcesProvisioned(ctx context.Context, database dbctx.Identifier) {
	r.openResources.Add(ctx, 1, dbAttr(database))
}

func (r *OTelRecorder) RecordResourcesDestroyed(ctx context.Context, database dbctx.Identifier) {
	r.openResources.Add(ctx, -1, dbAttr(database))
}

func (r *OTelRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	attrs := make([]attribute.KeyValue, 0, len(tags)+1)
	attrs = append(attrs, attribute.String("operation", name))
	for k, v := range tags {
		attrs = append(attrs, attribute.String(k, v))
	}
	r.operationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

var _ metrics.MetricRecorder = (*OTelRecorder)(nil)
