package metrics

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
)

func scrape(t *testing.T, r *PrometheusRecorder) string {
	t.Helper()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestPrometheusRecorder(t *testing.T) {
	r := NewPrometheusRecorder()
	ctx := context.Background()

	r.RecordItemRead(ctx, dbctx.Secondary)
	r.RecordItemRead(ctx, dbctx.Secondary)
	r.RecordChunkCommit(ctx, dbctx.Secondary, 2)
	r.RecordChunkRollback(ctx, dbctx.Primary)
	r.RecordMetadataRace(ctx, dbctx.Primary)
	r.RecordResourcesProvisioned(ctx, dbctx.Primary)
	r.RecordResourcesProvisioned(ctx, dbctx.Secondary)
	r.RecordResourcesDestroyed(ctx, dbctx.Secondary)
	r.RecordDuration(ctx, "step.import", 10*time.Millisecond, map[string]string{"database": "Primary"})

	execution := &model.JobExecution{JobName: "importRecordsJob", Database: dbctx.Primary, Status: model.BatchStatusStarted}
	r.RecordJobStart(ctx, execution)
	execution.MarkAsCompleted()
	r.RecordJobEnd(ctx, execution)

	body := scrape(t, r)
	assert.Contains(t, body, `batch_read_total{database="Secondary"} 2`)
	assert.Contains(t, body, `batch_write_total{database="Secondary"} 2`)
	assert.Contains(t, body, `batch_chunk_commit_total{database="Secondary"} 1`)
	assert.Contains(t, body, `batch_chunk_rollback_total{database="Primary"} 1`)
	assert.Contains(t, body, `batch_metadata_race_total{database="Primary"} 1`)
	assert.Contains(t, body, `batch_resources_open{database="Primary"} 1`)
	assert.Contains(t, body, `batch_resources_open{database="Secondary"} 0`)
	assert.Contains(t, body, `batch_resources_provisioned_total{database="Secondary"} 1`)
	assert.Contains(t, body, `batch_job_status_total{database="Primary",job_name="importRecordsJob",status="COMPLETED"} 1`)
	assert.Contains(t, body, `batch_operation_duration_seconds_count{database="Primary",operation="step.import"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestOTelRecorder(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer provider.Shutdown(context.Background())

	r, err := NewOTelRecorder(provider)
	require.NoError(t, err)
	ctx := context.Background()
	r.RecordChunkCommit(ctx, dbctx.Primary, 5)
	r.RecordChunkCommit(ctx, dbctx.Primary, 3)
	r.RecordResourcesProvisioned(ctx, dbctx.Secondary)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if data, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range data.DataPoints {
					sums[m.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(8), sums["batch.write"])
	assert.Equal(t, int64(2), sums["batch.chunk.commit"])
	assert.Equal(t, int64(1), sums["batch.resources.open"])
}

func TestOpenTelemetryTracer(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr))
	defer tp.Shutdown(context.Background())
	tracer := NewOpenTelemetryTracer(tp)

	inv := model.JobInvocation{Database: dbctx.Secondary, Filename: "users.csv"}
	ctx, endInvocation := tracer.StartInvocationSpan(context.Background(), inv)
	chunkCtx, endChunk := tracer.StartChunkSpan(ctx, dbctx.Secondary, 1, 10)
	tracer.RecordEvent(chunkCtx, "flushed", map[string]interface{}{"rows": 10, "db": "Secondary", "ok": true})
	tracer.RecordError(chunkCtx, "writer", errors.New("insert failed"))
	tracer.RecordError(chunkCtx, "writer", nil)
	endChunk()
	endInvocation()

	spans := sr.Ended()
	require.Len(t, spans, 2)
	chunk, invocation := spans[0], spans[1]
	assert.Equal(t, "batch.chunk", chunk.Name())
	assert.Equal(t, "batch.invocation", invocation.Name())
	assert.Equal(t, invocation.SpanContext().SpanID(), chunk.Parent().SpanID())
	assert.Equal(t, codes.Error, chunk.Status().Code)
	require.Len(t, chunk.Events(), 2)
	assert.Equal(t, "flushed", chunk.Events()[0].Name)
	assert.Equal(t, "exception", chunk.Events()[1].Name)
	assert.Equal(t, codes.Unset, invocation.Status().Code)
}
