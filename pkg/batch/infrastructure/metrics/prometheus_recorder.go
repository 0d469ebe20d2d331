package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/surfin-dualdb/pkg/batch/core/metrics"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"
)

// PrometheusRecorder is a Prometheus implementation of metrics.MetricRecorder.
type PrometheusRecorder struct {
	registry *prometheus.Registry

	jobDurationSeconds *prometheus.HistogramVec
	jobStatusCounter   *prometheus.CounterVec
	readCount          *prometheus.CounterVec
	writeCount         *prometheus.CounterVec
	commitCount        *prometheus.CounterVec
	rollbackCount      *prometheus.CounterVec
	metadataRaceCount  *prometheus.CounterVec
	provisionedCount   *prometheus.CounterVec
	openResources      *prometheus.GaugeVec
	operationDuration  *prometheus.HistogramVec
}

// NewPrometheusRecorder creates a recorder with its own registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	r := &PrometheusRecorder{
		registry: registry,
		jobDurationSeconds: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_job_duration_seconds",
			Help:    "Duration of batch job executions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job_name", "database", "status"}),
		jobStatusCounter: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_job_status_total",
			Help: "Total number of batch job executions by status.",
		}, []string{"job_name", "database", "status"}),
		readCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_read_total",
			Help: "Total records read from source files.",
		}, []string{"database"}),
		writeCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_write_total",
			Help: "Total records written.",
		}, []string{"database"}),
		commitCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_chunk_commit_total",
			Help: "Total chunk commits.",
		}, []string{"database"}),
		rollbackCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_chunk_rollback_total",
			Help: "Total chunk rollbacks.",
		}, []string{"database"}),
		metadataRaceCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_metadata_race_total",
			Help: "Optimistic locking failures on bookkeeping rows.",
		}, []string{"database"}),
		provisionedCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "batch_resources_provisioned_total",
			Help: "Database resource bundles created for invocations.",
		}, []string{"database"}),
		openResources: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "batch_resources_open",
			Help: "Database resource bundles currently provisioned.",
		}, []string{"database"}),
		operationDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "batch_operation_duration_seconds",
			Help:    "Duration of named batch operations.",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation", "database"}),
	}

	registry.MustRegister(
		r.jobDurationSeconds,
		r.jobStatusCounter,
		r.readCount,
		r.writeCount,
		r.commitCount,
		r.rollbackCount,
		r.metadataRaceCount,
		r.provisionedCount,
		r.openResources,
		r.operationDuration,
	)
	return r
}

// GetRegistry returns the Prometheus registry.
func (r *PrometheusRecorder) GetRegistry() *prometheus.Registry {
	return r.registry
}

// Handler returns the scrape handler of the registry.
func (r *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}

// RecordJobStart records the start of a JobExecution.
func (r *PrometheusRecorder) RecordJobStart(ctx context.Context, execution *model.JobExecution) {
	r.jobStatusCounter.WithLabelValues(execution.JobName, execution.Database.String(), execution.Status.String()).Inc()
	logger.Debugf("Metrics: Job '%s' started on %s.", execution.JobName, execution.Database)
}

// RecordJobEnd records the end of a JobExecution.
func (r *PrometheusRecorder) RecordJobEnd(ctx context.Context, execution *model.JobExecution) {
	if execution.EndTime == nil {
		return
	}
	duration := execution.Duration().Seconds()
	db := execution.Database.String()
	r.jobStatusCounter.WithLabelValues(execution.JobName, db, execution.Status.String()).Inc()
	r.jobDurationSeconds.WithLabelValues(execution.JobName, db, execution.Status.String()).Observe(duration)
	logger.Debugf("Metrics: Job '%s' ended on %s. Duration: %.3fs", execution.JobName, db, duration)
}

// RecordItemRead records one record read.
func (r *PrometheusRecorder) RecordItemRead(ctx context.Context, database dbctx.Identifier) {
	r.readCount.WithLabelValues(database.String()).Inc()
}

// RecordChunkCommit records a committed chunk.
func (r *PrometheusRecorder) RecordChunkCommit(ctx context.Context, database dbctx.Identifier, count int) {
	r.commitCount.WithLabelValues(database.String()).Inc()
	r.writeCount.WithLabelValues(database.String()).Add(float64(count))
}

// RecordChunkRollback records a rolled back chunk.
func (r *PrometheusRecorder) RecordChunkRollback(ctx context.Context, database dbctx.Identifier) {
	r.rollbackCount.WithLabelValues(database.String()).Inc()
}

// RecordMetadataRace records an optimistic locking failure.
func (r *PrometheusRecorder) RecordMetadataRace(ctx context.Context, database dbctx.Identifier) {
	r.metadataRaceCount.WithLabelValues(database.String()).Inc()
}

// RecordResourcesProvisioned records a bundle being created.
func (r *PrometheusRecorder) RecordResourcesProvisioned(ctx context.Context, database dbctx.Identifier) {
	r.provisionedCount.WithLabelValues(database.String()).Inc()
	r.openResources.WithLabelValues(database.String()).Inc()
}

// RecordResourcesDestroyed records a bundle being torn down.
func (r *PrometheusRecorder) RecordResourcesDestroyed(ctx context.Context, database dbctx.Identifier) {
	r.openResources.WithLabelValues(database.String()).Dec()
}

// RecordDuration records the execution time of a named operation.
// The "database" tag is used as label; other tags are ignored.
func (r *PrometheusRecorder) RecordDuration(ctx context.Context, name string, duration time.Duration, tags map[string]string) {
	r.operationDuration.WithLabelValues(name, tags["database"]).Observe(duration.Seconds())
}

var _ metrics.MetricRecorder = (*PrometheusRecorder)(nil)
