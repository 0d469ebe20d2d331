// Package tracing provides a listener that adds job events to the invocation span.
package tracing

import (
	"context"

	port "github.com/tigerroll/surfin-dualdb/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/metrics"
)

type TracingJobListener struct {
	tracer metrics.Tracer
}

func NewTracingJobListener(tracer metrics.Tracer) port.JobExecutionListener {
	return &TracingJobListener{tracer: tracer}
}

func (l *TracingJobListener) BeforeJob(ctx context.Context, jobExecution *model.JobExecution) {
	l.tracer.RecordEvent(ctx, "job.start", map[string]interface{}{
		"execution.id": jobExecution.ID,
		"job.name":     jobExecution.JobName,
	})
}

func (l *TracingJobListener) AfterJob(ctx context.Context, jobExecution *model.JobExecution) {
	l.tracer.RecordEvent(ctx, "job.end", map[string]interface{}{
		"execution.id": jobExecution.ID,
		"status":       jobExecution.Status.String(),
		"read.count":   jobExecution.ReadCount,
		"write.count":  jobExecution.WriteCount,
	})
}

var _ port.JobExecutionListener = (*TracingJobListener)(nil)
