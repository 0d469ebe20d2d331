// Package usecase implements the entry points of surfin-dualdb: the import orchestrator,
// the record queries and the Parquet export.
package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/fx"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/storage/local"
	port "github.com/tigerroll/surfin-dualdb/pkg/batch/core/application/port"
	config "github.com/tigerroll/surfin-dualdb/pkg/batch/core/config"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/surfin-dualdb/pkg/batch/core/metrics"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/support/incrementer"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/engine/step/factory"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/infrastructure/lifecycle"
	exception "github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"
)

const orchestratorModule = "orchestrator"

const (
	successPrefix = "✓ "
	failurePrefix = "✗ ERROR: "
)

// JobResult describes a completed import.
type JobResult struct {
	Filename     string           `json:"filename"`
	Database     dbctx.Identifier `json:"database"`
	InvocationID string           `json:"invocation_id"`
	ExecutionID  string           `json:"execution_id"`
	ReadCount    int              `json:"read_count"`
	WriteCount   int              `json:"write_count"`
}

// BatchJobService runs the import pipeline for one file against one database.
type BatchJobService struct {
	strictDatabase bool
	validator      *local.SourceValidator
	ids            incrementer.InvocationIDGenerator
	lifecycle      *lifecycle.Manager
	launcher       port.JobLauncher
	steps          factory.StepFactory
	tracer         metrics.Tracer
	recorder       metrics.MetricRecorder
	now            func() time.Time
}

// BatchJobServiceParams are the dependencies of NewBatchJobService.
type BatchJobServiceParams struct {
	fx.In
	Cfg       *config.Config
	IDs       incrementer.InvocationIDGenerator
	Lifecycle *lifecycle.Manager
	Launcher  port.JobLauncher
	Steps     factory.StepFactory
	Tracer    metrics.Tracer
	Recorder  metrics.MetricRecorder
}

// NewBatchJobService creates a new BatchJobService.
func NewBatchJobService(p BatchJobServiceParams) *BatchJobService {
	return &BatchJobService{
		strictDatabase: p.Cfg.Surfin.Batch.StrictDatabase,
		validator:      local.NewSourceValidator(p.Cfg.Surfin.Batch.DataDir),
		ids:            p.IDs,
		lifecycle:      p.Lifecycle,
		launcher:       p.Launcher,
		steps:          p.Steps,
		tracer:         p.Tracer,
		recorder:       p.Recorder,
		now:            time.Now,
	}
}

// RunBatchJob imports filename into database.
//
// The database is coerced into the closed set (unknown values select Primary) unless
// strict mode is on. The invocation gets its own execution context; when ctx already
// carries one (a request scope) it is set to the same identifier. The context is cleared
// when validation fails and left set otherwise.
//
// Resources are provisioned only after the file is validated and are always torn down
// before RunBatchJob returns.
func (s *BatchJobService) RunBatchJob(ctx context.Context, filename, database string) (*JobResult, error) {
	id, err := s.resolveDatabase(database)
	if err != nil {
		return nil, err
	}

	requestHolder, hasRequestHolder := dbctx.HolderFrom(ctx)
	holder := dbctx.NewHolder()
	holder.SetCurrent(id)
	if hasRequestHolder {
		requestHolder.SetCurrent(id)
	}
	ctx = dbctx.WithHolder(ctx, holder)

	sourcePath, err := s.validator.Resolve(filename)
	if err != nil {
		holder.Clear()
		if hasRequestHolder {
			requestHolder.Clear()
		}
		logger.With("db", id).Warnf("Rejected file '%s': %v", filename, err)
		return nil, err
	}

	inv := s.ids.Next(id, filename, sourcePath)
	log := logger.With("invocation", inv.Key()).With("db", id)
	ctx, endSpan := s.tracer.StartInvocationSpan(ctx, inv)
	defer endSpan()

	launchedAt := s.now()
	log.Infof("Running import of '%s'.", filename)

	var execution *model.JobExecution
	err = s.lifecycle.Run(ctx, inv, func(ctx context.Context, scope *lifecycle.Scope) error {
		var launchErr error
		execution, launchErr = s.launcher.Launch(ctx, inv, s.steps.CreateImportStep(sourcePath))
		return launchErr
	})
	s.recorder.RecordDuration(ctx, "invocation", s.now().Sub(launchedAt), map[string]string{"database": id.String()})
	if err != nil {
		s.tracer.RecordError(ctx, orchestratorModule, err)
		log.Errorf("Import of '%s' failed: %v", filename, err)
		return nil, classify(err)
	}
	if execution == nil {
		return nil, exception.NewConfigurationError(orchestratorModule, "launcher returned no execution", nil)
	}

	if isStale(execution, launchedAt) {
		err := exception.NewUniquenessViolation(orchestratorModule,
			fmt.Sprintf("retried a stale result: invocation %s returned execution %s completed at %s",
				inv.Key(), execution.ID, execution.EndTime.Format(time.RFC3339Nano)))
		s.tracer.RecordError(ctx, orchestratorModule, err)
		log.Errorf("%v", err)
		return nil, err
	}

	log.Infof("Import of '%s' completed: %d read, %d written.", filename, execution.ReadCount, execution.WriteCount)
	return &JobResult{
		Filename:     filename,
		Database:     id,
		InvocationID: inv.Key(),
		ExecutionID:  execution.ID,
		ReadCount:    execution.ReadCount,
		WriteCount:   execution.WriteCount,
	}, nil
}

func (s *BatchJobService) resolveDatabase(database string) (dbctx.Identifier, error) {
	if !s.strictDatabase {
		return dbctx.Coerce(database), nil
	}
	id, err := dbctx.Parse(database)
	if err != nil {
		return "", exception.NewValidationError(orchestratorModule, err.Error())
	}
	return id, nil
}

// isStale reports whether execution finished before this launch began, which means the
// launcher handed back a prior run instead of executing.
func isStale(execution *model.JobExecution, launchedAt time.Time) bool {
	return execution.EndTime != nil && execution.StartTime.Before(launchedAt)
}

// classify leaves classified errors alone and reports anything else as a write failure.
func classify(err error) error {
	if exception.IsBatchError(err) {
		return err
	}
	return exception.NewWriteError(orchestratorModule, "import failed", err)
}

// Describe renders the outcome of RunBatchJob for humans. Success and failure messages
// carry distinct prefixes.
func Describe(result *JobResult, err error) string {
	if err != nil {
		return fmt.Sprintf("%s[%s] %s", failurePrefix, exception.KindOf(err), exception.ExtractErrorMessage(err))
	}
	if result == nil {
		return failurePrefix + "no result"
	}
	return fmt.Sprintf("%sFile '%s' imported into %s: %d records read, %d written (invocation %s).",
		successPrefix, result.Filename, result.Database, result.ReadCount, result.WriteCount, result.InvocationID)
}
