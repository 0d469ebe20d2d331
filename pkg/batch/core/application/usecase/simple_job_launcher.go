package usecase

import (
	"context"
	"fmt"

	"go.uber.org/fx"

	port "github.com/tigerroll/surfin-dualdb/pkg/batch/core/application/port"
	config "github.com/tigerroll/surfin-dualdb/pkg/batch/core/config"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/repository"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/infrastructure/lifecycle"
	exception "github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"
)

const launcherModule = "job_launcher"

// SimpleJobLauncher runs a step synchronously, bookkeeping the run in the database the
// invocation was provisioned for.
//
// Like any job repository keyed by instance identity, it returns an already completed
// execution instead of running again when the invocation key was seen before.
type SimpleJobLauncher struct {
	jobName   string
	repos     repository.Factory
	listeners []port.JobExecutionListener
}

// LauncherParams are the dependencies of NewSimpleJobLauncher.
type LauncherParams struct {
	fx.In
	Cfg          *config.Config
	Repositories repository.Factory
	Listeners    []port.JobExecutionListener `group:"job_listeners"`
}

// NewSimpleJobLauncher creates a new SimpleJobLauncher.
func NewSimpleJobLauncher(p LauncherParams) *SimpleJobLauncher {
	return &SimpleJobLauncher{
		jobName:   p.Cfg.Surfin.Batch.JobName,
		repos:     p.Repositories,
		listeners: p.Listeners,
	}
}

// Launch implements port.JobLauncher. ctx must carry the provisioned lifecycle scope of inv.
//
// The returned error is the step's error when the run failed; the execution is still
// returned, marked FAILED.
func (l *SimpleJobLauncher) Launch(ctx context.Context, inv model.JobInvocation, step port.Step) (*model.JobExecution, error) {
	res, ok := lifecycle.CurrentResources(ctx)
	if !ok {
		return nil, exception.NewConfigurationError(launcherModule, "launch attempted without provisioned database resources", nil)
	}
	if res.Database != inv.Database {
		return nil, exception.NewConfigurationError(launcherModule,
			fmt.Sprintf("invocation targets %s but resources were provisioned for %s", inv.Database, res.Database), nil)
	}
	log := logger.With("invocation", inv.Key()).With("db", inv.Database)
	repo := l.repos.Executions(res)

	existing, err := repo.FindLatestExecution(ctx, inv.Key())
	if err != nil {
		return nil, err
	}
	switch {
	case existing == nil:
		if err := repo.SaveInvocation(ctx, inv); err != nil {
			return nil, err
		}
	case existing.Status == model.BatchStatusCompleted:
		log.Warnf("Invocation already completed by execution %s; returning it without running.", existing.ID)
		return existing, nil
	case !existing.Status.IsFinished():
		return nil, exception.NewUniquenessViolation(launcherModule,
			fmt.Sprintf("execution %s of invocation %s is still %s", existing.ID, inv.Key(), existing.Status))
	default:
		log.Infof("Previous execution %s ended %s; starting a new execution.", existing.ID, existing.Status)
	}

	execution := model.NewJobExecution(l.jobName, inv)
	if err := repo.SaveExecution(ctx, execution); err != nil {
		return nil, err
	}
	execution.MarkAsStarted()
	if err := repo.UpdateExecution(ctx, execution); err != nil {
		return nil, err
	}
	log.Infof("Launching step '%s' (execution %s).", step.Name(), execution.ID)

	for _, listener := range l.listeners {
		listener.BeforeJob(ctx, execution)
	}
	stepErr := step.Execute(port.WithJobExecution(ctx, execution), execution)
	if stepErr != nil {
		execution.MarkAsFailed(stepErr)
	} else {
		execution.MarkAsCompleted()
	}
	if err := l.finish(ctx, repo, execution); err != nil {
		if stepErr == nil {
			return execution, err
		}
		log.Errorf("Failed to record the failure of execution %s: %v", execution.ID, err)
	}
	for _, listener := range l.listeners {
		listener.AfterJob(ctx, execution)
	}
	return execution, stepErr
}

// finish stores the final state. A stale version is refreshed and the update retried once.
func (l *SimpleJobLauncher) finish(ctx context.Context, repo repository.ExecutionRepository, execution *model.JobExecution) error {
	err := repo.UpdateExecution(ctx, execution)
	if err == nil || !exception.IsOptimisticLockingFailure(err) {
		return err
	}
	latest, findErr := repo.FindLatestExecution(ctx, execution.InvocationID)
	if findErr != nil || latest == nil || latest.ID != execution.ID {
		return err
	}
	logger.Warnf("Final update of execution %s raced (version %d, stored %d); retrying.", execution.ID, execution.Version, latest.Version)
	execution.Version = latest.Version
	return repo.UpdateExecution(ctx, execution)
}

var _ port.JobLauncher = (*SimpleJobLauncher)(nil)
