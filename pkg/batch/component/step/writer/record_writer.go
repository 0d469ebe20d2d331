// Package writer provides the write stage of the import pipeline and the Parquet export writer.
package writer

import (
	"context"
	"fmt"

	config "github.com/tigerroll/surfin-dualdb/pkg/batch/core/config"
	port "github.com/tigerroll/surfin-dualdb/pkg/batch/core/application/port"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/surfin-dualdb/pkg/batch/core/metrics"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/tx"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/infrastructure/lifecycle"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"
)

const writerModule = "record_writer"

// RecordWriter persists chunks of records into the database the invocation was
// provisioned for. The target is resolved from ctx on every Write, never at construction.
type RecordWriter struct {
	repos    repository.Factory
	policy   config.MetadataLockPolicy
	recorder metrics.MetricRecorder
}

// NewRecordWriter creates a RecordWriter.
func NewRecordWriter(repos repository.Factory, policy config.MetadataLockPolicy, recorder metrics.MetricRecorder) *RecordWriter {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	return &RecordWriter{repos: repos, policy: policy, recorder: recorder}
}

// Policy returns the metadata lock policy in effect.
func (w *RecordWriter) Policy() config.MetadataLockPolicy {
	return w.policy
}

// Write commits items in one transaction, then records the new counts on execution.
//
// A missing lifecycle scope, or an execution context that no longer names the
// provisioned database, is a ConfigurationError and nothing is written. A failed insert
// rolls the chunk back and returns a WriteError. An optimistic locking failure on the
// bookkeeping row is handled according to the metadata lock policy.
func (w *RecordWriter) Write(ctx context.Context, execution *model.JobExecution, items []*model.Record) error {
	res, ok := lifecycle.CurrentResources(ctx)
	if !ok {
		return exception.NewConfigurationError(writerModule, "write attempted without provisioned database resources", nil)
	}
	if current := dbctx.Current(ctx); current != res.Database {
		return exception.NewConfigurationError(writerModule,
			fmt.Sprintf("execution context names %s but resources were provisioned for %s", current, res.Database), nil)
	}
	log := logger.With("db", res.Database)
	if execution != nil {
		log = log.With("execution", execution.ID)
	}
	if len(items) == 0 {
		return nil
	}

	t, err := res.TxManager.Begin(ctx)
	if err != nil {
		return err
	}
	n, err := w.repos.Records(res).MergeAll(tx.NewContext(ctx, t), items)
	if err == nil {
		err = res.TxManager.Commit(t)
		if err != nil {
			err = exception.NewWriteError(writerModule, fmt.Sprintf("commit of %d records on %s failed", len(items), res.Database), err)
		}
	} else if rbErr := res.TxManager.Rollback(t); rbErr != nil {
		log.Warnf("Rollback failed: %v", rbErr)
	}
	if err != nil {
		w.recorder.RecordChunkRollback(ctx, res.Database)
		if execution != nil {
			execution.RollbackCount++
		}
		if !exception.IsKind(err, exception.KindWrite) {
			err = exception.NewWriteError(writerModule, fmt.Sprintf("failed to write %d records to %s", len(items), res.Database), err)
		}
		log.Errorf("Chunk rolled back: %v", err)
		return err
	}

	w.recorder.RecordChunkCommit(ctx, res.Database, n)
	log.Debugf("Chunk of %d records committed.", n)
	if execution == nil {
		return nil
	}
	execution.WriteCount += n
	execution.CommitCount++
	return w.updateBookkeeping(ctx, w.repos.Executions(res), execution, log)
}

// updateBookkeeping stores the counters of execution in its own transaction, after the
// chunk's records are already committed.
func (w *RecordWriter) updateBookkeeping(ctx context.Context, repo repository.ExecutionRepository, execution *model.JobExecution, log logger.Entry) error {
	err := repo.UpdateExecution(ctx, execution)
	if err == nil {
		return nil
	}
	if !exception.IsOptimisticLockingFailure(err) {
		return err
	}

	w.recorder.RecordMetadataRace(ctx, repo.Database())
	if w.policy == config.MetadataLockFailFast {
		log.Errorf("Bookkeeping update lost an optimistic locking race; failing (policy %s): %v", w.policy, err)
		return err
	}

	log.Warnf("Bookkeeping update lost an optimistic locking race; records are committed, continuing (policy %s): %v", w.policy, err)
	if latest, findErr := repo.FindLatestExecution(ctx, execution.InvocationID); findErr == nil && latest != nil && latest.ID == execution.ID {
		execution.Version = latest.Version
	}
	return nil
}

var _ port.ItemWriter[*model.Record] = (*RecordWriter)(nil)
