package sql

import (
	"context"
	"fmt"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/repository"
	tx "github.com/tigerroll/surfin-dualdb/pkg/batch/core/tx"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
)

// SQLExecutionRepository implements repository.ExecutionRepository on the bookkeeping
// tables of one database.
type SQLExecutionRepository struct {
	res *database.Resources
}

// NewSQLExecutionRepository binds a repository to res.
func NewSQLExecutionRepository(res *database.Resources) *SQLExecutionRepository {
	return &SQLExecutionRepository{res: res}
}

func (r *SQLExecutionRepository) Database() dbctx.Identifier {
	return r.res.Database
}

func (r *SQLExecutionRepository) SaveInvocation(ctx context.Context, inv model.JobInvocation) error {
	const op = "SQLExecutionRepository.SaveInvocation"
	entity := fromDomainJobInvocation(inv)
	err := inTx(ctx, r.res, nil, func(executor tx.TxExecutor) error {
		return executor.Create(ctx, entity)
	})
	if err != nil {
		return exception.NewWriteError(op, fmt.Sprintf("failed to save invocation %s", entity.ID), err)
	}
	return nil
}

func (r *SQLExecutionRepository) SaveExecution(ctx context.Context, execution *model.JobExecution) error {
	const op = "SQLExecutionRepository.SaveExecution"
	execution.Version = 0
	entity := fromDomainJobExecution(execution)
	err := inTx(ctx, r.res, nil, func(executor tx.TxExecutor) error {
		return executor.Create(ctx, entity)
	})
	if err != nil {
		return exception.NewWriteError(op, fmt.Sprintf("failed to save execution %s", execution.ID), err)
	}
	return nil
}

func (r *SQLExecutionRepository) UpdateExecution(ctx context.Context, execution *model.JobExecution) error {
	const op = "SQLExecutionRepository.UpdateExecution"
	originalVersion := execution.Version
	columns := executionColumns(execution, originalVersion+1)

	var rowsAffected int64
	err := inTx(ctx, r.res, nil, func(executor tx.TxExecutor) error {
		var err error
		rowsAffected, err = executor.ExecuteUpdate(ctx, columns, JobExecutionEntity{}.TableName(),
			map[string]interface{}{"id": execution.ID, "version": originalVersion})
		if err == nil && rowsAffected == 0 {
			return exception.NewOptimisticLockingFailureException(op,
				fmt.Sprintf("execution %s with version %d not found for update", execution.ID, originalVersion), nil)
		}
		return err
	})
	if err != nil {
		if exception.IsOptimisticLockingFailure(err) {
			return err
		}
		return exception.NewWriteError(op, fmt.Sprintf("failed to update execution %s", execution.ID), err)
	}
	execution.Version = originalVersion + 1
	return nil
}

func (r *SQLExecutionRepository) FindLatestExecution(ctx context.Context, invocationKey string) (*model.JobExecution, error) {
	const op = "SQLExecutionRepository.FindLatestExecution"
	var entities []JobExecutionEntity
	err := inTx(ctx, r.res, readOnly, func(executor tx.TxExecutor) error {
		return executor.Find(ctx, &entities, map[string]interface{}{"invocation_id": invocationKey}, "create_time desc", 1)
	})
	if err != nil {
		return nil, exception.NewWriteError(op, fmt.Sprintf("failed to find executions of %s", invocationKey), err)
	}
	if len(entities) == 0 {
		return nil, nil
	}
	return toDomainJobExecution(&entities[0]), nil
}

var _ repository.ExecutionRepository = (*SQLExecutionRepository)(nil)
