// Package repository defines the persistence ports of surfin-dualdb.
// Implementations are bound to one database's resources, so a repository value can only
// ever read or write the database it was created for.
package repository

import (
	"context"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
)

// ExecutionRepository persists orchestration bookkeeping: invocations and their executions.
type ExecutionRepository interface {
	// Database returns the identifier of the database this repository is bound to.
	Database() dbctx.Identifier

	// SaveInvocation records a new invocation.
	SaveInvocation(ctx context.Context, inv model.JobInvocation) error

	// SaveExecution inserts a new execution row with version 0.
	SaveExecution(ctx context.Context, execution *model.JobExecution) error

	// UpdateExecution writes execution if its stored version still equals execution.Version,
	// then increments execution.Version. A stale version yields an optimistic locking failure.
	UpdateExecution(ctx context.Context, execution *model.JobExecution) error

	// FindLatestExecution returns the most recent execution of an invocation, or nil.
	FindLatestExecution(ctx context.Context, invocationKey string) (*model.JobExecution, error)
}

// RecordRepository persists and queries transformed records.
type RecordRepository interface {
	// Database returns the identifier of the database this repository is bound to.
	Database() dbctx.Identifier

	// MergeAll queues records on the transaction carried by ctx and flushes them in order.
	// It fails when ctx carries no transaction.
	MergeAll(ctx context.Context, records []*model.Record) (int, error)

	// FindAll returns every record ordered by id.
	FindAll(ctx context.Context) ([]model.Record, error)

	// FindByID returns the record with the given id, or nil when absent.
	FindByID(ctx context.Context, id uint64) (*model.Record, error)

	// Count returns the number of stored records.
	Count(ctx context.Context) (int64, error)
}

// Factory binds repositories to one database's resources.
type Factory interface {
	Executions(res *database.Resources) ExecutionRepository
	Records(res *database.Resources) RecordRepository
}
