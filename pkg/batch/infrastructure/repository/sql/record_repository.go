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

// SQLRecordRepository implements repository.RecordRepository on the records table of one database.
type SQLRecordRepository struct {
	res *database.Resources
}

// NewSQLRecordRepository binds a repository to res.
func NewSQLRecordRepository(res *database.Resources) *SQLRecordRepository {
	return &SQLRecordRepository{res: res}
}

func (r *SQLRecordRepository) Database() dbctx.Identifier {
	return r.res.Database
}

// MergeAll merges records into the transaction carried by ctx and flushes them in order.
func (r *SQLRecordRepository) MergeAll(ctx context.Context, records []*model.Record) (int, error) {
	const op = "SQLRecordRepository.MergeAll"
	t, ok := tx.FromContext(ctx)
	if !ok {
		return 0, exception.NewConfigurationError(op, "records can only be merged inside a transaction", nil)
	}
	for _, rec := range records {
		t.Merge(rec)
	}
	n, err := t.Flush(ctx)
	if err != nil {
		return n, exception.NewWriteError(op, fmt.Sprintf("failed to write records to %s", r.res.Database), err)
	}
	return n, nil
}

func (r *SQLRecordRepository) FindAll(ctx context.Context) ([]model.Record, error) {
	records := []model.Record{}
	err := inTx(ctx, r.res, readOnly, func(executor tx.TxExecutor) error {
		return executor.Find(ctx, &records, nil, "id asc", 0)
	})
	if err != nil {
		return nil, exception.NewWriteError("SQLRecordRepository.FindAll", "failed to list records", err)
	}
	return records, nil
}

func (r *SQLRecordRepository) FindByID(ctx context.Context, id uint64) (*model.Record, error) {
	var records []model.Record
	err := inTx(ctx, r.res, readOnly, func(executor tx.TxExecutor) error {
		return executor.Find(ctx, &records, map[string]interface{}{"id": id}, "", 1)
	})
	if err != nil {
		return nil, exception.NewWriteError("SQLRecordRepository.FindByID", fmt.Sprintf("failed to find record %d", id), err)
	}
	if len(records) == 0 {
		return nil, nil
	}
	return &records[0], nil
}

func (r *SQLRecordRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := inTx(ctx, r.res, readOnly, func(executor tx.TxExecutor) error {
		var err error
		n, err = executor.Count(ctx, &model.Record{}, nil)
		return err
	})
	if err != nil {
		return 0, exception.NewWriteError("SQLRecordRepository.Count", "failed to count records", err)
	}
	return n, nil
}

var _ repository.RecordRepository = (*SQLRecordRepository)(nil)
