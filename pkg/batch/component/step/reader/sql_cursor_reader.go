package reader

import (
	"context"
	"database/sql"
	"fmt"

	port "github.com/tigerroll/surfin-dualdb/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// SqlCursorReader reads items from a database cursor, one row per Read.
type SqlCursorReader[T any] struct {
	q      Querier                    // q runs the query, typically a routed *gorm.Connection.
	name   string                     // name identifies the reader in logs and errors.
	query  string                     // query is executed once by Open.
	args   []any                      // args are the arguments of query.
	mapper func(*sql.Rows) (T, error) // mapper scans the current row.

	rows      *sql.Rows
	readCount int
}

// NewSqlCursorReader creates a new instance of SqlCursorReader.
func NewSqlCursorReader[T any](q Querier, name string, query string, args []any, mapper func(*sql.Rows) (T, error)) *SqlCursorReader[T] {
	return &SqlCursorReader[T]{
		q:      q,
		name:   name,
		query:  query,
		args:   args,
		mapper: mapper,
	}
}

// Open executes the query.
func (r *SqlCursorReader[T]) Open(ctx context.Context) error {
	rows, err := r.q.QueryContext(ctx, r.query, r.args...)
	if err != nil {
		return exception.NewBatchErrorf("reader", exception.KindUnknown, "failed to execute query for SqlCursorReader '%s'", r.name, err)
	}
	r.rows = rows
	r.readCount = 0
	logger.Debugf("SqlCursorReader '%s': Query opened: %s", r.name, r.query)
	return nil
}

// Read returns the next row, or port.ErrNoMoreItems once the cursor is exhausted.
func (r *SqlCursorReader[T]) Read(ctx context.Context) (T, error) {
	var item T
	if r.rows == nil {
		return item, exception.NewConfigurationError("reader", fmt.Sprintf("SqlCursorReader '%s': reader not opened or already closed", r.name), nil)
	}

	if !r.rows.Next() {
		if err := r.rows.Err(); err != nil {
			return item, exception.NewBatchErrorf("reader", exception.KindUnknown, "error during row iteration for SqlCursorReader '%s'", r.name, err)
		}
		return item, port.ErrNoMoreItems
	}

	mapped, err := r.mapper(r.rows)
	if err != nil {
		return item, exception.NewBatchErrorf("reader", exception.KindUnknown, "failed to map row for SqlCursorReader '%s'", r.name, err)
	}
	r.readCount++
	return mapped, nil
}

// ReadCount returns the number of rows read since Open.
func (r *SqlCursorReader[T]) ReadCount() int {
	return r.readCount
}

// Close releases the cursor.
func (r *SqlCursorReader[T]) Close(ctx context.Context) error {
	if r.rows == nil {
		return nil
	}
	err := r.rows.Close()
	r.rows = nil
	if err != nil {
		return exception.NewBatchErrorf("reader", exception.KindUnknown, "failed to close rows for SqlCursorReader '%s'", r.name, err)
	}
	logger.Debugf("SqlCursorReader '%s': %d rows read, cursor closed.", r.name, r.readCount)
	return nil
}

// RecordQuery selects every record in id order.
const RecordQuery = "SELECT id, name, age, email, processing_timestamp FROM records ORDER BY id"

// ScanRecord maps a row of RecordQuery.
func ScanRecord(rows *sql.Rows) (model.Record, error) {
	var rec model.Record
	err := rows.Scan(&rec.ID, &rec.Name, &rec.Age, &rec.Email, &rec.ProcessedAt)
	return rec, err
}

// NewRecordCursorReader reads every record through q.
func NewRecordCursorReader(q Querier) *SqlCursorReader[model.Record] {
	return NewSqlCursorReader[model.Record](q, "recordCursorReader", RecordQuery, nil, ScanRecord)
}

var _ port.ItemReader[model.Record] = (*SqlCursorReader[model.Record])(nil)
