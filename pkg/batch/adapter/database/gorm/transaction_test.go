package gorm_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	gormadapter "github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
)

func newMockManager(t *testing.T, timeout time.Duration) (*gormadapter.GormTransactionManager, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return gormadapter.NewGormTransactionManager(gdb, dbctx.Primary, timeout), mock
}

func TestCommitFlushesMergedEntitiesInOrder(t *testing.T) {
	m, mock := newMockManager(t, time.Second)
	ctx := context.Background()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `records`").
		WithArgs("JUAN", 30, "juan@example.com", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO `records`").
		WithArgs("ANA", 25, "ana@example.com", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(2, 1))
	mock.ExpectCommit()

	txn, err := m.Begin(ctx)
	require.NoError(t, err)
	txn.Merge(&model.Record{Name: "JUAN", Age: 30, Email: "juan@example.com", ProcessedAt: time.Now()})
	txn.Merge(&model.Record{Name: "ANA", Age: 25, Email: "ana@example.com", ProcessedAt: time.Now()})
	assert.Equal(t, 2, txn.Pending())

	require.NoError(t, m.Commit(txn))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRollbackDiscardsMergedEntities(t *testing.T) {
	m, mock := newMockManager(t, time.Second)

	mock.ExpectBegin()
	mock.ExpectRollback()

	txn, err := m.Begin(context.Background())
	require.NoError(t, err)
	txn.Merge(&model.Record{Name: "JUAN"})

	require.NoError(t, m.Rollback(txn))
	assert.Equal(t, 0, txn.Pending())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitRollsBackWhenFlushFails(t *testing.T) {
	m, mock := newMockManager(t, time.Second)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `records`").WillReturnError(errors.New("constraint violation"))
	mock.ExpectRollback()

	txn, err := m.Begin(context.Background())
	require.NoError(t, err)
	txn.Merge(&model.Record{Name: "JUAN"})

	err = m.Commit(txn)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "constraint violation")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBeginTimesOutWhenPoolIsExhausted(t *testing.T) {
	m, mock := newMockManager(t, 50*time.Millisecond)
	pool, err := gormadapter.DB(m)
	require.NoError(t, err)
	pool.SetMaxOpenConns(1)

	mock.ExpectBegin()
	mock.ExpectRollback()

	first, err := m.Begin(context.Background())
	require.NoError(t, err)

	_, err = m.Begin(context.Background())
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindResourceExhausted))
	assert.True(t, exception.IsTemporary(err))

	require.NoError(t, m.Rollback(first))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteUpdateWithColumnMap(t *testing.T) {
	m, mock := newMockManager(t, time.Second)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `job_execution` SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	txn, err := m.Begin(context.Background())
	require.NoError(t, err)

	n, err := txn.ExecuteUpdate(context.Background(), map[string]interface{}{"status": "COMPLETED"}, "job_execution", map[string]interface{}{"id": "x", "version": 1})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	_, err = txn.ExecuteUpdate(context.Background(), map[string]interface{}{"status": "COMPLETED"}, "", nil)
	assert.Error(t, err)

	require.NoError(t, m.Rollback(txn))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitRejectsForeignTx(t *testing.T) {
	m, _ := newMockManager(t, time.Second)
	assert.Error(t, m.Commit(nil))
	assert.Error(t, m.Rollback(nil))
}
