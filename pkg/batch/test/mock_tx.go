package test

import (
	"context"
	"database/sql"

	"github.com/stretchr/testify/mock"

	tx "github.com/tigerroll/surfin-dualdb/pkg/batch/core/tx"
)

// MockTx is a mock implementation of the tx.Tx interface.
type MockTx struct {
	mock.Mock
}

func (m *MockTx) ExecuteUpdate(ctx context.Context, model interface{}, tableName string, query map[string]interface{}) (int64, error) {
	args := m.Called(ctx, model, tableName, query)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockTx) Create(ctx context.Context, model interface{}) error {
	args := m.Called(ctx, model)
	return args.Error(0)
}

func (m *MockTx) Find(ctx context.Context, dest interface{}, query map[string]interface{}, orderBy string, limit int) error {
	args := m.Called(ctx, dest, query, orderBy, limit)
	return args.Error(0)
}

func (m *MockTx) Count(ctx context.Context, model interface{}, query map[string]interface{}) (int64, error) {
	args := m.Called(ctx, model, query)
	return args.Get(0).(int64), args.Error(1)
}

// Merge records the call only; merged entities are not kept.
func (m *MockTx) Merge(entity interface{}) {
	m.Called(entity)
}

func (m *MockTx) Flush(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockTx) Pending() int {
	args := m.Called()
	return args.Int(0)
}

var _ tx.Tx = (*MockTx)(nil)

// MockTransactionManager is a mock implementation of tx.TransactionManager.
type MockTransactionManager struct {
	mock.Mock
}

func (m *MockTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	args := m.Called(ctx)
	t, _ := args.Get(0).(tx.Tx)
	return t, args.Error(1)
}

func (m *MockTransactionManager) Commit(t tx.Tx) error {
	args := m.Called(t)
	return args.Error(0)
}

func (m *MockTransactionManager) Rollback(t tx.Tx) error {
	args := m.Called(t)
	return args.Error(0)
}

var _ tx.TransactionManager = (*MockTransactionManager)(nil)
