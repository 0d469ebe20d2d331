package gorm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"gorm.io/gorm"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/tx"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
)

const txModule = "transaction_manager"

// GormTx implements tx.Tx on a gorm transaction bound to one pooled connection.
type GormTx struct {
	db      *gorm.DB
	conn    *sql.Conn
	pending []interface{}

	mu       sync.Mutex
	released bool
}

// DB returns the gorm handle of the transaction.
func (t *GormTx) DB() *gorm.DB {
	return t.db
}

// Merge implements tx.Tx.
func (t *GormTx) Merge(entity interface{}) {
	t.mu.Lock()
	t.pending = append(t.pending, entity)
	t.mu.Unlock()
}

// Pending implements tx.Tx.
func (t *GormTx) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Flush implements tx.Tx. Entities without a primary key are inserted, the rest updated.
// On failure the remaining entities stay queued.
func (t *GormTx) Flush(ctx context.Context) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	db := t.db.WithContext(ctx)
	for i, entity := range t.pending {
		if err := db.Save(entity).Error; err != nil {
			t.pending = t.pending[i:]
			return i, err
		}
	}
	n := len(t.pending)
	t.pending = nil
	return n, nil
}

// ExecuteUpdate implements tx.TxExecutor. model is either an entity pointer, whose
// non-zero fields are written, or a map[string]interface{} of columns.
func (t *GormTx) ExecuteUpdate(ctx context.Context, model interface{}, tableName string, query map[string]interface{}) (int64, error) {
	db := t.db.WithContext(ctx)
	var result *gorm.DB

	if values, ok := model.(map[string]interface{}); ok {
		if tableName == "" {
			return 0, fmt.Errorf("a table name is required to update a column map")
		}
		result = db.Table(tableName).Where(query).Updates(values)
	} else {
		if tableName != "" {
			db = db.Table(tableName)
		}
		result = db.Model(model).Where(query).Updates(model)
	}

	if result.Error != nil {
		return 0, result.Error
	}
	return result.RowsAffected, nil
}

// Create implements tx.TxExecutor.
func (t *GormTx) Create(ctx context.Context, model interface{}) error {
	return t.db.WithContext(ctx).Create(model).Error
}

// Find implements tx.TxExecutor.
func (t *GormTx) Find(ctx context.Context, dest interface{}, query map[string]interface{}, orderBy string, limit int) error {
	db := t.db.WithContext(ctx)
	if len(query) > 0 {
		db = db.Where(query)
	}
	if orderBy != "" {
		db = db.Order(orderBy)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}
	return db.Find(dest).Error
}

// Count implements tx.TxExecutor.
func (t *GormTx) Count(ctx context.Context, model interface{}, query map[string]interface{}) (int64, error) {
	var n int64
	db := t.db.WithContext(ctx).Model(model)
	if len(query) > 0 {
		db = db.Where(query)
	}
	err := db.Count(&n).Error
	return n, err
}

// release returns the connection to the pool exactly once.
func (t *GormTx) release() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.released {
		return
	}
	t.released = true
	t.pending = nil
	if t.conn != nil {
		_ = t.conn.Close()
	}
}

// GormTransactionManager implements tx.TransactionManager over one persistence context.
// Every transaction runs on a connection acquired explicitly from the pool, so there is
// no implicit autocommit path for writes.
type GormTransactionManager struct {
	db             *gorm.DB
	database       dbctx.Identifier
	acquireTimeout time.Duration
}

// NewGormTransactionManager creates a transaction manager over db.
func NewGormTransactionManager(db *gorm.DB, database dbctx.Identifier, acquireTimeout time.Duration) *GormTransactionManager {
	return &GormTransactionManager{db: db, database: database, acquireTimeout: acquireTimeout}
}

// Begin implements tx.TransactionManager.
func (m *GormTransactionManager) Begin(ctx context.Context, opts ...*sql.TxOptions) (tx.Tx, error) {
	pool, err := m.db.DB()
	if err != nil {
		return nil, exception.NewConfigurationError(txModule, "persistence context has no pool", err)
	}

	conn, err := acquire(ctx, pool, m.acquireTimeout, m.database)
	if err != nil {
		return nil, err
	}

	var txOpts *sql.TxOptions
	if len(opts) > 0 && opts[0] != nil {
		txOpts = opts[0]
	}

	session := m.db.Session(&gorm.Session{NewDB: true, Context: ctx})
	session.Statement.ConnPool = conn
	gormTx := session.Begin(txOpts)
	if gormTx.Error != nil {
		_ = conn.Close()
		return nil, exception.NewWriteError(txModule, fmt.Sprintf("failed to begin transaction on %s", m.database), gormTx.Error)
	}
	return &GormTx{db: gormTx, conn: conn}, nil
}

// Commit implements tx.TransactionManager. Unflushed entities are flushed first;
// a flush failure rolls the transaction back.
func (m *GormTransactionManager) Commit(t tx.Tx) error {
	gt, ok := t.(*GormTx)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *GormTx, got %T", t)
	}
	defer gt.release()

	if gt.Pending() > 0 {
		if _, err := gt.Flush(gt.db.Statement.Context); err != nil {
			_ = gt.db.Rollback().Error
			return err
		}
	}
	return gt.db.Commit().Error
}

// Rollback implements tx.TransactionManager.
func (m *GormTransactionManager) Rollback(t tx.Tx) error {
	gt, ok := t.(*GormTx)
	if !ok {
		return fmt.Errorf("invalid transaction type: expected *GormTx, got %T", t)
	}
	defer gt.release()
	err := gt.db.Rollback().Error
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}

// acquire takes a connection from pool, waiting at most timeout.
func acquire(ctx context.Context, pool *sql.DB, timeout time.Duration, id dbctx.Identifier) (*sql.Conn, error) {
	acquireCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		acquireCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	conn, err := pool.Conn(acquireCtx)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, exception.NewResourceExhaustedError(txModule,
				fmt.Sprintf("no connection to %s available within %s", id, timeout), err)
		}
		return nil, exception.NewProvisioningError(txModule, fmt.Sprintf("failed to acquire connection to %s", id), err)
	}
	return conn, nil
}

var _ tx.TransactionManager = (*GormTransactionManager)(nil)
