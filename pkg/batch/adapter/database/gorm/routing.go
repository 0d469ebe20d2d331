package gorm

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/tx"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"
)

const routingModule = "routing_datasource"

// PoolRegistry holds one long-lived Resources bundle per identifier for request-scoped
// reads. Bundles are opened on first use and closed by Close.
// Invocation writes never use the registry; they get their own bundle from the lifecycle manager.
//
// Opening a bundle happens outside mu, so a slow or unreachable database never delays
// lookups of the other one. Concurrent opens of the same identifier share one attempt.
type PoolRegistry struct {
	factory database.ConnectionFactory

	mu        sync.RWMutex
	resources map[dbctx.Identifier]*database.Resources
	opening   singleflight.Group
}

// NewPoolRegistry creates an empty registry backed by factory.
func NewPoolRegistry(factory database.ConnectionFactory) *PoolRegistry {
	return &PoolRegistry{
		factory:   factory,
		resources: make(map[dbctx.Identifier]*database.Resources),
	}
}

// Get returns the bundle of id, opening it on first use.
// Identifiers outside the closed set are a ConfigurationError.
func (r *PoolRegistry) Get(ctx context.Context, id dbctx.Identifier) (*database.Resources, error) {
	if !id.Valid() {
		return nil, exception.NewConfigurationError(routingModule, fmt.Sprintf("no pool registered for identifier %q", string(id)), nil)
	}

	if res, ok := r.lookup(id); ok {
		return res, nil
	}

	v, err, _ := r.opening.Do(string(id), func() (interface{}, error) {
		if res, ok := r.lookup(id); ok {
			return res, nil
		}
		res, err := r.open(ctx, id)
		if err != nil {
			return nil, err
		}
		r.mu.Lock()
		r.resources[id] = res
		r.mu.Unlock()
		return res, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*database.Resources), nil
}

func (r *PoolRegistry) lookup(id dbctx.Identifier) (*database.Resources, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res, ok := r.resources[id]
	return res, ok
}

// open provisions a bundle for id. Failures are not cached; the next Get retries.
func (r *PoolRegistry) open(ctx context.Context, id dbctx.Identifier) (*database.Resources, error) {
	dialect, err := r.factory.DialectFor(id)
	if err != nil {
		return nil, err
	}
	pool, err := r.factory.CreatePool(ctx, id)
	if err != nil {
		return nil, err
	}
	pc, err := r.factory.CreatePersistenceContext(pool, id)
	if err != nil {
		r.factory.Destroy(nil, pool)
		return nil, err
	}
	res := &database.Resources{
		Database:  id,
		Dialect:   dialect,
		Pool:      pool,
		Context:   pc,
		TxManager: r.factory.CreateTransactionManager(pc, id),
	}
	logger.Infof("Routing pool opened for %s (%s).", id, dialect)
	return res, nil
}

// Close destroys every bundle. The registry can be reused afterwards.
func (r *PoolRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, res := range r.resources {
		r.factory.Destroy(res.Context, res.Pool)
		delete(r.resources, id)
		logger.Debugf("Routing pool closed for %s.", id)
	}
}

// Connection is a pooled connection with a transaction already open on it.
// Commit and Rollback end the transaction and return the connection to the pool.
type Connection struct {
	*sql.Tx
	Database dbctx.Identifier

	conn *sql.Conn
	once sync.Once
}

// Commit commits the transaction and releases the connection.
func (c *Connection) Commit() error {
	defer c.release()
	return c.Tx.Commit()
}

// Rollback rolls the transaction back and releases the connection.
func (c *Connection) Rollback() error {
	defer c.release()
	return c.Tx.Rollback()
}

func (c *Connection) release() {
	c.once.Do(func() { _ = c.conn.Close() })
}

// RoutingDataSource resolves the database of every call from dbctx.Current(ctx).
// It keeps no routing state of its own.
type RoutingDataSource struct {
	registry *PoolRegistry
}

// NewRoutingDataSource creates a routing data source over registry.
func NewRoutingDataSource(registry *PoolRegistry) *RoutingDataSource {
	return &RoutingDataSource{registry: registry}
}

// Resources returns the bundle of the identifier currently selected in ctx.
func (r *RoutingDataSource) Resources(ctx context.Context) (*database.Resources, error) {
	return r.registry.Get(ctx, dbctx.Current(ctx))
}

// GetConnection acquires a connection from the pool of the current identifier and opens
// a transaction on it. Acquisition is bounded by the pool's timeout.
func (r *RoutingDataSource) GetConnection(ctx context.Context, opts *sql.TxOptions) (*Connection, error) {
	res, err := r.Resources(ctx)
	if err != nil {
		return nil, err
	}
	timeout := acquireTimeoutOf(res.TxManager)
	conn, err := acquire(ctx, res.Pool, timeout, res.Database)
	if err != nil {
		return nil, err
	}
	sqlTx, err := conn.BeginTx(ctx, opts)
	if err != nil {
		_ = conn.Close()
		return nil, exception.NewProvisioningError(routingModule, fmt.Sprintf("failed to begin transaction on %s", res.Database), err)
	}
	return &Connection{Tx: sqlTx, Database: res.Database, conn: conn}, nil
}

// Session returns a gorm handle on the persistence context of the current identifier.
func (r *RoutingDataSource) Session(ctx context.Context) (*gorm.DB, error) {
	res, err := r.Resources(ctx)
	if err != nil {
		return nil, err
	}
	return res.Context.WithContext(ctx), nil
}

// InTransaction runs fn inside a transaction on the current identifier. The Tx is carried
// by the context passed to fn. The transaction commits when fn returns nil and rolls
// back otherwise.
func (r *RoutingDataSource) InTransaction(ctx context.Context, opts *sql.TxOptions, fn func(ctx context.Context) error) error {
	res, err := r.Resources(ctx)
	if err != nil {
		return err
	}
	t, err := res.TxManager.Begin(ctx, opts)
	if err != nil {
		return err
	}
	defer func() {
		if p := recover(); p != nil {
			if rbErr := res.TxManager.Rollback(t); rbErr != nil {
				logger.Warnf("Rollback on %s after panic failed: %v", res.Database, rbErr)
			}
			panic(p)
		}
	}()
	if err := fn(tx.NewContext(ctx, t)); err != nil {
		if rbErr := res.TxManager.Rollback(t); rbErr != nil {
			logger.Warnf("Rollback on %s failed: %v", res.Database, rbErr)
		}
		return err
	}
	return res.TxManager.Commit(t)
}

func acquireTimeoutOf(m tx.TransactionManager) time.Duration {
	if gm, ok := m.(*GormTransactionManager); ok {
		return gm.acquireTimeout
	}
	return 0
}
