package gorm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"gorm.io/gorm"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database"
	dbconfig "github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database/config"
	config "github.com/tigerroll/surfin-dualdb/pkg/batch/core/config"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/tx"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"
)

const factoryModule = "connection_factory"

// GormConnectionFactory implements database.ConnectionFactory on database/sql pools and gorm.
// The dialect of each identifier is read from surfin.datasource.<identifier>.type.
type GormConnectionFactory struct {
	cfg      *config.Config
	models   database.Models
	sqlLevel string

	mu       sync.Mutex
	dbConfig map[dbctx.Identifier]dbconfig.DatabaseConfig
	poolCfg  map[*sql.DB]dbconfig.PoolConfig

	// migrateMu serializes schema migration; migrated marks identifiers already migrated.
	migrateMu sync.Mutex
	migrated  map[dbctx.Identifier]bool
}

// NewGormConnectionFactory creates a factory that migrates models once per identifier.
func NewGormConnectionFactory(cfg *config.Config, models database.Models) *GormConnectionFactory {
	return &GormConnectionFactory{
		cfg:      cfg,
		models:   models,
		sqlLevel: cfg.Surfin.System.Logging.SQLLevel,
		dbConfig: make(map[dbctx.Identifier]dbconfig.DatabaseConfig),
		poolCfg:  make(map[*sql.DB]dbconfig.PoolConfig),
		migrated: make(map[dbctx.Identifier]bool),
	}
}

// DatabaseConfig returns the decoded datasource configuration of id.
func (f *GormConnectionFactory) DatabaseConfig(id dbctx.Identifier) (dbconfig.DatabaseConfig, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.dbConfig[id]; ok {
		return c, nil
	}

	raw, ok := f.cfg.Surfin.Datasources[id.ConfigKey()]
	if !ok {
		return dbconfig.DatabaseConfig{}, exception.NewConfigurationError(factoryModule,
			fmt.Sprintf("no datasource configured for identifier %s (surfin.datasource.%s)", id, id.ConfigKey()), nil)
	}
	c, err := dbconfig.Decode(raw)
	if err != nil {
		return dbconfig.DatabaseConfig{}, exception.NewConfigurationError(factoryModule,
			fmt.Sprintf("invalid datasource configuration for identifier %s", id), err)
	}
	f.dbConfig[id] = c
	return c, nil
}

// DialectFor returns the dialect name configured for id.
func (f *GormConnectionFactory) DialectFor(id dbctx.Identifier) (string, error) {
	c, err := f.DatabaseConfig(id)
	if err != nil {
		return "", err
	}
	if _, err := GetDialect(c.Type); err != nil {
		return "", exception.NewConfigurationError(factoryModule, fmt.Sprintf("identifier %s", id), err)
	}
	return c.Type, nil
}

// CreatePool opens a bounded pool for id and warms MinIdleConns connections.
// Warming is bounded by the acquisition timeout; running out of time is reported as
// ResourceExhausted, any other failure as a ProvisioningError.
func (f *GormConnectionFactory) CreatePool(ctx context.Context, id dbctx.Identifier) (*sql.DB, error) {
	c, err := f.DatabaseConfig(id)
	if err != nil {
		return nil, err
	}
	dialect, err := GetDialect(c.Type)
	if err != nil {
		return nil, exception.NewConfigurationError(factoryModule, fmt.Sprintf("identifier %s", id), err)
	}
	dsn, err := dialect.DSN(c)
	if err != nil {
		return nil, exception.NewProvisioningError(factoryModule, fmt.Sprintf("failed to build DSN for %s", id), err)
	}

	pool, err := sql.Open(dialect.DriverName, dsn)
	if err != nil {
		return nil, exception.NewProvisioningError(factoryModule, fmt.Sprintf("failed to open pool for %s", id), err)
	}
	pool.SetMaxOpenConns(c.Pool.MaxOpenConns)
	pool.SetMaxIdleConns(c.Pool.MaxIdleConns)
	if c.Pool.IdleTimeoutMs > 0 {
		pool.SetConnMaxIdleTime(c.Pool.IdleTimeout())
	}
	if c.Pool.MaxLifetimeMs > 0 {
		pool.SetConnMaxLifetime(c.Pool.MaxLifetime())
	}

	if err := warm(ctx, pool, c.Pool); err != nil {
		if closeErr := pool.Close(); closeErr != nil {
			logger.Warnf("Failed to close pool for %s after warm-up failure: %v", id, closeErr)
		}
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, exception.NewResourceExhaustedError(factoryModule,
				fmt.Sprintf("no connection to %s within %s", id, c.Pool.ConnectionTimeout()), err)
		}
		return nil, exception.NewProvisioningError(factoryModule, fmt.Sprintf("failed to connect to %s", id), err)
	}

	f.mu.Lock()
	f.poolCfg[pool] = c.Pool
	f.mu.Unlock()

	logger.Debugf("Pool created for %s (%s): max_open=%d min_idle=%d", id, c.Type, c.Pool.MaxOpenConns, c.Pool.MinIdleConns)
	return pool, nil
}

// warm opens MinIdleConns connections (at least one, so bad credentials fail here)
// and hands them back to the pool as idle connections.
func warm(ctx context.Context, pool *sql.DB, p dbconfig.PoolConfig) error {
	n := p.MinIdleConns
	if n < 1 {
		n = 1
	}
	acquireCtx, cancel := context.WithTimeout(ctx, p.ConnectionTimeout())
	defer cancel()

	conns := make([]*sql.Conn, 0, n)
	defer func() {
		for _, c := range conns {
			_ = c.Close()
		}
	}()
	for i := 0; i < n; i++ {
		conn, err := pool.Conn(acquireCtx)
		if err != nil {
			return err
		}
		conns = append(conns, conn)
		if err := conn.PingContext(acquireCtx); err != nil {
			return err
		}
	}
	return nil
}

// CreatePersistenceContext binds a gorm session to pool using the dialect of id
// and migrates the registered models.
func (f *GormConnectionFactory) CreatePersistenceContext(pool *sql.DB, id dbctx.Identifier) (*gorm.DB, error) {
	if pool == nil {
		return nil, exception.NewProvisioningError(factoryModule, fmt.Sprintf("no pool for %s", id), nil)
	}
	c, err := f.DatabaseConfig(id)
	if err != nil {
		return nil, err
	}
	dialect, err := GetDialect(c.Type)
	if err != nil {
		return nil, exception.NewConfigurationError(factoryModule, fmt.Sprintf("identifier %s", id), err)
	}

	db, err := gorm.Open(dialect.Dialector(pool), &gorm.Config{
		Logger:                 NewGormLogger(f.sqlLevel),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, exception.NewProvisioningError(factoryModule, fmt.Sprintf("failed to open persistence context for %s", id), err)
	}

	if err := f.migrate(db, id); err != nil {
		return nil, exception.NewProvisioningError(factoryModule, fmt.Sprintf("failed to migrate schema of %s", id), err)
	}
	return db, nil
}

// migrate runs AutoMigrate the first time a persistence context of id is opened.
func (f *GormConnectionFactory) migrate(db *gorm.DB, id dbctx.Identifier) error {
	if len(f.models) == 0 {
		return nil
	}
	f.migrateMu.Lock()
	defer f.migrateMu.Unlock()
	if f.migrated[id] {
		return nil
	}
	if err := db.AutoMigrate(f.models...); err != nil {
		return err
	}
	f.migrated[id] = true
	return nil
}

// CreateTransactionManager returns a transaction manager over pc. Connection acquisition
// is bounded by the acquisition timeout of the pool pc was created on.
func (f *GormConnectionFactory) CreateTransactionManager(pc *gorm.DB, id dbctx.Identifier) tx.TransactionManager {
	p := dbconfig.DefaultPoolConfig()
	if c, err := f.DatabaseConfig(id); err == nil {
		p = c.Pool
	}
	if sqlDB, err := pc.DB(); err == nil {
		f.mu.Lock()
		if known, ok := f.poolCfg[sqlDB]; ok {
			p = known
		}
		f.mu.Unlock()
	}
	return NewGormTransactionManager(pc, id, p.ConnectionTimeout())
}

// Destroy closes pc and pool. Either may be nil, and calling it twice is harmless.
// Close failures are logged at WARN and never returned.
func (f *GormConnectionFactory) Destroy(pc *gorm.DB, pool *sql.DB) {
	var result *multierror.Error

	if pc != nil {
		if sqlDB, err := pc.DB(); err == nil && sqlDB != pool {
			result = multierror.Append(result, sqlDB.Close())
		}
	}
	if pool != nil {
		result = multierror.Append(result, pool.Close())
		f.mu.Lock()
		delete(f.poolCfg, pool)
		f.mu.Unlock()
	}

	if err := result.ErrorOrNil(); err != nil {
		logger.Warnf("Errors while destroying database resources: %v", err)
	}
}

var _ database.ConnectionFactory = (*GormConnectionFactory)(nil)
