// Package test provides helpers shared by the tests of surfin-dualdb.
package test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"gorm.io/gorm"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database"
	gormadapter "github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database/gorm"
	_ "github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database/gorm/sqlite"
	config "github.com/tigerroll/surfin-dualdb/pkg/batch/core/config"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/tx"
)

// NewSQLiteConfig returns a configuration whose Primary and Secondary datasources are two
// distinct SQLite files under dir. Input files are read from dir/data.
func NewSQLiteConfig(t testing.TB, dir string) *config.Config {
	t.Helper()
	cfg := config.NewConfig()
	cfg.Surfin.Batch.DataDir = filepath.Join(dir, "data")
	if err := os.MkdirAll(cfg.Surfin.Batch.DataDir, 0o755); err != nil {
		t.Fatalf("failed to create data dir: %v", err)
	}
	cfg.Surfin.Datasources = map[string]interface{}{
		dbctx.Primary.ConfigKey():   sqliteDatasource(filepath.Join(dir, "db_a.sqlite")),
		dbctx.Secondary.ConfigKey(): sqliteDatasource(filepath.Join(dir, "db_b.sqlite")),
	}
	cfg.Surfin.Storage = map[string]interface{}{
		"local": map[string]interface{}{"type": "local", "base_dir": filepath.Join(dir, "export")},
	}
	cfg.Surfin.Metrics.Enabled = false
	return cfg
}

func sqliteDatasource(path string) map[string]interface{} {
	return map[string]interface{}{
		"type":     "sqlite",
		"database": path,
		"pool": map[string]interface{}{
			"max_open_conns":        2,
			"min_idle_conns":        1,
			"connection_timeout_ms": 5000,
		},
	}
}

// WriteCSV writes a ';'-separated input file with the name;age;email header under the
// data dir of cfg and returns its file name.
func WriteCSV(t testing.TB, cfg *config.Config, name string, rows ...string) string {
	t.Helper()
	content := "name;age;email\n" + strings.Join(rows, "\n") + "\n"
	if err := os.WriteFile(filepath.Join(cfg.Surfin.Batch.DataDir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return name
}

// CountingConnectionFactory wraps a ConnectionFactory and counts the pools it creates and
// destroys. FailPersistenceContext makes CreatePersistenceContext fail after the pool is open.
type CountingConnectionFactory struct {
	database.ConnectionFactory

	FailPersistenceContext error
	// TxManager, when set, replaces the transaction manager of every bundle.
	TxManager func(pc *gorm.DB, id dbctx.Identifier) tx.TransactionManager

	created   atomic.Int64
	destroyed atomic.Int64

	mu    sync.Mutex
	pools []*sql.DB
}

// NewCountingConnectionFactory wraps a GormConnectionFactory built from cfg.
func NewCountingConnectionFactory(cfg *config.Config, models database.Models) *CountingConnectionFactory {
	return &CountingConnectionFactory{ConnectionFactory: gormadapter.NewGormConnectionFactory(cfg, models)}
}

func (f *CountingConnectionFactory) CreatePool(ctx context.Context, id dbctx.Identifier) (*sql.DB, error) {
	pool, err := f.ConnectionFactory.CreatePool(ctx, id)
	if err != nil {
		return nil, err
	}
	f.created.Add(1)
	f.mu.Lock()
	f.pools = append(f.pools, pool)
	f.mu.Unlock()
	return pool, nil
}

func (f *CountingConnectionFactory) CreatePersistenceContext(pool *sql.DB, id dbctx.Identifier) (*gorm.DB, error) {
	if f.FailPersistenceContext != nil {
		return nil, f.FailPersistenceContext
	}
	return f.ConnectionFactory.CreatePersistenceContext(pool, id)
}

func (f *CountingConnectionFactory) CreateTransactionManager(pc *gorm.DB, id dbctx.Identifier) tx.TransactionManager {
	if f.TxManager != nil {
		return f.TxManager(pc, id)
	}
	return f.ConnectionFactory.CreateTransactionManager(pc, id)
}

func (f *CountingConnectionFactory) Destroy(pc *gorm.DB, pool *sql.DB) {
	f.ConnectionFactory.Destroy(pc, pool)
	if pool != nil {
		f.destroyed.Add(1)
	}
}

// Created returns the number of pools created.
func (f *CountingConnectionFactory) Created() int64 { return f.created.Load() }

// Destroyed returns the number of pools destroyed.
func (f *CountingConnectionFactory) Destroyed() int64 { return f.destroyed.Load() }

// Pools returns every pool created so far.
func (f *CountingConnectionFactory) Pools() []*sql.DB {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*sql.DB(nil), f.pools...)
}

var _ database.ConnectionFactory = (*CountingConnectionFactory)(nil)
