// Package database defines the per-invocation database resource bundle and the factory
// contract that creates and destroys it.
package database

import (
	"context"
	"database/sql"

	"gorm.io/gorm"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/tx"
)

// Resources is the bundle {connection pool, persistence context, transaction manager}
// scoped to exactly one job invocation. The three members are created together and
// destroyed together, and a bundle is never reused by another invocation.
type Resources struct {
	// Database is the identifier the bundle was provisioned for.
	Database dbctx.Identifier
	// Dialect is the name of the dialect the persistence context speaks.
	Dialect   string
	Pool      *sql.DB
	Context   *gorm.DB
	TxManager tx.TransactionManager
}

// ConnectionFactory creates and destroys the members of a Resources bundle.
type ConnectionFactory interface {
	// CreatePool opens a bounded pool for id.
	CreatePool(ctx context.Context, id dbctx.Identifier) (*sql.DB, error)
	// CreatePersistenceContext binds ORM metadata and the dialect for id to pool.
	CreatePersistenceContext(pool *sql.DB, id dbctx.Identifier) (*gorm.DB, error)
	// CreateTransactionManager returns a transaction manager over the persistence context.
	CreateTransactionManager(pc *gorm.DB, id dbctx.Identifier) tx.TransactionManager
	// DialectFor returns the dialect name configured for id.
	DialectFor(id dbctx.Identifier) (string, error)
	// Destroy closes the persistence context and the pool. It is idempotent and never fails:
	// close errors are logged and swallowed.
	Destroy(pc *gorm.DB, pool *sql.DB)
}

// Models lists the entities migrated into every persistence context.
type Models []interface{}
