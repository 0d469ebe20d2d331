// Package sqlite registers the SQLite dialect with the gorm adapter.
// The datasource "database" field is the file path.
package sqlite

import (
	"fmt"
	"net/url"

	_ "github.com/mattn/go-sqlite3" // registers the "sqlite3" database/sql driver
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database/gorm"
)

// Name is the configuration type of this dialect.
const Name = "sqlite"

func init() {
	gormadapter.RegisterDialect(gormadapter.Dialect{
		Name:       Name,
		DriverName: "sqlite3",
		DSN:        ConnectionString,
		Dialector: func(conn gorm.ConnPool) gorm.Dialector {
			return &sqlite.Dialector{DriverName: "sqlite3", Conn: conn}
		},
	})
}

// ConnectionString builds a file DSN. Transactions take the write lock up front and
// wait for it, so concurrent pools on the same file queue instead of failing.
func ConnectionString(c dbconfig.DatabaseConfig) (string, error) {
	if c.Database == "" {
		return "", fmt.Errorf("sqlite datasource requires a database file")
	}
	q := url.Values{}
	q.Set("_busy_timeout", fmt.Sprintf("%d", c.Pool.ConnectionTimeoutMs))
	q.Set("_journal_mode", "WAL")
	q.Set("_txlock", "immediate")
	for k, v := range c.Params {
		q.Set(k, v)
	}
	return "file:" + c.Database + "?" + q.Encode(), nil
}
