// Package postgres registers the PostgreSQL dialect with the gorm adapter.
// Connections go through the pgx stdlib driver.
package postgres

import (
	"fmt"
	"sort"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database/gorm"
)

// Name is the configuration type of this dialect.
const Name = "postgres"

func init() {
	gormadapter.RegisterDialect(gormadapter.Dialect{
		Name:       Name,
		DriverName: "pgx",
		DSN:        ConnectionString,
		Dialector: func(conn gorm.ConnPool) gorm.Dialector {
			return postgres.New(postgres.Config{Conn: conn})
		},
	})
}

// ConnectionString builds a keyword/value DSN.
func ConnectionString(c dbconfig.DatabaseConfig) (string, error) {
	if c.Host == "" || c.Database == "" {
		return "", fmt.Errorf("postgres datasource requires host and database")
	}
	port := c.Port
	if port == 0 {
		port = 5432
	}
	sslmode := c.Sslmode
	if sslmode == "" {
		sslmode = "disable"
	}

	parts := []string{
		"host=" + quote(c.Host),
		fmt.Sprintf("port=%d", port),
		"user=" + quote(c.User),
		"password=" + quote(c.Password),
		"dbname=" + quote(c.Database),
		"sslmode=" + sslmode,
	}
	if c.Schema != "" {
		parts = append(parts, "search_path="+quote(c.Schema))
	}
	if t := c.Pool.ConnectionTimeout(); t > 0 {
		parts = append(parts, fmt.Sprintf("connect_timeout=%d", int(t.Seconds())))
	}
	keys := make([]string, 0, len(c.Params))
	for k := range c.Params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		parts = append(parts, k+"="+quote(c.Params[k]))
	}
	return strings.Join(parts, " "), nil
}

// quote escapes a keyword/value DSN value.
func quote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}
