// Package mysql registers the MySQL dialect with the gorm adapter.
package mysql

import (
	"fmt"
	"strconv"

	mysqldriver "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database/gorm"
)

// Name is the configuration type of this dialect.
const Name = "mysql"

func init() {
	gormadapter.RegisterDialect(gormadapter.Dialect{
		Name:       Name,
		DriverName: "mysql",
		DSN:        ConnectionString,
		Dialector: func(conn gorm.ConnPool) gorm.Dialector {
			return mysql.New(mysql.Config{Conn: conn})
		},
	})
}

// ConnectionString builds a go-sql-driver DSN. Timestamps are parsed into time.Time.
func ConnectionString(c dbconfig.DatabaseConfig) (string, error) {
	if c.Host == "" || c.Database == "" {
		return "", fmt.Errorf("mysql datasource requires host and database")
	}
	port := c.Port
	if port == 0 {
		port = 3306
	}

	cfg := mysqldriver.NewConfig()
	cfg.User = c.User
	cfg.Passwd = c.Password
	cfg.Net = "tcp"
	cfg.Addr = c.Host + ":" + strconv.Itoa(port)
	cfg.DBName = c.Database
	cfg.ParseTime = true
	cfg.Timeout = c.Pool.ConnectionTimeout()
	if len(c.Params) > 0 {
		cfg.Params = make(map[string]string, len(c.Params))
		for k, v := range c.Params {
			cfg.Params[k] = v
		}
	}
	return cfg.FormatDSN(), nil
}
