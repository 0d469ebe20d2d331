package gorm_test

import (
	"context"
	"strings"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbconfig "github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database/gorm"
	mysqldialect "github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database/gorm/mysql"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database/gorm/postgres"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database/gorm/sqlite"
	config "github.com/tigerroll/surfin-dualdb/pkg/batch/core/config"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
)

func TestRegisteredDialects(t *testing.T) {
	assert.Equal(t, []string{"mysql", "postgres", "sqlite"}, gormadapter.RegisteredDialects())

	_, err := gormadapter.GetDialect("oracle")
	assert.Error(t, err)
}

func TestMySQLConnectionString(t *testing.T) {
	dsn, err := mysqldialect.ConnectionString(dbconfig.DatabaseConfig{
		Host: "db-a", Database: "batch_a", User: "root", Password: "secret",
		Pool: dbconfig.DefaultPoolConfig(),
	})
	require.NoError(t, err)

	parsed, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	assert.Equal(t, "db-a:3306", parsed.Addr)
	assert.Equal(t, "batch_a", parsed.DBName)
	assert.Equal(t, "secret", parsed.Passwd)
	assert.True(t, parsed.ParseTime)

	_, err = mysqldialect.ConnectionString(dbconfig.DatabaseConfig{Database: "batch_a"})
	assert.Error(t, err)
}

func TestPostgresConnectionString(t *testing.T) {
	dsn, err := postgres.ConnectionString(dbconfig.DatabaseConfig{
		Host: "db-b", Database: "batch_b", User: "postgres", Password: "it's",
		Params: map[string]string{"application_name": "dualdb"},
		Pool:   dbconfig.DefaultPoolConfig(),
	})
	require.NoError(t, err)
	assert.Contains(t, dsn, "host=db-b")
	assert.Contains(t, dsn, "port=5432")
	assert.Contains(t, dsn, "sslmode=disable")
	assert.Contains(t, dsn, `password='it\'s'`)
	assert.Contains(t, dsn, "connect_timeout=30")
	assert.True(t, strings.HasSuffix(dsn, "application_name=dualdb"))
}

func TestSQLiteConnectionString(t *testing.T) {
	dsn, err := sqlite.ConnectionString(dbconfig.DatabaseConfig{Database: "/tmp/a.db", Pool: dbconfig.DefaultPoolConfig()})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dsn, "file:/tmp/a.db?"))
	assert.Contains(t, dsn, "_txlock=immediate")

	_, err = sqlite.ConnectionString(dbconfig.DatabaseConfig{})
	assert.Error(t, err)
}

func TestConnectionFactoryDialectPerIdentifier(t *testing.T) {
	cfg := config.NewConfig()
	f := gormadapter.NewGormConnectionFactory(cfg, nil)

	dialect, err := f.DialectFor(dbctx.Primary)
	require.NoError(t, err)
	assert.Equal(t, "mysql", dialect)

	dialect, err = f.DialectFor(dbctx.Secondary)
	require.NoError(t, err)
	assert.Equal(t, "postgres", dialect)

	cfg.Surfin.Datasources = map[string]interface{}{"primary": map[string]interface{}{"type": "oracle"}}
	f = gormadapter.NewGormConnectionFactory(cfg, nil)
	_, err = f.DialectFor(dbctx.Primary)
	assert.True(t, exception.IsKind(err, exception.KindConfiguration))
	_, err = f.CreatePool(context.Background(), dbctx.Secondary)
	assert.True(t, exception.IsKind(err, exception.KindConfiguration))
}
