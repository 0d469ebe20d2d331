package gorm

import (
	"fmt"
	"sort"
	"sync"

	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database/config"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"
)

// Dialect describes how to reach one kind of database: which database/sql driver opens
// the pool and which gorm dialector speaks SQL over it.
type Dialect struct {
	// Name is the configuration type ("mysql", "postgres", "sqlite").
	Name string
	// DriverName is the database/sql driver registered for this dialect.
	DriverName string
	// DSN builds the driver connection string.
	DSN func(cfg dbconfig.DatabaseConfig) (string, error)
	// Dialector binds a gorm dialector to an already opened pool.
	Dialector func(conn gorm.ConnPool) gorm.Dialector
}

var (
	dialectRegistry = make(map[string]Dialect)
	dialectMutex    sync.RWMutex
)

// RegisterDialect registers d under d.Name. Dialect packages call it from init.
func RegisterDialect(d Dialect) {
	dialectMutex.Lock()
	defer dialectMutex.Unlock()
	if _, exists := dialectRegistry[d.Name]; exists {
		logger.Warnf("Dialect '%s' already registered. Overwriting.", d.Name)
	}
	dialectRegistry[d.Name] = d
}

// GetDialect retrieves the dialect registered for dbType.
func GetDialect(dbType string) (Dialect, error) {
	dialectMutex.RLock()
	defer dialectMutex.RUnlock()
	d, ok := dialectRegistry[dbType]
	if !ok {
		return Dialect{}, fmt.Errorf("no dialect registered for database type: %s", dbType)
	}
	return d, nil
}

// RegisteredDialects returns the sorted names of all registered dialects.
func RegisteredDialects() []string {
	dialectMutex.RLock()
	defer dialectMutex.RUnlock()
	names := make([]string, 0, len(dialectRegistry))
	for name := range dialectRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
