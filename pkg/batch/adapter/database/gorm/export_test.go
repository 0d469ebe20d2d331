package gorm

import "database/sql"

// DB exposes the pool of a transaction manager to the tests of this package.
func DB(m *GormTransactionManager) (*sql.DB, error) {
	return m.db.DB()
}
