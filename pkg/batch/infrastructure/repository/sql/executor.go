package sql

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/tx"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"
)

var readOnly = &sql.TxOptions{ReadOnly: true}

// inTx runs fn on the transaction carried by ctx, or else inside a transaction of its own
// on res that commits when fn succeeds.
func inTx(ctx context.Context, res *database.Resources, opts *sql.TxOptions, fn func(executor tx.TxExecutor) error) error {
	if t, ok := tx.FromContext(ctx); ok {
		return fn(t)
	}
	if res == nil || res.TxManager == nil {
		return exception.NewConfigurationError("repository", "repository has no database resources", nil)
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
	if err := fn(t); err != nil {
		if rbErr := res.TxManager.Rollback(t); rbErr != nil {
			logger.Warnf("Rollback on %s failed: %v", res.Database, rbErr)
		}
		return err
	}
	if err := res.TxManager.Commit(t); err != nil {
		return fmt.Errorf("commit on %s failed: %w", res.Database, err)
	}
	return nil
}
