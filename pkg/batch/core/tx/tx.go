// Package tx provides the transaction abstraction used by the write stage and the
// repositories. Every write in surfin-dualdb happens inside a Tx obtained from the
// TransactionManager of the invocation's own DatabaseResources.
package tx

import (
	"context"
	"database/sql"
)

// TxExecutor defines write operations that can run with or without a transaction.
type TxExecutor interface {
	// ExecuteUpdate runs an UPDATE against tableName for the given model.
	// query holds extra AND-ed column conditions (e.g. {"version": 3}).
	// It returns the number of affected rows.
	ExecuteUpdate(ctx context.Context, model interface{}, tableName string, query map[string]interface{}) (rowsAffected int64, err error)

	// Create inserts model (a pointer to an entity or to a slice of entities).
	Create(ctx context.Context, model interface{}) error

	// Find loads rows matching query into dest (a pointer to a slice or to an entity).
	// orderBy and limit are ignored when empty or non-positive.
	Find(ctx context.Context, dest interface{}, query map[string]interface{}, orderBy string, limit int) error

	// Count returns the number of rows of model matching query.
	Count(ctx context.Context, model interface{}, query map[string]interface{}) (int64, error)
}

// Tx represents an open transaction.
type Tx interface {
	TxExecutor

	// Merge queues entity for persistence. Nothing is sent to the database until Flush.
	Merge(entity interface{})

	// Flush writes every queued entity in the order it was merged.
	// It returns the number of entities written.
	Flush(ctx context.Context) (int, error)

	// Pending returns the number of entities merged but not yet flushed.
	Pending() int
}

// TransactionManager manages the lifecycle of transactions (begin, commit, rollback).
type TransactionManager interface {
	// Begin starts a new transaction. Acquiring the underlying connection is bounded
	// by the pool's acquisition timeout.
	Begin(ctx context.Context, opts ...*sql.TxOptions) (Tx, error)
	// Commit commits t. Unflushed entities are flushed first.
	Commit(t Tx) error
	// Rollback rolls back t and discards unflushed entities.
	Rollback(t Tx) error
}

type txKey struct{}

// NewContext returns a copy of ctx carrying t so repositories can join it.
func NewContext(ctx context.Context, t Tx) context.Context {
	return context.WithValue(ctx, txKey{}, t)
}

// FromContext returns the Tx carried by ctx, if any.
func FromContext(ctx context.Context) (Tx, bool) {
	t, ok := ctx.Value(txKey{}).(Tx)
	return t, ok && t != nil
}
