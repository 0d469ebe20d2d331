package lifecycle_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	metrics "github.com/tigerroll/surfin-dualdb/pkg/batch/core/metrics"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/infrastructure/lifecycle"
	sqlrepo "github.com/tigerroll/surfin-dualdb/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
	testutil "github.com/tigerroll/surfin-dualdb/pkg/batch/test"
)

func newManager(t *testing.T) (*lifecycle.Manager, *testutil.CountingConnectionFactory) {
	t.Helper()
	cfg := testutil.NewSQLiteConfig(t, t.TempDir())
	factory := testutil.NewCountingConnectionFactory(cfg, sqlrepo.Entities())
	return lifecycle.NewManager(factory, metrics.NewNoOpMetricRecorder()), factory
}

func TestRunProvisionsAndTearsDown(t *testing.T) {
	m, factory := newManager(t)
	inv := testutil.NewTestInvocation(dbctx.Secondary, "users.csv")

	var captured *lifecycle.Scope
	err := m.Run(context.Background(), inv, func(ctx context.Context, scope *lifecycle.Scope) error {
		captured = scope
		assert.Equal(t, lifecycle.Provisioned, scope.State())
		assert.Equal(t, 1, m.Active())

		res, ok := lifecycle.CurrentResources(ctx)
		require.True(t, ok)
		assert.Equal(t, dbctx.Secondary, res.Database)
		assert.Equal(t, "sqlite", res.Dialect)
		assert.NotNil(t, res.Pool)
		assert.NotNil(t, res.Context)
		assert.NotNil(t, res.TxManager)
		assert.NoError(t, res.Pool.PingContext(ctx))
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, lifecycle.TornDown, captured.State())
	assert.Nil(t, captured.Resources())
	assert.Equal(t, 0, m.Active())
	assert.Equal(t, int64(1), factory.Created())
	assert.Equal(t, int64(1), factory.Destroyed())
}

func TestRunTearsDownOnError(t *testing.T) {
	m, factory := newManager(t)
	boom := errors.New("write failed")

	var captured *lifecycle.Scope
	err := m.Run(context.Background(), testutil.NewTestInvocation(dbctx.Primary, "a.csv"), func(ctx context.Context, scope *lifecycle.Scope) error {
		captured = scope
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, lifecycle.TornDown, captured.State())
	assert.Equal(t, 0, m.Active())
	assert.Equal(t, factory.Created(), factory.Destroyed())
}

func TestRunTearsDownOnPanic(t *testing.T) {
	m, factory := newManager(t)

	assert.Panics(t, func() {
		_ = m.Run(context.Background(), testutil.NewTestInvocation(dbctx.Primary, "a.csv"), func(ctx context.Context, scope *lifecycle.Scope) error {
			panic("unexpected")
		})
	})
	assert.Equal(t, 0, m.Active())
	assert.Equal(t, int64(1), factory.Destroyed())
}

func TestProvisioningFailureCleansUp(t *testing.T) {
	m, factory := newManager(t)
	factory.FailPersistenceContext = exception.NewProvisioningError("test", "metadata binding failed", nil)

	called := false
	err := m.Run(context.Background(), testutil.NewTestInvocation(dbctx.Primary, "a.csv"), func(ctx context.Context, scope *lifecycle.Scope) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindProvisioning))
	assert.False(t, called)
	assert.Equal(t, 0, m.Active())
	assert.Equal(t, int64(1), factory.Created())
	assert.Equal(t, int64(1), factory.Destroyed(), "the pool opened before the failure is destroyed")
}

func TestBeforeExecutionRejectsDuplicateInvocation(t *testing.T) {
	m, _ := newManager(t)
	inv := testutil.NewTestInvocation(dbctx.Primary, "a.csv")

	scope, err := m.BeforeExecution(context.Background(), inv)
	require.NoError(t, err)
	defer m.AfterExecution(context.Background(), inv.Key())

	_, err = m.BeforeExecution(context.Background(), inv)
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindConfiguration))
	assert.Equal(t, lifecycle.Provisioned, scope.State())
}

func TestAfterExecutionIsIdempotent(t *testing.T) {
	m, factory := newManager(t)
	inv := testutil.NewTestInvocation(dbctx.Primary, "a.csv")

	_, err := m.BeforeExecution(context.Background(), inv)
	require.NoError(t, err)

	m.AfterExecution(context.Background(), inv.Key())
	m.AfterExecution(context.Background(), inv.Key())
	m.AfterExecution(context.Background(), "unknown")
	assert.Equal(t, int64(1), factory.Destroyed())
}

func TestCurrentResourcesOutsideScope(t *testing.T) {
	_, ok := lifecycle.CurrentResources(context.Background())
	assert.False(t, ok)
}

func TestConcurrentInvocationsGetDistinctResources(t *testing.T) {
	m, factory := newManager(t)

	const n = 6
	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		pools = map[interface{}]struct{}{}
	)
	for i := 0; i < n; i++ {
		id := dbctx.Primary
		if i%2 == 1 {
			id = dbctx.Secondary
		}
		wg.Add(1)
		go func(id dbctx.Identifier) {
			defer wg.Done()
			err := m.Run(context.Background(), testutil.NewTestInvocation(id, "a.csv"), func(ctx context.Context, scope *lifecycle.Scope) error {
				res, ok := lifecycle.CurrentResources(ctx)
				if !assert.True(t, ok) {
					return nil
				}
				assert.Equal(t, id, res.Database)
				mu.Lock()
				pools[res.Pool] = struct{}{}
				mu.Unlock()
				return nil
			})
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	assert.Len(t, pools, n)
	assert.Equal(t, 0, m.Active())
	assert.Equal(t, int64(n), factory.Created())
	assert.Equal(t, int64(n), factory.Destroyed())
}

func TestShutdownTearsDownLeftovers(t *testing.T) {
	m, factory := newManager(t)
	for i := 0; i < 3; i++ {
		_, err := m.BeforeExecution(context.Background(), testutil.NewTestInvocation(dbctx.Primary, "a.csv"))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, m.Active())

	require.NoError(t, m.Shutdown(context.Background()))
	assert.Equal(t, 0, m.Active())
	assert.Equal(t, int64(3), factory.Destroyed())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "Uninitialized", lifecycle.Uninitialized.String())
	assert.Equal(t, "Provisioned", lifecycle.Provisioned.String())
	assert.Equal(t, "TornDown", lifecycle.TornDown.String())
}
