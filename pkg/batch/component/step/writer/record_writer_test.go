package writer_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/component/step/writer"
	config "github.com/tigerroll/surfin-dualdb/pkg/batch/core/config"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/surfin-dualdb/pkg/batch/core/metrics"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/tx"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/infrastructure/lifecycle"
	sqlrepo "github.com/tigerroll/surfin-dualdb/pkg/batch/infrastructure/repository/sql"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
	testutil "github.com/tigerroll/surfin-dualdb/pkg/batch/test"
)

type fixture struct {
	manager *lifecycle.Manager
	factory *testutil.CountingConnectionFactory
	repos   *sqlrepo.RepositoryFactory
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cfg := testutil.NewSQLiteConfig(t, t.TempDir())
	factory := testutil.NewCountingConnectionFactory(cfg, sqlrepo.Entities())
	return &fixture{
		manager: lifecycle.NewManager(factory, metrics.NewNoOpMetricRecorder()),
		factory: factory,
		repos:   sqlrepo.NewRepositoryFactory(),
	}
}

// run provisions inv with the execution context set to its database and stores a started
// execution before calling fn.
func (f *fixture) run(t *testing.T, inv model.JobInvocation, fn func(ctx context.Context, res *database.Resources, execution *model.JobExecution)) {
	t.Helper()
	ctx, holder := dbctx.Ensure(context.Background())
	holder.SetCurrent(inv.Database)

	err := f.manager.Run(ctx, inv, func(ctx context.Context, scope *lifecycle.Scope) error {
		res := scope.Resources()
		executions := f.repos.Executions(res)
		require.NoError(t, executions.SaveInvocation(ctx, inv))
		execution := testutil.NewTestJobExecution("importRecordsJob", inv)
		require.NoError(t, executions.SaveExecution(ctx, execution))
		fn(ctx, res, execution)
		return nil
	})
	require.NoError(t, err)
}

func countRecords(t *testing.T, ctx context.Context, res *database.Resources) int64 {
	t.Helper()
	n, err := sqlrepo.NewSQLRecordRepository(res).Count(ctx)
	require.NoError(t, err)
	return n
}

func TestRecordWriterCommitsChunk(t *testing.T) {
	f := newFixture(t)
	w := writer.NewRecordWriter(f.repos, config.MetadataLockBestEffort, nil)
	assert.Equal(t, config.MetadataLockBestEffort, w.Policy())

	f.run(t, testutil.NewTestInvocation(dbctx.Secondary, "users.csv"), func(ctx context.Context, res *database.Resources, execution *model.JobExecution) {
		require.NoError(t, w.Write(ctx, execution, testutil.NewTestRecords(3, time.Now())))
		require.NoError(t, w.Write(ctx, execution, nil))

		assert.Equal(t, 3, execution.WriteCount)
		assert.Equal(t, 1, execution.CommitCount)
		assert.Equal(t, 1, execution.Version)
		assert.Equal(t, int64(3), countRecords(t, ctx, res))
	})
}

func TestRecordWriterRequiresResources(t *testing.T) {
	w := writer.NewRecordWriter(sqlrepo.NewRepositoryFactory(), config.MetadataLockBestEffort, nil)
	err := w.Write(context.Background(), nil, testutil.NewTestRecords(1, time.Now()))
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindConfiguration))
}

func TestRecordWriterRejectsDivergingContext(t *testing.T) {
	f := newFixture(t)
	w := writer.NewRecordWriter(f.repos, config.MetadataLockBestEffort, nil)
	inv := testutil.NewTestInvocation(dbctx.Secondary, "users.csv")

	ctx, holder := dbctx.Ensure(context.Background())
	holder.SetCurrent(dbctx.Secondary)
	err := f.manager.Run(ctx, inv, func(ctx context.Context, scope *lifecycle.Scope) error {
		holder.SetCurrent(dbctx.Primary)
		err := w.Write(ctx, nil, testutil.NewTestRecords(2, time.Now()))
		require.Error(t, err)
		assert.True(t, exception.IsKind(err, exception.KindConfiguration))
		assert.Equal(t, int64(0), countRecords(t, ctx, scope.Resources()))
		return nil
	})
	require.NoError(t, err)
}

func TestRecordWriterMetadataRaceBestEffort(t *testing.T) {
	f := newFixture(t)
	w := writer.NewRecordWriter(f.repos, config.MetadataLockBestEffort, nil)

	f.run(t, testutil.NewTestInvocation(dbctx.Primary, "users.csv"), func(ctx context.Context, res *database.Resources, execution *model.JobExecution) {
		concurrent := *execution
		require.NoError(t, f.repos.Executions(res).UpdateExecution(ctx, &concurrent))

		require.NoError(t, w.Write(ctx, execution, testutil.NewTestRecords(3, time.Now())))
		assert.Equal(t, int64(3), countRecords(t, ctx, res))
		assert.Equal(t, concurrent.Version, execution.Version, "version is resynchronised after the race")
	})
}

func TestRecordWriterMetadataRaceFailFast(t *testing.T) {
	f := newFixture(t)
	w := writer.NewRecordWriter(f.repos, config.MetadataLockFailFast, nil)

	f.run(t, testutil.NewTestInvocation(dbctx.Primary, "users.csv"), func(ctx context.Context, res *database.Resources, execution *model.JobExecution) {
		concurrent := *execution
		require.NoError(t, f.repos.Executions(res).UpdateExecution(ctx, &concurrent))

		err := w.Write(ctx, execution, testutil.NewTestRecords(3, time.Now()))
		require.Error(t, err)
		assert.True(t, exception.IsOptimisticLockingFailure(err))
		assert.Equal(t, int64(3), countRecords(t, ctx, res), "records are committed before the bookkeeping update")
	})
}

func TestRecordWriterRollsBackFailedFlush(t *testing.T) {
	f := newFixture(t)
	mockTx := new(testutil.MockTx)
	mockTx.On("Merge", mock.Anything).Return()
	mockTx.On("Flush", mock.Anything).Return(0, errors.New("disk full"))
	txm := new(testutil.MockTransactionManager)
	txm.On("Begin", mock.Anything).Return(mockTx, nil)
	txm.On("Rollback", mockTx).Return(nil)
	f.factory.TxManager = func(pc *gorm.DB, id dbctx.Identifier) tx.TransactionManager { return txm }

	w := writer.NewRecordWriter(f.repos, config.MetadataLockBestEffort, nil)
	inv := testutil.NewTestInvocation(dbctx.Primary, "users.csv")
	execution := testutil.NewTestJobExecution("importRecordsJob", inv)

	err := f.manager.Run(context.Background(), inv, func(ctx context.Context, scope *lifecycle.Scope) error {
		return w.Write(ctx, execution, testutil.NewTestRecords(2, time.Now()))
	})
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindWrite))
	assert.Equal(t, 1, execution.RollbackCount)
	assert.Equal(t, 0, execution.WriteCount)
	txm.AssertNotCalled(t, "Commit", mock.Anything)
	txm.AssertExpectations(t)
	mockTx.AssertNumberOfCalls(t, "Merge", 2)
	assert.Equal(t, int64(1), f.factory.Destroyed())
}
