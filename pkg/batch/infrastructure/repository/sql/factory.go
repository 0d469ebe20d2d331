package sql

import (
	"go.uber.org/fx"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database"
	repository "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/repository"
)

// RepositoryFactory creates SQL repositories bound to a Resources bundle.
type RepositoryFactory struct{}

// NewRepositoryFactory creates a new RepositoryFactory.
func NewRepositoryFactory() *RepositoryFactory {
	return &RepositoryFactory{}
}

func (RepositoryFactory) Executions(res *database.Resources) repository.ExecutionRepository {
	return NewSQLExecutionRepository(res)
}

func (RepositoryFactory) Records(res *database.Resources) repository.RecordRepository {
	return NewSQLRecordRepository(res)
}

var _ repository.Factory = RepositoryFactory{}

// Module provides the repository factory and the entities migrated into every
// persistence context.
var Module = fx.Options(
	fx.Provide(fx.Annotate(NewRepositoryFactory, fx.As(new(repository.Factory)))),
	fx.Supply(Entities()),
)
