package usecase

import (
	"context"
	"database/sql"

	gormadapter "github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/repository"
)

var readOnlyTx = &sql.TxOptions{ReadOnly: true}

// RecordQueryService reads records from the database currently selected in ctx.
// Reads are self-contained, so every call clears the execution context when it returns.
type RecordQueryService struct {
	routing *gormadapter.RoutingDataSource
	repos   repository.Factory
}

// NewRecordQueryService creates a new RecordQueryService.
func NewRecordQueryService(routing *gormadapter.RoutingDataSource, repos repository.Factory) *RecordQueryService {
	return &RecordQueryService{routing: routing, repos: repos}
}

// GetAll returns every record of the current database ordered by id.
func (s *RecordQueryService) GetAll(ctx context.Context) ([]model.Record, error) {
	defer clearContext(ctx)
	var records []model.Record
	err := s.inReadTx(ctx, func(ctx context.Context, repo repository.RecordRepository) error {
		var err error
		records, err = repo.FindAll(ctx)
		return err
	})
	return records, err
}

// GetByID returns the record with id from the current database. The bool is false when
// no such record exists.
func (s *RecordQueryService) GetByID(ctx context.Context, id uint64) (*model.Record, bool, error) {
	defer clearContext(ctx)
	var rec *model.Record
	err := s.inReadTx(ctx, func(ctx context.Context, repo repository.RecordRepository) error {
		var err error
		rec, err = repo.FindByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	return rec, rec != nil, nil
}

// Count returns the number of records in the current database.
func (s *RecordQueryService) Count(ctx context.Context) (int64, error) {
	defer clearContext(ctx)
	var n int64
	err := s.inReadTx(ctx, func(ctx context.Context, repo repository.RecordRepository) error {
		var err error
		n, err = repo.Count(ctx)
		return err
	})
	return n, err
}

func (s *RecordQueryService) inReadTx(ctx context.Context, fn func(ctx context.Context, repo repository.RecordRepository) error) error {
	res, err := s.routing.Resources(ctx)
	if err != nil {
		return err
	}
	repo := s.repos.Records(res)
	return s.routing.InTransaction(ctx, readOnlyTx, func(ctx context.Context) error {
		return fn(ctx, repo)
	})
}

func clearContext(ctx context.Context) {
	if h, ok := dbctx.HolderFrom(ctx); ok {
		h.Clear()
	}
}
