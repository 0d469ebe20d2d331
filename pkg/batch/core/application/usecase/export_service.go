package usecase

import (
	"context"
	"errors"
	"fmt"

	gormadapter "github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/database/gorm"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/storage"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/component/step/reader"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/component/step/writer"
	port "github.com/tigerroll/surfin-dualdb/pkg/batch/core/application/port"
	config "github.com/tigerroll/surfin-dualdb/pkg/batch/core/config"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	exception "github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
	logger "github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"
)

const exportModule = "export"

// StorageResolver resolves named storage connections.
type StorageResolver interface {
	ResolveStorageConnection(ctx context.Context, name string) (storage.StorageConnection, error)
}

// ExportResult describes a finished export.
type ExportResult struct {
	Database dbctx.Identifier `json:"database"`
	Storage  string           `json:"storage"`
	Records  int              `json:"records"`
	Objects  []string         `json:"objects"`
}

// ExportService writes every record of the current database to a Parquet file.
type ExportService struct {
	routing   *gormadapter.RoutingDataSource
	storage   StorageResolver
	chunkSize int
}

// NewExportService creates a new ExportService.
func NewExportService(routing *gormadapter.RoutingDataSource, resolver *storage.ConnectionResolver, cfg *config.Config) *ExportService {
	return newExportService(routing, resolver, cfg.Surfin.Batch.ChunkSize)
}

func newExportService(routing *gormadapter.RoutingDataSource, resolver StorageResolver, chunkSize int) *ExportService {
	if chunkSize <= 0 {
		chunkSize = 10
	}
	return &ExportService{routing: routing, storage: resolver, chunkSize: chunkSize}
}

// Export reads the records of the database selected in ctx inside a read-only
// transaction and uploads them through the storage connection storageName.
// properties configure the Parquet writer (output_base_dir, compression_type, bucket).
// The execution context is cleared when Export returns.
func (s *ExportService) Export(ctx context.Context, storageName string, properties map[string]interface{}) (*ExportResult, error) {
	defer clearContext(ctx)
	db := dbctx.Current(ctx)
	log := logger.With("db", db).With("storage", storageName)

	cfg, err := writer.DecodeParquetWriterConfig(properties)
	if err != nil {
		return nil, err
	}
	conn, err := s.storage.ResolveStorageConnection(ctx, storageName)
	if err != nil {
		return nil, exception.NewConfigurationError(exportModule, fmt.Sprintf("storage '%s' is not available", storageName), err)
	}

	dbConn, err := s.routing.GetConnection(ctx, readOnlyTx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = dbConn.Rollback() }()

	cursor := reader.NewRecordCursorReader(dbConn)
	if err := cursor.Open(ctx); err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	pw := writer.NewParquetWriter[writer.RecordRow]("recordExport", cfg, conn, new(writer.RecordRow), writer.PartitionByDatabase)
	total := 0
	for {
		rows := make([]writer.RecordRow, 0, s.chunkSize)
		for len(rows) < s.chunkSize {
			rec, err := cursor.Read(ctx)
			if errors.Is(err, port.ErrNoMoreItems) {
				break
			}
			if err != nil {
				return nil, err
			}
			rows = append(rows, writer.NewRecordRow(rec, db.String()))
		}
		if len(rows) == 0 {
			break
		}
		if err := pw.Write(ctx, rows); err != nil {
			return nil, err
		}
		total += len(rows)
		if len(rows) < s.chunkSize {
			break
		}
	}

	if err := pw.Close(ctx); err != nil {
		return nil, err
	}
	log.Infof("Exported %d records to %d object(s).", total, len(pw.Uploaded()))
	return &ExportResult{Database: db, Storage: storageName, Records: total, Objects: pw.Uploaded()}, nil
}
