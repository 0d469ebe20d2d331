package writer_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageConfig "github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/storage/local"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/component/step/writer"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
)

func TestDecodeParquetWriterConfig(t *testing.T) {
	cfg, err := writer.DecodeParquetWriterConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, writer.ParquetWriterConfig{OutputBaseDir: "records", CompressionType: "SNAPPY"}, cfg)

	cfg, err = writer.DecodeParquetWriterConfig(map[string]interface{}{"output_base_dir": "exports/today", "compression_type": "gzip"})
	require.NoError(t, err)
	assert.Equal(t, "exports/today", cfg.OutputBaseDir)
	assert.Equal(t, "gzip", cfg.CompressionType)

	_, err = writer.DecodeParquetWriterConfig(map[string]interface{}{"compression_type": "brotli"})
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindConfiguration))
}

func TestParquetWriterUploadsOneFilePerPartition(t *testing.T) {
	conn, err := local.NewLocalAdapter(storageConfig.StorageConfig{Type: "local", BaseDir: t.TempDir()}, "local")
	require.NoError(t, err)
	ctx := context.Background()

	w := writer.NewParquetWriter("export", writer.ParquetWriterConfig{OutputBaseDir: "records"}, conn, new(writer.RecordRow), writer.PartitionByDatabase)
	require.NoError(t, w.Close(ctx), "closing an empty writer uploads nothing")
	assert.Empty(t, w.Uploaded())

	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	rows := []writer.RecordRow{
		writer.NewRecordRow(model.Record{ID: 1, Name: "JUAN", Age: 30, Email: "juan@example.com", ProcessedAt: ts}, "Primary"),
		writer.NewRecordRow(model.Record{ID: 2, Name: "ANA", Age: 25, Email: "ana@example.com", ProcessedAt: ts}, "Secondary"),
		writer.NewRecordRow(model.Record{ID: 3, Name: "LUIS", Age: 41, Email: "luis@example.com", ProcessedAt: ts}, "Primary"),
	}
	assert.Equal(t, ts.UnixMilli(), rows[0].ProcessingTimestamp)
	require.NoError(t, w.Write(ctx, rows))
	require.NoError(t, w.Close(ctx))

	uploaded := w.Uploaded()
	require.Len(t, uploaded, 2)
	assert.True(t, strings.HasPrefix(uploaded[0], "records/db=Primary/data_"))
	assert.True(t, strings.HasPrefix(uploaded[1], "records/db=Secondary/data_"))

	for _, name := range uploaded {
		assert.True(t, strings.HasSuffix(name, ".parquet"))
		rc, err := conn.Download(ctx, "", name)
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		require.Greater(t, len(data), 8)
		assert.Equal(t, "PAR1", string(data[:4]))
		assert.Equal(t, "PAR1", string(data[len(data)-4:]))
	}
}

func TestParquetWriterRejectsUnpartitionedRows(t *testing.T) {
	conn, err := local.NewLocalAdapter(storageConfig.StorageConfig{Type: "local", BaseDir: t.TempDir()}, "local")
	require.NoError(t, err)

	w := writer.NewParquetWriter("export", writer.ParquetWriterConfig{}, conn, new(writer.RecordRow), writer.PartitionByDatabase)
	err = w.Write(context.Background(), []writer.RecordRow{{ID: 7}})
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindWrite))
}

func TestParquetWriterAggregatesUploadFailures(t *testing.T) {
	conn, err := local.NewLocalAdapter(storageConfig.StorageConfig{Type: "local", BaseDir: t.TempDir()}, "local")
	require.NoError(t, err)

	w := writer.NewParquetWriter("export", writer.ParquetWriterConfig{OutputBaseDir: "../outside"}, conn, new(writer.RecordRow), writer.PartitionByDatabase)
	require.NoError(t, w.Write(context.Background(), []writer.RecordRow{
		writer.NewRecordRow(model.Record{ID: 1, Name: "JUAN"}, "Primary"),
		writer.NewRecordRow(model.Record{ID: 2, Name: "ANA"}, "Secondary"),
	}))
	err = w.Close(context.Background())
	require.Error(t, err)
	var be *exception.BatchError
	assert.True(t, errors.As(err, &be))
	assert.Contains(t, err.Error(), "db=Primary")
	assert.Contains(t, err.Error(), "db=Secondary")
	assert.Empty(t, w.Uploaded())
}
