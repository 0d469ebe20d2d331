package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/xitongsys/parquet-go/parquet"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/adapter/storage"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"
)

const parquetModule = "parquet_writer"

// ParquetWriterConfig holds the configuration for ParquetWriter.
type ParquetWriterConfig struct {
	// Bucket is passed to the storage connection; empty uses the connection's default.
	Bucket string `yaml:"bucket"`
	// OutputBaseDir is the object prefix exported files are written under.
	OutputBaseDir string `yaml:"output_base_dir"`
	// CompressionType is "SNAPPY" (default), "GZIP" or "NONE".
	CompressionType string `yaml:"compression_type"`
}

// DecodeParquetWriterConfig binds properties (YAML values or CLI flags) over the defaults.
func DecodeParquetWriterConfig(properties map[string]interface{}) (ParquetWriterConfig, error) {
	cfg := ParquetWriterConfig{OutputBaseDir: "records", CompressionType: "SNAPPY"}
	if err := configbinder.Bind(properties, &cfg); err != nil {
		return cfg, exception.NewConfigurationError(parquetModule, "invalid parquet writer properties", err)
	}
	if _, err := getCompressionCodec(cfg.CompressionType); err != nil {
		return cfg, exception.NewConfigurationError(parquetModule, err.Error(), nil)
	}
	return cfg, nil
}

// ParquetWriter buffers items per partition and uploads one Parquet file per partition
// on Close.
type ParquetWriter[T any] struct {
	name   string
	config ParquetWriterConfig
	conn   storage.StorageConnection
	// itemPrototype is used for Parquet schema reflection.
	itemPrototype *T
	// partitionKeyFunc returns the Hive-style partition ("db=Primary") of an item.
	partitionKeyFunc func(T) (string, error)
	now              func() time.Time

	bufferedItems        map[string][]T
	partitionOrder       []string
	totalRecordsBuffered int64
	uploaded             []string
}

// NewParquetWriter creates a ParquetWriter uploading through conn.
func NewParquetWriter[T any](
	name string,
	cfg ParquetWriterConfig,
	conn storage.StorageConnection,
	itemPrototype *T,
	partitionKeyFunc func(T) (string, error),
) *ParquetWriter[T] {
	if cfg.CompressionType == "" {
		cfg.CompressionType = "SNAPPY"
	}
	return &ParquetWriter[T]{
		name:             name,
		config:           cfg,
		conn:             conn,
		itemPrototype:    itemPrototype,
		partitionKeyFunc: partitionKeyFunc,
		now:              time.Now,
		bufferedItems:    make(map[string][]T),
	}
}

// Write buffers items. Nothing is uploaded until Close.
func (w *ParquetWriter[T]) Write(ctx context.Context, items []T) error {
	for _, item := range items {
		key, err := w.partitionKeyFunc(item)
		if err != nil {
			return exception.NewBatchErrorf(parquetModule, exception.KindWrite, "failed to get partition key in ParquetWriter '%s'", w.name, err)
		}
		if _, seen := w.bufferedItems[key]; !seen {
			w.partitionOrder = append(w.partitionOrder, key)
		}
		w.bufferedItems[key] = append(w.bufferedItems[key], item)
		w.totalRecordsBuffered++
	}
	return nil
}

// Close encodes each partition and uploads it as
// OutputBaseDir/<partition>/data_<timestamp>_<id>.parquet.
// Failures of individual partitions are aggregated.
func (w *ParquetWriter[T]) Close(ctx context.Context) error {
	if w.totalRecordsBuffered == 0 {
		logger.Infof("ParquetWriter '%s': No records buffered, skipping Parquet file generation.", w.name)
		return nil
	}
	codec, err := getCompressionCodec(w.config.CompressionType)
	if err != nil {
		return exception.NewConfigurationError(parquetModule, err.Error(), nil)
	}

	var multiErr error
	for _, key := range w.partitionOrder {
		items := w.bufferedItems[key]
		buf, err := w.encode(items, codec)
		if err != nil {
			multiErr = multierror.Append(multiErr, exception.NewBatchErrorf(parquetModule, exception.KindWrite,
				"failed to encode partition '%s' in ParquetWriter '%s'", key, w.name, err))
			continue
		}

		fileName := fmt.Sprintf("data_%s_%s.parquet", w.now().UTC().Format("20060102150405"), uuid.NewString()[:8])
		objectName := path.Join(w.config.OutputBaseDir, key, fileName)
		if err := w.conn.Upload(ctx, w.config.Bucket, objectName, buf, "application/octet-stream"); err != nil {
			multiErr = multierror.Append(multiErr, exception.NewBatchErrorf(parquetModule, exception.KindWrite,
				"failed to upload '%s' in ParquetWriter '%s'", objectName, w.name, err))
			continue
		}
		w.uploaded = append(w.uploaded, objectName)
		logger.Infof("ParquetWriter '%s': Uploaded %d records to %s:%s", w.name, len(items), w.conn.Name(), objectName)
	}

	w.bufferedItems = make(map[string][]T)
	w.partitionOrder = nil
	w.totalRecordsBuffered = 0
	return multiErr
}

// Uploaded returns the object names written by Close.
func (w *ParquetWriter[T]) Uploaded() []string {
	return w.uploaded
}

func (w *ParquetWriter[T]) encode(items []T, codec parquet.CompressionCodec) (buf *bytes.Buffer, err error) {
	buf = new(bytes.Buffer)
	pw, err := pqwriter.NewParquetWriterFromWriter(buf, w.itemPrototype, 1)
	if err != nil {
		return nil, err
	}
	pw.CompressionType = codec
	for _, item := range items {
		if err := pw.Write(item); err != nil {
			return nil, err
		}
	}
	// WriteStop panics on some schema errors.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parquet writer panicked during WriteStop: %v", r)
		}
	}()
	if err := pw.WriteStop(); err != nil {
		return nil, err
	}
	return buf, nil
}

// getCompressionCodec returns the Parquet compression codec from a string.
func getCompressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}

// RecordRow is the Parquet layout of an exported record.
type RecordRow struct {
	ID                  int64  `parquet:"name=id, type=INT64"`
	Name                string `parquet:"name=name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Age                 int32  `parquet:"name=age, type=INT32"`
	Email               string `parquet:"name=email, type=BYTE_ARRAY, convertedtype=UTF8"`
	ProcessingTimestamp int64  `parquet:"name=processing_timestamp, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	Database            string `parquet:"name=database, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// NewRecordRow converts a stored record of database into its Parquet layout.
func NewRecordRow(rec model.Record, database string) RecordRow {
	return RecordRow{
		ID:                  int64(rec.ID),
		Name:                rec.Name,
		Age:                 int32(rec.Age),
		Email:               rec.Email,
		ProcessingTimestamp: rec.ProcessedAt.UnixMilli(),
		Database:            database,
	}
}

// PartitionByDatabase partitions rows as "db=<identifier>".
func PartitionByDatabase(row RecordRow) (string, error) {
	if row.Database == "" {
		return "", fmt.Errorf("row %d has no database", row.ID)
	}
	return "db=" + row.Database, nil
}
