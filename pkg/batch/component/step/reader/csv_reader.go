// Package reader provides the item readers of the import and export pipelines.
package reader

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	port "github.com/tigerroll/surfin-dualdb/pkg/batch/core/application/port"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"
)

const csvModule = "csv_reader"

// Delimiter separates the columns of an input file.
const Delimiter = ';'

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// CSVRecordReader reads name;age;email rows from a file. The first line is a header
// and is skipped.
type CSVRecordReader struct {
	path string

	file   *os.File
	csv    *csv.Reader
	line   int
	opened bool
}

// NewCSVRecordReader creates a reader for path. Nothing is opened until Open.
func NewCSVRecordReader(path string) *CSVRecordReader {
	return &CSVRecordReader{path: path}
}

// Open opens the file, strips a UTF-8 byte order mark and skips the header line.
func (r *CSVRecordReader) Open(ctx context.Context) error {
	if r.opened {
		return exception.NewConfigurationError(csvModule, fmt.Sprintf("reader for '%s' is already open", r.path), nil)
	}
	f, err := os.Open(r.path)
	if err != nil {
		return exception.NewValidationError(csvModule, fmt.Sprintf("cannot open '%s': %v", r.path, err))
	}

	br := bufio.NewReader(f)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	cr := csv.NewReader(br)
	cr.Comma = Delimiter
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.ReuseRecord = true

	r.file = f
	r.csv = cr
	r.line = 0
	r.opened = true

	if _, err := r.next(); err != nil && !errors.Is(err, io.EOF) {
		_ = r.Close(ctx)
		return exception.NewValidationError(csvModule, fmt.Sprintf("cannot read header of '%s': %v", r.path, err))
	}
	logger.Debugf("CSVRecordReader opened '%s'.", r.path)
	return nil
}

func (r *CSVRecordReader) next() ([]string, error) {
	fields, err := r.csv.Read()
	if err == nil || !errors.Is(err, io.EOF) {
		r.line++
	}
	return fields, err
}

// Read returns the next row. Blank lines are skipped. It returns port.ErrNoMoreItems at
// the end of the file and a ValidationError for a malformed row.
func (r *CSVRecordReader) Read(ctx context.Context) (*model.CSVRecord, error) {
	if !r.opened {
		return nil, exception.NewConfigurationError(csvModule, "reader is not open", nil)
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fields, err := r.next()
		if errors.Is(err, io.EOF) {
			return nil, port.ErrNoMoreItems
		}
		if err != nil {
			return nil, exception.NewValidationError(csvModule, fmt.Sprintf("%s:%d: %v", r.path, r.line, err))
		}
		if len(fields) == 1 && strings.TrimSpace(fields[0]) == "" {
			continue
		}
		return r.parse(fields)
	}
}

func (r *CSVRecordReader) parse(fields []string) (*model.CSVRecord, error) {
	if len(fields) != 3 {
		return nil, exception.NewValidationError(csvModule,
			fmt.Sprintf("%s:%d: expected 3 columns (name;age;email), got %d", r.path, r.line, len(fields)))
	}
	age, err := strconv.Atoi(strings.TrimSpace(fields[1]))
	if err != nil {
		return nil, exception.NewValidationError(csvModule,
			fmt.Sprintf("%s:%d: age %q is not an integer", r.path, r.line, fields[1]))
	}
	return &model.CSVRecord{
		Name:  strings.TrimSpace(fields[0]),
		Age:   age,
		Email: strings.TrimSpace(fields[2]),
		Line:  r.line,
	}, nil
}

// Close closes the file. Closing a closed reader is a no-op.
func (r *CSVRecordReader) Close(ctx context.Context) error {
	if !r.opened {
		return nil
	}
	r.opened = false
	r.csv = nil
	err := r.file.Close()
	r.file = nil
	return err
}

var _ port.ItemReader[*model.CSVRecord] = (*CSVRecordReader)(nil)
