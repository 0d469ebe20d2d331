// Package item provides the chunk-oriented step: read, process, then write in chunks.
package item

import (
	"context"
	"errors"
	"fmt"
	"time"

	port "github.com/tigerroll/surfin-dualdb/pkg/batch/core/application/port"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/core/dbctx"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
	metrics "github.com/tigerroll/surfin-dualdb/pkg/batch/core/metrics"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/engine/step/retry"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"
)

// DefaultChunkSize is used when a non-positive chunk size is given.
const DefaultChunkSize = 10

// ChunkStep reads items one by one, processes them and hands them to the writer in
// chunks of chunkSize. Items are written in source order and chunks run sequentially.
type ChunkStep[I, O any] struct {
	id          string
	reader      port.ItemReader[I]
	processor   port.ItemProcessor[I, O]
	writer      port.ItemWriter[O]
	chunkSize   int
	retryPolicy retry.RetryPolicy

	chunkListeners []port.ChunkListener

	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
}

// NewChunkStep creates a new ChunkStep.
func NewChunkStep[I, O any](
	id string,
	reader port.ItemReader[I],
	processor port.ItemProcessor[I, O],
	writer port.ItemWriter[O],
	chunkSize int,
	metricRecorder metrics.MetricRecorder,
	tracer metrics.Tracer,
	chunkListeners ...port.ChunkListener,
) *ChunkStep[I, O] {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if metricRecorder == nil {
		metricRecorder = metrics.NewNoOpMetricRecorder()
	}
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return &ChunkStep[I, O]{
		id:             id,
		reader:         reader,
		processor:      processor,
		writer:         writer,
		chunkSize:      chunkSize,
		retryPolicy:    retry.NoRetry(),
		chunkListeners: chunkListeners,
		metricRecorder: metricRecorder,
		tracer:         tracer,
	}
}

// Name implements port.Step.
func (s *ChunkStep[I, O]) Name() string {
	return s.id
}

// WithRetryPolicy sets the policy applied to failed chunk writes.
func (s *ChunkStep[I, O]) WithRetryPolicy(p retry.RetryPolicy) *ChunkStep[I, O] {
	if p != nil {
		s.retryPolicy = p
	}
	return s
}

// ChunkSize returns the number of items written per chunk.
func (s *ChunkStep[I, O]) ChunkSize() int {
	return s.chunkSize
}

// Execute runs the step to completion or to the first error. execution's read count
// is updated as items are read; the writer updates the write counts.
func (s *ChunkStep[I, O]) Execute(ctx context.Context, execution *model.JobExecution) (err error) {
	start := time.Now()
	db := dbctx.Current(ctx)
	log := logger.With("step", s.id).With("db", db)
	log.Infof("ChunkStep executing (chunk size %d).", s.chunkSize)

	if err := s.reader.Open(ctx); err != nil {
		s.tracer.RecordError(ctx, s.id, err)
		return err
	}
	defer func() {
		if closeErr := s.reader.Close(ctx); closeErr != nil {
			log.Warnf("Failed to close reader: %v", closeErr)
			if err == nil {
				err = closeErr
			}
		}
		s.metricRecorder.RecordDuration(ctx, "step."+s.id, time.Since(start), map[string]string{"database": db.String()})
	}()

	for chunkNo := 1; ; chunkNo++ {
		chunk, eof, err := s.readChunk(ctx, execution, db)
		if err != nil {
			s.tracer.RecordError(ctx, s.id, err)
			log.Errorf("Reading chunk %d failed: %v", chunkNo, err)
			return err
		}
		if len(chunk) > 0 {
			if err := s.writeChunk(ctx, execution, db, chunkNo, chunk); err != nil {
				log.Errorf("Writing chunk %d failed: %v", chunkNo, err)
				return err
			}
		}
		if eof {
			break
		}
	}

	if execution != nil {
		log.Infof("ChunkStep finished: read=%d write=%d commits=%d.", execution.ReadCount, execution.WriteCount, execution.CommitCount)
	}
	return nil
}

// readChunk reads and processes up to chunkSize items.
func (s *ChunkStep[I, O]) readChunk(ctx context.Context, execution *model.JobExecution, db dbctx.Identifier) ([]O, bool, error) {
	chunk := make([]O, 0, s.chunkSize)
	for len(chunk) < s.chunkSize {
		if err := ctx.Err(); err != nil {
			return nil, false, err
		}
		item, err := s.reader.Read(ctx)
		if errors.Is(err, port.ErrNoMoreItems) {
			return chunk, true, nil
		}
		if err != nil {
			return nil, false, err
		}
		if execution != nil {
			execution.ReadCount++
		}
		s.metricRecorder.RecordItemRead(ctx, db)

		out, err := s.processor.Process(ctx, item)
		if err != nil {
			return nil, false, err
		}
		chunk = append(chunk, out)
	}
	return chunk, false, nil
}

func (s *ChunkStep[I, O]) writeChunk(ctx context.Context, execution *model.JobExecution, db dbctx.Identifier, chunkNo int, chunk []O) (err error) {
	chunkCtx, end := s.tracer.StartChunkSpan(ctx, db, chunkNo, len(chunk))
	defer end()

	for _, l := range s.chunkListeners {
		l.BeforeChunk(chunkCtx, execution, chunkNo)
	}
	defer func() {
		if r := recover(); r != nil {
			err = exception.NewWriteError(s.id, fmt.Sprintf("writer panicked on chunk %d", chunkNo), fmt.Errorf("%v", r))
		}
		if err != nil {
			s.tracer.RecordError(chunkCtx, s.id, err)
		}
		for _, l := range s.chunkListeners {
			l.AfterChunk(chunkCtx, execution, chunkNo, err)
		}
	}()

	return retry.Do(chunkCtx, s.retryPolicy, fmt.Sprintf("%s chunk %d", s.id, chunkNo), func(int) error {
		return s.writer.Write(chunkCtx, execution, chunk)
	})
}

var _ port.Step = (*ChunkStep[any, any])(nil)
