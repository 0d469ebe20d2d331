// Package factory builds the import step of one invocation.
package factory

import (
	"go.uber.org/fx"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/component/step/processor"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/component/step/reader"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/component/step/writer"
	port "github.com/tigerroll/surfin-dualdb/pkg/batch/core/application/port"
	config "github.com/tigerroll/surfin-dualdb/pkg/batch/core/config"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
	repository "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/repository"
	metrics "github.com/tigerroll/surfin-dualdb/pkg/batch/core/metrics"
	itemstep "github.com/tigerroll/surfin-dualdb/pkg/batch/engine/step/item"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/engine/step/retry"
	logger "github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"
)

// ImportStepName is the name of the read-transform-write step.
const ImportStepName = "importRecordsStep"

// StepFactory creates the step that imports one source file.
//
// A step is created per invocation so that no reader or writer state is shared
// between invocations. The writer resolves its database from the invocation's
// context when it writes, not when the step is built.
type StepFactory interface {
	CreateImportStep(sourcePath string) port.Step
}

// DefaultStepFactory builds a chunk step of CSVRecordReader, UppercaseProcessor and RecordWriter.
type DefaultStepFactory struct {
	chunkSize      int
	writer         *writer.RecordWriter
	processor      *processor.UppercaseProcessor
	retryPolicy    retry.RetryPolicy
	metricRecorder metrics.MetricRecorder
	tracer         metrics.Tracer
	chunkListeners []port.ChunkListener
}

// StepFactoryParams are the dependencies of NewDefaultStepFactory.
type StepFactoryParams struct {
	fx.In
	Batch          *config.BatchConfig
	Repositories   repository.Factory
	MetricRecorder metrics.MetricRecorder
	Tracer         metrics.Tracer
	ChunkListeners []port.ChunkListener `group:"chunk_listeners"`
}

// NewDefaultStepFactory creates a new DefaultStepFactory.
func NewDefaultStepFactory(p StepFactoryParams) *DefaultStepFactory {
	batch := p.Batch
	logger.Debugf("StepFactory: chunk size %d, metadata lock policy %s.", batch.ChunkSize, batch.LockPolicy())
	return &DefaultStepFactory{
		chunkSize:      batch.ChunkSize,
		writer:         writer.NewRecordWriter(p.Repositories, batch.LockPolicy(), p.MetricRecorder),
		processor:      processor.NewUppercaseProcessor(),
		retryPolicy:    retry.NewDefaultRetryPolicy(batch.Retry),
		metricRecorder: p.MetricRecorder,
		tracer:         p.Tracer,
		chunkListeners: p.ChunkListeners,
	}
}

// WithProcessor replaces the processor, e.g. to inject a fixed clock.
func (f *DefaultStepFactory) WithProcessor(p *processor.UppercaseProcessor) *DefaultStepFactory {
	f.processor = p
	return f
}

// CreateImportStep implements StepFactory.
func (f *DefaultStepFactory) CreateImportStep(sourcePath string) port.Step {
	return itemstep.NewChunkStep[*model.CSVRecord, *model.Record](
		ImportStepName,
		reader.NewCSVRecordReader(sourcePath),
		f.processor,
		f.writer,
		f.chunkSize,
		f.metricRecorder,
		f.tracer,
		f.chunkListeners...,
	).WithRetryPolicy(f.retryPolicy)
}

var _ StepFactory = (*DefaultStepFactory)(nil)
