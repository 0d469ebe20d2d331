// Package port defines the core interfaces (ports) of the import pipeline.
// These interfaces abstract the application's capabilities and dependencies,
// allowing for flexible implementation and testing.
package port

import (
	"context"
	"errors"

	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
)

// ErrNoMoreItems is returned by ItemReader.Read once the source is exhausted.
var ErrNoMoreItems = errors.New("no more items to read")

// ItemReader is the interface for a data reading stage.
// O is the type of item to be read.
type ItemReader[O any] interface {
	// Open opens the source.
	Open(ctx context.Context) error
	// Read reads the next item. Returns ErrNoMoreItems if no more items are available.
	Read(ctx context.Context) (O, error)
	// Close releases the source.
	Close(ctx context.Context) error
}

// ItemProcessor is the interface for an item transformation stage.
// I is the type of input item, O is the type of output item.
type ItemProcessor[I, O any] interface {
	// Process transforms one item. It never touches a database.
	Process(ctx context.Context, item I) (O, error)
}

// ItemWriter is the interface for the write stage.
// I is the type of item to be written.
type ItemWriter[I any] interface {
	// Write persists items as one chunk of execution and updates its bookkeeping.
	//
	// Parameters:
	//   ctx: The context of the invocation; it carries the execution context holder
	//        and the lifecycle scope.
	//   execution: The execution the chunk belongs to. Its counters are updated.
	//   items: The chunk, in source order.
	//
	// Returns:
	//   error: An error if the chunk could not be committed.
	Write(ctx context.Context, execution *model.JobExecution, items []I) error
}

// Step is an executable unit of a job.
type Step interface {
	// Name returns the logical name of the step.
	Name() string
	// Execute runs the step for execution and updates its counters.
	Execute(ctx context.Context, execution *model.JobExecution) error
}

// JobLauncher launches one invocation.
type JobLauncher interface {
	// Launch returns the execution of inv. When a completed execution of inv already exists
	// it is returned as is and step is not run.
	Launch(ctx context.Context, inv model.JobInvocation, step Step) (*model.JobExecution, error)
}

type jobExecutionKey struct{}

// WithJobExecution returns a copy of ctx carrying execution.
func WithJobExecution(ctx context.Context, execution *model.JobExecution) context.Context {
	return context.WithValue(ctx, jobExecutionKey{}, execution)
}

// GetJobExecutionFromContext returns the JobExecution carried by ctx, or nil.
func GetJobExecutionFromContext(ctx context.Context) *model.JobExecution {
	je, _ := ctx.Value(jobExecutionKey{}).(*model.JobExecution)
	return je
}

// JobExecutionListener is notified around every launched execution.
type JobExecutionListener interface {
	BeforeJob(ctx context.Context, execution *model.JobExecution)
	AfterJob(ctx context.Context, execution *model.JobExecution)
}

// ChunkListener is notified around every chunk write. chunk is 1-based.
type ChunkListener interface {
	BeforeChunk(ctx context.Context, execution *model.JobExecution, chunk int)
	// AfterChunk receives the error of the chunk, nil when it committed.
	AfterChunk(ctx context.Context, execution *model.JobExecution, chunk int, err error)
}

// Fx value groups listeners are collected in.
const (
	JobListenerGroup   = "job_listeners"
	ChunkListenerGroup = "chunk_listeners"
)
