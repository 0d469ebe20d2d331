package item

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	port "github.com/tigerroll/surfin-dualdb/pkg/batch/core/application/port"
	config "github.com/tigerroll/surfin-dualdb/pkg/batch/core/config"
	model "github.com/tigerroll/surfin-dualdb/pkg/batch/core/domain/model"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/engine/step/retry"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
)

type sliceReader struct {
	items   []int
	pos     int
	failAt  int
	opened  bool
	closed  bool
	openErr error
}

func (r *sliceReader) Open(ctx context.Context) error {
	if r.openErr != nil {
		return r.openErr
	}
	r.opened = true
	return nil
}

func (r *sliceReader) Read(ctx context.Context) (int, error) {
	if r.failAt > 0 && r.pos+1 == r.failAt {
		return 0, exception.NewValidationError("test", "bad row")
	}
	if r.pos >= len(r.items) {
		return 0, port.ErrNoMoreItems
	}
	r.pos++
	return r.items[r.pos-1], nil
}

func (r *sliceReader) Close(ctx context.Context) error {
	r.closed = true
	return nil
}

type itoa struct{}

func (itoa) Process(ctx context.Context, item int) (string, error) {
	return strconv.Itoa(item), nil
}

type recordingWriter struct {
	chunks [][]string
	err    error
	panic  bool
}

func (w *recordingWriter) Write(ctx context.Context, execution *model.JobExecution, items []string) error {
	if w.panic {
		panic("boom")
	}
	if w.err != nil {
		return w.err
	}
	w.chunks = append(w.chunks, append([]string(nil), items...))
	execution.WriteCount += len(items)
	execution.CommitCount++
	return nil
}

type recordingListener struct {
	before []int
	after  []error
}

func (l *recordingListener) BeforeChunk(ctx context.Context, execution *model.JobExecution, chunk int) {
	l.before = append(l.before, chunk)
}

func (l *recordingListener) AfterChunk(ctx context.Context, execution *model.JobExecution, chunk int, err error) {
	l.after = append(l.after, err)
}

func items(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

func TestChunkStepWritesInOrderedChunks(t *testing.T) {
	r := &sliceReader{items: items(7)}
	w := &recordingWriter{}
	l := &recordingListener{}
	step := NewChunkStep[int, string]("test", r, itoa{}, w, 3, nil, nil, l)
	assert.Equal(t, "test", step.Name())
	assert.Equal(t, 3, step.ChunkSize())

	execution := &model.JobExecution{}
	require.NoError(t, step.Execute(context.Background(), execution))

	assert.Equal(t, [][]string{{"1", "2", "3"}, {"4", "5", "6"}, {"7"}}, w.chunks)
	assert.Equal(t, 7, execution.ReadCount)
	assert.Equal(t, 7, execution.WriteCount)
	assert.Equal(t, 3, execution.CommitCount)
	assert.Equal(t, []int{1, 2, 3}, l.before)
	assert.Equal(t, []error{nil, nil, nil}, l.after)
	assert.True(t, r.closed)
}

func TestChunkStepExactMultipleAndEmpty(t *testing.T) {
	w := &recordingWriter{}
	step := NewChunkStep[int, string]("test", &sliceReader{items: items(4)}, itoa{}, w, 2, nil, nil)
	require.NoError(t, step.Execute(context.Background(), &model.JobExecution{}))
	assert.Len(t, w.chunks, 2)

	w = &recordingWriter{}
	step = NewChunkStep[int, string]("test", &sliceReader{}, itoa{}, w, 2, nil, nil)
	require.NoError(t, step.Execute(context.Background(), &model.JobExecution{}))
	assert.Empty(t, w.chunks)
}

func TestChunkStepDefaultsChunkSize(t *testing.T) {
	step := NewChunkStep[int, string]("test", &sliceReader{}, itoa{}, &recordingWriter{}, 0, nil, nil)
	assert.Equal(t, DefaultChunkSize, step.ChunkSize())
}

func TestChunkStepStopsAtReadError(t *testing.T) {
	r := &sliceReader{items: items(5), failAt: 4}
	w := &recordingWriter{}
	step := NewChunkStep[int, string]("test", r, itoa{}, w, 2, nil, nil)

	execution := &model.JobExecution{}
	err := step.Execute(context.Background(), execution)
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindValidation))
	assert.Equal(t, [][]string{{"1", "2"}}, w.chunks, "chunks before the bad row stay committed")
	assert.Equal(t, 3, execution.ReadCount)
	assert.True(t, r.closed)
}

func TestChunkStepReportsWriteError(t *testing.T) {
	boom := exception.NewWriteError("test", "insert failed", errors.New("constraint"))
	l := &recordingListener{}
	r := &sliceReader{items: items(3)}
	step := NewChunkStep[int, string]("test", r, itoa{}, &recordingWriter{err: boom}, 2, nil, nil, l)

	err := step.Execute(context.Background(), &model.JobExecution{})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []int{1}, l.before)
	require.Len(t, l.after, 1)
	assert.ErrorIs(t, l.after[0], boom)
	assert.True(t, r.closed)
}

func TestChunkStepRecoversWriterPanic(t *testing.T) {
	step := NewChunkStep[int, string]("test", &sliceReader{items: items(1)}, itoa{}, &recordingWriter{panic: true}, 2, nil, nil)
	err := step.Execute(context.Background(), &model.JobExecution{})
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindWrite))
}

func TestChunkStepOpenFailure(t *testing.T) {
	openErr := errors.New("cannot open")
	r := &sliceReader{openErr: openErr}
	step := NewChunkStep[int, string]("test", r, itoa{}, &recordingWriter{}, 2, nil, nil)
	assert.ErrorIs(t, step.Execute(context.Background(), &model.JobExecution{}), openErr)
	assert.False(t, r.closed)
}

func TestChunkStepHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	step := NewChunkStep[int, string]("test", &sliceReader{items: items(3)}, itoa{}, &recordingWriter{}, 2, nil, nil)
	assert.ErrorIs(t, step.Execute(ctx, &model.JobExecution{}), context.Canceled)
}

type flakyWriter struct {
	failures int
	calls    int
}

func (w *flakyWriter) Write(ctx context.Context, execution *model.JobExecution, items []string) error {
	w.calls++
	if w.calls <= w.failures {
		return exception.NewResourceExhaustedError("test", "no connection available", nil)
	}
	execution.WriteCount += len(items)
	return nil
}

func TestChunkStepRetriesExhaustedPool(t *testing.T) {
	w := &flakyWriter{failures: 2}
	l := &recordingListener{}
	step := NewChunkStep[int, string]("test", &sliceReader{items: items(2)}, itoa{}, w, 5, nil, nil, l).
		WithRetryPolicy(retry.NewDefaultRetryPolicy(config.RetryConfig{MaxAttempts: 3, InitialIntervalMs: 1}))

	execution := &model.JobExecution{}
	require.NoError(t, step.Execute(context.Background(), execution))
	assert.Equal(t, 3, w.calls)
	assert.Equal(t, 2, execution.WriteCount)
	assert.Equal(t, []int{1}, l.before, "listeners see one chunk however many attempts it takes")
	assert.Equal(t, []error{nil}, l.after)
}

func TestChunkStepWithoutRetryFailsOnce(t *testing.T) {
	w := &flakyWriter{failures: 1}
	step := NewChunkStep[int, string]("test", &sliceReader{items: items(2)}, itoa{}, w, 5, nil, nil)

	err := step.Execute(context.Background(), &model.JobExecution{})
	require.Error(t, err)
	assert.True(t, exception.IsKind(err, exception.KindResourceExhausted))
	assert.Equal(t, 1, w.calls)
}
