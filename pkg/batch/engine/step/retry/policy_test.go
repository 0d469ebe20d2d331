package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	config "github.com/tigerroll/surfin-dualdb/pkg/batch/core/config"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
)

func TestDefaultRetryPolicy(t *testing.T) {
	p := NewDefaultRetryPolicy(config.RetryConfig{MaxAttempts: 4, InitialIntervalMs: 100})
	assert.Equal(t, 4, p.GetMaxAttempts())
	assert.Equal(t, 100*time.Millisecond, p.GetBackoffInterval(1))
	assert.Equal(t, 200*time.Millisecond, p.GetBackoffInterval(2))
	assert.Equal(t, 400*time.Millisecond, p.GetBackoffInterval(3))

	assert.True(t, p.ShouldRetry(exception.NewResourceExhaustedError("tx", "pool exhausted", nil)))
	assert.False(t, p.ShouldRetry(exception.NewWriteError("writer", "insert failed", nil)))
	assert.False(t, p.ShouldRetry(errors.New("timeout")))
	assert.False(t, p.ShouldRetry(nil))

	assert.Equal(t, 1, NewDefaultRetryPolicy(config.RetryConfig{}).GetMaxAttempts())
	assert.Equal(t, 1, NoRetry().GetMaxAttempts())
}

func TestBackoffIntervalIsCapped(t *testing.T) {
	p := NewDefaultRetryPolicy(config.RetryConfig{MaxAttempts: 1000, InitialIntervalMs: 200})
	assert.Equal(t, 51200*time.Millisecond, p.GetBackoffInterval(9))
	assert.Equal(t, MaxBackoffInterval, p.GetBackoffInterval(10))
	assert.Equal(t, MaxBackoffInterval, p.GetBackoffInterval(64))
	assert.Equal(t, MaxBackoffInterval, p.GetBackoffInterval(1000))

	assert.Equal(t, time.Duration(0), NoRetry().GetBackoffInterval(5))
}

func TestDoRetriesRetryableErrors(t *testing.T) {
	p := NewDefaultRetryPolicy(config.RetryConfig{MaxAttempts: 3, InitialIntervalMs: 1})
	exhausted := exception.NewResourceExhaustedError("tx", "pool exhausted", nil)

	calls := 0
	err := Do(context.Background(), p, "test", func(attempt int) error {
		calls++
		if attempt < 3 {
			return exhausted
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = Do(context.Background(), p, "test", func(int) error {
		calls++
		return exhausted
	})
	assert.ErrorIs(t, err, exhausted)
	assert.Equal(t, 3, calls)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	p := NewDefaultRetryPolicy(config.RetryConfig{MaxAttempts: 5, InitialIntervalMs: 1})
	permanent := exception.NewWriteError("writer", "insert failed", nil)

	calls := 0
	err := Do(context.Background(), p, "test", func(int) error {
		calls++
		return permanent
	})
	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDoStopsWhenCancelled(t *testing.T) {
	p := NewDefaultRetryPolicy(config.RetryConfig{MaxAttempts: 5, InitialIntervalMs: 60000})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := Do(ctx, p, "test", func(int) error {
		calls++
		return exception.NewResourceExhaustedError("tx", "pool exhausted", nil)
	})
	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}
