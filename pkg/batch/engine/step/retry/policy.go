// Package retry decides whether a failed chunk write is attempted again.
package retry

import (
	"context"
	"errors"
	"time"

	config "github.com/tigerroll/surfin-dualdb/pkg/batch/core/config"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/logger"
)

// MaxBackoffInterval caps the wait between two attempts.
const MaxBackoffInterval = time.Minute

// RetryPolicy defines retry logic for chunk writes.
type RetryPolicy interface {
	// ShouldRetry determines if err is worth another attempt.
	ShouldRetry(err error) bool
	// GetBackoffInterval returns the wait after the given failed attempt (starting from 1).
	GetBackoffInterval(attempt int) time.Duration
	// GetMaxAttempts returns the maximum number of attempts, the first one included.
	GetMaxAttempts() int
}

// defaultRetryPolicy retries errors flagged retryable, which are the pool acquisition
// timeouts. Nothing was written when such an error is returned, so the chunk can be
// attempted again as a whole.
type defaultRetryPolicy struct {
	maxAttempts     int
	initialInterval time.Duration
}

// NewDefaultRetryPolicy creates a policy from batch.retry. The interval doubles after
// every failed attempt.
func NewDefaultRetryPolicy(cfg config.RetryConfig) RetryPolicy {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &defaultRetryPolicy{
		maxAttempts:     maxAttempts,
		initialInterval: time.Duration(cfg.InitialIntervalMs) * time.Millisecond,
	}
}

// NoRetry attempts every chunk exactly once.
func NoRetry() RetryPolicy {
	return &defaultRetryPolicy{maxAttempts: 1}
}

func (p *defaultRetryPolicy) GetMaxAttempts() int {
	return p.maxAttempts
}

func (p *defaultRetryPolicy) ShouldRetry(err error) bool {
	var be *exception.BatchError
	return errors.As(err, &be) && be.IsRetryable()
}

func (p *defaultRetryPolicy) GetBackoffInterval(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if p.initialInterval <= 0 {
		return 0
	}
	interval := p.initialInterval
	for i := 1; i < attempt; i++ {
		if interval >= MaxBackoffInterval/2 {
			return MaxBackoffInterval
		}
		interval *= 2
	}
	return min(interval, MaxBackoffInterval)
}

// Do calls fn until it succeeds, returns an error the policy does not retry, or the
// attempts are used up. The last error is returned. Cancelling ctx stops the wait.
func Do(ctx context.Context, policy RetryPolicy, name string, fn func(attempt int) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(attempt)
		if err == nil || attempt >= policy.GetMaxAttempts() || !policy.ShouldRetry(err) {
			return err
		}

		wait := policy.GetBackoffInterval(attempt)
		logger.Warnf("%s: attempt %d of %d failed, retrying in %s: %v", name, attempt, policy.GetMaxAttempts(), wait, err)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return err
		case <-timer.C:
		}
	}
}

var _ RetryPolicy = (*defaultRetryPolicy)(nil)
