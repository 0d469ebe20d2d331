package exception_test

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tigerroll/surfin-dualdb/pkg/batch/support/util/exception"
)

func TestNewBatchError(t *testing.T) {
	originalErr := errors.New("db connection refused")
	be := exception.NewProvisioningError("lifecycle", "failed to connect", originalErr)

	assert.Equal(t, "lifecycle", be.Module)
	assert.Equal(t, "failed to connect", be.Message)
	assert.Equal(t, exception.KindProvisioning, be.Kind)
	assert.Equal(t, originalErr, be.Unwrap())
	assert.False(t, be.IsRetryable())
	assert.Equal(t, "[lifecycle] failed to connect: db connection refused", be.Error())
	assert.NotEmpty(t, be.StackTrace)
}

func TestNewBatchErrorf(t *testing.T) {
	be := exception.NewBatchErrorf("reader", exception.KindValidation, "line %d is malformed", 10)
	assert.Nil(t, be.Unwrap())
	assert.Equal(t, "[reader] line 10 is malformed", be.Error())

	cause := errors.New("io error")
	be = exception.NewBatchErrorf("reader", exception.KindWrite, "read of %s failed", "a.csv", cause)
	assert.Equal(t, "read of a.csv failed", be.Message)
	assert.Equal(t, cause, be.Unwrap())
}

func TestKinds(t *testing.T) {
	wrapped := fmt.Errorf("outer: %w", exception.NewUniquenessViolation("orchestrator", "stale"))
	assert.Equal(t, exception.KindUniqueness, exception.KindOf(wrapped))
	assert.True(t, exception.IsKind(wrapped, exception.KindUniqueness))
	assert.False(t, exception.IsKind(wrapped, exception.KindWrite))
	assert.True(t, exception.IsBatchError(wrapped))

	assert.Equal(t, exception.KindUnknown, exception.KindOf(errors.New("plain")))
	assert.False(t, exception.IsBatchError(errors.New("plain")))

	inner := exception.NewOptimisticLockingFailureException("repository", "version mismatch", nil)
	outer := exception.NewWriteError("writer", "bookkeeping failed", inner)
	assert.Equal(t, exception.KindWrite, exception.KindOf(outer))
	assert.True(t, exception.IsKind(outer, exception.KindMetadataRace))

	assert.Equal(t, "ValidationError", exception.KindValidation.String())
	assert.Equal(t, "ErrorKind(99)", exception.ErrorKind(99).String())
}

func TestOptimisticLockingFailure(t *testing.T) {
	err := exception.NewOptimisticLockingFailureException("repository", "no row matched", errors.New("0 rows"))
	assert.True(t, exception.IsOptimisticLockingFailure(err))
	assert.True(t, errors.Is(err, exception.ErrOptimisticLockingFailure))
	assert.Equal(t, exception.KindMetadataRace, err.Kind)

	assert.False(t, exception.IsOptimisticLockingFailure(nil))
	assert.False(t, exception.IsOptimisticLockingFailure(errors.New("other")))
}

func TestIsCallerCorrectable(t *testing.T) {
	assert.True(t, exception.IsCallerCorrectable(exception.NewValidationError("m", "bad file")))
	assert.True(t, exception.IsCallerCorrectable(exception.NewUniquenessViolation("m", "stale")))
	assert.False(t, exception.IsCallerCorrectable(exception.NewWriteError("m", "x", nil)))
}

func TestIsTemporary(t *testing.T) {
	assert.True(t, exception.IsTemporary(exception.NewResourceExhaustedError("m", "no connection", nil)))
	assert.True(t, exception.IsTemporary(fmt.Errorf("wrap: %w", context.DeadlineExceeded)))
	assert.True(t, exception.IsTemporary(errors.New("dial tcp: connection refused")))
	assert.False(t, exception.IsTemporary(errors.New("syntax error")))
	assert.False(t, exception.IsTemporary(nil))
}

func TestExtractErrorMessage(t *testing.T) {
	assert.Equal(t, "", exception.ExtractErrorMessage(nil))
	assert.Equal(t, "bad file", exception.ExtractErrorMessage(exception.NewValidationError("m", "bad file")))
	assert.Equal(t, "plain", exception.ExtractErrorMessage(errors.New("plain")))
}
