// Package exception provides the error types shared by every layer of surfin-dualdb.
// Errors are classified by ErrorKind so that callers (the orchestrator, the HTTP layer,
// the CLI) can decide how to report them without string matching.
package exception

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// ErrorKind classifies a BatchError.
type ErrorKind int

const (
	// KindUnknown is used for errors that were not classified at their origin.
	KindUnknown ErrorKind = iota
	// KindValidation covers bad input detected before any resource is provisioned.
	KindValidation
	// KindProvisioning covers pool or persistence context creation failures.
	KindProvisioning
	// KindWrite covers persistence failures other than metadata races.
	KindWrite
	// KindMetadataRace covers optimistic locking failures on bookkeeping rows.
	KindMetadataRace
	// KindUniqueness is raised when an invocation id collided with a prior completed run.
	KindUniqueness
	// KindConfiguration covers wiring bugs: unknown pools, diverging contexts, writes before provisioning.
	KindConfiguration
	// KindResourceExhausted is raised when a pooled connection could not be acquired in time.
	KindResourceExhausted
)

var kindNames = map[ErrorKind]string{
	KindUnknown:           "Unknown",
	KindValidation:        "ValidationError",
	KindProvisioning:      "ProvisioningError",
	KindWrite:             "WriteError",
	KindMetadataRace:      "MetadataRaceWarning",
	KindUniqueness:        "UniquenessViolation",
	KindConfiguration:     "ConfigurationError",
	KindResourceExhausted: "ResourceExhausted",
}

// String returns the name of the kind.
func (k ErrorKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// BatchError is the error type raised by surfin-dualdb components.
type BatchError struct {
	// Module indicates where the error occurred (e.g., "orchestrator", "writer", "lifecycle").
	Module string
	// Message is a concise, human-readable description.
	Message string
	// OriginalErr is the wrapped cause, if any.
	OriginalErr error
	// Kind classifies the error.
	Kind ErrorKind
	// StackTrace is captured at construction time for debugging.
	StackTrace  string
	isRetryable bool
}

// NewBatchError creates a BatchError of the given kind.
func NewBatchError(module string, kind ErrorKind, message string, originalErr error) *BatchError {
	buf := make([]byte, 2048)
	n := runtime.Stack(buf, false)

	return &BatchError{
		Module:      module,
		Message:     message,
		OriginalErr: originalErr,
		Kind:        kind,
		StackTrace:  string(buf[:n]),
		isRetryable: kind == KindResourceExhausted,
	}
}

// NewBatchErrorf creates a BatchError with a formatted message.
// If the last argument is an error it becomes OriginalErr and is not used for formatting.
func NewBatchErrorf(module string, kind ErrorKind, format string, a ...interface{}) *BatchError {
	var originalErr error
	if len(a) > 0 {
		if err, ok := a[len(a)-1].(error); ok {
			originalErr = err
			a = a[:len(a)-1]
		}
	}
	return NewBatchError(module, kind, fmt.Sprintf(format, a...), originalErr)
}

// NewValidationError reports bad input. No resources have been touched when it is raised.
func NewValidationError(module, message string) *BatchError {
	return NewBatchError(module, KindValidation, message, nil)
}

// NewProvisioningError reports a failure to create a pool or persistence context.
func NewProvisioningError(module, message string, originalErr error) *BatchError {
	return NewBatchError(module, KindProvisioning, message, originalErr)
}

// NewWriteError reports a persistence failure after which the transaction was rolled back.
func NewWriteError(module, message string, originalErr error) *BatchError {
	return NewBatchError(module, KindWrite, message, originalErr)
}

// NewUniquenessViolation reports that a launch returned a prior completed execution.
func NewUniquenessViolation(module, message string) *BatchError {
	return NewBatchError(module, KindUniqueness, message, nil)
}

// NewConfigurationError reports a wiring or sequencing bug.
func NewConfigurationError(module, message string, originalErr error) *BatchError {
	return NewBatchError(module, KindConfiguration, message, originalErr)
}

// NewResourceExhaustedError reports that no pooled connection became available in time.
func NewResourceExhaustedError(module, message string, originalErr error) *BatchError {
	return NewBatchError(module, KindResourceExhausted, message, originalErr)
}

// OptimisticLockingFailureException is the name of the optimistic locking sentinel.
const OptimisticLockingFailureException = "OptimisticLockingFailureException"

// ErrOptimisticLockingFailure is the sentinel wrapped by every optimistic locking failure.
var ErrOptimisticLockingFailure = errors.New(OptimisticLockingFailureException)

// NewOptimisticLockingFailureException reports a versioned update that matched no row.
// The result is of kind KindMetadataRace and matches ErrOptimisticLockingFailure via errors.Is.
func NewOptimisticLockingFailureException(module, message string, originalErr error) *BatchError {
	errToWrap := ErrOptimisticLockingFailure
	if originalErr != nil {
		errToWrap = errors.Join(ErrOptimisticLockingFailure, originalErr)
	}
	return NewBatchError(module, KindMetadataRace, message, errToWrap)
}

// Error implements the error interface.
func (e *BatchError) Error() string {
	if e.OriginalErr != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Module, e.Message, e.OriginalErr)
	}
	return fmt.Sprintf("[%s] %s", e.Module, e.Message)
}

// Unwrap returns the original error for errors.Is / errors.As.
func (e *BatchError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable reports whether retrying the same operation may succeed.
func (e *BatchError) IsRetryable() bool {
	return e.isRetryable
}

// KindOf returns the kind of the outermost BatchError in err's chain, or KindUnknown.
func KindOf(err error) ErrorKind {
	var be *BatchError
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindUnknown
}

// IsKind reports whether any BatchError in err's chain has the given kind.
func IsKind(err error, kind ErrorKind) bool {
	for err != nil {
		if be, ok := err.(*BatchError); ok && be.Kind == kind {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}

// IsBatchError reports whether err is a *BatchError.
func IsBatchError(err error) bool {
	var be *BatchError
	return errors.As(err, &be)
}

// IsOptimisticLockingFailure reports whether err wraps ErrOptimisticLockingFailure.
func IsOptimisticLockingFailure(err error) bool {
	if err == nil {
		return false
	}
	return errors.Is(err, ErrOptimisticLockingFailure)
}

// IsCallerCorrectable reports whether the caller should fix the input and retry,
// as opposed to an infrastructure failure.
func IsCallerCorrectable(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindUniqueness:
		return true
	default:
		return false
	}
}

// IsTemporary reports whether err looks transient.
func IsTemporary(err error) bool {
	if err == nil {
		return false
	}
	var be *BatchError
	if errors.As(err, &be) && be.IsRetryable() {
		return true
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "connection refused")
}

// ExtractErrorMessage returns BatchError.Message for a BatchError, else err.Error().
func ExtractErrorMessage(err error) string {
	if err == nil {
		return ""
	}
	var be *BatchError
	if errors.As(err, &be) {
		return be.Message
	}
	return err.Error()
}
