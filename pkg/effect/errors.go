package effect

import (
	"errors"
	"fmt"
)

// CancellationError reports that an effect was stopped before completion,
// whether by a pre-canceled context, a mid-flight abort, or a cooperative
// cancellation check.
type CancellationError struct {
	Reason string
}

func (e *CancellationError) Error() string {
	if e.Reason == "" {
		return "effect canceled"
	}
	return fmt.Sprintf("effect canceled: %s", e.Reason)
}

// NewCancellationError constructs a CancellationError with the given reason.
func NewCancellationError(reason string) *CancellationError {
	return &CancellationError{Reason: reason}
}

// IsCancellationError reports whether err is, or wraps, a CancellationError.
func IsCancellationError(err error) bool {
	var target *CancellationError
	return errors.As(err, &target)
}

// AdapterTimeoutError reports that a wrapped effect exceeded its deadline.
type AdapterTimeoutError struct {
	TimeoutMs int
	Message   string
}

func (e *AdapterTimeoutError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("effect timed out after %dms", e.TimeoutMs)
}

// IsAdapterTimeoutError reports whether err is, or wraps, an
// AdapterTimeoutError.
func IsAdapterTimeoutError(err error) bool {
	var target *AdapterTimeoutError
	return errors.As(err, &target)
}
