package effect

import (
	"context"
	"fmt"
)

// Effect is the universal contract every adapter produces: a cancellable
// invocation that settles exactly once with a value or an error. The context
// plays the role of the cancel signal; a nil context behaves like an
// unsignaled one.
type Effect[T any] func(ctx context.Context) (T, error)

// RuntimeConfig describes a cooperative-cancellation runtime that the
// adapter bridges into the Effect contract.
type RuntimeConfig[E, T any] struct {
	// RunRuntime executes one runtime effect to completion. Required.
	RunRuntime func(ctx context.Context, runtimeEffect E) (T, error)
	// CheckCancellation, when set, is consulted exactly once per invocation
	// before the runtime is started. A true result cancels the invocation.
	CheckCancellation func() bool
	// CancelRuntime, when set, is invoked after a positive cancellation
	// check. Best effort; its outcome does not change the returned error.
	CancelRuntime func()
}

// NewRuntimeAdapter returns a factory converting runtime effects into
// Effects. Each produced Effect, on invocation: fails fast with a
// CancellationError if the context is already canceled, emits a start event,
// consults CheckCancellation once, then races the runtime against the
// context. Success emits complete; every failure emits error with a
// string-coerced message, and the original error is returned unchanged.
func NewRuntimeAdapter[E, T any](config RuntimeConfig[E, T], onEvent EventFunc, now NowFunc) func(runtimeEffect E) Effect[T] {
	return func(runtimeEffect E) Effect[T] {
		return func(ctx context.Context) (T, error) {
			var zero T

			if IsAborted(ctx) {
				return zero, NewCancellationError("signal already aborted")
			}

			emit(onEvent, now, EventStart, map[string]any{"adapter": "runtime"})

			if config.CheckCancellation != nil && config.CheckCancellation() {
				if config.CancelRuntime != nil {
					config.CancelRuntime()
				}
				err := NewCancellationError("cooperative cancellation requested")
				emit(onEvent, now, EventError, map[string]any{"message": err.Error()})
				return zero, err
			}

			type settled struct {
				value T
				err   error
			}
			done := make(chan settled, 1)
			go func() {
				value, err := config.RunRuntime(orBackground(ctx), runtimeEffect)
				done <- settled{value: value, err: err}
			}()

			abort := AbortWatch(ctx, "aborted while running")
			defer abort.Cleanup()

			select {
			case out := <-done:
				if out.err != nil {
					emit(onEvent, now, EventError, map[string]any{"message": coerceMessage(out.err)})
					return zero, out.err
				}
				emit(onEvent, now, EventComplete, nil)
				return out.value, nil
			case err := <-abort.C:
				emit(onEvent, now, EventError, map[string]any{"message": coerceMessage(err)})
				return zero, err
			}
		}
	}
}

// AdaptLibrary bridges a third-party effect value by delegating to the
// injected runtime's RunPromise. The core keeps no hard dependency on any
// effect-system library; interop lives entirely behind this seam.
func AdaptLibrary[E, T any](value E, runPromise func(ctx context.Context, value E) (T, error), onEvent EventFunc, now NowFunc) Effect[T] {
	return func(ctx context.Context) (T, error) {
		var zero T

		if IsAborted(ctx) {
			return zero, NewCancellationError("signal already aborted")
		}

		emit(onEvent, now, EventStart, map[string]any{"adapter": "library"})

		value, err := runPromise(orBackground(ctx), value)
		if err != nil {
			emit(onEvent, now, EventError, map[string]any{"message": coerceMessage(err)})
			return zero, err
		}
		emit(onEvent, now, EventComplete, nil)
		return value, nil
	}
}

func orBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}

func coerceMessage(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprint(err)
}
