package effect

import (
	"context"
	"fmt"
)

// WithTimeout wraps an Effect, racing it against a wall-clock timer and the
// caller's context. Timeout expiry yields an AdapterTimeoutError, invokes
// cancelEffect best effort, and emits an error event whose metadata carries
// both the message and the configured timeout. Failure to cancel the
// underlying work never delays the timeout result.
func WithTimeout[T any](inner Effect[T], timeoutMs int, onEvent EventFunc, now NowFunc, cancelEffect func()) Effect[T] {
	return func(ctx context.Context) (T, error) {
		var zero T

		if IsAborted(ctx) {
			return zero, NewCancellationError("signal already aborted")
		}

		emit(onEvent, now, EventStart, map[string]any{"timeout_ms": timeoutMs})

		type settled struct {
			value T
			err   error
		}
		done := make(chan settled, 1)
		go func() {
			value, err := inner(orBackground(ctx))
			done <- settled{value: value, err: err}
		}()

		timeout := TimeoutWatch(timeoutMs, fmt.Sprintf("effect timed out after %dms", timeoutMs))
		defer timeout.Cleanup()
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
		case err := <-timeout.C:
			if cancelEffect != nil {
				go cancelEffect()
			}
			emit(onEvent, now, EventError, map[string]any{
				"message":    coerceMessage(err),
				"timeout_ms": timeoutMs,
			})
			return zero, err
		case err := <-abort.C:
			emit(onEvent, now, EventError, map[string]any{"message": coerceMessage(err)})
			return zero, err
		}
	}
}
