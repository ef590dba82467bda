package effect

import (
	"context"
	"sync"
	"time"
)

// IsAborted reports whether the context has already been canceled or timed
// out. A nil context is never aborted.
func IsAborted(ctx context.Context) bool {
	if ctx == nil {
		return false
	}
	return ctx.Err() != nil
}

// Watch delivers at most one error on C. Cleanup releases the underlying
// timer or listener and may be called any number of times.
type Watch struct {
	C       <-chan error
	cleanup func()
	once    sync.Once
}

// Cleanup releases the watch's resources. Idempotent.
func (w *Watch) Cleanup() {
	w.once.Do(w.cleanup)
}

// AbortWatch observes a context and delivers a CancellationError when it is
// canceled. With a nil context the channel never delivers. A pre-canceled
// context delivers immediately.
func AbortWatch(ctx context.Context, message string) *Watch {
	if message == "" {
		message = "operation aborted"
	}

	ch := make(chan error, 1)

	if ctx == nil {
		return &Watch{C: ch, cleanup: func() {}}
	}
	if ctx.Err() != nil {
		ch <- NewCancellationError(message)
		return &Watch{C: ch, cleanup: func() {}}
	}

	stop := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			ch <- NewCancellationError(message)
		case <-stop:
		}
	}()

	return &Watch{C: ch, cleanup: func() { close(stop) }}
}

// TimeoutWatch delivers an AdapterTimeoutError after timeoutMs milliseconds.
// Cleanup stops the underlying timer.
func TimeoutWatch(timeoutMs int, message string) *Watch {
	ch := make(chan error, 1)
	timer := time.AfterFunc(time.Duration(timeoutMs)*time.Millisecond, func() {
		ch <- &AdapterTimeoutError{TimeoutMs: timeoutMs, Message: message}
	})
	return &Watch{C: ch, cleanup: func() { timer.Stop() }}
}
