package effect

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type eventRecorder struct {
	events []AdapterEvent
}

func (r *eventRecorder) record(event AdapterEvent) {
	r.events = append(r.events, event)
}

func (r *eventRecorder) types() []EventType {
	out := make([]EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func fixedNow() time.Time {
	return time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)
}

func TestRuntimeAdapterSuccess(t *testing.T) {
	rec := &eventRecorder{}
	adapt := NewRuntimeAdapter(RuntimeConfig[string, string]{
		RunRuntime: func(ctx context.Context, e string) (string, error) {
			return e + "!", nil
		},
	}, rec.record, fixedNow)

	value, err := adapt("hello")(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "hello!", value)
	assert.Equal(t, []EventType{EventStart, EventComplete}, rec.types())
	assert.Equal(t, fixedNow(), rec.events[0].Timestamp)
}

func TestRuntimeAdapterPreAbortedSignal(t *testing.T) {
	ran := false
	rec := &eventRecorder{}
	adapt := NewRuntimeAdapter(RuntimeConfig[string, string]{
		RunRuntime: func(ctx context.Context, e string) (string, error) {
			ran = true
			return e, nil
		},
	}, rec.record, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := adapt("work")(ctx)

	assert.True(t, IsCancellationError(err))
	assert.False(t, ran, "runtime ran despite pre-aborted signal")
	assert.Empty(t, rec.events, "pre-abort rejection happens before any event")
}

func TestRuntimeAdapterCooperativeCancellation(t *testing.T) {
	var checks, cancels atomic.Int32
	ran := false

	adapt := NewRuntimeAdapter(RuntimeConfig[string, string]{
		RunRuntime: func(ctx context.Context, e string) (string, error) {
			ran = true
			return e, nil
		},
		CheckCancellation: func() bool {
			checks.Add(1)
			return true
		},
		CancelRuntime: func() {
			cancels.Add(1)
		},
	}, nil, nil)

	_, err := adapt("work")(context.Background())

	assert.True(t, IsCancellationError(err))
	assert.Equal(t, int32(1), checks.Load(), "cancellation check consulted exactly once")
	assert.Equal(t, int32(1), cancels.Load())
	assert.False(t, ran)
}

func TestRuntimeAdapterMidFlightAbort(t *testing.T) {
	adapt := NewRuntimeAdapter(RuntimeConfig[string, string]{
		RunRuntime: func(ctx context.Context, e string) (string, error) {
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(2 * time.Second):
				return e, nil
			}
		},
	}, nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	_, err := adapt("work")(ctx)

	assert.True(t, IsCancellationError(err))
	assert.Less(t, time.Since(start), time.Second, "abort win must not wait for the runtime")
}

func TestRuntimeAdapterErrorPassthrough(t *testing.T) {
	sentinel := errors.New("backend exploded")
	rec := &eventRecorder{}

	adapt := NewRuntimeAdapter(RuntimeConfig[string, string]{
		RunRuntime: func(ctx context.Context, e string) (string, error) {
			return "", sentinel
		},
	}, rec.record, nil)

	_, err := adapt("work")(context.Background())

	assert.ErrorIs(t, err, sentinel, "original error returned unchanged")
	assert.False(t, IsCancellationError(err))
	require.Equal(t, []EventType{EventStart, EventError}, rec.types())
	assert.Equal(t, "backend exploded", rec.events[1].Metadata["message"])
}

func TestRuntimeAdapterNilContext(t *testing.T) {
	adapt := NewRuntimeAdapter(RuntimeConfig[string, string]{
		RunRuntime: func(ctx context.Context, e string) (string, error) {
			require.NotNil(t, ctx)
			return e, nil
		},
	}, nil, nil)

	value, err := adapt("work")(nil)
	require.NoError(t, err)
	assert.Equal(t, "work", value)
}

func TestAdaptLibraryDelegatesToRuntime(t *testing.T) {
	rec := &eventRecorder{}
	eff := AdaptLibrary(21, func(ctx context.Context, v int) (int, error) {
		return v * 2, nil
	}, rec.record, nil)

	value, err := eff(context.Background())

	require.NoError(t, err)
	assert.Equal(t, 42, value)
	assert.Equal(t, []EventType{EventStart, EventComplete}, rec.types())
}

func TestAdaptLibraryErrorPassthrough(t *testing.T) {
	sentinel := errors.New("library failure")
	eff := AdaptLibrary("x", func(ctx context.Context, v string) (string, error) {
		return "", sentinel
	}, nil, nil)

	_, err := eff(context.Background())
	assert.ErrorIs(t, err, sentinel)
}
