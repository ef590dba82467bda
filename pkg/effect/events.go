package effect

import (
	"context"
	"time"

	"github.com/flowgate/flowgate/pkg/telemetry"
)

// EventType tags adapter lifecycle events.
type EventType string

const (
	// EventStart marks the beginning of an effect invocation.
	EventStart EventType = "start"
	// EventComplete marks a successful settlement.
	EventComplete EventType = "complete"
	// EventError marks any failed settlement, including cancellation and
	// timeout.
	EventError EventType = "error"
)

// AdapterEvent is the sole observable telemetry surface of the adapter
// layer. Metadata carries string-coerced detail; slot or payload values
// never appear here.
type AdapterEvent struct {
	Type      EventType
	Timestamp time.Time
	Metadata  map[string]any
}

// EventFunc receives adapter events. A nil EventFunc disables emission.
type EventFunc func(AdapterEvent)

// NowFunc supplies event timestamps; tests inject a fixed clock.
type NowFunc func() time.Time

// TelemetryEvents returns an EventFunc that counts adapter events through
// the process meter. Callers compose it with their own sink when they want
// both.
func TelemetryEvents(ctx context.Context) EventFunc {
	return func(event AdapterEvent) {
		telemetry.RecordAdapterEvent(ctx, string(event.Type))
	}
}

func emit(onEvent EventFunc, now NowFunc, eventType EventType, metadata map[string]any) {
	if onEvent == nil {
		return
	}
	ts := time.Now()
	if now != nil {
		ts = now()
	}
	onEvent(AdapterEvent{Type: eventType, Timestamp: ts, Metadata: metadata})
}
