package telemetry

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
)

func TestSetupProviderNoEndpointIsNoop(t *testing.T) {
	shutdown, err := SetupProvider(context.Background(), Config{ServiceName: "flowgate"})
	if err != nil {
		t.Fatalf("SetupProvider: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("noop shutdown: %v", err)
	}
}

func TestRedactAttributesDropsSlotPayloads(t *testing.T) {
	attrs := RedactAttributes(
		attribute.String("plan.version", "abc123"),
		attribute.String("slot.value", "secret"),
		attribute.String("slots.initial", "secret"),
		attribute.String("slots.produced", "secret"),
		attribute.String("stage.deps", "secret"),
		attribute.Int("plan.stages", 3),
	)

	if len(attrs) != 2 {
		t.Fatalf("kept %d attributes, want 2: %v", len(attrs), attrs)
	}
	for _, kv := range attrs {
		switch string(kv.Key) {
		case "plan.version", "plan.stages":
		default:
			t.Errorf("unexpected attribute survived redaction: %s", kv.Key)
		}
	}
}
