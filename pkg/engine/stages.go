package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/flowgate/flowgate/pkg/domain"
)

// registerBuiltinStages installs the stage types every deployment gets for
// free. They cover plan wiring and smoke-testing; real work comes from
// caller-registered factories.
func registerBuiltinStages(r *StageRegistry, logger *slog.Logger) {
	r.Register("passthrough", "v1", func(map[string]any) (domain.StageFunc, error) {
		return func(context.Context, domain.SlotMap) domain.StageResult {
			return domain.StageSuccess(nil)
		}, nil
	})

	r.Register("static.slots", "v1", staticSlotsFactory, "static")
	r.Register("terminal.fail", "v1", failFactory, "fail")
	r.Register("delay", "v1", delayFactory(logger), "sleep")
}

// staticSlotsFactory produces the slots listed under config "slots" verbatim.
func staticSlotsFactory(config map[string]any) (domain.StageFunc, error) {
	raw, ok := config["slots"].(map[string]any)
	if !ok {
		return nil, fmt.Errorf("static.slots requires a \"slots\" mapping")
	}
	slots := make(domain.SlotMap, len(raw))
	for k, v := range raw {
		slots[domain.SlotKey(k)] = v
	}
	return func(context.Context, domain.SlotMap) domain.StageResult {
		return domain.StageSuccess(slots.Clone())
	}, nil
}

// failFactory always fails with the configured reason.
func failFactory(config map[string]any) (domain.StageFunc, error) {
	reason, _ := config["reason"].(string)
	if reason == "" {
		reason = "terminal.fail stage reached"
	}
	return func(context.Context, domain.SlotMap) domain.StageResult {
		return domain.StageFailure(reason)
	}, nil
}

// delayFactory sleeps for duration_ms, honouring cancellation, then succeeds
// with any configured slots. Useful for exercising timeouts and parallelism.
func delayFactory(logger *slog.Logger) StageFactory {
	return func(config map[string]any) (domain.StageFunc, error) {
		ms, ok := coerceInt(config["duration_ms"])
		if !ok || ms < 0 {
			return nil, fmt.Errorf("delay requires a non-negative \"duration_ms\"")
		}

		var slots domain.SlotMap
		if raw, ok := config["slots"].(map[string]any); ok {
			slots = make(domain.SlotMap, len(raw))
			for k, v := range raw {
				slots[domain.SlotKey(k)] = v
			}
		}

		return func(ctx context.Context, _ domain.SlotMap) domain.StageResult {
			select {
			case <-ctx.Done():
				logger.Debug("delay stage interrupted", "error", ctx.Err())
				return domain.StageFailure(fmt.Sprintf("delay interrupted: %v", ctx.Err()))
			case <-time.After(time.Duration(ms) * time.Millisecond):
				return domain.StageSuccess(slots.Clone())
			}
		}, nil
	}
}

func coerceInt(value any) (int, bool) {
	switch v := value.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	case string:
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}
