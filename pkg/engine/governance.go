package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/flowgate/flowgate/internal/governance"
	"github.com/flowgate/flowgate/pkg/domain"
)

// stageGovernor wraps stage invocations with the per-stage timeout, retry,
// and circuit-breaker behaviour configured on the pipeline.
type stageGovernor struct {
	logger   *slog.Logger
	breakers *governance.CircuitBreakerManager
}

func newStageGovernor(logger *slog.Logger) *stageGovernor {
	return &stageGovernor{
		logger:   logger,
		breakers: governance.NewCircuitBreakerManager(),
	}
}

// run invokes a stage under governance and returns its result plus the
// number of retries performed.
func (g *stageGovernor) run(ctx context.Context, plan *domain.ExecutionPlan, cfg domain.PipelineConfig, stage domain.StagePlugin, deps domain.SlotMap) (domain.StageResult, int) {
	var breaker *governance.CircuitBreaker
	if cfg.CircuitBreakerEnabled {
		breaker = g.breakers.Get(breakerKey(plan, stage))
	}

	policy := buildRetryPolicy(cfg.StageRetries)

	attempt := 0
	retries := 0
	for {
		if breaker != nil {
			if err := breaker.Allow(); err != nil {
				return domain.StageFailure(fmt.Sprintf("stage %s blocked: %v", stage.ID, err)), retries
			}
		}

		result := g.invoke(ctx, cfg, stage, deps)
		if breaker != nil {
			breaker.Record(result.OK)
		}

		if result.OK || policy == nil || !policy.ShouldRetry(attempt) || ctx.Err() != nil {
			return result, retries
		}

		delay := policy.CalculateBackoff(attempt)
		attempt++
		retries++
		g.logger.Debug("retrying stage", "stage_id", stage.ID, "attempt", attempt, "backoff", delay)

		select {
		case <-ctx.Done():
			return result, retries
		case <-time.After(delay):
		}
	}
}

// invoke races the stage function against the per-stage deadline. A stage
// that ignores its context still cannot stall the run past the deadline;
// its goroutine is abandoned and the timeout failure is surfaced instead.
func (g *stageGovernor) invoke(ctx context.Context, cfg domain.PipelineConfig, stage domain.StagePlugin, deps domain.SlotMap) domain.StageResult {
	attemptCtx := ctx
	var cancel context.CancelFunc
	if cfg.StageTimeoutMs > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, time.Duration(cfg.StageTimeoutMs)*time.Millisecond)
		defer cancel()
	}

	done := make(chan domain.StageResult, 1)
	go func() {
		done <- stage.Run(attemptCtx, deps)
	}()

	select {
	case result := <-done:
		return result
	case <-attemptCtx.Done():
		if attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil {
			return domain.StageFailure(fmt.Sprintf("%v: stage %s exceeded %dms", governance.ErrStageTimeout, stage.ID, cfg.StageTimeoutMs))
		}
		return domain.StageFailure(fmt.Sprintf("stage %s interrupted: %v", stage.ID, attemptCtx.Err()))
	}
}

func buildRetryPolicy(spec domain.PipelineRetryConfig) *governance.RetryPolicy {
	if spec.MaxAttempts <= 1 {
		return nil
	}

	cfg := governance.DefaultRetryConfig()
	cfg.MaxRetries = spec.MaxAttempts - 1
	if spec.BaseMS > 0 {
		cfg.InitialBackoff = time.Duration(spec.BaseMS) * time.Millisecond
	}
	if spec.MaxMS > 0 {
		cfg.MaxBackoff = time.Duration(spec.MaxMS) * time.Millisecond
	}
	switch strings.ToLower(spec.Backoff) {
	case "fixed", "linear":
		cfg.BackoffMultiplier = 1.0
	default:
		cfg.BackoffMultiplier = 2.0
	}

	return governance.NewRetryPolicy(cfg)
}

func breakerKey(plan *domain.ExecutionPlan, stage domain.StagePlugin) string {
	return fmt.Sprintf("%s:%s", plan.Version, stage.ID)
}
