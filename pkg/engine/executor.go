package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/flowgate/flowgate/pkg/domain"
	"github.com/flowgate/flowgate/pkg/telemetry"
)

// Executor runs compiled plans, threading one slot accumulator through the
// plan's execution order. The accumulator is owned exclusively by a single
// Execute call; stages see copies of their declared dependencies only.
type Executor struct {
	logger     *slog.Logger
	governance *stageGovernor
}

// ExecutorConfig holds dependencies for creating an Executor.
type ExecutorConfig struct {
	Logger *slog.Logger
}

// NewExecutor creates an executor with the given configuration.
func NewExecutor(cfg ExecutorConfig) *Executor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Executor{
		logger:     logger,
		governance: newStageGovernor(logger),
	}
}

type stageOutcome struct {
	id     domain.StageID
	result domain.StageResult
}

// Execute runs the plan under the supplied configuration. The run is bounded
// by config.MaxExecutionTimeMs; exceeding the budget yields FailureTimeout,
// distinct from any stage-level failure. On the first failing stage the run
// halts and no partial slot set is returned.
func (e *Executor) Execute(ctx context.Context, plan *domain.ExecutionPlan, config domain.PipelineConfig, initial domain.SlotMap) domain.PipelineResult {
	runID := uuid.NewString()

	if err := validatePlan(plan); err != "" {
		return domain.ExecutionFailure(runID, domain.PipelineFailure{
			Kind:   domain.FailureInvalidPlan,
			Reason: err,
		})
	}

	tracer := otel.Tracer("flowgate.pipeline")
	ctx, span := tracer.Start(ctx, "pipeline.execute", trace.WithAttributes(telemetry.RedactAttributes(
		attribute.String("plan.version", plan.Version),
		attribute.String("run.id", runID),
		attribute.Int("plan.stages", len(plan.ExecutionOrder)),
		attribute.Bool("run.parallel", config.AllowParallelExecution),
	)...))
	defer span.End()

	runCtx := ctx
	var cancel context.CancelFunc
	if config.MaxExecutionTimeMs > 0 {
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(config.MaxExecutionTimeMs)*time.Millisecond)
		defer cancel()
	}

	e.logger.Info("executing plan",
		"plan_version", plan.Version,
		"run_id", runID,
		"stages", len(plan.ExecutionOrder),
		"parallel", config.AllowParallelExecution,
	)

	var result domain.PipelineResult
	if config.AllowParallelExecution {
		result = e.executeParallel(runCtx, plan, config, initial, runID)
	} else {
		result = e.executeSequential(runCtx, plan, config, initial, runID)
	}

	if !result.OK && result.Failure != nil {
		span.SetStatus(codes.Error, result.Failure.Reason)
		span.SetAttributes(attribute.String("run.failure_kind", string(result.Failure.Kind)))
		e.logger.Error("plan execution failed",
			"plan_version", plan.Version,
			"run_id", runID,
			"failure_kind", result.Failure.Kind,
			"stage_id", result.Failure.StageID,
			"reason", result.Failure.Reason,
		)
	} else {
		e.logger.Info("plan execution complete", "plan_version", plan.Version, "run_id", runID)
	}

	return result
}

func validatePlan(plan *domain.ExecutionPlan) string {
	if plan == nil {
		return "plan is nil"
	}
	if len(plan.ExecutionOrder) == 0 {
		return "plan has no stages"
	}
	for _, id := range plan.ExecutionOrder {
		if _, ok := plan.Stages[id]; !ok {
			return fmt.Sprintf("execution order references unknown stage %q", id)
		}
	}
	return ""
}

func (e *Executor) executeSequential(ctx context.Context, plan *domain.ExecutionPlan, config domain.PipelineConfig, initial domain.SlotMap, runID string) domain.PipelineResult {
	slots := initial.Clone()

	for _, id := range plan.ExecutionOrder {
		if failure, done := budgetFailure(ctx, id); done {
			return domain.ExecutionFailure(runID, failure)
		}

		stage := plan.Stages[id]
		result := e.runStage(ctx, plan, config, stage, dependencySlots(stage, slots))
		if !result.OK {
			// A budget expiry mid-stage surfaces as the run-level timeout,
			// not as that stage's own failure.
			if failure, done := budgetFailure(ctx, id); done {
				return domain.ExecutionFailure(runID, failure)
			}
			return domain.ExecutionFailure(runID, domain.PipelineFailure{
				Kind:    domain.FailureStage,
				StageID: id,
				Reason:  result.Reason,
			})
		}
		mergeProvided(slots, stage, result.Slots)
	}

	return domain.ExecutionSuccess(runID, slots, plan.ExecutionOrder)
}

// executeParallel schedules mutually independent stages concurrently, bounded
// by config.MaxParallelStages (<=0 means the ready-set width is the only
// bound). A stage is launched only after every one of its dependencies has
// completed and merged its slots, so dependency order is never violated.
func (e *Executor) executeParallel(ctx context.Context, plan *domain.ExecutionPlan, config domain.PipelineConfig, initial domain.SlotMap, runID string) domain.PipelineResult {
	slots := initial.Clone()
	total := len(plan.ExecutionOrder)

	indegree := make(map[domain.StageID]int, total)
	for _, id := range plan.ExecutionOrder {
		indegree[id] = len(plan.Dependencies[id])
	}

	// Ready stages are launched in execution-order position so scheduling
	// stays deterministic when capacity is constrained.
	var ready []domain.StageID
	for _, id := range plan.ExecutionOrder {
		if indegree[id] == 0 {
			ready = append(ready, id)
		}
	}

	stageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	outcomes := make(chan stageOutcome, total)
	running := 0
	completed := 0

	launch := func(id domain.StageID) {
		stage := plan.Stages[id]
		deps := dependencySlots(stage, slots)
		running++
		go func() {
			outcomes <- stageOutcome{id: id, result: e.runStage(stageCtx, plan, config, stage, deps)}
		}()
	}

	for completed < total {
		for len(ready) > 0 && (config.MaxParallelStages <= 0 || running < config.MaxParallelStages) {
			launch(ready[0])
			ready = ready[1:]
		}

		select {
		case <-ctx.Done():
			cancel()
			failure, _ := budgetFailure(ctx, "")
			return domain.ExecutionFailure(runID, failure)
		case out := <-outcomes:
			running--
			completed++
			if !out.result.OK {
				cancel()
				if failure, done := budgetFailure(ctx, out.id); done {
					return domain.ExecutionFailure(runID, failure)
				}
				return domain.ExecutionFailure(runID, domain.PipelineFailure{
					Kind:    domain.FailureStage,
					StageID: out.id,
					Reason:  out.result.Reason,
				})
			}
			stage := plan.Stages[out.id]
			mergeProvided(slots, stage, out.result.Slots)
			for _, dependent := range plan.ReverseDependencies[out.id] {
				indegree[dependent]--
				if indegree[dependent] == 0 {
					ready = insertByPosition(ready, dependent, plan.StageIndex)
				}
			}
		}
	}

	return domain.ExecutionSuccess(runID, slots, plan.ExecutionOrder)
}

// runStage invokes one stage under governance (timeout, retries, breaker)
// and records its span and metrics.
func (e *Executor) runStage(ctx context.Context, plan *domain.ExecutionPlan, config domain.PipelineConfig, stage domain.StagePlugin, deps domain.SlotMap) domain.StageResult {
	tracer := otel.Tracer("flowgate.pipeline")
	stageCtx, span := tracer.Start(ctx, "pipeline.stage", trace.WithAttributes(telemetry.RedactAttributes(
		attribute.String("stage.id", string(stage.ID)),
		attribute.String("plan.version", plan.Version),
	)...))
	defer span.End()

	start := time.Now()
	result, retries := e.governance.run(stageCtx, plan, config, stage, deps)
	duration := time.Since(start)

	outcome := "success"
	if !result.OK {
		outcome = "failure"
		if stageCtx.Err() != nil {
			outcome = "timeout"
		}
		span.SetStatus(codes.Error, result.Reason)
	}
	span.SetAttributes(
		attribute.String("stage.outcome", outcome),
		attribute.Int64("stage.duration_ms", duration.Milliseconds()),
		attribute.Int("stage.retry.count", retries),
	)

	telemetry.RecordStageMetrics(stageCtx, telemetry.StageMetrics{
		PlanVersion: plan.Version,
		StageID:     string(stage.ID),
		Outcome:     outcome,
		Duration:    duration,
		Retries:     retries,
	})

	return result
}

// dependencySlots assembles the read-only view a stage receives: exactly the
// slots it declared in DependsOn, copied out of the accumulator.
func dependencySlots(stage domain.StagePlugin, slots domain.SlotMap) domain.SlotMap {
	deps := make(domain.SlotMap, len(stage.DependsOn))
	for _, key := range stage.DependsOn {
		if v, ok := slots[key]; ok {
			deps[key] = v
		}
	}
	return deps
}

// mergeProvided merges only the slots a stage is declared to provide,
// preserving the compile-time disjointness invariant even when a stage
// returns extras.
func mergeProvided(slots domain.SlotMap, stage domain.StagePlugin, produced domain.SlotMap) {
	for _, key := range stage.Provides {
		if v, ok := produced[key]; ok {
			slots[key] = v
		}
	}
}

// budgetFailure classifies context expiry into the run-level failure kinds.
func budgetFailure(ctx context.Context, stageID domain.StageID) (domain.PipelineFailure, bool) {
	switch ctx.Err() {
	case context.DeadlineExceeded:
		return domain.PipelineFailure{
			Kind:    domain.FailureTimeout,
			StageID: stageID,
			Reason:  "execution time budget exceeded",
		}, true
	case context.Canceled:
		return domain.PipelineFailure{
			Kind:    domain.FailureCanceled,
			StageID: stageID,
			Reason:  "execution canceled",
		}, true
	default:
		return domain.PipelineFailure{}, false
	}
}

func insertByPosition(ready []domain.StageID, id domain.StageID, position map[domain.StageID]int) []domain.StageID {
	at := len(ready)
	for i, existing := range ready {
		if position[id] < position[existing] {
			at = i
			break
		}
	}
	ready = append(ready, "")
	copy(ready[at+1:], ready[at:])
	ready[at] = id
	return ready
}
