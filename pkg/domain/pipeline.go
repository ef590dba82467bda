package domain

import "context"

// StageID names a unit of work within a stage set.
type StageID string

// SlotKey names an output location in the shared per-run result map.
type SlotKey string

// SlotMap is the mutable accumulator threaded between stages during one run.
// The executor owns the accumulator exclusively; stages receive copies of the
// slots they depend on and return new partial maps rather than mutating
// shared state.
type SlotMap map[SlotKey]any

// Clone returns a shallow copy of the slot map. A nil map clones to an empty
// non-nil map so callers can merge into the result.
func (m SlotMap) Clone() SlotMap {
	out := make(SlotMap, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// StageResult is the discriminated outcome of a single stage invocation.
// Failure is reported as data, never as a panic or error return.
type StageResult struct {
	OK     bool
	Slots  SlotMap
	Reason string
}

// StageSuccess constructs a successful stage result carrying produced slots.
func StageSuccess(slots SlotMap) StageResult {
	return StageResult{OK: true, Slots: slots}
}

// StageFailure constructs a failed stage result with a caller-visible reason.
func StageFailure(reason string) StageResult {
	return StageResult{OK: false, Reason: reason}
}

// StageFunc executes a stage's work. The deps map contains exactly the slots
// the stage declared in DependsOn. Cancellation and deadlines arrive through
// the context.
type StageFunc func(ctx context.Context, deps SlotMap) StageResult

// StagePlugin declares a stage: its identity, the slots it produces, the
// slots it needs, and the work itself.
//
// Invariants enforced at compile time: IDs are unique within a plan, no two
// stages provide the same slot, and every DependsOn slot is either provided
// by a stage in the same set or declared external in the config.
type StagePlugin struct {
	ID        StageID
	Provides  []SlotKey
	DependsOn []SlotKey
	Run       StageFunc
}

// ExecutionPlan is the compiled, ordered, validated representation of a stage
// set. Produced once by the compiler and consumed read-only by the executor;
// never mutated after construction.
type ExecutionPlan struct {
	// ExecutionOrder is a topologically valid stage sequence with ties broken
	// by declaration order, so equal inputs always compile to equal orders.
	ExecutionOrder []StageID

	// StageIndex maps each stage ID to its position in ExecutionOrder.
	StageIndex map[StageID]int

	// Version is a deterministic identifier derived from the validated graph
	// shape. Two compilations of structurally identical stage sets produce
	// the same version and are interchangeable.
	Version string

	// Stages maps stage IDs to their plugins.
	Stages map[StageID]StagePlugin

	// Dependencies maps a stage to the stages it depends on.
	Dependencies map[StageID][]StageID

	// ReverseDependencies maps a stage to the stages depending on it.
	ReverseDependencies map[StageID][]StageID
}

// PipelineRetryConfig defines per-stage retry behaviour.
type PipelineRetryConfig struct {
	MaxAttempts int
	Backoff     string // exponential, linear, fixed
	BaseMS      int
	MaxMS       int
}

// PipelineConfig bundles the structural limits, concurrency controls, and
// time budget validated at compile and execute boundaries. It is a pure
// value; callers pass it on each call and the engine never retains it.
type PipelineConfig struct {
	// Structural limits enforced by the compiler.
	MaxStages       int
	MaxDependencies int
	MaxDepth        int
	MaxFanOut       int
	MaxFanIn        int

	// ExternalSlots declares slots the caller promises to supply via
	// initial slots at run time; DependsOn references to them compile even
	// when no stage provides them.
	ExternalSlots []SlotKey

	// Concurrency controls for the executor. MaxParallelStages <= 0 means
	// the ready-set width is the only bound.
	AllowParallelExecution bool
	MaxParallelStages      int

	// MaxExecutionTimeMs bounds one whole run; zero disables the budget.
	MaxExecutionTimeMs int

	// Per-stage governance. StageTimeoutMs bounds a single stage invocation.
	StageTimeoutMs        int
	StageRetries          PipelineRetryConfig
	CircuitBreakerEnabled bool
}

// DefaultPipelineConfig returns the limits used when a caller supplies a
// zero config.
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MaxStages:             64,
		MaxDependencies:       256,
		MaxDepth:              16,
		MaxFanOut:             16,
		MaxFanIn:              16,
		MaxParallelStages:     8,
		CircuitBreakerEnabled: true,
	}
}

// Normalized fills zero-valued structural limits from the defaults, leaving
// explicitly configured values untouched.
func (c PipelineConfig) Normalized() PipelineConfig {
	def := DefaultPipelineConfig()
	if c.MaxStages <= 0 {
		c.MaxStages = def.MaxStages
	}
	if c.MaxDependencies <= 0 {
		c.MaxDependencies = def.MaxDependencies
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = def.MaxDepth
	}
	if c.MaxFanOut <= 0 {
		c.MaxFanOut = def.MaxFanOut
	}
	if c.MaxFanIn <= 0 {
		c.MaxFanIn = def.MaxFanIn
	}
	return c
}

// PipelineFailureKind discriminates pipeline-level failure causes.
type PipelineFailureKind string

const (
	// FailureStage propagates a stage's own {ok:false} result.
	FailureStage PipelineFailureKind = "stage_failed"
	// FailureTimeout marks runs that exceeded MaxExecutionTimeMs.
	FailureTimeout PipelineFailureKind = "execution_timeout"
	// FailureCanceled marks runs whose context was canceled by the caller.
	FailureCanceled PipelineFailureKind = "canceled"
	// FailureInvalidPlan marks structurally unusable plans handed to the executor.
	FailureInvalidPlan PipelineFailureKind = "invalid_plan"
)

// PipelineFailure describes why a run failed.
type PipelineFailure struct {
	Kind    PipelineFailureKind
	StageID StageID
	Reason  string
}

// PipelineResult is the discriminated outcome of one execution. On failure
// Slots is nil: no partial slot set is ever surfaced.
type PipelineResult struct {
	OK             bool
	RunID          string
	Slots          SlotMap
	ExecutionOrder []StageID
	Failure        *PipelineFailure
}

// ExecutionSuccess constructs a successful run result.
func ExecutionSuccess(runID string, slots SlotMap, order []StageID) PipelineResult {
	return PipelineResult{OK: true, RunID: runID, Slots: slots, ExecutionOrder: order}
}

// ExecutionFailure constructs a failed run result.
func ExecutionFailure(runID string, failure PipelineFailure) PipelineResult {
	return PipelineResult{OK: false, RunID: runID, Failure: &failure}
}
