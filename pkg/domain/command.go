package domain

// CommandKind tags the request variants accepted by the policy facade.
type CommandKind string

const (
	// CommandCompilePlan asks the facade to compile a stage set.
	CommandCompilePlan CommandKind = "COMPILE_PLAN"
	// CommandExecutePlan asks the facade to execute an already compiled plan.
	CommandExecutePlan CommandKind = "EXECUTE_PLAN"
	// CommandCompileAndExecute chains compilation and execution, short-
	// circuiting on compile failure.
	CommandCompileAndExecute CommandKind = "COMPILE_AND_EXECUTE"
)

// Command is the tagged request submitted to the facade. Only the fields
// relevant to the Kind are populated.
type Command struct {
	Kind         CommandKind
	Plugins      []StagePlugin
	Config       PipelineConfig
	Plan         *ExecutionPlan
	InitialSlots SlotMap
}

// CompilePlanCommand constructs a COMPILE_PLAN command.
func CompilePlanCommand(plugins []StagePlugin, config PipelineConfig) Command {
	return Command{Kind: CommandCompilePlan, Plugins: plugins, Config: config}
}

// ExecutePlanCommand constructs an EXECUTE_PLAN command.
func ExecutePlanCommand(plan *ExecutionPlan, config PipelineConfig, initial SlotMap) Command {
	return Command{Kind: CommandExecutePlan, Plan: plan, Config: config, InitialSlots: initial}
}

// CompileAndExecuteCommand constructs a COMPILE_AND_EXECUTE command.
func CompileAndExecuteCommand(plugins []StagePlugin, config PipelineConfig, initial SlotMap) Command {
	return Command{Kind: CommandCompileAndExecute, Plugins: plugins, Config: config, InitialSlots: initial}
}

// FacadeResultKind discriminates facade outcomes.
type FacadeResultKind string

const (
	// ResultPlanCompiled wraps a successful compilation.
	ResultPlanCompiled FacadeResultKind = "PLAN_COMPILED"
	// ResultPlanCompileFailed wraps a structured compile error.
	ResultPlanCompileFailed FacadeResultKind = "PLAN_COMPILE_FAILED"
	// ResultPlanExecuted wraps a successful run.
	ResultPlanExecuted FacadeResultKind = "PLAN_EXECUTED"
	// ResultPlanExecutionFailed wraps a failed run.
	ResultPlanExecutionFailed FacadeResultKind = "PLAN_EXECUTION_FAILED"
	// ResultPolicyRejected means a rule rejected the command before dispatch.
	ResultPolicyRejected FacadeResultKind = "POLICY_REJECTED"
	// ResultCommandNotAllowed is the structured reason used by allow-list rules.
	ResultCommandNotAllowed FacadeResultKind = "COMMAND_NOT_ALLOWED"
)

// FacadeResult is the discriminated value returned by every facade entry
// point. Expected failures are data, never panics or raw errors.
type FacadeResult struct {
	OK        bool
	Kind      FacadeResultKind
	Plan      *ExecutionPlan
	PlanError *PlanError
	Execution *PipelineResult
	Reason    string
}

// CompiledResult wraps a compiled plan.
func CompiledResult(plan *ExecutionPlan) FacadeResult {
	return FacadeResult{OK: true, Kind: ResultPlanCompiled, Plan: plan}
}

// CompileFailedResult wraps a structured compile error.
func CompileFailedResult(planErr *PlanError) FacadeResult {
	return FacadeResult{OK: false, Kind: ResultPlanCompileFailed, PlanError: planErr, Reason: planErr.Message}
}

// ExecutedResult wraps a successful execution.
func ExecutedResult(res PipelineResult) FacadeResult {
	return FacadeResult{OK: true, Kind: ResultPlanExecuted, Execution: &res}
}

// ExecutionFailedResult wraps a failed execution.
func ExecutionFailedResult(res PipelineResult) FacadeResult {
	reason := ""
	if res.Failure != nil {
		reason = res.Failure.Reason
	}
	return FacadeResult{OK: false, Kind: ResultPlanExecutionFailed, Execution: &res, Reason: reason}
}

// RejectedResult wraps a policy rejection.
func RejectedResult(reason string) FacadeResult {
	return FacadeResult{OK: false, Kind: ResultPolicyRejected, Reason: reason}
}
