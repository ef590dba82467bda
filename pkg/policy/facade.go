package policy

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/flowgate/flowgate/pkg/domain"
	"github.com/flowgate/flowgate/pkg/engine"
	"github.com/flowgate/flowgate/pkg/telemetry"
)

// AuditEventKind tags the rule-chain events worth recording.
type AuditEventKind string

const (
	// AuditRuleRejected records a rule stopping a command.
	AuditRuleRejected AuditEventKind = "rule_rejected"
	// AuditRuleRewritten records a rule replacing the in-flight command.
	AuditRuleRewritten AuditEventKind = "rule_rewritten"
)

// AuditEvent is emitted whenever a rule rejects or rewrites a command.
// ALLOW decisions produce no event.
type AuditEvent struct {
	ID        string
	Kind      AuditEventKind
	RuleIndex int
	Reason    string
	FromKind  domain.CommandKind
	ToKind    domain.CommandKind
	Timestamp time.Time
}

// AuditFunc receives audit events. Implementations own their delivery; the
// facade never blocks on them and survives a panicking callback.
type AuditFunc func(AuditEvent)

// Handler dispatches one command kind. Callers may override any kind via
// Options.Handlers, fully bypassing the default compiler/executor wiring.
type Handler func(ctx context.Context, cmd domain.Command) domain.FacadeResult

// Options configure a Facade. Zero values select the defaults: allow-all
// rules, built-in compiler/executor dispatch, no audit sink.
type Options struct {
	Rules        []Rule
	Handlers     map[domain.CommandKind]Handler
	OnAuditEvent AuditFunc
	Logger       *slog.Logger
	Metrics      *telemetry.DecisionMetrics
}

// Facade is the top-level entry point. Every command passes the rule chain
// in order before dispatch; every call returns a discriminated result and
// never panics for expected failure modes.
type Facade struct {
	rules    []Rule
	handlers map[domain.CommandKind]Handler
	onAudit  AuditFunc
	logger   *slog.Logger
	metrics  *telemetry.DecisionMetrics
	executor *engine.Executor
}

// NewFacade constructs a facade from the given options.
func NewFacade(opts Options) *Facade {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rules := opts.Rules
	if len(rules) == 0 {
		rules = []Rule{AllowAll()}
	}

	f := &Facade{
		rules:    rules,
		onAudit:  opts.OnAuditEvent,
		logger:   logger,
		metrics:  opts.Metrics,
		executor: engine.NewExecutor(engine.ExecutorConfig{Logger: logger}),
	}

	f.handlers = map[domain.CommandKind]Handler{
		domain.CommandCompilePlan:       f.handleCompile,
		domain.CommandExecutePlan:       f.handleExecute,
		domain.CommandCompileAndExecute: f.handleCompileAndExecute,
	}
	for kind, handler := range opts.Handlers {
		f.handlers[kind] = handler
	}

	return f
}

// Run evaluates the rule chain against the command and dispatches the
// surviving command by kind. REJECT stops evaluation immediately; REWRITE
// replaces the command and the remaining rules see the rewritten one.
func (f *Facade) Run(ctx context.Context, cmd domain.Command) domain.FacadeResult {
	f.metrics.ObserveCommand(string(cmd.Kind))

	current := cmd
	for i, rule := range f.rules {
		decision := rule(ctx, current)
		f.metrics.ObserveDecision(string(current.Kind), string(decision.Kind))

		switch decision.Kind {
		case DecisionAllow:
			continue
		case DecisionReject:
			f.emitAudit(AuditEvent{
				Kind:      AuditRuleRejected,
				RuleIndex: i,
				Reason:    decision.Reason,
				FromKind:  current.Kind,
			})
			f.logger.Warn("command rejected by rule",
				"command_kind", current.Kind,
				"rule_index", i,
				"reason", decision.Reason,
			)
			result := domain.RejectedResult(decision.Reason)
			f.metrics.ObserveDispatch(string(cmd.Kind), string(result.Kind))
			return result
		case DecisionRewrite:
			f.emitAudit(AuditEvent{
				Kind:      AuditRuleRewritten,
				RuleIndex: i,
				FromKind:  current.Kind,
				ToKind:    decision.Command.Kind,
			})
			f.logger.Info("command rewritten by rule",
				"rule_index", i,
				"from_kind", current.Kind,
				"to_kind", decision.Command.Kind,
			)
			current = decision.Command
		default:
			// An unknown decision fails closed.
			result := domain.RejectedResult("rule returned an unknown decision kind")
			f.metrics.ObserveDispatch(string(cmd.Kind), string(result.Kind))
			return result
		}
	}

	handler, ok := f.handlers[current.Kind]
	if !ok {
		result := domain.RejectedResult(domain.ErrUnknownCommand.Error())
		f.metrics.ObserveDispatch(string(current.Kind), string(result.Kind))
		return result
	}

	result := handler(ctx, current)
	f.metrics.ObserveDispatch(string(current.Kind), string(result.Kind))
	return result
}

// Compile is sugar for Run with a COMPILE_PLAN command.
func (f *Facade) Compile(ctx context.Context, plugins []domain.StagePlugin, config domain.PipelineConfig) domain.FacadeResult {
	return f.Run(ctx, domain.CompilePlanCommand(plugins, config))
}

// Execute is sugar for Run with an EXECUTE_PLAN command.
func (f *Facade) Execute(ctx context.Context, plan *domain.ExecutionPlan, config domain.PipelineConfig, initial domain.SlotMap) domain.FacadeResult {
	return f.Run(ctx, domain.ExecutePlanCommand(plan, config, initial))
}

// CompileAndExecute is sugar for Run with a COMPILE_AND_EXECUTE command.
func (f *Facade) CompileAndExecute(ctx context.Context, plugins []domain.StagePlugin, config domain.PipelineConfig, initial domain.SlotMap) domain.FacadeResult {
	return f.Run(ctx, domain.CompileAndExecuteCommand(plugins, config, initial))
}

func (f *Facade) handleCompile(_ context.Context, cmd domain.Command) domain.FacadeResult {
	plan, planErr := engine.Compile(cmd.Plugins, cmd.Config)
	if planErr != nil {
		return domain.CompileFailedResult(planErr)
	}
	return domain.CompiledResult(plan)
}

func (f *Facade) handleExecute(ctx context.Context, cmd domain.Command) domain.FacadeResult {
	result := f.executor.Execute(ctx, cmd.Plan, cmd.Config, cmd.InitialSlots)
	if !result.OK {
		return domain.ExecutionFailedResult(result)
	}
	return domain.ExecutedResult(result)
}

// handleCompileAndExecute chains both phases, short-circuiting on compile
// failure before the executor is ever invoked.
func (f *Facade) handleCompileAndExecute(ctx context.Context, cmd domain.Command) domain.FacadeResult {
	plan, planErr := engine.Compile(cmd.Plugins, cmd.Config)
	if planErr != nil {
		return domain.CompileFailedResult(planErr)
	}
	return f.handleExecute(ctx, domain.ExecutePlanCommand(plan, cmd.Config, cmd.InitialSlots))
}

func (f *Facade) emitAudit(event AuditEvent) {
	if f.onAudit == nil {
		return
	}
	event.ID = uuid.NewString()
	event.Timestamp = time.Now().UTC()

	defer func() {
		if r := recover(); r != nil {
			f.logger.Error("audit callback panicked", "panic", r, "event_kind", event.Kind)
		}
	}()
	f.onAudit(event)
}
