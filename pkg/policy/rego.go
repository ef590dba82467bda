package policy

import (
	"context"
	"errors"
	"fmt"
	"strings"

	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/ast"
	//nolint:staticcheck // OPA v1 migration pending
	"github.com/open-policy-agent/opa/rego"

	"github.com/flowgate/flowgate/pkg/domain"
)

// RegoRuleOptions control construction of a Rego-backed rule.
type RegoRuleOptions struct {
	// Entrypoint is the decision path, e.g. "flowgate/decision". The document
	// at this path must evaluate to an object with an "allow" boolean and an
	// optional "reason" string.
	Entrypoint string
	// Modules maps module names to Rego source.
	Modules map[string]string
}

const defaultEntrypoint = "flowgate/decision"

// NewRegoRule compiles the supplied Rego modules into a Rule. The query is
// prepared once at construction so syntax errors surface immediately rather
// than on the first command. Evaluation failures at run time fail closed.
func NewRegoRule(ctx context.Context, opts RegoRuleOptions) (Rule, error) {
	entry := strings.TrimSpace(opts.Entrypoint)
	if entry == "" {
		entry = defaultEntrypoint
	}
	if len(opts.Modules) == 0 {
		return nil, errors.New("rego rule requires at least one module")
	}

	regoOpts := []func(*rego.Rego){
		rego.Query(fmt.Sprintf("data.%s", strings.ReplaceAll(entry, "/", "."))),
	}
	for name, src := range opts.Modules {
		module, err := ast.ParseModuleWithOpts(name, src, ast.ParserOptions{RegoVersion: ast.RegoV1})
		if err != nil {
			return nil, fmt.Errorf("parse rego module %q: %w", name, err)
		}
		regoOpts = append(regoOpts, rego.ParsedModule(module))
	}

	prepared, err := rego.New(regoOpts...).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile rego modules: %w", err)
	}

	return func(ctx context.Context, cmd domain.Command) Decision {
		results, err := prepared.Eval(ctx, rego.EvalInput(commandInput(cmd)))
		if err != nil {
			return Reject(fmt.Sprintf("%s: %v", domain.ErrRuleEvalFailed, err))
		}
		if len(results) == 0 || len(results[0].Expressions) == 0 {
			return Reject("policy produced no decision")
		}

		doc, ok := results[0].Expressions[0].Value.(map[string]any)
		if !ok {
			return Reject("policy decision is not an object")
		}
		allow, _ := doc["allow"].(bool)
		if allow {
			return Allow()
		}
		reason, _ := doc["reason"].(string)
		if reason == "" {
			reason = "rejected by policy"
		}
		return Reject(reason)
	}, nil
}

// commandInput flattens a command into the shape policies evaluate against.
// Slot values never cross into policy input; only structure does.
func commandInput(cmd domain.Command) map[string]any {
	input := map[string]any{
		"kind":        string(cmd.Kind),
		"stage_count": len(cmd.Plugins),
		"parallel":    cmd.Config.AllowParallelExecution,
		"max_stages":  cmd.Config.MaxStages,
	}

	if len(cmd.Plugins) > 0 {
		stageIDs := make([]any, 0, len(cmd.Plugins))
		for _, plugin := range cmd.Plugins {
			stageIDs = append(stageIDs, string(plugin.ID))
		}
		input["stage_ids"] = stageIDs
	}
	if cmd.Plan != nil {
		input["plan_version"] = cmd.Plan.Version
	}
	if len(cmd.InitialSlots) > 0 {
		keys := make([]any, 0, len(cmd.InitialSlots))
		for key := range cmd.InitialSlots {
			keys = append(keys, string(key))
		}
		input["initial_slot_keys"] = keys
	}

	return input
}
