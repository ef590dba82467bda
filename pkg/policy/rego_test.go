package policy

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowgate/flowgate/pkg/domain"
)

const testPolicy = `package flowgate

default decision := {"allow": false, "reason": "compile-only policy"}

decision := {"allow": true} if {
	input.kind == "COMPILE_PLAN"
	input.stage_count <= 2
}

decision := {"allow": false, "reason": "stage set too large"} if {
	input.kind == "COMPILE_PLAN"
	input.stage_count > 2
}
`

func TestRegoRuleAllowsMatchingCommand(t *testing.T) {
	rule, err := NewRegoRule(context.Background(), RegoRuleOptions{
		Entrypoint: "flowgate/decision",
		Modules:    map[string]string{"test.rego": testPolicy},
	})
	require.NoError(t, err)

	plugins := []domain.StagePlugin{{ID: "a", Run: okStage}}
	decision := rule(context.Background(), domain.CompilePlanCommand(plugins, domain.PipelineConfig{}))
	assert.Equal(t, DecisionAllow, decision.Kind)
}

func TestRegoRuleRejectsWithReason(t *testing.T) {
	rule, err := NewRegoRule(context.Background(), RegoRuleOptions{
		Entrypoint: "flowgate/decision",
		Modules:    map[string]string{"test.rego": testPolicy},
	})
	require.NoError(t, err)

	decision := rule(context.Background(), domain.ExecutePlanCommand(nil, domain.PipelineConfig{}, nil))
	assert.Equal(t, DecisionReject, decision.Kind)
	assert.Equal(t, "compile-only policy", decision.Reason)
}

func TestRegoRuleSyntaxErrorSurfacesAtConstruction(t *testing.T) {
	_, err := NewRegoRule(context.Background(), RegoRuleOptions{
		Modules: map[string]string{"bad.rego": "package broken\n\ndecision :=  {"},
	})
	assert.Error(t, err)
}

func TestRegoRuleRequiresModules(t *testing.T) {
	_, err := NewRegoRule(context.Background(), RegoRuleOptions{})
	assert.Error(t, err)
}

func TestRegoRuleInFacade(t *testing.T) {
	rule, err := NewRegoRule(context.Background(), RegoRuleOptions{
		Entrypoint: "flowgate/decision",
		Modules:    map[string]string{"test.rego": testPolicy},
	})
	require.NoError(t, err)

	facade := NewFacade(Options{Rules: []Rule{rule}})

	compiled := facade.Compile(context.Background(), simplePlugins(), domain.PipelineConfig{})
	assert.True(t, compiled.OK)

	executed := facade.Execute(context.Background(), nil, domain.PipelineConfig{}, nil)
	assert.Equal(t, domain.ResultPolicyRejected, executed.Kind)
}
