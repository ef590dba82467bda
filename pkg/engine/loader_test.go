package engine

import (
	"context"
	"testing"

	"github.com/flowgate/flowgate/pkg/config"
	"github.com/flowgate/flowgate/pkg/domain"
)

func testSpec() config.StageSetSpec {
	return config.StageSetSpec{
		Plans: []config.PlanSpec{
			{
				Name: "main",
				Stages: []config.StageSpec{
					{
						ID:       "seed",
						Type:     "static.slots",
						Provides: []string{"out.seed"},
						Config: map[string]any{
							"slots": map[string]any{"out.seed": "hello"},
						},
					},
					{
						ID:        "relay",
						Type:      "passthrough",
						DependsOn: []string{"out.seed"},
					},
				},
			},
		},
	}
}

func TestBuildPluginsResolvesTypes(t *testing.T) {
	registry := NewStageRegistry(nil)

	plugins, err := BuildPlugins(registry, testSpec().Plans[0].Stages)
	if err != nil {
		t.Fatalf("BuildPlugins failed: %v", err)
	}
	if len(plugins) != 2 {
		t.Fatalf("built %d plugins, want 2", len(plugins))
	}
	if plugins[0].ID != "seed" || plugins[1].ID != "relay" {
		t.Errorf("plugin ids = %s, %s", plugins[0].ID, plugins[1].ID)
	}
	if len(plugins[1].DependsOn) != 1 || plugins[1].DependsOn[0] != "out.seed" {
		t.Errorf("relay DependsOn = %v", plugins[1].DependsOn)
	}
}

func TestBuildPluginsUnknownType(t *testing.T) {
	registry := NewStageRegistry(nil)
	_, err := BuildPlugins(registry, []config.StageSpec{{ID: "x", Type: "does.not.exist"}})
	if err == nil {
		t.Fatal("unknown stage type accepted")
	}
}

func TestLoadSpecInstallsPlans(t *testing.T) {
	stages := NewStageRegistry(nil)
	plans := NewPlanRegistry(nil)

	if err := LoadSpec(stages, plans, testSpec()); err != nil {
		t.Fatalf("LoadSpec failed: %v", err)
	}

	plan, err := plans.Get("main")
	if err != nil {
		t.Fatalf("plan not installed: %v", err)
	}

	result := newTestExecutor().Execute(context.Background(), plan, domain.PipelineConfig{}, nil)
	if !result.OK {
		t.Fatalf("loaded plan failed to run: %+v", result.Failure)
	}
	if result.Slots["out.seed"] != "hello" {
		t.Errorf("out.seed = %v, want hello", result.Slots["out.seed"])
	}
}

func TestCompileSpecRejectsWholeSpecOnOneBadPlan(t *testing.T) {
	spec := testSpec()
	spec.Plans = append(spec.Plans, config.PlanSpec{
		Name: "broken",
		Stages: []config.StageSpec{
			{ID: "a", Type: "passthrough", DependsOn: []string{"out.nowhere"}},
		},
	})

	stages := NewStageRegistry(nil)
	plans := NewPlanRegistry(nil)

	if err := LoadSpec(stages, plans, spec); err == nil {
		t.Fatal("spec with an invalid plan was accepted")
	}
	if _, err := plans.Get("main"); err == nil {
		t.Error("partial spec load installed plans")
	}
	if plans.Generation() != 0 {
		t.Errorf("generation = %d, want 0 after rejected load", plans.Generation())
	}
}
