package engine

import (
	"fmt"

	"github.com/flowgate/flowgate/pkg/config"
	"github.com/flowgate/flowgate/pkg/domain"
)

// BuildPlugins resolves each stage spec against the registry and constructs
// the plugin set for compilation.
func BuildPlugins(registry *StageRegistry, specs []config.StageSpec) ([]domain.StagePlugin, error) {
	plugins := make([]domain.StagePlugin, 0, len(specs))
	for _, spec := range specs {
		factory, ok := registry.Resolve(spec.Type)
		if !ok {
			return nil, fmt.Errorf("stage %q: unknown type %q", spec.ID, spec.Type)
		}
		run, err := factory(spec.Config)
		if err != nil {
			return nil, fmt.Errorf("stage %q: %w", spec.ID, err)
		}

		plugin := domain.StagePlugin{
			ID:  domain.StageID(spec.ID),
			Run: run,
		}
		for _, slot := range spec.Provides {
			plugin.Provides = append(plugin.Provides, domain.SlotKey(slot))
		}
		for _, slot := range spec.DependsOn {
			plugin.DependsOn = append(plugin.DependsOn, domain.SlotKey(slot))
		}
		plugins = append(plugins, plugin)
	}
	return plugins, nil
}

// CompileSpec compiles every plan in the spec. All plans must compile; one
// structurally invalid plan rejects the whole spec so a reload can never
// leave the registry half-updated.
func CompileSpec(registry *StageRegistry, spec config.StageSetSpec) (map[string]*domain.ExecutionPlan, error) {
	plans := make(map[string]*domain.ExecutionPlan, len(spec.Plans))
	for _, planSpec := range spec.Plans {
		plugins, err := BuildPlugins(registry, planSpec.Stages)
		if err != nil {
			return nil, fmt.Errorf("plan %q: %w", planSpec.Name, err)
		}
		plan, planErr := Compile(plugins, planSpec.Config.ToDomain())
		if planErr != nil {
			return nil, fmt.Errorf("plan %q: %w", planSpec.Name, planErr)
		}
		plans[planSpec.Name] = plan
	}
	return plans, nil
}

// LoadSpec compiles the spec and atomically installs the result into the
// plan registry.
func LoadSpec(stages *StageRegistry, plans *PlanRegistry, spec config.StageSetSpec) error {
	compiled, err := CompileSpec(stages, spec)
	if err != nil {
		return err
	}
	plans.UpdatePlans(compiled)
	return nil
}
