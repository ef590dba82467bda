package engine

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/flowgate/flowgate/pkg/domain"
)

// StageFactory builds a stage run function from its YAML-level config.
type StageFactory func(config map[string]any) (domain.StageFunc, error)

// StageRegistry stores canonical stage factories and alias mappings, so
// stage-set specifications can reference implementations by type name.
type StageRegistry struct {
	mu        sync.RWMutex
	factories map[string]StageFactory
	aliases   map[string]string
}

// NewStageRegistry creates a registry pre-populated with the built-in stages.
func NewStageRegistry(logger *slog.Logger) *StageRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &StageRegistry{
		factories: make(map[string]StageFactory),
		aliases:   make(map[string]string),
	}
	registerBuiltinStages(r, logger)
	return r
}

// Register adds or replaces a factory under kind@version plus any aliases.
// The bare kind always resolves to the first version registered for it.
func (r *StageRegistry) Register(kind, version string, factory StageFactory, aliases ...string) {
	canonical := canonicalKey(kind, version)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.factories[canonical] = factory
	for _, alias := range aliases {
		alias = strings.TrimSpace(alias)
		if alias == "" {
			continue
		}
		r.aliases[alias] = canonical
	}
	if _, exists := r.aliases[kind]; !exists {
		r.aliases[kind] = canonical
	}
}

// Resolve returns the factory for a raw type reference ("kind",
// "kind@version", or an alias).
func (r *StageRegistry) Resolve(raw string) (StageFactory, bool) {
	kind, version := parseStageType(raw)
	canonical := canonicalKey(kind, version)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if factory, ok := r.factories[canonical]; ok {
		return factory, true
	}
	if target, ok := r.aliases[raw]; ok {
		if factory, ok := r.factories[target]; ok {
			return factory, true
		}
	}
	if version == "" {
		if target, ok := r.aliases[kind]; ok {
			if factory, ok := r.factories[target]; ok {
				return factory, true
			}
		}
	}
	return nil, false
}

func parseStageType(raw string) (string, string) {
	parts := strings.SplitN(strings.TrimSpace(raw), "@", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], ""
}

func canonicalKey(kind, version string) string {
	kind = strings.TrimSpace(kind)
	version = strings.TrimSpace(version)
	if version == "" {
		return kind
	}
	return kind + "@" + version
}

// PlanRegistry maintains the active set of compiled plans by name and
// supports atomic replacement when the stage-set specification reloads.
type PlanRegistry struct {
	mu         sync.RWMutex
	plans      map[string]*domain.ExecutionPlan
	generation int64
	logger     *slog.Logger
}

// NewPlanRegistry creates an empty plan registry.
func NewPlanRegistry(logger *slog.Logger) *PlanRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &PlanRegistry{
		plans:  make(map[string]*domain.ExecutionPlan),
		logger: logger,
	}
}

// Get returns the plan registered under name.
func (pr *PlanRegistry) Get(name string) (*domain.ExecutionPlan, error) {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	plan, ok := pr.plans[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrPlanNotFound, name)
	}
	return plan, nil
}

// UpdatePlans atomically replaces the registered plan set and bumps the
// generation counter. In-flight executions keep the plan value they started
// with; plans are immutable so the swap cannot disturb them.
func (pr *PlanRegistry) UpdatePlans(plans map[string]*domain.ExecutionPlan) {
	next := make(map[string]*domain.ExecutionPlan, len(plans))
	for name, plan := range plans {
		next[name] = plan
	}

	pr.mu.Lock()
	pr.plans = next
	pr.generation++
	generation := pr.generation
	pr.mu.Unlock()

	pr.logger.Info("plan registry updated", "plans", len(next), "generation", generation)
}

// Generation returns the current registry generation.
func (pr *PlanRegistry) Generation() int64 {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	return pr.generation
}

// Names returns the registered plan names.
func (pr *PlanRegistry) Names() []string {
	pr.mu.RLock()
	defer pr.mu.RUnlock()
	names := make([]string, 0, len(pr.plans))
	for name := range pr.plans {
		names = append(names, name)
	}
	return names
}
