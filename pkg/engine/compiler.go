package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/flowgate/flowgate/pkg/domain"
)

// Compile validates a stage set against the configured structural limits and
// produces a deterministically ordered execution plan. Failure is always
// returned as a *domain.PlanError value; Compile never panics and never
// executes stage code.
func Compile(plugins []domain.StagePlugin, config domain.PipelineConfig) (*domain.ExecutionPlan, *domain.PlanError) {
	cfg := config.Normalized()

	if len(plugins) == 0 {
		return nil, &domain.PlanError{
			Kind:    domain.PlanErrorInvalidPlugin,
			Message: "stage set is empty",
		}
	}
	if len(plugins) > cfg.MaxStages {
		return nil, &domain.PlanError{
			Kind:    domain.PlanErrorLimitExceeded,
			Message: fmt.Sprintf("stage count %d exceeds maxStages %d", len(plugins), cfg.MaxStages),
		}
	}

	declIndex := make(map[domain.StageID]int, len(plugins))
	for i, p := range plugins {
		if p.ID == "" {
			return nil, &domain.PlanError{
				Kind:    domain.PlanErrorInvalidPlugin,
				Message: fmt.Sprintf("stage at position %d has an empty id", i),
			}
		}
		if p.Run == nil {
			return nil, &domain.PlanError{
				Kind:    domain.PlanErrorInvalidPlugin,
				Message: "stage has a nil run function",
				StageID: p.ID,
			}
		}
		if _, dup := declIndex[p.ID]; dup {
			return nil, &domain.PlanError{
				Kind:    domain.PlanErrorDuplicateStage,
				Message: "stage id declared more than once",
				StageID: p.ID,
			}
		}
		declIndex[p.ID] = i
	}

	// Slot production must be unique across the whole set.
	producers := make(map[domain.SlotKey]domain.StageID)
	for _, p := range plugins {
		for _, slot := range p.Provides {
			if prev, dup := producers[slot]; dup {
				return nil, &domain.PlanError{
					Kind:    domain.PlanErrorDuplicateSlot,
					Message: fmt.Sprintf("slot already provided by stage %q", prev),
					StageID: p.ID,
					Slot:    slot,
				}
			}
			producers[slot] = p.ID
		}
	}

	external := make(map[domain.SlotKey]bool, len(cfg.ExternalSlots))
	for _, slot := range cfg.ExternalSlots {
		external[slot] = true
	}

	// Build the dependency graph: an edge A -> B exists when B depends on a
	// slot A provides. Adjacency is kept in declaration order and deduped.
	dependencies := make(map[domain.StageID][]domain.StageID, len(plugins))
	reverse := make(map[domain.StageID][]domain.StageID, len(plugins))
	edgeSeen := make(map[[2]domain.StageID]bool)
	edgeCount := 0

	for _, p := range plugins {
		for _, slot := range p.DependsOn {
			producer, ok := producers[slot]
			if !ok {
				if external[slot] {
					continue
				}
				return nil, &domain.PlanError{
					Kind:    domain.PlanErrorUnknownDependency,
					Message: "no stage provides this slot and it is not declared external",
					StageID: p.ID,
					Slot:    slot,
				}
			}
			if producer == p.ID {
				return nil, &domain.PlanError{
					Kind:    domain.PlanErrorCycle,
					Message: "stage depends on a slot it provides itself",
					StageID: p.ID,
					Slot:    slot,
				}
			}
			key := [2]domain.StageID{producer, p.ID}
			if edgeSeen[key] {
				continue
			}
			edgeSeen[key] = true
			edgeCount++
			dependencies[p.ID] = append(dependencies[p.ID], producer)
			reverse[producer] = append(reverse[producer], p.ID)
		}
	}

	if edgeCount > cfg.MaxDependencies {
		return nil, &domain.PlanError{
			Kind:    domain.PlanErrorLimitExceeded,
			Message: fmt.Sprintf("dependency edge count %d exceeds maxDependencies %d", edgeCount, cfg.MaxDependencies),
		}
	}
	for _, p := range plugins {
		if n := len(dependencies[p.ID]); n > cfg.MaxFanIn {
			return nil, &domain.PlanError{
				Kind:    domain.PlanErrorLimitExceeded,
				Message: fmt.Sprintf("fan-in %d exceeds maxFanIn %d", n, cfg.MaxFanIn),
				StageID: p.ID,
			}
		}
		if n := len(reverse[p.ID]); n > cfg.MaxFanOut {
			return nil, &domain.PlanError{
				Kind:    domain.PlanErrorLimitExceeded,
				Message: fmt.Sprintf("fan-out %d exceeds maxFanOut %d", n, cfg.MaxFanOut),
				StageID: p.ID,
			}
		}
	}

	order, cycleStage := topoSort(plugins, declIndex, dependencies, reverse)
	if cycleStage != "" {
		return nil, &domain.PlanError{
			Kind:    domain.PlanErrorCycle,
			Message: "dependency cycle prevents a valid execution order",
			StageID: cycleStage,
		}
	}

	// Longest dependency chain, measured in stages. Safe to compute in
	// topological order now that the graph is known acyclic.
	depth := make(map[domain.StageID]int, len(order))
	maxChain := 0
	for _, id := range order {
		d := 1
		for _, dep := range dependencies[id] {
			if depth[dep]+1 > d {
				d = depth[dep] + 1
			}
		}
		depth[id] = d
		if d > maxChain {
			maxChain = d
		}
	}
	if maxChain > cfg.MaxDepth {
		return nil, &domain.PlanError{
			Kind:    domain.PlanErrorLimitExceeded,
			Message: fmt.Sprintf("dependency chain length %d exceeds maxDepth %d", maxChain, cfg.MaxDepth),
		}
	}

	stages := make(map[domain.StageID]domain.StagePlugin, len(plugins))
	for _, p := range plugins {
		stages[p.ID] = p
	}
	stageIndex := make(map[domain.StageID]int, len(order))
	for i, id := range order {
		stageIndex[id] = i
	}

	return &domain.ExecutionPlan{
		ExecutionOrder:      order,
		StageIndex:          stageIndex,
		Version:             planVersion(plugins, order),
		Stages:              stages,
		Dependencies:        dependencies,
		ReverseDependencies: reverse,
	}, nil
}

// topoSort performs Kahn's algorithm with declaration order as the tie-break,
// so equal stage sets always produce identical orders. When a cycle blocks
// progress it returns the earliest-declared unsorted stage.
func topoSort(
	plugins []domain.StagePlugin,
	declIndex map[domain.StageID]int,
	dependencies map[domain.StageID][]domain.StageID,
	reverse map[domain.StageID][]domain.StageID,
) ([]domain.StageID, domain.StageID) {
	indegree := make(map[domain.StageID]int, len(plugins))
	for _, p := range plugins {
		indegree[p.ID] = len(dependencies[p.ID])
	}

	var ready []domain.StageID
	for _, p := range plugins {
		if indegree[p.ID] == 0 {
			ready = append(ready, p.ID)
		}
	}

	order := make([]domain.StageID, 0, len(plugins))
	for len(ready) > 0 {
		// Pick the ready stage declared earliest.
		best := 0
		for i := 1; i < len(ready); i++ {
			if declIndex[ready[i]] < declIndex[ready[best]] {
				best = i
			}
		}
		id := ready[best]
		ready = append(ready[:best], ready[best+1:]...)
		order = append(order, id)

		for _, dependent := range reverse[id] {
			indegree[dependent]--
			if indegree[dependent] == 0 {
				ready = append(ready, dependent)
			}
		}
	}

	if len(order) < len(plugins) {
		sorted := make(map[domain.StageID]bool, len(order))
		for _, id := range order {
			sorted[id] = true
		}
		for _, p := range plugins {
			if !sorted[p.ID] {
				return nil, p.ID
			}
		}
	}

	return order, ""
}

// planVersion derives a stable token from the validated graph shape. The
// encoding covers stage IDs, sorted slot declarations, and the computed
// order, so structurally identical sets hash identically regardless of the
// plugin closures behind them.
func planVersion(plugins []domain.StagePlugin, order []domain.StageID) string {
	h := sha256.New()
	for _, p := range plugins {
		fmt.Fprintf(h, "stage:%s\n", p.ID)
		provides := make([]string, len(p.Provides))
		for i, s := range p.Provides {
			provides[i] = string(s)
		}
		sort.Strings(provides)
		dependsOn := make([]string, len(p.DependsOn))
		for i, s := range p.DependsOn {
			dependsOn[i] = string(s)
		}
		sort.Strings(dependsOn)
		for _, s := range provides {
			fmt.Fprintf(h, "provides:%s\n", s)
		}
		for _, s := range dependsOn {
			fmt.Fprintf(h, "dependsOn:%s\n", s)
		}
	}
	for _, id := range order {
		fmt.Fprintf(h, "order:%s\n", id)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}
