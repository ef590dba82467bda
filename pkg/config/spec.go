package config

import (
	"fmt"

	"github.com/flowgate/flowgate/pkg/domain"
)

// StageSetSpec is the on-disk schema for declaring stage sets. Each plan
// names its stages, their slot contracts, and the pipeline configuration the
// plan compiles and runs under.
type StageSetSpec struct {
	Plans []PlanSpec `yaml:"plans"`
}

// PlanSpec declares one compilable stage set.
type PlanSpec struct {
	Name   string             `yaml:"name"`
	Config PipelineConfigSpec `yaml:"config"`
	Stages []StageSpec        `yaml:"stages"`
}

// StageSpec declares one stage. Type is resolved through the stage registry
// as kind@version, a registered alias, or a bare kind.
type StageSpec struct {
	ID        string         `yaml:"id"`
	Type      string         `yaml:"type"`
	Provides  []string       `yaml:"provides"`
	DependsOn []string       `yaml:"depends_on"`
	Config    map[string]any `yaml:"config,omitempty"`
}

// RetrySpec mirrors domain.PipelineRetryConfig in YAML form.
type RetrySpec struct {
	MaxAttempts int    `yaml:"max_attempts"`
	Backoff     string `yaml:"backoff"`
	BaseMS      int    `yaml:"base_ms"`
	MaxMS       int    `yaml:"max_ms"`
}

// PipelineConfigSpec mirrors domain.PipelineConfig in YAML form. Zero-valued
// structural limits take the engine defaults.
type PipelineConfigSpec struct {
	MaxStages       int `yaml:"max_stages"`
	MaxDependencies int `yaml:"max_dependencies"`
	MaxDepth        int `yaml:"max_depth"`
	MaxFanOut       int `yaml:"max_fan_out"`
	MaxFanIn        int `yaml:"max_fan_in"`

	ExternalSlots []string `yaml:"external_slots"`

	AllowParallelExecution bool `yaml:"allow_parallel_execution"`
	MaxParallelStages      int  `yaml:"max_parallel_stages"`
	MaxExecutionTimeMs     int  `yaml:"max_execution_time_ms"`

	StageTimeoutMs        int       `yaml:"stage_timeout_ms"`
	StageRetries          RetrySpec `yaml:"stage_retries"`
	CircuitBreakerEnabled *bool     `yaml:"circuit_breaker_enabled"`
}

// ToDomain converts the YAML form to the engine's configuration value.
func (s PipelineConfigSpec) ToDomain() domain.PipelineConfig {
	cfg := domain.PipelineConfig{
		MaxStages:              s.MaxStages,
		MaxDependencies:        s.MaxDependencies,
		MaxDepth:               s.MaxDepth,
		MaxFanOut:              s.MaxFanOut,
		MaxFanIn:               s.MaxFanIn,
		AllowParallelExecution: s.AllowParallelExecution,
		MaxParallelStages:      s.MaxParallelStages,
		MaxExecutionTimeMs:     s.MaxExecutionTimeMs,
		StageTimeoutMs:         s.StageTimeoutMs,
		StageRetries: domain.PipelineRetryConfig{
			MaxAttempts: s.StageRetries.MaxAttempts,
			Backoff:     s.StageRetries.Backoff,
			BaseMS:      s.StageRetries.BaseMS,
			MaxMS:       s.StageRetries.MaxMS,
		},
		CircuitBreakerEnabled: true,
	}
	if s.CircuitBreakerEnabled != nil {
		cfg.CircuitBreakerEnabled = *s.CircuitBreakerEnabled
	}
	for _, slot := range s.ExternalSlots {
		cfg.ExternalSlots = append(cfg.ExternalSlots, domain.SlotKey(slot))
	}
	return cfg
}

// Validate checks spec-level consistency that does not require a registry:
// plan names present and unique, stage IDs present.
func (s StageSetSpec) Validate() error {
	seen := make(map[string]struct{}, len(s.Plans))
	for i, plan := range s.Plans {
		if plan.Name == "" {
			return fmt.Errorf("plan %d has no name", i)
		}
		if _, dup := seen[plan.Name]; dup {
			return fmt.Errorf("duplicate plan name %q", plan.Name)
		}
		seen[plan.Name] = struct{}{}

		for j, stage := range plan.Stages {
			if stage.ID == "" {
				return fmt.Errorf("plan %q stage %d has no id", plan.Name, j)
			}
			if stage.Type == "" {
				return fmt.Errorf("plan %q stage %q has no type", plan.Name, stage.ID)
			}
		}
	}
	return nil
}
