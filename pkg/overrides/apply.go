package overrides

import (
	"time"

	"github.com/flowgate/flowgate/pkg/domain"
)

// OverrideKey names one applicable override.
type OverrideKey string

const (
	KeyForceVersion          OverrideKey = "force_version"
	KeyDisableProvider       OverrideKey = "disable_provider"
	KeyFailOpenMode          OverrideKey = "fail_open_mode"
	KeyEnableShadowMode      OverrideKey = "enable_shadow_mode"
	KeyDisableCircuitBreaker OverrideKey = "disable_circuit_breaker"
)

// CanonicalOrder is the fixed application order. Appliers always run in this
// sequence regardless of how the overrides were expressed.
var CanonicalOrder = []OverrideKey{
	KeyForceVersion,
	KeyDisableProvider,
	KeyFailOpenMode,
	KeyEnableShadowMode,
	KeyDisableCircuitBreaker,
}

// envKeyFor maps an override key back to the environment variable that can
// activate it, for source attribution.
var envKeyFor = map[OverrideKey]string{
	KeyForceVersion:          EnvForceVersion,
	KeyDisableProvider:       EnvDisableProvider,
	KeyFailOpenMode:          EnvFailOpenMode,
	KeyEnableShadowMode:      EnvEnableShadowMode,
	KeyDisableCircuitBreaker: EnvDisableCircuitBreaker,
}

// OverridableConfig is the configuration surface overrides act on.
type OverridableConfig struct {
	Version               int
	Provider              string
	FailClosed            bool
	ShadowMode            bool
	CircuitBreakerEnabled bool
}

// Applier transforms the config for one active override key.
type Applier func(cfg OverridableConfig) OverridableConfig

// Mapper assigns an applier per key. Keys absent from a custom mapper fall
// back to the defaults.
type Mapper map[OverrideKey]Applier

func defaultMapper() Mapper {
	return Mapper{
		KeyForceVersion: func(cfg OverridableConfig) OverridableConfig {
			cfg.Version = 1
			return cfg
		},
		KeyDisableProvider: func(cfg OverridableConfig) OverridableConfig {
			cfg.Provider = ""
			return cfg
		},
		KeyFailOpenMode: func(cfg OverridableConfig) OverridableConfig {
			cfg.FailClosed = false
			return cfg
		},
		KeyEnableShadowMode: func(cfg OverridableConfig) OverridableConfig {
			cfg.ShadowMode = true
			return cfg
		},
		KeyDisableCircuitBreaker: func(cfg OverridableConfig) OverridableConfig {
			cfg.CircuitBreakerEnabled = false
			return cfg
		},
	}
}

// Source attributes where an override's activation came from.
type Source struct {
	Kind string
	Key  string
}

// AppliedFunc observes each applied key with before and after snapshots. A
// panicking callback never interrupts application.
type AppliedFunc func(key OverrideKey, before, after OverridableConfig)

// ApplyOptions tune ApplyRuntimeOverrides. The zero value selects the
// default mapper, environment source attribution, and the current time.
type ApplyOptions struct {
	Now               time.Time
	Mapper            Mapper
	SourceByKey       map[OverrideKey]Source
	Source            *Source
	OnOverrideApplied AppliedFunc
}

// ApplyResult reports which overrides fired and the resulting config.
type ApplyResult struct {
	Config     OverridableConfig
	Applied    bool
	ActiveKeys []OverrideKey
	Sources    map[OverrideKey]Source
	AppliedAt  time.Time
}

// ApplyRuntimeOverrides applies the active overrides to config in canonical
// order. Each applier sees the progressively updated config. Sources resolve
// per key first, then from the general source, then as the environment
// variable that activates the key.
func ApplyRuntimeOverrides(config OverridableConfig, ov RuntimeOverrides, opts ApplyOptions) ApplyResult {
	mapper := defaultMapper()
	for key, applier := range opts.Mapper {
		mapper[key] = applier
	}

	appliedAt := opts.Now
	if appliedAt.IsZero() {
		appliedAt = time.Now().UTC()
	}

	result := ApplyResult{
		Config:    config,
		Sources:   map[OverrideKey]Source{},
		AppliedAt: appliedAt,
	}

	for _, key := range CanonicalOrder {
		if !isActive(ov, key) {
			continue
		}
		applier, ok := mapper[key]
		if !ok {
			continue
		}

		before := result.Config
		result.Config = applier(before)
		result.Applied = true
		result.ActiveKeys = append(result.ActiveKeys, key)
		result.Sources[key] = resolveSource(key, opts)

		notifyApplied(opts.OnOverrideApplied, key, before, result.Config)
	}

	return result
}

// ApplyToPipeline folds the overrides that concern the execution path into a
// pipeline configuration. Only the circuit breaker toggle crosses over; the
// remaining keys act on the caller-facing OverridableConfig.
func ApplyToPipeline(cfg domain.PipelineConfig, ov RuntimeOverrides) domain.PipelineConfig {
	if ov.DisableCircuitBreaker {
		cfg.CircuitBreakerEnabled = false
	}
	return cfg
}

// HasActiveOverrides reports whether any override is set.
func HasActiveOverrides(ov RuntimeOverrides) bool {
	return len(GetActiveOverrideKeys(ov)) > 0
}

// GetActiveOverrideKeys lists the set overrides in canonical order.
func GetActiveOverrideKeys(ov RuntimeOverrides) []OverrideKey {
	var keys []OverrideKey
	for _, key := range CanonicalOrder {
		if isActive(ov, key) {
			keys = append(keys, key)
		}
	}
	return keys
}

func isActive(ov RuntimeOverrides, key OverrideKey) bool {
	switch key {
	case KeyForceVersion:
		return ov.ForceVersion
	case KeyDisableProvider:
		return ov.DisableProvider
	case KeyFailOpenMode:
		return ov.FailOpenMode
	case KeyEnableShadowMode:
		return ov.EnableShadowMode
	case KeyDisableCircuitBreaker:
		return ov.DisableCircuitBreaker
	default:
		return false
	}
}

func resolveSource(key OverrideKey, opts ApplyOptions) Source {
	if src, ok := opts.SourceByKey[key]; ok {
		return src
	}
	if opts.Source != nil {
		return *opts.Source
	}
	return Source{Kind: "environment", Key: envKeyFor[key]}
}

func notifyApplied(fn AppliedFunc, key OverrideKey, before, after OverridableConfig) {
	if fn == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	fn(key, before, after)
}
