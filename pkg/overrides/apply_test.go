package overrides

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/flowgate/flowgate/pkg/domain"
)

func TestApplyNoActiveOverrides(t *testing.T) {
	cfg := OverridableConfig{Version: 3, Provider: "primary", CircuitBreakerEnabled: true}

	result := ApplyRuntimeOverrides(cfg, RuntimeOverrides{}, ApplyOptions{})

	assert.False(t, result.Applied)
	assert.Empty(t, result.ActiveKeys)
	assert.Empty(t, result.Sources)
	assert.Equal(t, cfg, result.Config, "config untouched when nothing is active")
	assert.False(t, result.AppliedAt.IsZero())
}

func TestApplyDefaultMapper(t *testing.T) {
	cfg := OverridableConfig{
		Version:               3,
		Provider:              "primary",
		FailClosed:            true,
		ShadowMode:            false,
		CircuitBreakerEnabled: true,
	}
	ov := RuntimeOverrides{
		ForceVersion:          true,
		DisableProvider:       true,
		FailOpenMode:          true,
		EnableShadowMode:      true,
		DisableCircuitBreaker: true,
	}

	result := ApplyRuntimeOverrides(cfg, ov, ApplyOptions{})

	require.True(t, result.Applied)
	assert.Equal(t, OverridableConfig{
		Version:               1,
		Provider:              "",
		FailClosed:            false,
		ShadowMode:            true,
		CircuitBreakerEnabled: false,
	}, result.Config)
	assert.Equal(t, CanonicalOrder, result.ActiveKeys)
}

func TestApplyCanonicalOrderAndProgressiveConfig(t *testing.T) {
	var order []OverrideKey
	mapper := Mapper{}
	for _, key := range CanonicalOrder {
		key := key
		mapper[key] = func(cfg OverridableConfig) OverridableConfig {
			order = append(order, key)
			cfg.Version++
			return cfg
		}
	}

	ov := RuntimeOverrides{
		ForceVersion:          true,
		EnableShadowMode:      true,
		DisableCircuitBreaker: true,
	}
	result := ApplyRuntimeOverrides(OverridableConfig{}, ov, ApplyOptions{Mapper: mapper})

	want := []OverrideKey{KeyForceVersion, KeyEnableShadowMode, KeyDisableCircuitBreaker}
	assert.Equal(t, want, order, "appliers ran out of canonical order")
	assert.Equal(t, want, result.ActiveKeys)
	assert.Equal(t, 3, result.Config.Version, "each applier saw the progressively updated config")
}

func TestApplySourceResolution(t *testing.T) {
	ov := RuntimeOverrides{ForceVersion: true, EnableShadowMode: true}

	t.Run("per-key beats general beats environment", func(t *testing.T) {
		perKey := Source{Kind: "ticket", Key: "OPS-123"}
		general := Source{Kind: "rollout", Key: "wave-2"}

		result := ApplyRuntimeOverrides(OverridableConfig{}, ov, ApplyOptions{
			SourceByKey: map[OverrideKey]Source{KeyForceVersion: perKey},
			Source:      &general,
		})

		assert.Equal(t, perKey, result.Sources[KeyForceVersion])
		assert.Equal(t, general, result.Sources[KeyEnableShadowMode])
	})

	t.Run("environment fallback names the variable", func(t *testing.T) {
		result := ApplyRuntimeOverrides(OverridableConfig{}, ov, ApplyOptions{})

		assert.Equal(t, Source{Kind: "environment", Key: EnvForceVersion}, result.Sources[KeyForceVersion])
		assert.Equal(t, Source{Kind: "environment", Key: EnvEnableShadowMode}, result.Sources[KeyEnableShadowMode])
	})
}

func TestApplyCallbackObservesSnapshots(t *testing.T) {
	type call struct {
		key           OverrideKey
		before, after OverridableConfig
	}
	var calls []call

	cfg := OverridableConfig{Version: 9, Provider: "primary"}
	ov := RuntimeOverrides{ForceVersion: true, DisableProvider: true}

	ApplyRuntimeOverrides(cfg, ov, ApplyOptions{
		OnOverrideApplied: func(key OverrideKey, before, after OverridableConfig) {
			calls = append(calls, call{key, before, after})
		},
	})

	require.Len(t, calls, 2)
	assert.Equal(t, KeyForceVersion, calls[0].key)
	assert.Equal(t, 9, calls[0].before.Version)
	assert.Equal(t, 1, calls[0].after.Version)
	assert.Equal(t, KeyDisableProvider, calls[1].key)
	assert.Equal(t, "primary", calls[1].before.Provider)
	assert.Equal(t, "", calls[1].after.Provider)
}

func TestApplyPanickingCallbackDoesNotInterrupt(t *testing.T) {
	ov := RuntimeOverrides{ForceVersion: true, DisableCircuitBreaker: true}

	assert.NotPanics(t, func() {
		result := ApplyRuntimeOverrides(OverridableConfig{CircuitBreakerEnabled: true}, ov, ApplyOptions{
			OnOverrideApplied: func(OverrideKey, OverridableConfig, OverridableConfig) {
				panic("observer exploded")
			},
		})
		assert.True(t, result.Applied)
		assert.Len(t, result.ActiveKeys, 2, "all overrides applied despite panicking callback")
		assert.False(t, result.Config.CircuitBreakerEnabled)
	})
}

func TestApplyUsesSuppliedTimestamp(t *testing.T) {
	at := time.Date(2026, 8, 25, 9, 30, 0, 0, time.UTC)
	result := ApplyRuntimeOverrides(OverridableConfig{}, RuntimeOverrides{ForceVersion: true}, ApplyOptions{Now: at})
	assert.Equal(t, at, result.AppliedAt)
}

func TestDerivedQueries(t *testing.T) {
	assert.False(t, HasActiveOverrides(RuntimeOverrides{}))
	assert.Empty(t, GetActiveOverrideKeys(RuntimeOverrides{}))

	ov := RuntimeOverrides{DisableProvider: true, DisableCircuitBreaker: true}
	assert.True(t, HasActiveOverrides(ov))
	assert.Equal(t, []OverrideKey{KeyDisableProvider, KeyDisableCircuitBreaker}, GetActiveOverrideKeys(ov))
}

func TestApplyToPipeline(t *testing.T) {
	cfg := domain.PipelineConfig{CircuitBreakerEnabled: true, MaxStages: 5}

	same := ApplyToPipeline(cfg, RuntimeOverrides{})
	assert.True(t, same.CircuitBreakerEnabled)

	disabled := ApplyToPipeline(cfg, RuntimeOverrides{DisableCircuitBreaker: true})
	assert.False(t, disabled.CircuitBreakerEnabled)
	assert.Equal(t, 5, disabled.MaxStages, "unrelated fields untouched")
}

// Property: ActiveKeys is always exactly the active subset of CanonicalOrder,
// in canonical order, regardless of which toggles are set.
func TestApplyActiveKeysProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ov := RuntimeOverrides{
			ForceVersion:          rapid.Bool().Draw(t, "force_version"),
			DisableProvider:       rapid.Bool().Draw(t, "disable_provider"),
			FailOpenMode:          rapid.Bool().Draw(t, "fail_open_mode"),
			EnableShadowMode:      rapid.Bool().Draw(t, "enable_shadow_mode"),
			DisableCircuitBreaker: rapid.Bool().Draw(t, "disable_circuit_breaker"),
		}

		result := ApplyRuntimeOverrides(OverridableConfig{}, ov, ApplyOptions{})

		assert.Equal(t, GetActiveOverrideKeys(ov), result.ActiveKeys)
		assert.Equal(t, len(result.ActiveKeys) > 0, result.Applied)
		assert.Len(t, result.Sources, len(result.ActiveKeys))

		pos := map[OverrideKey]int{}
		for i, key := range CanonicalOrder {
			pos[key] = i
		}
		for i := 1; i < len(result.ActiveKeys); i++ {
			if pos[result.ActiveKeys[i-1]] >= pos[result.ActiveKeys[i]] {
				t.Fatalf("active keys out of canonical order: %v", result.ActiveKeys)
			}
		}
	})
}
