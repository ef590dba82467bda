package overrides

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type panickingProvider struct{}

func (panickingProvider) Get(string) (string, bool) { panic("provider exploded") }
func (panickingProvider) IsAvailable() bool         { return true }

func TestReadOverridesTruthyValues(t *testing.T) {
	cases := map[string]bool{
		"true":   true,
		"TRUE":   true,
		"True":   true,
		" true ": true,
		"1":      true,
		" 1 ":    true,
		"false":  false,
		"0":      false,
		"yes":    false,
		"":       false,
		"   ":    false,
		"truee":  false,
	}

	for raw, want := range cases {
		provider := MapEnvProvider{Values: map[string]string{EnvForceVersion: raw}}
		got := ReadRuntimeOverridesFromEnv(provider)
		assert.Equal(t, want, got.ForceVersion, "value %q", raw)
	}
}

func TestReadOverridesAllKeys(t *testing.T) {
	provider := MapEnvProvider{Values: map[string]string{
		EnvForceVersion:          "true",
		EnvDisableProvider:       "1",
		EnvFailOpenMode:          "TRUE",
		EnvEnableShadowMode:      "true",
		EnvDisableCircuitBreaker: "1",
	}}

	got := ReadRuntimeOverridesFromEnv(provider)
	assert.Equal(t, RuntimeOverrides{
		ForceVersion:          true,
		DisableProvider:       true,
		FailOpenMode:          true,
		EnableShadowMode:      true,
		DisableCircuitBreaker: true,
	}, got)
}

func TestReadOverridesAbsentKeysAreFalse(t *testing.T) {
	got := ReadRuntimeOverridesFromEnv(MapEnvProvider{})
	assert.Equal(t, DefaultRuntimeOverrides, got)
}

func TestReadOverridesUnavailableProvider(t *testing.T) {
	provider := MapEnvProvider{
		Values:      map[string]string{EnvForceVersion: "true"},
		Unavailable: true,
	}
	got := ReadRuntimeOverridesFromEnv(provider)
	assert.Equal(t, DefaultRuntimeOverrides, got)
}

func TestReadOverridesPanickingProviderDegrades(t *testing.T) {
	assert.NotPanics(t, func() {
		got := ReadRuntimeOverridesFromEnv(panickingProvider{})
		assert.Equal(t, DefaultRuntimeOverrides, got)
	})
}

func TestReadOverridesNeverPanicsProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		values := map[string]string{}
		for _, key := range []string{
			EnvForceVersion, EnvDisableProvider, EnvFailOpenMode,
			EnvEnableShadowMode, EnvDisableCircuitBreaker,
		} {
			if rapid.Bool().Draw(t, "present_"+key) {
				values[key] = rapid.String().Draw(t, "value_"+key)
			}
		}
		// Must never panic, whatever the provider serves.
		_ = ReadRuntimeOverridesFromEnv(MapEnvProvider{Values: values})
	})
}

func TestValidateRuntimeOverrides(t *testing.T) {
	got, err := ValidateRuntimeOverrides(map[string]bool{
		"force_version":      true,
		"enable_shadow_mode": true,
	})
	require.NoError(t, err)
	assert.True(t, got.ForceVersion)
	assert.True(t, got.EnableShadowMode)
	assert.False(t, got.DisableProvider)

	_, err = ValidateRuntimeOverrides(map[string]bool{"force_versoin": true})
	require.Error(t, err)
	var unknownErr *UnknownOverrideKeyError
	require.ErrorAs(t, err, &unknownErr)
	assert.Equal(t, "force_versoin", unknownErr.Key)

	got, err = ValidateRuntimeOverrides(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultRuntimeOverrides, got)
}
