package overrides

import (
	"os"
	"strings"
)

// Environment keys read by ReadRuntimeOverridesFromEnv. Values are
// interpreted case-insensitively; "true" and "1" enable the override,
// anything else (including absence) leaves it off.
const (
	EnvForceVersion          = "PIPELINE_OVERRIDE_FORCE_VERSION"
	EnvDisableProvider       = "PIPELINE_OVERRIDE_DISABLE_PROVIDER"
	EnvFailOpenMode          = "PIPELINE_OVERRIDE_FAIL_OPEN_MODE"
	EnvEnableShadowMode      = "PIPELINE_OVERRIDE_ENABLE_SHADOW_MODE"
	EnvDisableCircuitBreaker = "PIPELINE_OVERRIDE_DISABLE_CIRCUIT_BREAKER"
)

// RuntimeOverrides is the set of boolean toggles read from the environment
// or a configuration source.
type RuntimeOverrides struct {
	ForceVersion          bool
	DisableProvider       bool
	FailOpenMode          bool
	EnableShadowMode      bool
	DisableCircuitBreaker bool
}

// DefaultRuntimeOverrides is the all-off value used whenever the provider
// fails or is unavailable.
var DefaultRuntimeOverrides = RuntimeOverrides{}

// EnvProvider supplies environment values. Implementations may be backed by
// the process environment, a remote source, or a fixture map.
type EnvProvider interface {
	// Get returns the raw value for key and whether it was present.
	Get(key string) (string, bool)
	// IsAvailable reports whether the provider can serve lookups at all.
	IsAvailable() bool
}

// OSEnvProvider reads the process environment.
type OSEnvProvider struct{}

func (OSEnvProvider) Get(key string) (string, bool) { return os.LookupEnv(key) }
func (OSEnvProvider) IsAvailable() bool             { return true }

// MapEnvProvider serves lookups from a fixed map. Used by tests and by
// configuration files that carry an overrides section.
type MapEnvProvider struct {
	Values      map[string]string
	Unavailable bool
}

func (p MapEnvProvider) Get(key string) (string, bool) {
	v, ok := p.Values[key]
	return v, ok
}

func (p MapEnvProvider) IsAvailable() bool { return !p.Unavailable }

// ReadRuntimeOverridesFromEnv reads the five override keys from the
// provider. It never panics: a nil provider selects the process environment,
// and any provider panic or unavailability degrades to
// DefaultRuntimeOverrides.
func ReadRuntimeOverridesFromEnv(provider EnvProvider) (result RuntimeOverrides) {
	defer func() {
		if recover() != nil {
			result = DefaultRuntimeOverrides
		}
	}()

	if provider == nil {
		provider = OSEnvProvider{}
	}
	if !provider.IsAvailable() {
		return DefaultRuntimeOverrides
	}

	return RuntimeOverrides{
		ForceVersion:          readBool(provider, EnvForceVersion),
		DisableProvider:       readBool(provider, EnvDisableProvider),
		FailOpenMode:          readBool(provider, EnvFailOpenMode),
		EnableShadowMode:      readBool(provider, EnvEnableShadowMode),
		DisableCircuitBreaker: readBool(provider, EnvDisableCircuitBreaker),
	}
}

func readBool(provider EnvProvider, key string) bool {
	raw, ok := provider.Get(key)
	if !ok {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "true", "1":
		return true
	default:
		return false
	}
}

// ValidateRuntimeOverrides converts a loosely-typed override map, as parsed
// from a configuration file, into a RuntimeOverrides value. Unknown keys are
// rejected so typos fail loudly instead of silently doing nothing.
func ValidateRuntimeOverrides(raw map[string]bool) (RuntimeOverrides, error) {
	var out RuntimeOverrides
	for key, value := range raw {
		switch OverrideKey(key) {
		case KeyForceVersion:
			out.ForceVersion = value
		case KeyDisableProvider:
			out.DisableProvider = value
		case KeyFailOpenMode:
			out.FailOpenMode = value
		case KeyEnableShadowMode:
			out.EnableShadowMode = value
		case KeyDisableCircuitBreaker:
			out.DisableCircuitBreaker = value
		default:
			return RuntimeOverrides{}, &UnknownOverrideKeyError{Key: key}
		}
	}
	return out, nil
}

// UnknownOverrideKeyError reports an override key outside the known set.
type UnknownOverrideKeyError struct {
	Key string
}

func (e *UnknownOverrideKeyError) Error() string {
	return "unknown override key: " + e.Key
}
