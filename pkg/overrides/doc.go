// Package overrides reads operational toggles from the environment or a
// configuration source and applies them to pipeline configuration in a fixed
// canonical order. Reading is fail-safe: malformed input, an unavailable
// provider, or a panicking callback degrades to defaults instead of
// interrupting the caller.
package overrides
