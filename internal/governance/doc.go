// Package governance provides the retry and circuit-breaker primitives the
// executor wraps around individual stage invocations.
package governance
