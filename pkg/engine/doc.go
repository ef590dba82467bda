// Package engine implements plan compilation and DAG-ordered execution for
// dependency-driven stage sets.
//
// Architecture:
//
// compiler.go   - Structural validation, topological ordering, plan versioning
// executor.go   - Sequential and bounded-parallel plan execution
// governance.go - Per-stage timeout/retry/circuit-breaker wrapping
// registry.go   - Stage factory registry (aliases) and compiled-plan registry
// stages.go     - Built-in stage factories (passthrough, static, fail, delay)
//
// The compiler turns an unordered set of stage plugins into an immutable
// ExecutionPlan; the executor threads a slot accumulator through that plan.
// Both return failures as structured values and never panic for expected
// conditions.
package engine
