// Package domain defines the core value types shared across the pipeline
// engine: stage plugins, compiled execution plans, pipeline configuration,
// commands, and structured results. Types here are pure data; behaviour
// lives in pkg/engine, pkg/policy, pkg/effect, and pkg/overrides.
package domain
