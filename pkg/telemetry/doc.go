// Package telemetry bootstraps OpenTelemetry tracing for the engine and
// provides the metric instruments recorded around stage execution, adapter
// events, and facade decisions. The engine itself performs no I/O; every
// export path is configured here and injected by the caller.
package telemetry
