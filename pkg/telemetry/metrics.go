package telemetry

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	metricsOnce            sync.Once
	metricsInitErr         error
	stageExecutionCounter  metric.Int64Counter
	stageRetryCounter      metric.Int64Counter
	stageTimeoutCounter    metric.Int64Counter
	stageLatencyHistogram  metric.Float64Histogram
	adapterEventCounter    metric.Int64Counter
	overrideAppliedCounter metric.Int64Counter
)

// StageMetrics captures the fields needed to record stage execution metrics.
type StageMetrics struct {
	PlanVersion string
	StageID     string
	Outcome     string
	Duration    time.Duration
	Retries     int
}

// RecordStageMetrics emits counters and histograms describing one stage
// invocation.
func RecordStageMetrics(ctx context.Context, m StageMetrics) {
	if err := ensureMetrics(); err != nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("plan.version", m.PlanVersion),
		attribute.String("stage.id", m.StageID),
		attribute.String("stage.outcome", m.Outcome),
	}

	stageExecutionCounter.Add(ctx, 1, metric.WithAttributes(attrs...))

	if m.Duration > 0 {
		stageLatencyHistogram.Record(ctx, float64(m.Duration)/float64(time.Millisecond), metric.WithAttributes(attrs...))
	}
	if m.Retries > 0 {
		stageRetryCounter.Add(ctx, int64(m.Retries), metric.WithAttributes(attrs...))
	}
	if m.Outcome == "timeout" {
		stageTimeoutCounter.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

// RecordAdapterEvent counts effect-adapter lifecycle events by type.
func RecordAdapterEvent(ctx context.Context, eventType string) {
	if err := ensureMetrics(); err != nil {
		return
	}
	adapterEventCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("adapter.event", eventType),
	))
}

// RecordOverrideApplied counts runtime override applications by key.
func RecordOverrideApplied(ctx context.Context, key string) {
	if err := ensureMetrics(); err != nil {
		return
	}
	overrideAppliedCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("override.key", key),
	))
}

func ensureMetrics() error {
	metricsOnce.Do(func() {
		meter := otel.GetMeterProvider().Meter("flowgate.pipeline")

		stageExecutionCounter, metricsInitErr = meter.Int64Counter(
			"flowgate.stage.executions_total",
			metric.WithDescription("Stage executions partitioned by outcome"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		stageRetryCounter, metricsInitErr = meter.Int64Counter(
			"flowgate.stage.retries_total",
			metric.WithDescription("Retry attempts performed by stages"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		stageTimeoutCounter, metricsInitErr = meter.Int64Counter(
			"flowgate.stage.timeouts_total",
			metric.WithDescription("Stage invocations terminated by a deadline"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		stageLatencyHistogram, metricsInitErr = meter.Float64Histogram(
			"flowgate.stage.duration_ms",
			metric.WithDescription("Stage execution latency in milliseconds"),
			metric.WithUnit("ms"),
		)
		if metricsInitErr != nil {
			return
		}

		adapterEventCounter, metricsInitErr = meter.Int64Counter(
			"flowgate.adapter.events_total",
			metric.WithDescription("Effect adapter lifecycle events by type"),
			metric.WithUnit("{count}"),
		)
		if metricsInitErr != nil {
			return
		}

		overrideAppliedCounter, metricsInitErr = meter.Int64Counter(
			"flowgate.overrides.applied_total",
			metric.WithDescription("Runtime overrides applied by key"),
			metric.WithUnit("{count}"),
		)
	})
	return metricsInitErr
}
