package telemetry

import "github.com/prometheus/client_golang/prometheus"

// DecisionMetrics holds Prometheus metrics for facade command handling.
// Callers expose the registry via promhttp when they want scraping; the
// facade only writes to it.
type DecisionMetrics struct {
	commandsTotal  *prometheus.CounterVec
	decisionsTotal *prometheus.CounterVec
	dispatchTotal  *prometheus.CounterVec

	registry *prometheus.Registry
}

// NewDecisionMetrics creates a metrics instance backed by its own registry.
func NewDecisionMetrics() *DecisionMetrics {
	registry := prometheus.NewRegistry()

	m := &DecisionMetrics{
		commandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowgate_commands_total",
				Help: "Commands submitted to the facade by kind",
			},
			[]string{"kind"},
		),
		decisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowgate_rule_decisions_total",
				Help: "Rule chain decisions by command kind and decision",
			},
			[]string{"kind", "decision"},
		),
		dispatchTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "flowgate_dispatch_results_total",
				Help: "Dispatch outcomes by command kind and result kind",
			},
			[]string{"kind", "result"},
		),
		registry: registry,
	}

	registry.MustRegister(m.commandsTotal, m.decisionsTotal, m.dispatchTotal)
	return m
}

// ObserveCommand counts a submitted command.
func (m *DecisionMetrics) ObserveCommand(kind string) {
	if m == nil {
		return
	}
	m.commandsTotal.WithLabelValues(kind).Inc()
}

// ObserveDecision counts one rule decision against a command kind.
func (m *DecisionMetrics) ObserveDecision(kind, decision string) {
	if m == nil {
		return
	}
	m.decisionsTotal.WithLabelValues(kind, decision).Inc()
}

// ObserveDispatch counts the final result kind for a dispatched command.
func (m *DecisionMetrics) ObserveDispatch(kind, result string) {
	if m == nil {
		return
	}
	m.dispatchTotal.WithLabelValues(kind, result).Inc()
}

// Registry exposes the underlying registry for scraping.
func (m *DecisionMetrics) Registry() *prometheus.Registry {
	return m.registry
}
