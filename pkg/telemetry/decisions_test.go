package telemetry

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestDecisionMetricsCount(t *testing.T) {
	m := NewDecisionMetrics()

	m.ObserveCommand("COMPILE_PLAN")
	m.ObserveCommand("COMPILE_PLAN")
	m.ObserveDecision("COMPILE_PLAN", "ALLOW")
	m.ObserveDispatch("COMPILE_PLAN", "PLAN_COMPILED")

	if got := testutil.ToFloat64(m.commandsTotal.WithLabelValues("COMPILE_PLAN")); got != 2 {
		t.Errorf("commands counter = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.decisionsTotal.WithLabelValues("COMPILE_PLAN", "ALLOW")); got != 1 {
		t.Errorf("decisions counter = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.dispatchTotal.WithLabelValues("COMPILE_PLAN", "PLAN_COMPILED")); got != 1 {
		t.Errorf("dispatch counter = %v, want 1", got)
	}
}

func TestDecisionMetricsNilSafe(t *testing.T) {
	var m *DecisionMetrics
	m.ObserveCommand("COMPILE_PLAN")
	m.ObserveDecision("COMPILE_PLAN", "ALLOW")
	m.ObserveDispatch("COMPILE_PLAN", "PLAN_COMPILED")
}
