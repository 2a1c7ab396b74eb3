package reporter

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/meshtest/harness/pkg/harness"
)

// Metrics exposes step pass/fail counts and durations as Prometheus
// collectors, grounded on C360Studio-semspec's prometheus/client_golang
// usage (the only repo in the pack depending on it).
type Metrics struct {
	stepsTotal    *prometheus.CounterVec
	stepDuration  *prometheus.HistogramVec
	testCasesTotal *prometheus.CounterVec
}

// NewMetrics constructs and registers collectors against reg. Pass
// prometheus.NewRegistry() for an isolated registry in tests, or
// prometheus.DefaultRegisterer for a process-wide one.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		stepsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harness_steps_total",
			Help: "Total steps executed, labeled by component and outcome.",
		}, []string{"component", "outcome"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "harness_step_duration_seconds",
			Help: "Step execution duration in seconds.",
		}, []string{"component"}),
		testCasesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "harness_test_cases_total",
			Help: "Total test cases run, labeled by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.stepsTotal, m.stepDuration, m.testCasesTotal)
	return m
}

func (m *Metrics) OnScenarioStart(name string) {}

func (m *Metrics) OnTestCaseStart(tc *harness.TestCase) {}

func (m *Metrics) OnStepComplete(res harness.StepResult) {
	outcome := "passed"
	if res.Err != nil {
		outcome = "failed"
	}
	m.stepsTotal.WithLabelValues(res.Component, outcome).Inc()
	m.stepDuration.WithLabelValues(res.Component).Observe(res.Duration.Seconds())
}

func (m *Metrics) OnTestCaseComplete(tc *harness.TestCase, err error) {
	outcome := "passed"
	if err != nil {
		outcome = "failed"
	}
	m.testCasesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) OnScenarioComplete(err error) {}
