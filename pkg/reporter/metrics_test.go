package reporter

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meshtest/harness/pkg/harness"
)

func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, vec.WithLabelValues(labels...).Write(m))
	return m.GetCounter().GetValue()
}

func TestMetrics_RegistersCollectorsAgainstGivenRegisterer(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	assert.NotNil(t, m)

	families, err := reg.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "harness_steps_total")
	assert.Contains(t, names, "harness_step_duration_seconds")
	assert.Contains(t, names, "harness_test_cases_total")
}

func TestMetrics_OnStepCompleteIncrementsPassedOrFailedCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.OnStepComplete(harness.StepResult{Component: "api", Duration: 5 * time.Millisecond})
	m.OnStepComplete(harness.StepResult{Component: "api", Duration: time.Millisecond, Err: errors.New("boom")})

	assert.Equal(t, float64(1), counterValue(t, m.stepsTotal, "api", "passed"))
	assert.Equal(t, float64(1), counterValue(t, m.stepsTotal, "api", "failed"))
}

func TestMetrics_OnTestCaseCompleteIncrementsOutcomeCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	tc := &harness.TestCase{ID: "tc-1", Name: "checkout"}

	m.OnTestCaseComplete(tc, nil)
	m.OnTestCaseComplete(tc, errors.New("failed assertion"))
	m.OnTestCaseComplete(tc, errors.New("failed assertion"))

	assert.Equal(t, float64(1), counterValue(t, m.testCasesTotal, "passed"))
	assert.Equal(t, float64(2), counterValue(t, m.testCasesTotal, "failed"))
}
