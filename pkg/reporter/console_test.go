package reporter

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/meshtest/harness/pkg/harness"
)

func newTestConsole(buf *bytes.Buffer) *Console {
	return NewConsole(slog.New(slog.NewTextHandler(buf, nil)))
}

func TestConsole_OnScenarioStartLogsScenarioName(t *testing.T) {
	var buf bytes.Buffer
	c := newTestConsole(&buf)

	c.OnScenarioStart("checkout flow")

	assert.Contains(t, buf.String(), "scenario started")
	assert.Contains(t, buf.String(), "checkout flow")
}

func TestConsole_OnStepCompleteLogsWarnOnError(t *testing.T) {
	var buf bytes.Buffer
	c := newTestConsole(&buf)

	c.OnStepComplete(harness.StepResult{
		StepID: "s1", Component: "api", Duration: 10 * time.Millisecond,
		Err: errors.New("boom"),
	})

	assert.Contains(t, buf.String(), "step failed")
	assert.Contains(t, buf.String(), "boom")
}

func TestConsole_OnStepCompleteLogsInfoOnSuccess(t *testing.T) {
	var buf bytes.Buffer
	c := newTestConsole(&buf)

	c.OnStepComplete(harness.StepResult{StepID: "s1", Component: "api", Duration: time.Millisecond})

	assert.Contains(t, buf.String(), "step completed")
	assert.NotContains(t, buf.String(), "level=WARN")
}

func TestConsole_OnTestCaseCompleteDistinguishesPassFail(t *testing.T) {
	var buf bytes.Buffer
	c := newTestConsole(&buf)
	tc := &harness.TestCase{ID: "tc-1", Name: "health check"}

	c.OnTestCaseComplete(tc, nil)
	assert.Contains(t, buf.String(), "test case passed")

	buf.Reset()
	c.OnTestCaseComplete(tc, errors.New("assertion failed"))
	assert.Contains(t, buf.String(), "test case failed")
	assert.Contains(t, buf.String(), "assertion failed")
}

func TestConsole_OnScenarioCompleteDistinguishesPassFail(t *testing.T) {
	var buf bytes.Buffer
	c := newTestConsole(&buf)

	c.OnScenarioComplete(nil)
	assert.Contains(t, buf.String(), "scenario passed")

	buf.Reset()
	c.OnScenarioComplete(errors.New("timeout"))
	assert.Contains(t, buf.String(), "scenario failed")
}
