package reporter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/meshtest/harness/pkg/harness"
)

type recordingReporter struct {
	events []string
}

func (r *recordingReporter) OnScenarioStart(name string)                       { r.events = append(r.events, "start:"+name) }
func (r *recordingReporter) OnTestCaseStart(tc *harness.TestCase)              { r.events = append(r.events, "tc-start:"+tc.Name) }
func (r *recordingReporter) OnStepComplete(res harness.StepResult)             { r.events = append(r.events, "step:"+res.StepID) }
func (r *recordingReporter) OnTestCaseComplete(tc *harness.TestCase, err error) { r.events = append(r.events, "tc-complete:"+tc.Name) }
func (r *recordingReporter) OnScenarioComplete(err error)                      { r.events = append(r.events, "complete") }

var _ harness.Reporter = (*recordingReporter)(nil)

func TestComposite_FansOutEveryNotificationToEveryReporterInOrder(t *testing.T) {
	a := &recordingReporter{}
	b := &recordingReporter{}
	composite := NewComposite(a, b)

	tc := &harness.TestCase{ID: "tc-1", Name: "checkout"}
	composite.OnScenarioStart("checkout flow")
	composite.OnTestCaseStart(tc)
	composite.OnStepComplete(harness.StepResult{StepID: "s1", Duration: time.Millisecond})
	composite.OnTestCaseComplete(tc, nil)
	composite.OnScenarioComplete(nil)

	want := []string{"start:checkout flow", "tc-start:checkout", "step:s1", "tc-complete:checkout", "complete"}
	assert.Equal(t, want, a.events)
	assert.Equal(t, want, b.events)
}

func TestComposite_EmptyReporterListIsANoOp(t *testing.T) {
	composite := NewComposite()
	assert.NotPanics(t, func() {
		composite.OnScenarioStart("empty")
		composite.OnScenarioComplete(nil)
	})
}
