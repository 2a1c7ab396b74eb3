package reporter

import "github.com/meshtest/harness/pkg/harness"

// Composite fans every notification out to a fixed list of reporters, in
// order, so a scenario can log to the console and emit metrics
// simultaneously (spec §4.9).
type Composite struct {
	reporters []harness.Reporter
}

// NewComposite returns a Composite fanning out to reporters.
func NewComposite(reporters ...harness.Reporter) *Composite {
	return &Composite{reporters: reporters}
}

func (c *Composite) OnScenarioStart(name string) {
	for _, r := range c.reporters {
		r.OnScenarioStart(name)
	}
}

func (c *Composite) OnTestCaseStart(tc *harness.TestCase) {
	for _, r := range c.reporters {
		r.OnTestCaseStart(tc)
	}
}

func (c *Composite) OnStepComplete(res harness.StepResult) {
	for _, r := range c.reporters {
		r.OnStepComplete(res)
	}
}

func (c *Composite) OnTestCaseComplete(tc *harness.TestCase, err error) {
	for _, r := range c.reporters {
		r.OnTestCaseComplete(tc, err)
	}
}

func (c *Composite) OnScenarioComplete(err error) {
	for _, r := range c.reporters {
		r.OnScenarioComplete(err)
	}
}
