// Package reporter provides concrete harness.Reporter implementations: a
// slog-based console reporter, a fan-out composite, and a Prometheus
// metrics reporter (SPEC_FULL.md §4.9 new additions).
package reporter

import (
	"log/slog"

	"github.com/meshtest/harness/pkg/harness"
)

// Console logs one line per step/test-case/scenario lifecycle event via
// log/slog, matching tarsy's uniform structured-logging idiom.
type Console struct {
	Logger *slog.Logger
}

// NewConsole returns a Console reporter using logger, or slog.Default() if nil.
func NewConsole(logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{Logger: logger}
}

func (c *Console) OnScenarioStart(name string) {
	c.Logger.Info("scenario started", "scenario", name)
}

func (c *Console) OnTestCaseStart(tc *harness.TestCase) {
	c.Logger.Info("test case started", "testCase", tc.Name, "id", tc.ID)
}

func (c *Console) OnStepComplete(res harness.StepResult) {
	if res.Err != nil {
		c.Logger.Warn("step failed", "step", res.StepID, "component", res.Component, "duration", res.Duration, "error", res.Err)
		return
	}
	c.Logger.Info("step completed", "step", res.StepID, "component", res.Component, "duration", res.Duration)
}

func (c *Console) OnTestCaseComplete(tc *harness.TestCase, err error) {
	if err != nil {
		c.Logger.Error("test case failed", "testCase", tc.Name, "error", err)
		return
	}
	c.Logger.Info("test case passed", "testCase", tc.Name)
}

func (c *Console) OnScenarioComplete(err error) {
	if err != nil {
		c.Logger.Error("scenario failed", "error", err)
		return
	}
	c.Logger.Info("scenario passed")
}
