package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Options configures a Scenario run (spec §4.1 new additions).
type Options struct {
	// FailFast stops a test case's Phase 2 at its first failing step
	// instead of running every remaining step.
	FailFast bool
	// Timeout bounds the entire scenario run; zero means no bound beyond
	// each individual step's own timeout.
	Timeout time.Duration
}

// Scenario owns a named set of components and drives a list of test cases
// through them: start every component, run each test case via the
// three-phase Executor, then stop every component (spec §4.1).
type Scenario struct {
	Name       string
	opts       Options
	logger     *slog.Logger
	reporter   Reporter
	recorder   *Recorder
	components map[string]*BaseComponent
	lifecycles map[string]Lifecycle
	order      []string
	mu         sync.Mutex
	testCases  []*TestCase
}

// networkComponent is implemented by a component's concrete type when it
// should sort after non-network components in startAll (spec §4.1's
// "start non-network components (e.g. DataSource) first, then network
// components"). Absent from a type, it's assumed network.
type networkComponent interface {
	isNetworkComponent() bool
}

func isNetwork(lc Lifecycle) bool {
	nc, ok := lc.(networkComponent)
	return !ok || nc.isNetworkComponent()
}

// NewScenario constructs an empty Scenario named name.
func NewScenario(name string, opts Options) *Scenario {
	return &Scenario{
		Name:       name,
		opts:       opts,
		logger:     slog.Default(),
		reporter:   NoopReporter{},
		recorder:   NewRecorder(),
		components: make(map[string]*BaseComponent),
		lifecycles: make(map[string]Lifecycle),
	}
}

// Logger overrides the default slog.Default() logger.
func (s *Scenario) Logger(l *slog.Logger) *Scenario {
	s.logger = l
	return s
}

// Reporter registers r to receive lifecycle notifications.
func (s *Scenario) Reporter(r Reporter) *Scenario {
	s.reporter = r
	return s
}

// Recorder exposes the scenario's interaction recorder.
func (s *Scenario) Recorder() *Recorder {
	return s.recorder
}

// AddComponent registers a named component. lc drives Start/Stop; base is
// the hook registry the executor dispatches against. A single type may
// implement both Lifecycle and embed *BaseComponent directly.
func (s *Scenario) AddComponent(name string, lc Lifecycle, base *BaseComponent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.lifecycles[name]; !exists {
		s.order = append(s.order, name)
	}
	s.lifecycles[name] = lc
	s.components[name] = base
}

// Component implements ComponentRegistry for the Executor.
func (s *Scenario) Component(name string) (*BaseComponent, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.components[name]
	return c, ok
}

// AddTestCase appends tc to the ordered list this scenario will run.
func (s *Scenario) AddTestCase(tc *TestCase) {
	s.testCases = append(s.testCases, tc)
}

// Run starts every component, runs every test case in order, then stops
// every component regardless of test-case outcome (spec §4.1 step
// sequence). It returns the first error encountered, after all components
// have been given a chance to stop.
func (s *Scenario) Run(ctx context.Context) error {
	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	s.reporter.OnScenarioStart(s.Name)

	if err := s.startAll(ctx); err != nil {
		// Components that did start before the failure must still be
		// stopped (spec §4.1: "already-started components are stopped in
		// reverse order").
		if stopErr := s.stopAll(ctx); stopErr != nil {
			s.logger.Error("stop after failed start also failed", "error", stopErr)
		}
		s.reporter.OnScenarioComplete(err)
		return err
	}

	exec := &Executor{Registry: s, Reporter: s.reporter, Logger: s.logger, FailFast: s.opts.FailFast}

	var runErr error
	for _, tc := range s.testCases {
		s.reporter.OnTestCaseStart(tc)
		results, err := exec.Run(ctx, tc)
		for _, r := range results {
			direction := DirectionDownstream
			if r.Mode == ModeWait || r.Mode == ModeHook {
				direction = DirectionUpstream
			}
			status := StatusCompleted
			switch {
			case errors.Is(r.Err, ErrTimeout):
				status = StatusTimeout
			case r.Err != nil:
				status = StatusFailed
			}
			in := Interaction{
				TestCaseID:        tc.ID,
				StepID:            r.StepID,
				Component:         r.Component,
				ServiceName:       r.Component,
				MessageType:       r.MessageType,
				TraceID:           r.TraceID,
				Direction:         direction,
				Status:            status,
				Message:           r.Request,
				Response:          r.Response,
				Err:               r.Err,
				RequestTimestamp:  r.Started,
				ResponseTimestamp: r.Started.Add(r.Duration),
				Duration:          r.Duration,
				Timestamp:         r.Started,
			}
			if r.Request != nil {
				in.RequestPayload = r.Request.Payload
			}
			if r.Response != nil {
				in.ResponsePayload = r.Response.Payload
			}
			s.recorder.Record(in)
		}
		s.reporter.OnTestCaseComplete(tc, err)
		if err != nil && runErr == nil {
			runErr = err
		}
		if s.opts.FailFast && err != nil {
			break
		}
	}

	stopErr := s.stopAll(ctx)
	if runErr == nil {
		runErr = stopErr
	}

	s.reporter.OnScenarioComplete(runErr)
	return runErr
}

// startOrder sorts s.order stable by declared order, but with every
// non-network component (e.g. DataSource) ahead of every network one (spec
// §4.1: "prevents clients from racing servers").
func (s *Scenario) startOrder() []string {
	out := make([]string, 0, len(s.order))
	for _, name := range s.order {
		if !isNetwork(s.lifecycles[name]) {
			out = append(out, name)
		}
	}
	for _, name := range s.order {
		if isNetwork(s.lifecycles[name]) {
			out = append(out, name)
		}
	}
	return out
}

func (s *Scenario) startAll(ctx context.Context) error {
	for _, name := range s.startOrder() {
		if err := s.lifecycles[name].Start(ctx); err != nil {
			return fmt.Errorf("harness: starting component %q: %w", name, err)
		}
	}
	return nil
}

// stopAll stops every component in the reverse of start order (spec §4.1:
// "stop components in reverse; even on prior failure all stops are
// attempted; the first stop error is reported and remaining stops
// continue"). Stop is idempotent for components never started.
func (s *Scenario) stopAll(ctx context.Context) error {
	startOrder := s.startOrder()
	var first error
	for i := len(startOrder) - 1; i >= 0; i-- {
		name := startOrder[i]
		if err := s.lifecycles[name].Stop(ctx); err != nil {
			s.logger.Error("component stop failed", "component", name, "error", err)
			if first == nil {
				first = fmt.Errorf("harness: stopping component %q: %w", name, err)
			}
		}
	}
	return first
}
