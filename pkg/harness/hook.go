package harness

import (
	"context"
	"sync"
	"time"
)

type cellState int

const (
	cellEmpty cellState = iota
	cellResolved
	cellRejected
)

// pendingCell is the one-shot future-like synchronization primitive
// underlying every wait* step (spec §4.8, §9 "pending-cell primitive").
// First resolve/reject wins for non-persistent cells; persistent cells keep
// updating a "latest value" shadow on subsequent calls but never re-open
// done for a waiter that has already observed a value.
type pendingCell struct {
	mu         sync.Mutex
	state      cellState
	value      *Message
	err        error
	persistent bool
	done       chan struct{}
}

func newPendingCell(persistent bool) *pendingCell {
	return &pendingCell{done: make(chan struct{}), persistent: persistent}
}

// resolve stores v as the cell's result. Idempotent after the first call
// unless persistent, in which case the shadow value is updated but already
//-closed waiters are not revisited (invariant: "only the first is
// observable").
func (c *pendingCell) resolve(v *Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case cellEmpty:
		c.value = v
		c.state = cellResolved
		close(c.done)
	default:
		if c.persistent {
			c.value = v
			c.err = nil
		}
	}
}

func (c *pendingCell) reject(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case cellEmpty:
		c.err = err
		c.state = cellRejected
		close(c.done)
	default:
		if c.persistent {
			c.err = err
			c.value = nil
		}
	}
}

// resolved reports whether the cell has been settled at least once — used
// for the strict-ordering check on wait* steps.
func (c *pendingCell) resolved() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state != cellEmpty
}

// await blocks until the cell resolves, the timeout elapses, or ctx is
// cancelled, whichever comes first.
func (c *pendingCell) await(ctx context.Context, timeout time.Duration) (*Message, error) {
	c.mu.Lock()
	if c.state != cellEmpty {
		v, err := c.value, c.err
		c.mu.Unlock()
		return v, err
	}
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-c.done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.value, c.err
	case <-timer.C:
		return nil, ErrTimeout
	case <-ctx.Done():
		return nil, ErrCancelled
	}
}

// Hook is a registered interceptor: a match predicate plus a handler chain
// and an optional pending cell for wait* semantics (spec §3, §4.8).
type Hook struct {
	ID         string
	StepID     string
	TestCaseID string
	IsMatch    func(*Message) bool
	Step       *Step
	Persistent bool

	mu     sync.Mutex
	cell   *pendingCell
	linkID string
}

func newHook(step *Step, isMatch func(*Message) bool, persistent, withPending bool) *Hook {
	h := &Hook{
		ID:         generateID("hook"),
		StepID:     step.ID,
		TestCaseID: step.TestCaseID,
		IsMatch:    isMatch,
		Step:       step,
		Persistent: persistent,
	}
	if withPending {
		h.cell = newPendingCell(persistent)
	}
	return h
}

// Resolved reports whether this hook's pending cell (if any) has already
// been settled. Non-pending hooks always report false.
func (h *Hook) Resolved() bool {
	h.mu.Lock()
	cell := h.cell
	h.mu.Unlock()
	if cell == nil {
		return false
	}
	return cell.resolved()
}

// Link returns the connection link id currently bound to this hook, if any.
func (h *Hook) Link() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.linkID
}

// BindLink records the link id a "link" handler bound during hook
// execution, so a later sendEvent(linkId, ...) step can resolve it.
func (h *Hook) BindLink(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.linkID = id
}
