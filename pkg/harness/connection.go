package harness

import (
	"context"
	"sync"
)

// connectionSet tracks the open AsyncConnections an async server currently
// holds, keyed by link id once bound, so Broadcast(linkID, msg) can target
// one connection and Broadcast("", msg) can fan out to all — grounded on
// tarsy's events.ConnectionManager map-of-connections plus snapshot-before-
// send broadcast pattern (avoid holding the lock during slow writes).
type connectionSet struct {
	mu    sync.RWMutex
	byID  map[string]AsyncConnection
	order []string
}

func newConnectionSet() *connectionSet {
	return &connectionSet{byID: make(map[string]AsyncConnection)}
}

func (cs *connectionSet) add(conn AsyncConnection) {
	cs.bind(conn.LinkID(), conn)
}

// bind registers conn under id, in addition to (not replacing) any id it is
// already registered under. A `link(id)` handler calls this to rebind the
// triggering connection to a user-chosen name, so a later
// sendEvent(id, ...)/disconnect(id) can target it by that name as well as
// by its original accept-time link id (spec §4.6's `link` handler).
func (cs *connectionSet) bind(id string, conn AsyncConnection) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if _, exists := cs.byID[id]; !exists {
		cs.order = append(cs.order, id)
	}
	cs.byID[id] = conn
}

// boundTo reports whether linkID currently resolves to conn — used to
// enforce an onMessage/onConnection/onDisconnect step's linkId filter
// (spec §4.6: "the inbound message must come from the connection currently
// bound to that link").
func (cs *connectionSet) boundTo(linkID string, conn AsyncConnection) bool {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	c, ok := cs.byID[linkID]
	return ok && c == conn
}

// removeConn drops every id currently bound to conn — its original
// accept-time link id plus any names a `link` handler bound it to —
// so a disconnected connection can't be found by a stale alias.
func (cs *connectionSet) removeConn(conn AsyncConnection) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	kept := cs.order[:0]
	for _, id := range cs.order {
		if cs.byID[id] == conn {
			delete(cs.byID, id)
			continue
		}
		kept = append(kept, id)
	}
	cs.order = kept
}

func (cs *connectionSet) get(linkID string) (AsyncConnection, bool) {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	c, ok := cs.byID[linkID]
	return c, ok
}

// snapshot returns every live connection at the time of the call, copied
// out from under the lock before sends are attempted.
func (cs *connectionSet) snapshot() []AsyncConnection {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	out := make([]AsyncConnection, 0, len(cs.order))
	seen := make(map[AsyncConnection]bool, len(cs.order))
	for _, id := range cs.order {
		conn := cs.byID[id]
		if seen[conn] {
			// A connection bound under a link alias appears once per id.
			continue
		}
		seen[conn] = true
		out = append(out, conn)
	}
	return out
}

// broadcast sends msg to linkID's connection if non-empty, otherwise to
// every open connection. Send errors are collected but don't stop delivery
// to the remaining connections, matching events.ConnectionManager.Broadcast.
func (cs *connectionSet) broadcast(ctx context.Context, linkID string, msg *Message) error {
	if linkID != "" {
		conn, ok := cs.get(linkID)
		if !ok {
			return ErrUnknownLink
		}
		return conn.Send(ctx, msg)
	}
	var firstErr error
	for _, conn := range cs.snapshot() {
		if err := conn.Send(ctx, msg); err != nil && firstErr == nil {
			firstErr = &TransportError{Op: "broadcast", Err: err}
		}
	}
	return firstErr
}
