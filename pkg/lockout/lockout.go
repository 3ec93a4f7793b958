// Package lockout implements cross-node replay detection: the same UID
// granting access at two different door nodes inside a short window is
// physically impossible for a credential that travels with one person,
// so the second occurrence revokes it fleet-wide.
package lockout

import (
	"sync"
	"time"
)

// Entry records the last node and time a UID was seen granting access.
type Entry struct {
	LastSeen time.Time
	LastNode string
}

// Engine tracks last-seen (node, time) per UID and decides when a
// reuse triggers a lockout.
//
// The source this is modeled on only updated its last-seen table when
// the node itself granted access, leaving the override-granted path
// asymmetric. That is treated as a bug here: the table is updated on
// every affirmative decision
// regardless of why the decision was affirmative, so reuse detection is
// uniform across both paths.
type Engine struct {
	window time.Duration
	mu     sync.Mutex
	seen   map[string]Entry
}

// New creates a lockout engine with the given reuse window.
func New(window time.Duration) *Engine {
	return &Engine{
		window: window,
		seen:   make(map[string]Entry),
	}
}

// Evaluate records uid's appearance at nodeID at time ts and reports
// whether this appearance is a lockout trigger: the same uid previously
// seen at a *different* node within window.
func (e *Engine) Evaluate(uid, nodeID string, ts time.Time) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	prev, ok := e.seen[uid]
	e.seen[uid] = Entry{LastSeen: ts, LastNode: nodeID}

	if !ok {
		return false
	}
	if prev.LastNode == nodeID {
		return false
	}
	return ts.Sub(prev.LastSeen) < e.window
}

// Forget removes uid's last-seen record. The coordinator does not call
// it: a uid's record is kept after a lockout fires, so a further use at
// another node inside the window triggers again.
func (e *Engine) Forget(uid string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.seen, uid)
}
