package gateway

import (
	"sync"

	"github.com/google/uuid"

	"vol-core/pkg/broker"
)

// DedupKey identifies one historical series within a session.
type DedupKey struct {
	Kind   broker.DataKind
	Ticker string
}

func (k DedupKey) String() string {
	return string(k.Kind) + "," + k.Ticker
}

// SessionGate keeps a historical request from being issued twice in one run.
// Keys are never removed mid-session; Reset starts a fresh session.
type SessionGate struct {
	mu        sync.Mutex
	requested map[DedupKey]struct{}
	sessionID string
}

// NewSessionGate opens the first session.
func NewSessionGate() *SessionGate {
	return &SessionGate{
		requested: make(map[DedupKey]struct{}),
		sessionID: uuid.NewString(),
	}
}

// ShouldIssue records the key on first sight and returns true; later calls
// for the same key return false and change nothing.
func (g *SessionGate) ShouldIssue(kind broker.DataKind, ticker string) bool {
	key := DedupKey{Kind: kind, Ticker: ticker}
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, seen := g.requested[key]; seen {
		return false
	}
	g.requested[key] = struct{}{}
	return true
}

// Reset forgets every key and returns the new session id.
func (g *SessionGate) Reset() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.requested = make(map[DedupKey]struct{})
	g.sessionID = uuid.NewString()
	return g.sessionID
}

// SessionID identifies the current session in logs and status output.
func (g *SessionGate) SessionID() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sessionID
}

// Len returns how many keys the session has recorded.
func (g *SessionGate) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.requested)
}
