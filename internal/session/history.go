// Package session resolves an agent's recent action history: the sliding
// window the chain analyser and policy explanation both read from.
package session

import (
	"context"
	"time"

	"github.com/ocx/backend/internal/govtypes"
)

// SessionWindowMinutes bounds how far back history is pulled.
const SessionWindowMinutes = 60

// MaxHistory caps how many entries are returned, oldest first.
const MaxHistory = 50

// HistorySource is satisfied by govstore.Store.
type HistorySource interface {
	AgentHistory(ctx context.Context, agentID, sessionID string, window time.Duration, limit int) ([]govtypes.HistoryEntry, error)
}

// Resolver fetches an agent's sandboxed history for the chain analyser.
type Resolver struct {
	store HistorySource
}

// NewResolver wires a Resolver against a history-capable store.
func NewResolver(store HistorySource) *Resolver {
	return &Resolver{store: store}
}

// AgentHistory returns the agent's history within SessionWindowMinutes,
// scoped to sessionID when provided, oldest first, capped at MaxHistory.
// agentID is mandatory — an empty agentID always returns no history, since
// there is nothing to sandbox the query to.
func (r *Resolver) AgentHistory(ctx context.Context, agentID, sessionID string) ([]govtypes.HistoryEntry, error) {
	if agentID == "" {
		return nil, nil
	}
	return r.store.AgentHistory(ctx, agentID, sessionID, SessionWindowMinutes*time.Minute, MaxHistory)
}
