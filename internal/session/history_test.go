package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/backend/internal/govstore"
	"github.com/ocx/backend/internal/govtypes"
)

func TestResolver_EmptyAgentIDReturnsNoHistory(t *testing.T) {
	store := govstore.NewMemoryStore()
	r := NewResolver(store)

	history, err := r.AgentHistory(context.Background(), "", "sess-1")
	require.NoError(t, err)
	assert.Nil(t, history)
}

func TestResolver_FetchesWithinSessionWindow(t *testing.T) {
	store := govstore.NewMemoryStore()
	ctx := context.Background()

	_, err := store.InsertActionLog(ctx, govtypes.HistoryEntry{
		CreatedAt: time.Now().UTC(),
		Tool:      "read_file",
		AgentID:   "agent-1",
		SessionID: "sess-1",
		Decision:  "allow",
	})
	require.NoError(t, err)

	r := NewResolver(store)
	history, err := r.AgentHistory(ctx, "agent-1", "sess-1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "read_file", history[0].Tool)
}
