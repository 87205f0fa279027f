package escalation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/backend/internal/govstore"
	"github.com/ocx/backend/internal/govtypes"
)

func historyEntry(agentID, decision string, risk int) govtypes.HistoryEntry {
	return govtypes.HistoryEntry{
		AgentID:   agentID,
		Tool:      "delete_database",
		Decision:  decision,
		RiskScore: risk,
		CreatedAt: time.Now().UTC(),
	}
}

type fakePublisher struct {
	mu     sync.Mutex
	events []string
}

func (f *fakePublisher) Emit(eventType, source, subject string, data map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, eventType)
}

func TestComputeSeverity(t *testing.T) {
	pattern := "chain-pattern"
	assert.Equal(t, "critical", ComputeSeverity("block", 95, nil))
	assert.Equal(t, "high", ComputeSeverity("block", 50, nil))
	assert.Equal(t, "high", ComputeSeverity("allow", 85, nil))
	assert.Equal(t, "medium", ComputeSeverity("allow", 60, nil))
	assert.Equal(t, "medium", ComputeSeverity("allow", 10, &pattern))
	assert.Equal(t, "low", ComputeSeverity("allow", 10, nil))
}

func TestHandlePostEvaluation_BlockWithDefaultConfigDoesNotPanic(t *testing.T) {
	store := govstore.NewMemoryStore()
	dispatcher := NewDispatcher(store, 1)
	defer dispatcher.Shutdown()
	publisher := &fakePublisher{}

	engine := NewEngine(store, dispatcher, publisher)
	engine.HandlePostEvaluation(context.Background(), HandleInput{
		Tool:      "delete_database",
		AgentID:   "agent-1",
		Decision:  "block",
		RiskScore: 95,
	})
}

func TestCheckAutoKillSwitch_EngagesOnBlockCountThreshold(t *testing.T) {
	store := govstore.NewMemoryStore()
	ctx := context.Background()

	store.SetEscalationConfig(govstore.EscalationConfigRow{
		Scope:                "*",
		AutoKSEnabled:        true,
		AutoKSBlockThreshold: 2,
		AutoKSRiskThreshold:  200,
		AutoKSWindowSize:     10,
		NotifyOnAutoKS:       true,
	})

	for i := 0; i < 2; i++ {
		_, err := store.InsertActionLog(ctx, historyEntry("agent-1", "block", 95))
		require.NoError(t, err)
	}

	dispatcher := NewDispatcher(store, 1)
	defer dispatcher.Shutdown()
	publisher := &fakePublisher{}
	engine := NewEngine(store, dispatcher, publisher)

	engine.HandlePostEvaluation(ctx, HandleInput{
		Tool:      "delete_database",
		AgentID:   "agent-1",
		Decision:  "block",
		RiskScore: 95,
	})

	killed, err := store.GetKillSwitch(ctx)
	require.NoError(t, err)
	assert.True(t, killed, "auto kill-switch should have engaged once block count hit the threshold")

	publisher.mu.Lock()
	defer publisher.mu.Unlock()
	assert.Contains(t, publisher.events, "auto_kill_switch")
}

func TestCheckAutoKillSwitch_SkippedWhenDisabled(t *testing.T) {
	store := govstore.NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.InsertActionLog(ctx, historyEntry("agent-1", "block", 99))
		require.NoError(t, err)
	}

	dispatcher := NewDispatcher(store, 1)
	defer dispatcher.Shutdown()
	engine := NewEngine(store, dispatcher, nil)

	engine.HandlePostEvaluation(ctx, HandleInput{
		Tool:      "delete_database",
		AgentID:   "agent-1",
		Decision:  "block",
		RiskScore: 99,
	})

	killed, err := store.GetKillSwitch(ctx)
	require.NoError(t, err)
	assert.False(t, killed, "default config has auto kill-switch disabled")
}
