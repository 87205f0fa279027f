package verify

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/backend/internal/govtypes"
)

type sequencedHistory struct {
	calls   int
	results [][]govtypes.HistoryEntry
}

func (s *sequencedHistory) HistorySince(ctx context.Context, agentID string, since, until time.Time) ([]govtypes.HistoryEntry, error) {
	idx := s.calls
	s.calls++
	if idx >= len(s.results) {
		return nil, nil
	}
	return s.results[idx], nil
}

func baselineEntries(n int, tool string, risk int) []govtypes.HistoryEntry {
	out := make([]govtypes.HistoryEntry, n)
	for i := range out {
		out[i] = govtypes.HistoryEntry{Tool: tool, RiskScore: risk, Decision: "allow", CreatedAt: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)}
	}
	return out
}

func TestDrift_InsufficientBaselineReturnsZero(t *testing.T) {
	store := &sequencedHistory{results: [][]govtypes.HistoryEntry{baselineEntries(3, "read_file", 10), nil}}
	d := NewDrift(store)

	score, signals := d.Compute(context.Background(), "agent-1", "sess-1", "read_file", nil)
	assert.Equal(t, 0.0, score)
	require.Len(t, signals, 1)
	assert.Equal(t, "insufficient-baseline", signals[0].Name)
	assert.False(t, signals[0].Triggered)
}

func TestDrift_NewToolTriggersScopeExpansion(t *testing.T) {
	store := &sequencedHistory{results: [][]govtypes.HistoryEntry{
		baselineEntries(20, "read_file", 10),
		baselineEntries(1, "delete_database", 90),
	}}
	d := NewDrift(store)

	score, signals := d.Compute(context.Background(), "agent-1", "sess-1", "delete_database", nil)
	assert.Greater(t, score, 0.0)

	var scope govtypes.DriftSignal
	for _, s := range signals {
		if s.Name == "scope-expansion" {
			scope = s
		}
	}
	assert.True(t, scope.Triggered)
}

func TestDrift_StableActivityStaysLow(t *testing.T) {
	store := &sequencedHistory{results: [][]govtypes.HistoryEntry{
		baselineEntries(20, "read_file", 10),
		baselineEntries(1, "read_file", 10),
	}}
	d := NewDrift(store)

	score, signals := d.Compute(context.Background(), "agent-1", "sess-1", "read_file", nil)
	assert.Less(t, score, 0.4)
	require.Len(t, signals, 5)
}
