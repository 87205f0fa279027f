package chain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/backend/internal/govtypes"
)

func entries(tools ...string) []govtypes.HistoryEntry {
	out := make([]govtypes.HistoryEntry, len(tools))
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, tool := range tools {
		out[i] = govtypes.HistoryEntry{Tool: tool, Decision: "allow", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
	}
	return out
}

func TestAnalyze_EmptyHistoryNeverTriggers(t *testing.T) {
	result := Analyze(nil)
	assert.False(t, result.Triggered)
}

func TestAnalyze_BrowseThenExfilTriggers(t *testing.T) {
	result := Analyze(entries("http_request", "messaging_send"))
	require.True(t, result.Triggered)
	assert.Equal(t, "browse-then-exfil", result.Pattern)
}

func TestAnalyze_ReadWriteExecIsHigherSeverityThanBrowseExfil(t *testing.T) {
	// read-write-exec (boost 45) should win over browse-then-exfil (boost 35)
	// when both match, since patterns are evaluated in descending boost order.
	result := Analyze(entries("file_read", "file_write", "shell", "http_request", "messaging_send"))
	require.True(t, result.Triggered)
	assert.Equal(t, "read-write-exec", result.Pattern)
}

func TestAnalyze_RepeatedScopeProbingTriggers(t *testing.T) {
	h := entries("read_file", "read_file")
	h[0].PolicyIDs = []string{"scope-violation"}
	h[1].PolicyIDs = []string{"scope-violation"}

	result := Analyze(h)
	require.True(t, result.Triggered)
	assert.Equal(t, "repeated-scope-probing", result.Pattern)
}

func TestAnalyze_ArgumentMutationTriggersOnRepeatedTool(t *testing.T) {
	result := Analyze(entries("file_write", "file_write", "file_write", "file_write"))
	require.True(t, result.Triggered)
	assert.Equal(t, "argument-mutation", result.Pattern)
}

func TestAnalyze_BelowMinActionsNeverTriggers(t *testing.T) {
	result := Analyze(entries("http_request"))
	assert.False(t, result.Triggered)
}

func TestAnalyze_HighBlockRateTriggers(t *testing.T) {
	h := entries("read_file", "read_file", "read_file", "read_file")
	for i := range h {
		h[i].Decision = "block"
	}
	result := Analyze(h)
	require.True(t, result.Triggered)
	assert.Equal(t, "high-block-rate", result.Pattern)
}
