package govstore

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/backend/internal/govtypes"
)

func TestMemoryStore_KillSwitch(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	killed, err := m.GetKillSwitch(ctx)
	require.NoError(t, err)
	assert.False(t, killed)

	require.NoError(t, m.SetKillSwitch(ctx, true))
	killed, err = m.GetKillSwitch(ctx)
	require.NoError(t, err)
	assert.True(t, killed)
}

func TestMemoryStore_InsertAndQueryActionLog(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	id, err := m.InsertActionLog(ctx, govtypes.HistoryEntry{
		CreatedAt: time.Now().UTC(),
		Tool:      "send_email",
		AgentID:   "agent-1",
		SessionID: "sess-1",
		Decision:  "allow",
		RiskScore: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	history, err := m.AgentHistory(ctx, "agent-1", "sess-1", time.Hour, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "send_email", history[0].Tool)

	none, err := m.AgentHistory(ctx, "agent-2", "", time.Hour, 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestMemoryStore_WalletLifecycle(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	wallet, err := m.GetOrCreateWallet(ctx, "agent-1", "100.0000")
	require.NoError(t, err)
	assert.Equal(t, "100.0000", wallet.Balance)

	again, err := m.GetOrCreateWallet(ctx, "agent-1", "100.0000")
	require.NoError(t, err)
	assert.Equal(t, wallet.WalletID, again.WalletID, "auto-provision is idempotent per agent")

	require.NoError(t, m.ChargeWallet(ctx, wallet.WalletID, "0.0250"))
	charged, err := m.GetOrCreateWallet(ctx, "agent-1", "100.0000")
	require.NoError(t, err)
	assert.Equal(t, "99.9750", charged.Balance)
	assert.Equal(t, "0.0250", charged.TotalFeesPaid)
}

func TestMemoryStore_SpanUpsertIsIdempotent(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	span := govtypes.TraceSpan{TraceID: "t1", SpanID: "s1", Kind: "governance", Status: "ok"}
	require.NoError(t, m.UpsertSpan(ctx, span))

	span.Status = "error"
	require.NoError(t, m.UpsertSpan(ctx, span))

	spans, err := m.SpansByTrace(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, spans, 1, "re-submitting the same trace_id+span_id overwrites, not duplicates")
	assert.Equal(t, "error", spans[0].Status)

	require.NoError(t, m.DeleteSpansByTrace(ctx, "t1"))
	spans, err = m.SpansByTrace(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, spans)
}

func TestMemoryStore_DynamicPoliciesAndSeed(t *testing.T) {
	m := NewMemoryStore()
	ctx := context.Background()

	m.SeedPolicy(govtypes.Policy{PolicyID: "p1", IsActive: true})
	policies, err := m.DynamicPolicies(ctx)
	require.NoError(t, err)
	require.Len(t, policies, 1)
	assert.Equal(t, "p1", policies[0].PolicyID)
}
