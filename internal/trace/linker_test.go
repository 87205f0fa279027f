package trace

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ocx/backend/internal/govstore"
	"github.com/ocx/backend/internal/govtypes"
	"github.com/ocx/backend/internal/ledger"
)

func TestIngestSpan_RequiresTraceAndSpanID(t *testing.T) {
	store := govstore.NewMemoryStore()
	linker := NewLinker(store, nil)

	_, err := linker.IngestSpan(context.Background(), govtypes.TraceSpan{})
	assert.Error(t, err)
}

func TestIngestSpan_WithoutMerkleReturnsEmptyHash(t *testing.T) {
	store := govstore.NewMemoryStore()
	linker := NewLinker(store, nil)

	hash, err := linker.IngestSpan(context.Background(), govtypes.TraceSpan{TraceID: "t1", SpanID: "s1", Kind: "tool", Status: "ok"})
	require.NoError(t, err)
	assert.Empty(t, hash)
}

func TestIngestSpan_WithMerkleReturnsLeafHash(t *testing.T) {
	store := govstore.NewMemoryStore()
	linker := NewLinker(store, ledger.NewLedger())

	hash, err := linker.IngestSpan(context.Background(), govtypes.TraceSpan{TraceID: "t1", SpanID: "s1", Kind: "tool", Status: "ok"})
	require.NoError(t, err)
	assert.NotEmpty(t, hash)
}

func TestTraceAndDeleteTrace(t *testing.T) {
	store := govstore.NewMemoryStore()
	linker := NewLinker(store, nil)
	ctx := context.Background()

	_, err := linker.IngestSpan(ctx, govtypes.TraceSpan{TraceID: "t1", SpanID: "s1", Kind: "tool", Status: "ok"})
	require.NoError(t, err)

	spans, err := linker.Trace(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, spans, 1)

	require.NoError(t, linker.DeleteTrace(ctx, "t1"))
	spans, err = linker.Trace(ctx, "t1")
	require.NoError(t, err)
	assert.Empty(t, spans)
}

func TestLinkDecision_NoTraceIDIsNoop(t *testing.T) {
	store := govstore.NewMemoryStore()
	linker := NewLinker(store, nil)

	spanID, err := linker.LinkDecision(context.Background(), govtypes.ActionRequest{Tool: "read_file"}, govtypes.Decision{Decision: "allow"})
	require.NoError(t, err)
	assert.Empty(t, spanID)
}

func TestLinkDecision_BuildsGovernanceSpanWithStatusFromDecision(t *testing.T) {
	store := govstore.NewMemoryStore()
	linker := NewLinker(store, nil)
	ctx := context.Background()

	req := govtypes.ActionRequest{Tool: "delete_database", TraceID: "t1", AgentID: "agent-1"}
	decision := govtypes.Decision{Decision: "block", RiskScore: 95, ReceiptID: "ocg-abc"}

	spanID, err := linker.LinkDecision(ctx, req, decision)
	require.NoError(t, err)
	assert.Equal(t, "gov-ocg-abc", spanID)

	spans, err := linker.Trace(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, spans, 1)
	assert.Equal(t, "error", spans[0].Status)
	assert.Equal(t, "governance", spans[0].Kind)
}
