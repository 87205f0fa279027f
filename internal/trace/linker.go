// Package trace links governance decisions back to the agent/LLM/tool
// spans that produced them, and layers an optional Merkle inclusion proof
// over the append-only audit log for tamper-evidence beyond the receipt
// digest.
package trace

import (
	"context"
	"fmt"
	"time"

	"github.com/ocx/backend/internal/govtypes"
	"github.com/ocx/backend/internal/ledger"
)

// SpanStore is the subset of govstore.Store the linker depends on.
type SpanStore interface {
	UpsertSpan(ctx context.Context, span govtypes.TraceSpan) error
	SpansByTrace(ctx context.Context, traceID string) ([]govtypes.TraceSpan, error)
	DeleteSpansByTrace(ctx context.Context, traceID string) error
}

// Linker ingests spans idempotently and correlates a governance trace_id to
// its full span tree, with an additional Merkle leaf per span for
// operators who want content-hash tamper-evidence on top of the audit log.
type Linker struct {
	store  SpanStore
	merkle *ledger.Ledger
}

// NewLinker wires the trace linker against a span-capable store. merkle may
// be nil to disable the integrity-proof supplement.
func NewLinker(store SpanStore, merkle *ledger.Ledger) *Linker {
	return &Linker{store: store, merkle: merkle}
}

// IngestSpan idempotently persists span: a re-submitted (trace_id, span_id)
// pair overwrites rather than duplicates. When a Merkle ledger is
// configured, the span's canonical content is additionally appended as a
// leaf so its inclusion can later be proven independent of the primary
// store.
func (l *Linker) IngestSpan(ctx context.Context, span govtypes.TraceSpan) (leafHash string, err error) {
	if span.TraceID == "" || span.SpanID == "" {
		return "", fmt.Errorf("trace: span requires trace_id and span_id")
	}

	if err := l.store.UpsertSpan(ctx, span); err != nil {
		return "", fmt.Errorf("trace: ingest span: %w", err)
	}

	if l.merkle == nil {
		return "", nil
	}
	content := fmt.Sprintf("%s|%s|%s|%s|%s", span.TraceID, span.SpanID, span.Kind, span.Name, span.Status)
	_, hash := l.merkle.AppendLeaf(span.AgentID, "span-ingest", content)
	return hash, nil
}

// Trace returns every span belonging to traceID, oldest first.
func (l *Linker) Trace(ctx context.Context, traceID string) ([]govtypes.TraceSpan, error) {
	return l.store.SpansByTrace(ctx, traceID)
}

// DeleteTrace bulk-removes every span for traceID.
func (l *Linker) DeleteTrace(ctx context.Context, traceID string) error {
	return l.store.DeleteSpansByTrace(ctx, traceID)
}

// LinkDecision builds the governance span for a single evaluation, parented
// under the agent's existing trace if one was supplied on the request, and
// ingests it. This is the correlation point between C6/C7 decisions and the
// span tree: every evaluation becomes a "governance"-kind span alongside
// whatever agent/llm/tool spans the caller already submitted.
func (l *Linker) LinkDecision(ctx context.Context, req govtypes.ActionRequest, decision govtypes.Decision) (string, error) {
	if req.TraceID == "" {
		return "", nil
	}

	spanID := req.SpanID
	if spanID == "" {
		spanID = fmt.Sprintf("gov-%s", decision.ReceiptID)
	}

	now := time.Now().UTC()
	span := govtypes.TraceSpan{
		TraceID:   req.TraceID,
		SpanID:    spanID,
		Kind:      "governance",
		Name:      fmt.Sprintf("governance:%s", req.Tool),
		Status:    statusFor(decision.Decision),
		StartTime: now,
		EndTime:   now,
		AgentID:   req.AgentID,
		SessionID: req.SessionID,
		Attributes: map[string]interface{}{
			"decision":   decision.Decision,
			"risk_score": decision.RiskScore,
			"policy_ids": decision.PolicyIDs,
		},
	}
	return l.IngestSpan(ctx, span)
}

// LinkVerification builds the verification span for a completed
// verify_execution call, parented under the original action's span, and
// ingests it. original is the previously logged action the verification
// re-examined; verdict is the result of that re-examination.
func (l *Linker) LinkVerification(ctx context.Context, original govtypes.HistoryEntry, verdict govtypes.VerificationVerdict) (string, error) {
	if original.TraceID == "" {
		return "", nil
	}

	now := time.Now().UTC()
	span := govtypes.TraceSpan{
		TraceID:      original.TraceID,
		SpanID:       fmt.Sprintf("verify-%s-%d", original.TraceID, original.ID),
		ParentSpanID: original.SpanID,
		Kind:         "governance",
		Name:         fmt.Sprintf("governor.verify(%s)", original.Tool),
		Status:       verificationStatusFor(verdict.Verdict),
		StartTime:    now,
		EndTime:      now,
		AgentID:      original.AgentID,
		SessionID:    original.SessionID,
		Attributes: map[string]interface{}{
			"verdict":    verdict.Verdict,
			"risk_delta": verdict.RiskDelta,
			"escalated":  verdict.Escalated,
		},
	}
	return l.IngestSpan(ctx, span)
}

// VerifyInclusion reports whether hash is present among the Merkle leaves
// appended so far, independent of the primary store's audit trail.
func (l *Linker) VerifyInclusion(hash string) bool {
	if l.merkle == nil {
		return false
	}
	return l.merkle.VerifyInclusion(hash)
}

func verificationStatusFor(verdict string) string {
	if verdict == "violation" {
		return "error"
	}
	return "ok"
}

func statusFor(decision string) string {
	if decision == "block" {
		return "error"
	}
	return "ok"
}
