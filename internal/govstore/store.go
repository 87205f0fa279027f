// Package govstore persists action evaluations, runtime state, and policies
// for the governance pipeline. It mirrors the Store contract the pipeline,
// policy registry, and session window all depend on so a Supabase-backed
// implementation and an in-memory one can be swapped transparently.
package govstore

import (
	"context"
	"time"

	"github.com/ocx/backend/internal/govtypes"
)

// Store is the persistence boundary for the governance subsystem.
type Store interface {
	// InsertActionLog persists an evaluated action and returns its row ID.
	InsertActionLog(ctx context.Context, entry govtypes.HistoryEntry) (int64, error)

	// GetActionByID looks up a single previously logged action by its row
	// ID. Returns nil, nil if no such action exists.
	GetActionByID(ctx context.Context, id int64) (*govtypes.HistoryEntry, error)

	// AgentHistory returns the agent's history entries within the window,
	// oldest first, optionally scoped to a session, capped at limit rows.
	AgentHistory(ctx context.Context, agentID, sessionID string, window time.Duration, limit int) ([]govtypes.HistoryEntry, error)

	// HistorySince returns all of an agent's history entries with
	// created_at in [since, until), oldest first. Used by the drift
	// detector for baseline and current-window queries.
	HistorySince(ctx context.Context, agentID string, since, until time.Time) ([]govtypes.HistoryEntry, error)

	// GetKillSwitch returns whether the global kill switch is engaged.
	GetKillSwitch(ctx context.Context) (bool, error)

	// SetKillSwitch persists the global kill switch state.
	SetKillSwitch(ctx context.Context, enabled bool) error

	// DynamicPolicies returns all active policies stored in the database,
	// supplementing the YAML-loaded base policy set.
	DynamicPolicies(ctx context.Context) ([]govtypes.Policy, error)

	// InsertVerificationLog persists a post-execution verification verdict.
	InsertVerificationLog(ctx context.Context, actionLogID int64, verdict govtypes.VerificationVerdict) error

	// InsertEscalationEvent creates a review-queue entry and returns its ID.
	InsertEscalationEvent(ctx context.Context, event EscalationEvent) (int64, error)

	// RecentActions returns the N most recent action logs, optionally
	// scoped to an agent, newest first. Used by the auto-kill-switch sweep.
	RecentActions(ctx context.Context, agentID string, limit int) ([]govtypes.HistoryEntry, error)

	// EscalationConfig resolves the scope ("agent:<id>" or "*") config row.
	EscalationConfig(ctx context.Context, scope string) (*EscalationConfigRow, error)

	// ActiveWebhooks returns all active escalation webhook subscriptions.
	ActiveWebhooks(ctx context.Context) ([]EscalationWebhook, error)

	// GetOrCreateWallet returns the agent's wallet, auto-provisioning one at
	// the starting balance if none exists yet.
	GetOrCreateWallet(ctx context.Context, agentID, startingBalance string) (*Wallet, error)

	// ChargeWallet subtracts fee from balance and adds it to
	// total_fees_paid, both expressed as fixed-scale decimal text.
	ChargeWallet(ctx context.Context, walletID, fee string) error

	// InsertReceipt persists an append-only fee/evaluation receipt.
	InsertReceipt(ctx context.Context, r Receipt) error

	// UpsertSpan idempotently ingests a trace span: a re-submitted
	// (trace_id, span_id) pair overwrites the prior row rather than
	// duplicating it.
	UpsertSpan(ctx context.Context, span govtypes.TraceSpan) error

	// SpansByTrace returns every span for a trace_id, oldest first.
	SpansByTrace(ctx context.Context, traceID string) ([]govtypes.TraceSpan, error)

	// DeleteSpansByTrace bulk-deletes every span for a trace_id.
	DeleteSpansByTrace(ctx context.Context, traceID string) error
}

// Wallet is a per-agent metering account. Balance and totals are fixed-scale
// decimal strings (4 fractional digits) to avoid binary-float drift.
type Wallet struct {
	WalletID       string `json:"wallet_id"`
	AgentID        string `json:"agent_id"`
	Label          string `json:"label"`
	Balance        string `json:"balance"`
	TotalDeposited string `json:"total_deposited"`
	TotalFeesPaid  string `json:"total_fees_paid"`
}

// Receipt is an append-only record of a single evaluation's fee charge.
type Receipt struct {
	ReceiptID    string  `json:"receipt_id"`
	Tool         string  `json:"tool"`
	Decision     string  `json:"decision"`
	RiskScore    int     `json:"risk_score"`
	PolicyIDs    string  `json:"policy_ids,omitempty"`
	ChainPattern *string `json:"chain_pattern,omitempty"`
	AgentID      string  `json:"agent_id,omitempty"`
	Fee          string  `json:"fee,omitempty"`
	Digest       string  `json:"digest"`
	CreatedAt    string  `json:"created_at"`
}

// EscalationConfigRow mirrors the escalation_config table: per-agent or
// global thresholds for auto-kill-switch and review promotion.
type EscalationConfigRow struct {
	Scope                string `json:"scope"`
	AutoKSEnabled         bool   `json:"auto_ks_enabled"`
	AutoKSBlockThreshold  int    `json:"auto_ks_block_threshold"`
	AutoKSRiskThreshold   int    `json:"auto_ks_risk_threshold"`
	AutoKSWindowSize      int    `json:"auto_ks_window_size"`
	ReviewRiskThreshold   int    `json:"review_risk_threshold"`
	NotifyOnBlock         bool   `json:"notify_on_block"`
	NotifyOnReview        bool   `json:"notify_on_review"`
	NotifyOnAutoKS        bool   `json:"notify_on_auto_ks"`
}

// EscalationEvent is a review-queue entry created for block/review decisions
// or auto-kill-switch engagement.
type EscalationEvent struct {
	ActionLogID  *int64  `json:"action_log_id,omitempty"`
	Tool         string  `json:"tool"`
	AgentID      string  `json:"agent_id,omitempty"`
	SessionID    string  `json:"session_id,omitempty"`
	Trigger      string  `json:"trigger"`
	Severity     string  `json:"severity"`
	Decision     string  `json:"decision"`
	RiskScore    int     `json:"risk_score"`
	Explanation  string  `json:"explanation"`
	PolicyIDs    string  `json:"policy_ids,omitempty"`
	ChainPattern *string `json:"chain_pattern,omitempty"`
	Status       string  `json:"status"`
}

// EscalationWebhook is a registered notification endpoint.
type EscalationWebhook struct {
	ID         string `json:"id"`
	URL        string `json:"url"`
	Label      string `json:"label"`
	OnBlock    bool   `json:"on_block"`
	OnReview   bool   `json:"on_review"`
	OnAutoKS   bool   `json:"on_auto_ks"`
	AuthHeader string `json:"auth_header,omitempty"`
	Secret     string `json:"secret,omitempty"`
	IsActive   bool   `json:"is_active"`
}
