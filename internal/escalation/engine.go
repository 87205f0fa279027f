// Package escalation resolves per-agent/global thresholds, opens
// review-queue entries for block/review decisions, sweeps for automatic
// kill-switch engagement, and fans out webhook notifications — all
// best-effort and non-blocking to the evaluation response path.
package escalation

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/ocx/backend/internal/govstore"
)

// defaultConfig mirrors the hard-coded fallback applied when neither an
// agent-scoped nor a global escalation_config row exists.
var defaultConfig = govstore.EscalationConfigRow{
	Scope:                "*",
	AutoKSEnabled:        false,
	AutoKSBlockThreshold: 3,
	AutoKSRiskThreshold:  82,
	AutoKSWindowSize:     10,
	ReviewRiskThreshold:  70,
	NotifyOnBlock:        true,
	NotifyOnReview:       true,
	NotifyOnAutoKS:       true,
}

// Publisher broadcasts escalation-triggered events to subscribers; satisfied
// by *govevents.Bus.
type Publisher interface {
	Emit(eventType, source, subject string, data map[string]interface{})
}

// Engine orchestrates post-evaluation escalation.
type Engine struct {
	store      govstore.Store
	dispatcher *Dispatcher
	publisher  Publisher
	logger     *log.Logger
}

// NewEngine wires the escalation engine against its store and webhook
// dispatcher. publisher may be nil if no event bus is configured.
func NewEngine(store govstore.Store, dispatcher *Dispatcher, publisher Publisher) *Engine {
	return &Engine{
		store:      store,
		dispatcher: dispatcher,
		publisher:  publisher,
		logger:     log.New(log.Writer(), "[ESCALATION] ", log.LstdFlags),
	}
}

func (e *Engine) resolveConfig(ctx context.Context, agentID string) govstore.EscalationConfigRow {
	if agentID != "" {
		if row, err := e.store.EscalationConfig(ctx, "agent:"+agentID); err == nil && row != nil {
			return *row
		}
	}
	if row, err := e.store.EscalationConfig(ctx, "*"); err == nil && row != nil {
		return *row
	}
	return defaultConfig
}

// ComputeSeverity mirrors compute_severity: decision=block & risk>=90 ->
// critical; block or risk>=80 -> high; chain present or risk>=50 ->
// medium; else low.
func ComputeSeverity(decision string, riskScore int, chainPattern *string) string {
	switch {
	case decision == "block" && riskScore >= 90:
		return "critical"
	case decision == "block" || riskScore >= 80:
		return "high"
	case chainPattern != nil || riskScore >= 50:
		return "medium"
	default:
		return "low"
	}
}

// HandleInput bundles the pieces of a completed evaluation the escalation
// orchestrator needs.
type HandleInput struct {
	ActionLogID  int64
	Tool         string
	AgentID      string
	SessionID    string
	Decision     string
	RiskScore    int
	Explanation  string
	PolicyIDs    []string
	ChainPattern *string
}

// Outcome reports what, if anything, HandlePostEvaluation did: whether a
// review-queue entry was opened and whether the call engaged the
// auto-kill-switch.
type Outcome struct {
	EscalationID    int64
	Severity        string
	AutoKSTriggered bool
}

// HandlePostEvaluation mirrors handle_post_evaluation: creates a review-queue
// entry for block/review decisions, checks for auto-kill-switch engagement,
// and dispatches webhooks — all best-effort.
func (e *Engine) HandlePostEvaluation(ctx context.Context, in HandleInput) Outcome {
	cfg := e.resolveConfig(ctx, in.AgentID)
	var out Outcome

	if in.Decision == "block" || in.Decision == "review" {
		trigger := fmt.Sprintf("policy_%s", in.Decision)
		if in.ChainPattern != nil {
			trigger = "chain_escalation"
		}
		severity := ComputeSeverity(in.Decision, in.RiskScore, in.ChainPattern)
		out.EscalationID = e.createEvent(ctx, in, trigger, severity)
		out.Severity = severity

		eventType := "verdict.review"
		if in.Decision == "block" && cfg.NotifyOnBlock {
			eventType = "verdict.block"
			e.dispatch(ctx, eventType, in)
		} else if in.Decision == "review" && cfg.NotifyOnReview {
			e.dispatch(ctx, eventType, in)
		}
	}

	if e.checkAutoKillSwitch(ctx, cfg, in) {
		out.AutoKSTriggered = true
		if out.Severity == "" {
			out.Severity = "critical"
		}
	}
	return out
}

func (e *Engine) createEvent(ctx context.Context, in HandleInput, trigger, severity string) int64 {
	actionLogID := in.ActionLogID
	event := govstore.EscalationEvent{
		ActionLogID:  &actionLogID,
		Tool:         in.Tool,
		AgentID:      in.AgentID,
		SessionID:    in.SessionID,
		Trigger:      trigger,
		Severity:     severity,
		Decision:     in.Decision,
		RiskScore:    in.RiskScore,
		Explanation:  in.Explanation,
		PolicyIDs:    strings.Join(in.PolicyIDs, ","),
		ChainPattern: in.ChainPattern,
		Status:       "pending",
	}
	id, err := e.store.InsertEscalationEvent(ctx, event)
	if err != nil {
		e.logger.Printf("failed to create escalation event for %s: %v", in.Tool, err)
		return 0
	}
	return id
}

// checkAutoKillSwitch mirrors check_auto_kill_switch: skipped if auto-KS is
// disabled or the switch is already on; otherwise pulls the window's most
// recent actions and engages on block-count or average-risk breach.
func (e *Engine) checkAutoKillSwitch(ctx context.Context, cfg govstore.EscalationConfigRow, in HandleInput) bool {
	if !cfg.AutoKSEnabled {
		return false
	}

	scopeAgent := ""
	if strings.HasPrefix(cfg.Scope, "agent:") {
		scopeAgent = in.AgentID
	}

	recent, err := e.store.RecentActions(ctx, scopeAgent, cfg.AutoKSWindowSize)
	if err != nil || len(recent) == 0 {
		return false
	}

	blocks := 0
	totalRisk := 0
	for _, a := range recent {
		if a.Decision == "block" {
			blocks++
		}
		totalRisk += a.RiskScore
	}
	avgRisk := totalRisk / len(recent)

	var trigger string
	switch {
	case blocks >= cfg.AutoKSBlockThreshold:
		trigger = "block_count"
	case avgRisk >= cfg.AutoKSRiskThreshold:
		trigger = "avg_risk"
	default:
		return false
	}

	killed, err := e.store.GetKillSwitch(ctx)
	if err != nil || killed {
		return false
	}
	if err := e.store.SetKillSwitch(ctx, true); err != nil {
		e.logger.Printf("failed to engage auto kill-switch: %v", err)
		return false
	}

	e.createEvent(ctx, HandleInput{
		Tool:      in.Tool,
		AgentID:   in.AgentID,
		SessionID: in.SessionID,
		Decision:  "block",
		RiskScore: 100,
		Explanation: fmt.Sprintf("Auto kill-switch engaged: trigger=%s, blocks=%d/%d, avg_risk=%d",
			trigger, blocks, len(recent), avgRisk),
		PolicyIDs: nil,
	}, "auto_ks", "critical")

	if e.publisher != nil {
		e.publisher.Emit("auto_kill_switch", "governor", in.AgentID, map[string]interface{}{
			"trigger":    trigger,
			"blocks":     blocks,
			"window":     len(recent),
			"avg_risk":   avgRisk,
			"created_at": time.Now().UTC().Format(time.RFC3339),
		})
	}

	if cfg.NotifyOnAutoKS {
		e.dispatch(ctx, "auto_kill_switch", in)
	}
	return true
}

func (e *Engine) dispatch(ctx context.Context, eventType string, in HandleInput) {
	if e.dispatcher == nil {
		return
	}
	e.dispatcher.Dispatch(ctx, eventType, buildWebhookPayload(in))
}

func buildWebhookPayload(in HandleInput) map[string]interface{} {
	payload := map[string]interface{}{
		"tool":       in.Tool,
		"agent_id":   in.AgentID,
		"session_id": in.SessionID,
		"decision":   in.Decision,
		"risk_score": in.RiskScore,
		"policy_ids": in.PolicyIDs,
		"created_at": time.Now().UTC().Format(time.RFC3339),
	}
	if in.ChainPattern != nil {
		payload["chain_pattern"] = *in.ChainPattern
	}
	return payload
}
