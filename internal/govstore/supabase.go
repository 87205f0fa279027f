package govstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"
	supabase "github.com/supabase-community/supabase-go"

	"github.com/ocx/backend/internal/govtypes"
	"github.com/ocx/backend/internal/money"
)

// SupabaseStore is a Store backed by a Supabase (PostgREST) project. It
// persists to the action_logs, governor_state, policies, verification_logs,
// escalation_events, escalation_config, and escalation_webhooks tables.
type SupabaseStore struct {
	client *supabase.Client
}

// NewSupabaseStore wraps an existing Supabase client.
func NewSupabaseStore(client *supabase.Client) *SupabaseStore {
	return &SupabaseStore{client: client}
}

// actionLogRow is the wire shape of the action_logs table.
type actionLogRow struct {
	ID             int64  `json:"id,omitempty"`
	CreatedAt      string `json:"created_at,omitempty"`
	Tool           string `json:"tool"`
	Args           string `json:"args"`
	Context        string `json:"context,omitempty"`
	AgentID        string `json:"agent_id,omitempty"`
	SessionID      string `json:"session_id,omitempty"`
	UserID         string `json:"user_id,omitempty"`
	Channel        string `json:"channel,omitempty"`
	TraceID        string `json:"trace_id,omitempty"`
	SpanID         string `json:"span_id,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`
	TurnID         string `json:"turn_id,omitempty"`
	Decision       string `json:"decision"`
	RiskScore      int    `json:"risk_score"`
	Explanation    string `json:"explanation"`
	PolicyIDs      string `json:"policy_ids,omitempty"`
}

func (r actionLogRow) toEntry() govtypes.HistoryEntry {
	createdAt, _ := time.Parse(time.RFC3339, r.CreatedAt)
	var ids []string
	if r.PolicyIDs != "" {
		ids = strings.Split(r.PolicyIDs, ",")
	}
	return govtypes.HistoryEntry{
		ID:             r.ID,
		CreatedAt:      createdAt,
		Tool:           r.Tool,
		Args:           r.Args,
		Context:        r.Context,
		AgentID:        r.AgentID,
		SessionID:      r.SessionID,
		UserID:         r.UserID,
		Channel:        r.Channel,
		TraceID:        r.TraceID,
		SpanID:         r.SpanID,
		ConversationID: r.ConversationID,
		TurnID:         r.TurnID,
		Decision:       r.Decision,
		RiskScore:      r.RiskScore,
		Explanation:    r.Explanation,
		PolicyIDs:      ids,
	}
}

func (s *SupabaseStore) InsertActionLog(_ context.Context, entry govtypes.HistoryEntry) (int64, error) {
	row := actionLogRow{
		Tool:           entry.Tool,
		Args:           entry.Args,
		Context:        entry.Context,
		AgentID:        entry.AgentID,
		SessionID:      entry.SessionID,
		UserID:         entry.UserID,
		Channel:        entry.Channel,
		TraceID:        entry.TraceID,
		SpanID:         entry.SpanID,
		ConversationID: entry.ConversationID,
		TurnID:         entry.TurnID,
		Decision:       entry.Decision,
		RiskScore:      entry.RiskScore,
		Explanation:    entry.Explanation,
		PolicyIDs:      strings.Join(entry.PolicyIDs, ","),
	}

	var result []actionLogRow
	_, err := s.client.From("action_logs").
		Insert(row, false, "", "", "").
		ExecuteTo(&result)
	if err != nil {
		return 0, fmt.Errorf("insert action_logs: %w", err)
	}
	if len(result) == 0 {
		return 0, nil
	}
	return result[0].ID, nil
}

func (s *SupabaseStore) GetActionByID(_ context.Context, id int64) (*govtypes.HistoryEntry, error) {
	var rows []actionLogRow
	_, err := s.client.From("action_logs").
		Select("*", "", false).
		Eq("id", fmt.Sprint(id)).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("select action_logs (by id): %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	entry := rows[0].toEntry()
	return &entry, nil
}

func (s *SupabaseStore) AgentHistory(_ context.Context, agentID, sessionID string, window time.Duration, limit int) ([]govtypes.HistoryEntry, error) {
	cutoff := time.Now().UTC().Add(-window).Format(time.RFC3339)

	query := s.client.From("action_logs").
		Select("*", "", false).
		Eq("agent_id", agentID).
		Gte("created_at", cutoff)
	if sessionID != "" {
		query = query.Eq("session_id", sessionID)
	}
	query = query.Order("created_at", nil).Limit(limit, "")

	var rows []actionLogRow
	_, err := query.ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("select action_logs: %w", err)
	}

	out := make([]govtypes.HistoryEntry, len(rows))
	for i, r := range rows {
		out[i] = r.toEntry()
	}
	return out, nil
}

func (s *SupabaseStore) HistorySince(_ context.Context, agentID string, since, until time.Time) ([]govtypes.HistoryEntry, error) {
	var rows []actionLogRow
	_, err := s.client.From("action_logs").
		Select("*", "", false).
		Eq("agent_id", agentID).
		Gte("created_at", since.Format(time.RFC3339)).
		Lte("created_at", until.Format(time.RFC3339)).
		Order("created_at", nil).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("select action_logs (drift window): %w", err)
	}

	out := make([]govtypes.HistoryEntry, len(rows))
	for i, r := range rows {
		out[i] = r.toEntry()
	}
	return out, nil
}

type governorStateRow struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func (s *SupabaseStore) GetKillSwitch(_ context.Context) (bool, error) {
	var rows []governorStateRow
	_, err := s.client.From("governor_state").
		Select("*", "", false).
		Eq("key", "kill_switch").
		ExecuteTo(&rows)
	if err != nil {
		return false, fmt.Errorf("select governor_state: %w", err)
	}
	if len(rows) == 0 {
		return false, nil
	}
	return rows[0].Value == "true", nil
}

func (s *SupabaseStore) SetKillSwitch(_ context.Context, enabled bool) error {
	value := "false"
	if enabled {
		value = "true"
	}
	row := governorStateRow{Key: "kill_switch", Value: value}
	var result []governorStateRow
	_, err := s.client.From("governor_state").
		Upsert(row, "", "", "").
		ExecuteTo(&result)
	if err != nil {
		return fmt.Errorf("upsert governor_state: %w", err)
	}
	return nil
}

type policyRow struct {
	PolicyID    string `json:"policy_id"`
	Description string `json:"description"`
	Severity    int    `json:"severity"`
	MatchJSON   string `json:"match_json"`
	Action      string `json:"action"`
	IsActive    bool   `json:"is_active"`
	Version     int    `json:"version"`
}

func (s *SupabaseStore) DynamicPolicies(_ context.Context) ([]govtypes.Policy, error) {
	var rows []policyRow
	_, err := s.client.From("policies").
		Select("*", "", false).
		Eq("is_active", "true").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("select policies: %w", err)
	}

	out := make([]govtypes.Policy, 0, len(rows))
	for _, r := range rows {
		var match govtypes.PolicyMatch
		if r.MatchJSON != "" {
			_ = json.Unmarshal([]byte(r.MatchJSON), &match)
		}
		out = append(out, govtypes.Policy{
			PolicyID:    r.PolicyID,
			Description: r.Description,
			Severity:    r.Severity,
			Match:       match,
			Action:      r.Action,
			IsActive:    r.IsActive,
			Version:     r.Version,
			Source:      "dynamic",
		})
	}
	return out, nil
}

type verificationLogRow struct {
	ActionLogID int64  `json:"action_log_id"`
	Verdict     string `json:"verdict"`
	RiskDelta   int    `json:"risk_delta"`
	FindingsJS  string `json:"findings_json"`
	Escalated   bool   `json:"escalated"`
}

func (s *SupabaseStore) InsertVerificationLog(_ context.Context, actionLogID int64, verdict govtypes.VerificationVerdict) error {
	findingsJSON, err := json.Marshal(verdict.Findings)
	if err != nil {
		return fmt.Errorf("marshal findings: %w", err)
	}
	row := verificationLogRow{
		ActionLogID: actionLogID,
		Verdict:     verdict.Verdict,
		RiskDelta:   verdict.RiskDelta,
		FindingsJS:  string(findingsJSON),
		Escalated:   verdict.Escalated,
	}
	var result []verificationLogRow
	_, err = s.client.From("verification_logs").
		Insert(row, false, "", "", "").
		ExecuteTo(&result)
	if err != nil {
		return fmt.Errorf("insert verification_logs: %w", err)
	}
	return nil
}

type escalationEventRow struct {
	ID           int64  `json:"id,omitempty"`
	ActionLogID  *int64 `json:"action_log_id,omitempty"`
	Tool         string `json:"tool"`
	AgentID      string `json:"agent_id,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	Trigger      string `json:"trigger"`
	Severity     string `json:"severity"`
	Decision     string `json:"decision"`
	RiskScore    int    `json:"risk_score"`
	Explanation  string `json:"explanation"`
	PolicyIDs    string `json:"policy_ids,omitempty"`
	ChainPattern string `json:"chain_pattern,omitempty"`
	Status       string `json:"status"`
}

func (s *SupabaseStore) InsertEscalationEvent(_ context.Context, event EscalationEvent) (int64, error) {
	row := escalationEventRow{
		ActionLogID: event.ActionLogID,
		Tool:        event.Tool,
		AgentID:     event.AgentID,
		SessionID:   event.SessionID,
		Trigger:     event.Trigger,
		Severity:    event.Severity,
		Decision:    event.Decision,
		RiskScore:   event.RiskScore,
		Explanation: event.Explanation,
		PolicyIDs:   event.PolicyIDs,
		Status:      event.Status,
	}
	if event.ChainPattern != nil {
		row.ChainPattern = *event.ChainPattern
	}

	var result []escalationEventRow
	_, err := s.client.From("escalation_events").
		Insert(row, false, "", "", "").
		ExecuteTo(&result)
	if err != nil {
		return 0, fmt.Errorf("insert escalation_events: %w", err)
	}
	if len(result) == 0 {
		return 0, nil
	}
	return result[0].ID, nil
}

func (s *SupabaseStore) RecentActions(_ context.Context, agentID string, limit int) ([]govtypes.HistoryEntry, error) {
	query := s.client.From("action_logs").Select("*", "", false)
	if agentID != "" {
		query = query.Eq("agent_id", agentID)
	}
	query = query.Order("created_at", &postgrest.OrderOpts{Ascending: false}).Limit(limit, "")

	var rows []actionLogRow
	_, err := query.ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("select recent action_logs: %w", err)
	}

	out := make([]govtypes.HistoryEntry, len(rows))
	for i, r := range rows {
		out[i] = r.toEntry()
	}
	return out, nil
}

type escalationConfigRowWire struct {
	Scope                string `json:"scope"`
	AutoKSEnabled        bool   `json:"auto_ks_enabled"`
	AutoKSBlockThreshold int    `json:"auto_ks_block_threshold"`
	AutoKSRiskThreshold  int    `json:"auto_ks_risk_threshold"`
	AutoKSWindowSize     int    `json:"auto_ks_window_size"`
	ReviewRiskThreshold  int    `json:"review_risk_threshold"`
	NotifyOnBlock        bool   `json:"notify_on_block"`
	NotifyOnReview       bool   `json:"notify_on_review"`
	NotifyOnAutoKS       bool   `json:"notify_on_auto_ks"`
}

func (s *SupabaseStore) EscalationConfig(_ context.Context, scope string) (*EscalationConfigRow, error) {
	var rows []escalationConfigRowWire
	_, err := s.client.From("escalation_config").
		Select("*", "", false).
		Eq("scope", scope).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("select escalation_config: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	r := rows[0]
	return &EscalationConfigRow{
		Scope:                r.Scope,
		AutoKSEnabled:        r.AutoKSEnabled,
		AutoKSBlockThreshold: r.AutoKSBlockThreshold,
		AutoKSRiskThreshold:  r.AutoKSRiskThreshold,
		AutoKSWindowSize:     r.AutoKSWindowSize,
		ReviewRiskThreshold:  r.ReviewRiskThreshold,
		NotifyOnBlock:        r.NotifyOnBlock,
		NotifyOnReview:       r.NotifyOnReview,
		NotifyOnAutoKS:       r.NotifyOnAutoKS,
	}, nil
}

type escalationWebhookRow struct {
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

func (s *SupabaseStore) ActiveWebhooks(_ context.Context) ([]EscalationWebhook, error) {
	var rows []escalationWebhookRow
	_, err := s.client.From("escalation_webhooks").
		Select("*", "", false).
		Eq("is_active", "true").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("select escalation_webhooks: %w", err)
	}
	out := make([]EscalationWebhook, len(rows))
	for i, r := range rows {
		out[i] = EscalationWebhook{
			ID: r.ID, URL: r.URL, Label: r.Label,
			OnBlock: r.OnBlock, OnReview: r.OnReview, OnAutoKS: r.OnAutoKS,
			AuthHeader: r.AuthHeader, Secret: r.Secret, IsActive: r.IsActive,
		}
	}
	return out, nil
}

type walletRow struct {
	WalletID       string `json:"wallet_id,omitempty"`
	AgentID        string `json:"agent_id"`
	Label          string `json:"label"`
	Balance        string `json:"balance"`
	TotalDeposited string `json:"total_deposited"`
	TotalFeesPaid  string `json:"total_fees_paid"`
}

func (r walletRow) toWallet() *Wallet {
	return &Wallet{
		WalletID:       r.WalletID,
		AgentID:        r.AgentID,
		Label:          r.Label,
		Balance:        r.Balance,
		TotalDeposited: r.TotalDeposited,
		TotalFeesPaid:  r.TotalFeesPaid,
	}
}

func (s *SupabaseStore) GetOrCreateWallet(_ context.Context, agentID, startingBalance string) (*Wallet, error) {
	var existing []walletRow
	_, err := s.client.From("wallets").
		Select("*", "", false).
		Eq("agent_id", agentID).
		ExecuteTo(&existing)
	if err != nil {
		return nil, fmt.Errorf("select wallets: %w", err)
	}
	if len(existing) > 0 {
		return existing[0].toWallet(), nil
	}

	row := walletRow{
		AgentID:        agentID,
		Label:          fmt.Sprintf("agent:%s", agentID),
		Balance:        startingBalance,
		TotalDeposited: startingBalance,
		TotalFeesPaid:  money.Zero.String(),
	}
	var created []walletRow
	_, err = s.client.From("wallets").
		Insert(row, false, "", "", "").
		ExecuteTo(&created)
	if err != nil {
		return nil, fmt.Errorf("insert wallets: %w", err)
	}
	if len(created) == 0 {
		return nil, fmt.Errorf("insert wallets: no row returned")
	}
	return created[0].toWallet(), nil
}

func (s *SupabaseStore) ChargeWallet(_ context.Context, walletID, fee string) error {
	var rows []walletRow
	_, err := s.client.From("wallets").
		Select("*", "", false).
		Eq("wallet_id", walletID).
		ExecuteTo(&rows)
	if err != nil {
		return fmt.Errorf("select wallets: %w", err)
	}
	if len(rows) == 0 {
		return fmt.Errorf("govstore: wallet %q not found", walletID)
	}

	feeAmt, err := money.Parse(fee)
	if err != nil {
		return err
	}
	balance, err := money.Parse(rows[0].Balance)
	if err != nil {
		return err
	}
	paid, err := money.Parse(rows[0].TotalFeesPaid)
	if err != nil {
		return err
	}

	update := walletRow{
		Balance:       balance.Sub(feeAmt).String(),
		TotalFeesPaid: paid.Add(feeAmt).String(),
	}
	var result []walletRow
	_, err = s.client.From("wallets").
		Update(update, "", "").
		Eq("wallet_id", walletID).
		ExecuteTo(&result)
	if err != nil {
		return fmt.Errorf("update wallets: %w", err)
	}
	return nil
}

type receiptRow struct {
	ReceiptID    string `json:"receipt_id"`
	Tool         string `json:"tool"`
	Decision     string `json:"decision"`
	RiskScore    int    `json:"risk_score"`
	PolicyIDs    string `json:"policy_ids,omitempty"`
	ChainPattern string `json:"chain_pattern,omitempty"`
	AgentID      string `json:"agent_id,omitempty"`
	Fee          string `json:"fee,omitempty"`
	Digest       string `json:"digest"`
	CreatedAt    string `json:"created_at"`
}

type traceSpanRow struct {
	TraceID      string `json:"trace_id"`
	SpanID       string `json:"span_id"`
	ParentSpanID string `json:"parent_span_id,omitempty"`
	Kind         string `json:"kind"`
	Name         string `json:"name"`
	Status       string `json:"status"`
	StartTime    string `json:"start_time"`
	EndTime      string `json:"end_time"`
	DurationMs   float64 `json:"duration_ms"`
	AgentID      string `json:"agent_id,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	Attributes   string `json:"attributes_json,omitempty"`
	InputText    string `json:"input_text,omitempty"`
	OutputText   string `json:"output_text,omitempty"`
	Events       string `json:"events_json,omitempty"`
}

func spanToRow(span govtypes.TraceSpan) (traceSpanRow, error) {
	var attrsJSON, eventsJSON string
	if len(span.Attributes) > 0 {
		b, err := json.Marshal(span.Attributes)
		if err != nil {
			return traceSpanRow{}, fmt.Errorf("marshal span attributes: %w", err)
		}
		attrsJSON = string(b)
	}
	if len(span.Events) > 0 {
		b, err := json.Marshal(span.Events)
		if err != nil {
			return traceSpanRow{}, fmt.Errorf("marshal span events: %w", err)
		}
		eventsJSON = string(b)
	}
	return traceSpanRow{
		TraceID:      span.TraceID,
		SpanID:       span.SpanID,
		ParentSpanID: span.ParentSpanID,
		Kind:         span.Kind,
		Name:         span.Name,
		Status:       span.Status,
		StartTime:    span.StartTime.Format(time.RFC3339Nano),
		EndTime:      span.EndTime.Format(time.RFC3339Nano),
		DurationMs:   span.DurationMs,
		AgentID:      span.AgentID,
		SessionID:    span.SessionID,
		Attributes:   attrsJSON,
		InputText:    span.InputText,
		OutputText:   span.OutputText,
		Events:       eventsJSON,
	}, nil
}

func (r traceSpanRow) toSpan() govtypes.TraceSpan {
	start, _ := time.Parse(time.RFC3339Nano, r.StartTime)
	end, _ := time.Parse(time.RFC3339Nano, r.EndTime)
	span := govtypes.TraceSpan{
		TraceID:      r.TraceID,
		SpanID:       r.SpanID,
		ParentSpanID: r.ParentSpanID,
		Kind:         r.Kind,
		Name:         r.Name,
		Status:       r.Status,
		StartTime:    start,
		EndTime:      end,
		DurationMs:   r.DurationMs,
		AgentID:      r.AgentID,
		SessionID:    r.SessionID,
		InputText:    r.InputText,
		OutputText:   r.OutputText,
	}
	if r.Attributes != "" {
		_ = json.Unmarshal([]byte(r.Attributes), &span.Attributes)
	}
	if r.Events != "" {
		_ = json.Unmarshal([]byte(r.Events), &span.Events)
	}
	return span
}

func (s *SupabaseStore) UpsertSpan(_ context.Context, span govtypes.TraceSpan) error {
	row, err := spanToRow(span)
	if err != nil {
		return err
	}
	var result []traceSpanRow
	_, err = s.client.From("trace_spans").
		Upsert(row, "trace_id,span_id", "", "").
		ExecuteTo(&result)
	if err != nil {
		return fmt.Errorf("upsert trace_spans: %w", err)
	}
	return nil
}

func (s *SupabaseStore) SpansByTrace(_ context.Context, traceID string) ([]govtypes.TraceSpan, error) {
	var rows []traceSpanRow
	_, err := s.client.From("trace_spans").
		Select("*", "", false).
		Eq("trace_id", traceID).
		Order("start_time", nil).
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("select trace_spans: %w", err)
	}
	out := make([]govtypes.TraceSpan, len(rows))
	for i, r := range rows {
		out[i] = r.toSpan()
	}
	return out, nil
}

func (s *SupabaseStore) DeleteSpansByTrace(_ context.Context, traceID string) error {
	var result []traceSpanRow
	_, err := s.client.From("trace_spans").
		Delete("", "").
		Eq("trace_id", traceID).
		ExecuteTo(&result)
	if err != nil {
		return fmt.Errorf("delete trace_spans: %w", err)
	}
	return nil
}

func (s *SupabaseStore) InsertReceipt(_ context.Context, r Receipt) error {
	row := receiptRow{
		ReceiptID: r.ReceiptID,
		Tool:      r.Tool,
		Decision:  r.Decision,
		RiskScore: r.RiskScore,
		PolicyIDs: r.PolicyIDs,
		AgentID:   r.AgentID,
		Fee:       r.Fee,
		Digest:    r.Digest,
		CreatedAt: r.CreatedAt,
	}
	if r.ChainPattern != nil {
		row.ChainPattern = *r.ChainPattern
	}
	var result []receiptRow
	_, err := s.client.From("receipts").
		Insert(row, false, "", "", "").
		ExecuteTo(&result)
	if err != nil {
		return fmt.Errorf("insert receipts: %w", err)
	}
	return nil
}
