// Package govtypes holds the data shapes shared across the governance
// evaluation pipeline, verification engine, chain analyser, and stores.
package govtypes

import "time"

// ActionRequest is a single tool invocation submitted for evaluation.
type ActionRequest struct {
	Tool      string                 `json:"tool"`
	Args      map[string]interface{} `json:"args"`
	Context   map[string]interface{} `json:"context,omitempty"`
	AgentID   string                 `json:"agent_id,omitempty"`
	SessionID string                 `json:"session_id,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	Channel   string                 `json:"channel,omitempty"`
	TraceID   string                 `json:"trace_id,omitempty"`
	SpanID    string                 `json:"span_id,omitempty"`
}

// TraceStep is one layer's contribution to an evaluation, appended in order.
type TraceStep struct {
	Layer            int      `json:"layer"`
	Name             string   `json:"name"`
	Outcome          string   `json:"outcome"` // pass | block | escalate
	RiskContribution int      `json:"risk_contribution"`
	MatchedIDs       []string `json:"matched_ids,omitempty"`
	Detail           string   `json:"detail,omitempty"`
	DurationMs       float64  `json:"duration_ms"`
}

// Decision is the outcome of evaluating an ActionRequest through the pipeline.
type Decision struct {
	Decision           string      `json:"decision"` // allow | review | block
	RiskScore          int         `json:"risk_score"`
	Explanation        string      `json:"explanation"`
	PolicyIDs          []string    `json:"policy_ids"`
	ChainPattern       *string     `json:"chain_pattern,omitempty"`
	Trace              []TraceStep `json:"trace"`
	Escalated          bool        `json:"escalated"`
	ReceiptID          string      `json:"receipt_id"`
	ReceiptDigest      string      `json:"receipt_digest"`
	SessionDepth       int         `json:"session_depth"`
	EscalationID       string      `json:"escalation_id,omitempty"`
	EscalationSeverity string      `json:"escalation_severity,omitempty"`
	AutoKSTriggered    bool        `json:"auto_ks_triggered"`
	CreatedAt          time.Time   `json:"created_at"`
}

// HistoryEntry is one prior evaluated action, used by the session window,
// chain analyser, and drift detector.
type HistoryEntry struct {
	ID             int64     `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Tool           string    `json:"tool"`
	Args           string    `json:"args"`
	Context        string    `json:"context,omitempty"`
	AgentID        string    `json:"agent_id,omitempty"`
	SessionID      string    `json:"session_id,omitempty"`
	UserID         string    `json:"user_id,omitempty"`
	Channel        string    `json:"channel,omitempty"`
	TraceID        string    `json:"trace_id,omitempty"`
	SpanID         string    `json:"span_id,omitempty"`
	ConversationID string    `json:"conversation_id,omitempty"`
	TurnID         string    `json:"turn_id,omitempty"`
	Decision       string    `json:"decision"`
	RiskScore      int       `json:"risk_score"`
	Explanation    string    `json:"explanation"`
	PolicyIDs      []string  `json:"policy_ids,omitempty"`
}

// PolicyMatch describes the conditions under which a Policy applies.
type PolicyMatch struct {
	Tool      string `json:"tool,omitempty" yaml:"tool,omitempty"`
	URLRegex  string `json:"url_regex,omitempty" yaml:"url_regex,omitempty"`
	ArgsRegex string `json:"args_regex,omitempty" yaml:"args_regex,omitempty"`
}

// Policy is a single governance rule: when Match applies, Action is taken
// and Severity contributes to the running risk score.
type Policy struct {
	PolicyID    string      `json:"policy_id" yaml:"id"`
	Description string      `json:"description" yaml:"description"`
	Severity    int         `json:"severity" yaml:"severity"`
	Match       PolicyMatch `json:"match" yaml:"match"`
	Action      string      `json:"action" yaml:"action"` // allow | review | block
	IsActive    bool        `json:"is_active"`
	Version     int         `json:"version"`
	Source      string      `json:"source"` // "base" | "dynamic"
}

// Finding is one post-execution verification check's result.
type Finding struct {
	Check            string `json:"check"`
	Outcome          string `json:"outcome"` // pass | warn | fail
	RiskContribution int    `json:"risk_contribution"`
	Detail           string `json:"detail,omitempty"`
}

// VerificationVerdict is the aggregate result of running all post-execution
// checks against a completed tool call.
type VerificationVerdict struct {
	Verdict    string    `json:"verdict"` // compliant | suspicious | violation
	RiskDelta  int       `json:"risk_delta"`
	Findings   []Finding `json:"findings"`
	Escalated  bool      `json:"escalated"`
	CreatedAt  time.Time `json:"created_at"`
}

// DriftSignal is one weighted dimension of cross-session behavioural drift.
type DriftSignal struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"`
	Triggered   bool    `json:"triggered"`
	Value       float64 `json:"value"`
	Detail      string  `json:"detail"`
}

// ChainFinding is the result of the behavioural chain analyser: either nil
// (no pattern matched) or the highest-priority matching pattern.
type ChainFinding struct {
	Pattern  string `json:"pattern"`
	RiskBoost int   `json:"risk_boost"`
	Evidence string `json:"evidence"`
}

// TraceSpan is one node in an agent's execution trace, correlating a
// governance decision back to the LLM/tool call that produced it.
type TraceSpan struct {
	TraceID      string                 `json:"trace_id"`
	SpanID       string                 `json:"span_id"`
	ParentSpanID string                 `json:"parent_span_id,omitempty"`
	Kind         string                 `json:"kind"` // agent | llm | tool | governance | retrieval | chain | custom
	Name         string                 `json:"name"`
	Status       string                 `json:"status"` // ok | error
	StartTime    time.Time              `json:"start_time"`
	EndTime      time.Time              `json:"end_time"`
	DurationMs   float64                `json:"duration_ms"`
	AgentID      string                 `json:"agent_id,omitempty"`
	SessionID    string                 `json:"session_id,omitempty"`
	Attributes   map[string]interface{} `json:"attributes,omitempty"`
	InputText    string                 `json:"input_text,omitempty"`
	OutputText   string                 `json:"output_text,omitempty"`
	Events       []SpanEvent            `json:"events,omitempty"`
}

// SpanEvent is a timestamped annotation attached to a TraceSpan.
type SpanEvent struct {
	Name       string                 `json:"name"`
	Time       time.Time              `json:"time"`
	Attributes map[string]interface{} `json:"attributes,omitempty"`
}
