// Package pipeline runs the five-layer synchronous evaluation a tool call
// passes through before it is allowed to execute: kill switch, injection
// firewall, scope enforcer, policy engine, and neuro/chain risk analysis.
// Each layer appends exactly one TraceStep, and the pipeline short-circuits
// on the first layer that blocks.
package pipeline

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/ocx/backend/internal/chain"
	"github.com/ocx/backend/internal/govtypes"
	"github.com/ocx/backend/internal/policy"
	"github.com/ocx/backend/internal/risk"
	"github.com/ocx/backend/internal/session"
)

// injectionPatterns is the fixed, ordered catalogue of prompt-injection and
// command-injection signatures scanned by layer 2. The first match blocks.
var injectionPatterns = compilePatterns([]string{
	`ignore\s+previous\s+instructions`,
	`override\s+all\s+prior\s+rules`,
	`disable\s+safety`,
	`jailbreak`,
	`do\s+anything\s+now`,
	`developer[_\s]mode`,
	`rm\s+-rf\s+/`,
	`format\s+c:`,
	`drop\s+database`,
	`exec\s+xp_cmdshell`,
	`base64_decode\s*\(`,
	`ignore\s+all\s+rules`,
	`you\s+are\s+now\s+in`,
	`pretend\s+you\s+are`,
	`act\s+as\s+if\s+you\s+have\s+no\s+restrictions`,
	`forget\s+(all\s+)?instructions`,
	`system\s*prompt\s*override`,
	`\bsudo\b.*\brm\b`,
	`eval\s*\(`,
	`os\.system\s*\(`,
})

func compilePatterns(raw []string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(raw))
	for i, p := range raw {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// KillSwitchSource reports whether the global kill switch is engaged.
type KillSwitchSource interface {
	GetKillSwitch(ctx context.Context) (bool, error)
}

// PolicySource is satisfied by *policy.Registry.
type PolicySource interface {
	All(ctx context.Context) []govtypes.Policy
	Matches(p govtypes.Policy, req govtypes.ActionRequest) bool
}

// Evaluator runs an ActionRequest through all five layers.
type Evaluator struct {
	killSwitch KillSwitchSource
	policies   PolicySource
	history    *session.Resolver
}

// NewEvaluator wires the pipeline against its dependencies.
func NewEvaluator(killSwitch KillSwitchSource, policies PolicySource, history *session.Resolver) *Evaluator {
	return &Evaluator{killSwitch: killSwitch, policies: policies, history: history}
}

// Evaluate runs req through all five layers and returns the resulting
// Decision. It never returns an error: ambient I/O failures (kill-switch
// lookup, history lookup) degrade to fail-open defaults and are reflected
// only in trace detail, matching the pipeline's synchronous hot-path
// contract.
func (e *Evaluator) Evaluate(ctx context.Context, req govtypes.ActionRequest) govtypes.Decision {
	var trace []govtypes.TraceStep

	// ── Layer 1: Kill switch ──────────────────────────────────────
	start := time.Now()
	killed, _ := e.killSwitch.GetKillSwitch(ctx)
	if killed {
		trace = append(trace, step(1, "Kill Switch", "block", 100, []string{"kill-switch"},
			"Global kill switch enabled — all actions blocked.", start))
		return decision("block", 100, "Global kill switch is enabled; all actions are blocked.",
			[]string{"kill-switch"}, trace, 0)
	}
	trace = append(trace, step(1, "Kill Switch", "pass", 0, nil, "Kill switch inactive.", start))

	// ── Layer 2: Injection firewall ──────────────────────────────
	start = time.Now()
	payload := flattenNormalized(req)
	if reason, pat := scanInjection(payload); pat != "" {
		trace = append(trace, step(2, "Injection Firewall", "block", 95, []string{pat}, reason, start))
		return decision("block", 95, reason, []string{"injection-firewall"}, trace, 0)
	}
	trace = append(trace, step(2, "Injection Firewall", "pass", 0, nil,
		fmt.Sprintf("Scanned %d patterns — none matched.", len(injectionPatterns)), start))

	// ── Layer 3: Scope enforcer ───────────────────────────────────
	start = time.Now()
	if blocked, reason := enforceScope(req); blocked {
		trace = append(trace, step(3, "Scope Enforcer", "block", 90, []string{"scope-violation"}, reason, start))
		return decision("block", 90, reason, []string{"scope-violation"}, trace, 0)
	}
	allowedTools, hasScope := req.Context["allowed_tools"]
	scopeDetail := "No allowed_tools constraint — unrestricted."
	if hasScope && allowedTools != nil {
		scopeDetail = fmt.Sprintf("Tool '%s' permitted within scope.", req.Tool)
	}
	trace = append(trace, step(3, "Scope Enforcer", "pass", 0, nil, scopeDetail, start))

	// ── Layer 4: Policy engine ───────────────────────────────────
	start = time.Now()
	policies := e.policies.All(ctx)
	var matched []string
	var explanationParts []string
	riskScore := 0
	outcome := "allow"

	for _, p := range policies {
		if !e.policies.Matches(p, req) {
			continue
		}
		matched = append(matched, p.PolicyID)
		if p.Severity > riskScore {
			riskScore = p.Severity
		}
		explanationParts = append(explanationParts, fmt.Sprintf("Matched policy '%s': %s.", p.PolicyID, p.Description))
		if p.Action == "block" {
			outcome = "block"
		} else if p.Action == "review" && outcome != "block" {
			outcome = "review"
		}
	}

	policyOutcome := "pass"
	if outcome == "block" {
		policyOutcome = "block"
	} else if outcome == "review" {
		policyOutcome = "review"
	}
	var policyDetail string
	if len(matched) > 0 {
		policyDetail = fmt.Sprintf("Matched %d/%d policies: %s.", len(matched), len(policies), strings.Join(matched, ", "))
	} else {
		policyDetail = fmt.Sprintf("Checked %d policies — no matches.", len(policies))
	}
	trace = append(trace, step(4, "Policy Engine", policyOutcome, riskScore, matched, policyDetail, start))

	// ── Layer 5: Neuro risk estimator + chain analysis ───────────
	start = time.Now()
	var history []govtypes.HistoryEntry
	if req.AgentID != "" && e.history != nil {
		history, _ = e.history.AgentHistory(ctx, req.AgentID, req.SessionID)
	}

	neuralRisk := risk.EstimateNeural(req)
	chainResult := chain.Analyze(history)
	chainDetail := "No escalation chain detected."
	if chainResult.Triggered {
		neuralRisk = minInt(100, neuralRisk+chainResult.Boost)
		chainDetail = fmt.Sprintf("Chain '%s' detected: %s. +%d risk. %s",
			chainResult.Pattern, chainResult.Description, chainResult.Boost, chainResult.Evidence)
		explanationParts = append(explanationParts,
			fmt.Sprintf("Behavioural chain '%s' detected: %s.", chainResult.Pattern, chainResult.Description))
	}

	neuroRaised := neuralRisk > riskScore
	if neuroRaised {
		riskScore = neuralRisk
		explanationParts = append(explanationParts, fmt.Sprintf("Neuro risk estimator raised risk score to %d.", neuralRisk))
	}

	if chainResult.Triggered && riskScore >= 80 && outcome == "allow" {
		outcome = "review"
		explanationParts = append(explanationParts, "Decision promoted to 'review' due to chain escalation.")
	}

	var neuroMatched []string
	if neuralRisk > 0 {
		neuroMatched = append(neuroMatched, fmt.Sprintf("neural:%d", neuralRisk))
	}
	if chainResult.Triggered {
		neuroMatched = append(neuroMatched, fmt.Sprintf("chain:%s", chainResult.Pattern))
	}

	raisedNote := "Below policy score."
	if neuroRaised {
		raisedNote = "↑ Raised overall risk."
	}
	neuroDetail := fmt.Sprintf("Neural score: %d. %s Session depth: %d actions. %s",
		neuralRisk, raisedNote, len(history), chainDetail)
	trace = append(trace, step(5, "Neuro Estimator", "pass", neuralRisk, neuroMatched, neuroDetail, start))

	if len(explanationParts) == 0 {
		explanationParts = append(explanationParts, "No policies matched; default allow.")
	}

	d := decision(outcome, riskScore, strings.Join(explanationParts, "; "), matched, trace, len(history))
	if chainResult.Triggered {
		pat := chainResult.Pattern
		d.ChainPattern = &pat
	}
	return d
}

func step(layer int, name, outcome string, riskContribution int, matched []string, detail string, start time.Time) govtypes.TraceStep {
	return govtypes.TraceStep{
		Layer:            layer,
		Name:             name,
		Outcome:          outcome,
		RiskContribution: riskContribution,
		MatchedIDs:       matched,
		Detail:           detail,
		DurationMs:       float64(time.Since(start).Microseconds()) / 1000.0,
	}
}

func decision(outcome string, riskScore int, explanation string, policyIDs []string, trace []govtypes.TraceStep, sessionDepth int) govtypes.Decision {
	return govtypes.Decision{
		Decision:     outcome,
		RiskScore:    riskScore,
		Explanation:  explanation,
		PolicyIDs:    policyIDs,
		Trace:        trace,
		Escalated:    false,
		SessionDepth: sessionDepth,
		CreatedAt:    time.Now().UTC(),
	}
}

// flattenNormalized builds the "<tool> <args> <context>" payload, NFKC
// normalized and whitespace-collapsed to defeat homoglyph/zero-width-char
// obfuscation, then lowercased. This is deliberately the lowercased
// counterpart to verify's output flatten, which stops before lowercasing.
func flattenNormalized(req govtypes.ActionRequest) string {
	raw := fmt.Sprintf("%s %v %v", req.Tool, req.Args, req.Context)
	return strings.ToLower(collapseWhitespace(norm.NFKC.String(raw)))
}

var whitespaceRe = regexp.MustCompile(`[\s\x{200b}\x{200c}\x{200d}\x{feff}]+`)

func collapseWhitespace(s string) string {
	return whitespaceRe.ReplaceAllString(s, " ")
}

func scanInjection(payload string) (reason, pattern string) {
	for _, re := range injectionPatterns {
		if m := re.FindString(payload); m != "" {
			return fmt.Sprintf("Injection firewall triggered on pattern: '%s'", m), re.String()
		}
	}
	return "", ""
}

func enforceScope(req govtypes.ActionRequest) (bool, string) {
	raw, ok := req.Context["allowed_tools"]
	if !ok {
		return false, ""
	}
	allowed, ok := toStringSlice(raw)
	if !ok || len(allowed) == 0 {
		return false, ""
	}
	for _, t := range allowed {
		if t == req.Tool {
			return false, ""
		}
	}
	return true, fmt.Sprintf("Tool '%s' is not in allowed_tools scope (%v) – blocking for safety.", req.Tool, allowed)
}

func toStringSlice(v interface{}) ([]string, bool) {
	switch vv := v.(type) {
	case []string:
		return vv, true
	case []interface{}:
		out := make([]string, 0, len(vv))
		for _, e := range vv {
			s, ok := e.(string)
			if !ok {
				return nil, false
			}
			out = append(out, s)
		}
		return out, true
	default:
		return nil, false
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
