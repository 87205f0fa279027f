// Package verify runs post-execution compliance checks against a
// completed tool call. Where the pipeline package gates intent, this
// package validates outcome: it scans the actual result for leaked
// credentials, destructive side-effects, scope drift, and injected
// content, then re-runs the policy engine against the result itself.
package verify

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/ocx/backend/internal/govtypes"
)

type namedPattern struct {
	re   *regexp.Regexp
	name string
}

func compileNamed(pairs [][2]string) []namedPattern {
	out := make([]namedPattern, len(pairs))
	for i, p := range pairs {
		out[i] = namedPattern{re: regexp.MustCompile(`(?i)` + p[0]), name: p[1]}
	}
	return out
}

var secretPatterns = compileNamed([][2]string{
	{`\b[A-Za-z0-9+/]{40,}={0,2}\b`, "base64-blob"},
	{`\b(?:AKIA|ABIA|ACCA|ASIA)[A-Z0-9]{16}\b`, "aws-access-key"},
	{`\bghp_[A-Za-z0-9]{36,}\b`, "github-pat"},
	{`\bgho_[A-Za-z0-9]{36,}\b`, "github-oauth"},
	{`\bglpat-[A-Za-z0-9\-]{20,}\b`, "gitlab-pat"},
	{`\bsk-[A-Za-z0-9]{32,}\b`, "openai-key"},
	{`\bxox[bpsa]-[A-Za-z0-9\-]{10,}\b`, "slack-token"},
	{`\b(?:password|passwd|secret|api[_\s]?key|access[_\s]?token|private[_\s]?key|client[_\s]?secret)\s*[:=]\s*\S+`, "credential-assignment"},
	{`-----BEGIN (?:RSA |EC |DSA )?PRIVATE KEY-----`, "pem-private-key"},
	{`\bBearer\s+[A-Za-z0-9\-._~+/]+=*\b`, "bearer-token"},
	{`\bey[A-Za-z0-9_-]{20,}\.[A-Za-z0-9_-]{20,}\.[A-Za-z0-9_-]{20,}\b`, "jwt-token"},
})

var destructivePatterns = compileNamed([][2]string{
	{`(?:deleted|removed|destroyed)\s+\d+\s+(?:files?|rows?|records?|tables?|databases?)`, "mass-deletion"},
	{`(?:drop(?:ped)?|truncat(?:ed|ing))\s+(?:table|database|collection|index)`, "schema-destruction"},
	{`(?:format(?:ted|ting)?)\s+(?:drive|disk|partition|volume)`, "disk-format"},
	{`permission(?:s)?\s+changed?\s+(?:to\s+)?(?:777|0777|rwxrwxrwx)`, "permission-escalation"},
	{`(?:chown|chmod)\s+.*(?:root|0:0)`, "ownership-escalation"},
	{`(?:disabl|deactivat)(?:ed?|ing|es)?\s+(?:the\s+)?(?:firewall|selinux|apparmor|antivirus|auth)`, "security-disabling"},
	{`(?:kill(?:ed|ing)?|terminat(?:ed|ing))\s+(?:all|process|pid|\d+)\s+(?:processes?|services?)?`, "process-termination"},
})

var outputInjectionPatterns = compileNamed([][2]string{
	{`ignore\s+(?:all\s+)?(?:previous|prior|above)\s+instructions`, "ignore-instructions"},
	{`you\s+are\s+now\s+(?:a|an|in)\s+`, "role-hijack"},
	{`system\s*prompt\s*:\s*`, "system-prompt-inject"},
	{`<\|(?:im_start|system|assistant)\|>`, "special-token-inject"},
	{`\[INST\]|\[/INST\]|<<SYS>>|<</SYS>>`, "llama-token-inject"},
	{`(?:admin|root|sudo)\s+access\s+granted`, "fake-privilege-escalation"},
	{`(?:override|bypass|disable)\s+(?:all\s+)?(?:safety|security|governance|restrictions)`, "safety-bypass"},
})

var scopePathPattern = regexp.MustCompile(`(/(?:etc|proc|sys|boot|root|var/log)/\S+)`)

// normalize applies the same NFKC + whitespace-collapse as the pipeline's
// injection scan, but deliberately skips lowercasing — credential and
// destructive-output patterns rely on case (e.g. AWS key prefixes).
func normalize(text string) string {
	return collapseWhitespace(norm.NFKC.String(text))
}

var whitespaceRe = regexp.MustCompile(`[\s\x{200b}\x{200c}\x{200d}\x{feff}]+`)

func collapseWhitespace(s string) string {
	return whitespaceRe.ReplaceAllString(s, " ")
}

// flattenResult joins every value in result into one normalized string.
func flattenResult(result map[string]interface{}) string {
	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, stringifyResultValue(result[k]))
	}
	return normalize(strings.Join(parts, " "))
}

func stringifyResultValue(v interface{}) string {
	switch vv := v.(type) {
	case string:
		return vv
	case []interface{}:
		items := make([]string, len(vv))
		for i, e := range vv {
			items[i] = fmt.Sprintf("%v", e)
		}
		return strings.Join(items, " ")
	default:
		return fmt.Sprintf("%v", vv)
	}
}

func timed(start time.Time) float64 {
	return float64(time.Since(start).Microseconds()) / 1000.0
}

func checkCredentialLeak(resultText string) govtypes.Finding {
	var found []string
	for _, p := range secretPatterns {
		if p.re.MatchString(resultText) {
			found = append(found, p.name)
		}
	}
	if len(found) > 0 {
		return govtypes.Finding{
			Check:            "credential-scan",
			Outcome:          "fail",
			Detail:           fmt.Sprintf("Potential credential(s) detected in output: %s", strings.Join(found, ", ")),
			RiskContribution: minInt(95, 60+len(found)*10),
		}
	}
	return govtypes.Finding{Check: "credential-scan", Outcome: "pass", Detail: "No credentials detected in output."}
}

func checkDestructiveOutput(resultText string) govtypes.Finding {
	var found []string
	for _, p := range destructivePatterns {
		if p.re.MatchString(resultText) {
			found = append(found, p.name)
		}
	}
	if len(found) > 0 {
		return govtypes.Finding{
			Check:            "destructive-output",
			Outcome:          "fail",
			Detail:           fmt.Sprintf("Destructive side-effects detected: %s", strings.Join(found, ", ")),
			RiskContribution: minInt(90, 50+len(found)*15),
		}
	}
	return govtypes.Finding{Check: "destructive-output", Outcome: "pass", Detail: "No destructive patterns detected in output."}
}

func checkScopeCompliance(tool string, result map[string]interface{}, allowedTools []string, originalArgs map[string]interface{}) govtypes.Finding {
	if len(allowedTools) > 0 && !contains(allowedTools, tool) {
		return govtypes.Finding{
			Check:            "scope-compliance",
			Outcome:          "fail",
			Detail:           fmt.Sprintf("Tool '%s' not in allowed_tools after execution — mismatch.", tool),
			RiskContribution: 85,
		}
	}

	if len(originalArgs) > 0 {
		resultText := flattenResult(result)
		originalText := fmt.Sprintf("%v", originalArgs)

		resultPaths := uniqueMatches(scopePathPattern, resultText)
		originalPaths := uniqueMatches(scopePathPattern, originalText)
		suspicious := subtract(resultPaths, originalPaths)

		if len(suspicious) > 0 {
			return govtypes.Finding{
				Check:            "scope-compliance",
				Outcome:          "warn",
				Detail:           fmt.Sprintf("Result references system paths not in original args: %v", suspicious),
				RiskContribution: 40,
			}
		}
	}

	return govtypes.Finding{Check: "scope-compliance", Outcome: "pass", Detail: "Result is consistent with allowed scope."}
}

func checkDiffSize(result map[string]interface{}) govtypes.Finding {
	diffText, _ := result["diff"].(string)
	outputText, _ := result["output"].(string)

	diffLines := 0
	if strings.TrimSpace(diffText) != "" {
		diffLines = len(strings.Split(strings.TrimSpace(diffText), "\n"))
	}
	outputSize := len(outputText)

	if diffLines > 500 {
		return govtypes.Finding{
			Check:            "diff-size",
			Outcome:          "warn",
			Detail:           fmt.Sprintf("Large diff detected: %d lines. May warrant manual review.", diffLines),
			RiskContribution: 30,
		}
	}
	if outputSize > 100_000 {
		return govtypes.Finding{
			Check:            "diff-size",
			Outcome:          "warn",
			Detail:           fmt.Sprintf("Large output detected: %d bytes. May contain exfiltrated data.", outputSize),
			RiskContribution: 25,
		}
	}
	return govtypes.Finding{
		Check:   "diff-size",
		Outcome: "pass",
		Detail:  fmt.Sprintf("Diff: %d lines, output: %d bytes — within normal range.", diffLines, outputSize),
	}
}

func checkResultIntentAlignment(originalDecision string, originalRisk int, tool string, result map[string]interface{}) govtypes.Finding {
	status := strings.ToLower(fmt.Sprintf("%v", result["status"]))
	if result["status"] == nil {
		status = ""
	}
	errText, _ := result["error"].(string)

	if originalDecision == "block" {
		return govtypes.Finding{
			Check:            "intent-alignment",
			Outcome:          "fail",
			Detail:           fmt.Sprintf("Tool '%s' was BLOCKED by governance but agent submitted a result. Agent is executing blocked actions — potential policy bypass.", tool),
			RiskContribution: 95,
		}
	}

	if originalDecision == "review" {
		return govtypes.Finding{
			Check:            "intent-alignment",
			Outcome:          "warn",
			Detail:           fmt.Sprintf("Tool '%s' was flagged for REVIEW. Agent executed without waiting for approval — possible review bypass.", tool),
			RiskContribution: 50,
		}
	}

	if status == "error" && originalRisk < 30 {
		detail := errText
		if detail == "" {
			detail = "unknown"
		}
		if len(detail) > 200 {
			detail = detail[:200]
		}
		return govtypes.Finding{
			Check:            "intent-alignment",
			Outcome:          "warn",
			Detail:           fmt.Sprintf("Low-risk action resulted in error: %s", detail),
			RiskContribution: 10,
		}
	}

	displayStatus := status
	if displayStatus == "" {
		displayStatus = "success"
	}
	return govtypes.Finding{
		Check:   "intent-alignment",
		Outcome: "pass",
		Detail:  fmt.Sprintf("Result status '%s' is consistent with '%s' decision.", displayStatus, originalDecision),
	}
}

func checkOutputInjection(resultText string) govtypes.Finding {
	var found []string
	for _, p := range outputInjectionPatterns {
		if p.re.MatchString(resultText) {
			found = append(found, p.name)
		}
	}
	if len(found) > 0 {
		return govtypes.Finding{
			Check:            "output-injection",
			Outcome:          "fail",
			Detail:           fmt.Sprintf("Prompt injection detected in tool output: %s. The tool may be returning adversarial content.", strings.Join(found, ", ")),
			RiskContribution: minInt(90, 60+len(found)*10),
		}
	}
	return govtypes.Finding{Check: "output-injection", Outcome: "pass", Detail: "No prompt injection patterns detected in output."}
}

// PolicyMatcher is the subset of the policy registry independent_reverify
// needs: the merged policy list and the tool/args match predicate.
type PolicyMatcher interface {
	All(ctx context.Context) []govtypes.Policy
	Matches(p govtypes.Policy, req govtypes.ActionRequest) bool
}

func independentReverify(ctx context.Context, matcher PolicyMatcher, tool string, result map[string]interface{}, originalRisk int) govtypes.Finding {
	synthetic := govtypes.ActionRequest{Tool: tool, Args: result}

	policies := matcher.All(ctx)
	var matched []string
	maxSeverity := 0
	for _, p := range policies {
		if matcher.Matches(p, synthetic) {
			matched = append(matched, p.PolicyID)
			if p.Severity > maxSeverity {
				maxSeverity = p.Severity
			}
		}
	}

	if len(matched) > 0 {
		delta := maxSeverity - originalRisk
		if maxSeverity >= 80 {
			return govtypes.Finding{
				Check: "independent-reverify",
				Outcome: "fail",
				Detail: fmt.Sprintf(
					"Independent re-verification matched %d policies against the tool result: %s. Max severity: %d (original risk: %d, delta: %+d).",
					len(matched), strings.Join(matched, ", "), maxSeverity, originalRisk, delta),
				RiskContribution: maxSeverity,
			}
		}
		return govtypes.Finding{
			Check:            "independent-reverify",
			Outcome:          "warn",
			Detail:           fmt.Sprintf("Re-verification matched %d policies: %s. Severity %d (below block threshold).", len(matched), strings.Join(matched, ", "), maxSeverity),
			RiskContribution: maxInt(0, delta),
		}
	}

	return govtypes.Finding{
		Check:   "independent-reverify",
		Outcome: "pass",
		Detail:  fmt.Sprintf("Re-verified against %d policies — no matches in output.", len(policies)),
	}
}

// DriftComputer is the subset of the drift detector verify depends on.
type DriftComputer interface {
	Compute(ctx context.Context, agentID, sessionID, tool string, result map[string]interface{}) (float64, []govtypes.DriftSignal)
}

// Engine runs the full post-execution verification battery.
type Engine struct {
	policies PolicyMatcher
	drift    DriftComputer
}

// NewEngine wires the verification engine against a policy matcher for
// independent re-verification and a drift computer for cross-session
// behavioural comparison.
func NewEngine(policies PolicyMatcher, drift DriftComputer) *Engine {
	return &Engine{policies: policies, drift: drift}
}

// Input bundles everything verify_execution needs about the original
// decision and the actual execution result.
type Input struct {
	ActionID         int64 `json:"action_id"`
	Tool             string
	Result           map[string]interface{}
	OriginalDecision string `json:"-"`
	OriginalRisk     int    `json:"-"`
	OriginalArgs     map[string]interface{}
	AllowedTools     []string
	AgentID          string
	SessionID        string
}

// Verify runs all 8 checks (7 unconditional + drift when AgentID is set)
// and aggregates them into a VerificationVerdict. Escalated is always
// false here — escalation is decided by an outer caller after the fact.
func (e *Engine) Verify(ctx context.Context, in Input) govtypes.VerificationVerdict {
	resultText := flattenResult(in.Result)

	findings := []govtypes.Finding{
		checkCredentialLeak(resultText),
		checkDestructiveOutput(resultText),
		checkScopeCompliance(in.Tool, in.Result, in.AllowedTools, in.OriginalArgs),
		checkDiffSize(in.Result),
		checkResultIntentAlignment(in.OriginalDecision, in.OriginalRisk, in.Tool, in.Result),
		checkOutputInjection(resultText),
		independentReverify(ctx, e.policies, in.Tool, in.Result, in.OriginalRisk),
	}

	if in.AgentID != "" && e.drift != nil {
		driftScore, signals := e.drift.Compute(ctx, in.AgentID, in.SessionID, in.Tool, in.Result)
		if driftScore >= 0.7 {
			outcome := "warn"
			if driftScore >= 0.85 {
				outcome = "fail"
			}
			var triggered []string
			for _, s := range signals {
				if s.Triggered {
					triggered = append(triggered, s.Name)
				}
			}
			findings = append(findings, govtypes.Finding{
				Check:            "drift-detection",
				Outcome:          outcome,
				Detail:           fmt.Sprintf("Cross-session drift score: %.2f. Signals: %s.", driftScore, strings.Join(triggered, ", ")),
				RiskContribution: int(driftScore * 50),
			})
		} else {
			findings = append(findings, govtypes.Finding{
				Check:   "drift-detection",
				Outcome: "pass",
				Detail:  fmt.Sprintf("Drift score: %.2f — within normal range.", driftScore),
			})
		}
	}

	hasFail, hasWarn, riskDelta := false, false, 0
	for _, f := range findings {
		switch f.Outcome {
		case "fail":
			hasFail = true
			riskDelta += f.RiskContribution
		case "warn":
			hasWarn = true
			riskDelta += f.RiskContribution
		}
	}

	verdict := "compliant"
	if hasFail {
		verdict = "violation"
	} else if hasWarn {
		verdict = "suspicious"
	}

	return govtypes.VerificationVerdict{
		Verdict:   verdict,
		RiskDelta: minInt(100, riskDelta),
		Findings:  findings,
		Escalated: false,
		CreatedAt: time.Now().UTC(),
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func uniqueMatches(re *regexp.Regexp, text string) []string {
	all := re.FindAllString(text, -1)
	seen := map[string]bool{}
	var out []string
	for _, m := range all {
		if !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
	}
	return out
}

func subtract(a, b []string) []string {
	bset := map[string]bool{}
	for _, v := range b {
		bset[v] = true
	}
	var out []string
	for _, v := range a {
		if !bset[v] {
			out = append(out, v)
		}
	}
	return out
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
