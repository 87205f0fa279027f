// Package chain detects multi-step attack patterns across an agent's
// session history: the persistent counterpart to intra-request heuristics,
// evaluated against govtypes.HistoryEntry records already scoped to one
// agent/session by the session package.
package chain

import (
	"fmt"
	"strings"

	"github.com/ocx/backend/internal/govtypes"
)

// Result is the outcome of running the pattern set against a history.
type Result struct {
	Triggered   bool
	Pattern     string
	Description string
	Boost       int
	Evidence    string
}

type pattern struct {
	name        string
	description string
	match       func([]govtypes.HistoryEntry) bool
	boost       int
	minActions  int
}

// patterns is evaluated in descending boost order at call time so the
// most severe matching pattern always wins; a panicking match function
// never aborts the scan as a whole.
var patterns = []pattern{
	{
		name:        "browse-then-exfil",
		description: "External HTTP browsing followed by outbound messaging — possible data exfiltration chain",
		match: func(h []govtypes.HistoryEntry) bool {
			recent := recentTools(h, 6)
			return contains(recent, "http_request") && contains(recent, "messaging_send")
		},
		boost:      35,
		minActions: 2,
	},
	{
		name:        "read-write-exec",
		description: "File read → file write → shell execution — classic lateral movement pattern",
		match: func(h []govtypes.HistoryEntry) bool {
			recent := recentTools(h, 6)
			return contains(recent, "file_read") && contains(recent, "file_write") && contains(recent, "shell")
		},
		boost:      45,
		minActions: 3,
	},
	{
		name:        "repeated-scope-probing",
		description: "Multiple scope violations in this session — agent is probing permission boundaries",
		match: func(h []govtypes.HistoryEntry) bool {
			count := 0
			for _, e := range h {
				if containsSubstring(e.PolicyIDs, "scope-violation") {
					count++
				}
			}
			return count >= 2
		},
		boost:      60,
		minActions: 2,
	},
	{
		name:        "credential-then-http",
		description: "Credential access followed by external HTTP — possible exfiltration in progress",
		match: func(h []govtypes.HistoryEntry) bool {
			policies := recentPolicies(h, 4)
			hasCred := false
			for _, p := range policies {
				if strings.Contains(p, "credential-exfil") {
					hasCred = true
					break
				}
			}
			return hasCred && contains(recentTools(h, 4), "http_request")
		},
		boost:      55,
		minActions: 2,
	},
	{
		name:        "rapid-tool-switching",
		description: "Agent switching between high-risk tool categories rapidly — automated attack pattern",
		match: func(h []govtypes.HistoryEntry) bool {
			highRisk := map[string]bool{"shell": true, "file_write": true, "http_request": true, "messaging_send": true}
			seen := map[string]bool{}
			for _, t := range recentTools(h, 5) {
				if highRisk[t] {
					seen[t] = true
				}
			}
			return len(seen) >= 3
		},
		boost:      30,
		minActions: 3,
	},
	{
		name:        "block-bypass-retry",
		description: "Agent retrying previously blocked tools — attempting to find unguarded execution path",
		match: func(h []govtypes.HistoryEntry) bool {
			recent := lastN(h, 10)
			for _, entry := range recent {
				if entry.Decision != "block" {
					continue
				}
				for _, other := range h {
					if other.Tool == entry.Tool && other.CreatedAt.After(entry.CreatedAt) {
						return true
					}
				}
			}
			return false
		},
		boost:      40,
		minActions: 2,
	},
	{
		name:        "escalating-risk",
		description: "Monotonically increasing risk severity across session — systematic boundary testing",
		match:       matchEscalatingRisk,
		boost:       50,
		minActions:  5,
	},
	{
		name:        "argument-mutation",
		description: "Same tool invoked 4+ times in 8 actions — possible argument mutation to evade policies",
		match:       matchArgumentMutation,
		boost:       45,
		minActions:  4,
	},
	{
		name:        "privilege-chain",
		description: "Credential access followed by elevated tool use — privilege escalation chain",
		match:       matchPrivilegeChain,
		boost:       65,
		minActions:  2,
	},
	{
		name:        "verification-evasion",
		description: "Agent switching to related tools after block — lateral evasion of governance",
		match:       matchVerificationEvasion,
		boost:       55,
		minActions:  3,
	},
	{
		name:        "high-block-rate",
		description: "Over 50% of recent actions blocked — agent persistently violating governance",
		match: func(h []govtypes.HistoryEntry) bool {
			if len(h) < 4 {
				return false
			}
			recent := lastN(h, 8)
			blocks := 0
			for _, e := range recent {
				if e.Decision == "block" {
					blocks++
				}
			}
			denom := len(h)
			if denom > 8 {
				denom = 8
			}
			return float64(blocks)/float64(denom) > 0.5
		},
		boost:      50,
		minActions: 4,
	},
}

func matchEscalatingRisk(h []govtypes.HistoryEntry) bool {
	recent := lastN(h, 6)
	if len(recent) < 5 {
		return false
	}
	severity := map[string]int{"allow": 0, "review": 1, "block": 2}
	scores := make([]int, len(recent))
	for i, e := range recent {
		scores[i] = severity[e.Decision] + len(e.PolicyIDs)
	}
	for i := 1; i < len(scores); i++ {
		if scores[i] < scores[i-1] {
			return false
		}
	}
	return scores[len(scores)-1] > scores[0]
}

func matchArgumentMutation(h []govtypes.HistoryEntry) bool {
	recent := lastN(h, 8)
	if len(recent) < 4 {
		return false
	}
	counts := map[string]int{}
	for _, e := range recent {
		counts[e.Tool]++
	}
	for _, c := range counts {
		if c >= 4 {
			return true
		}
	}
	return false
}

func matchPrivilegeChain(h []govtypes.HistoryEntry) bool {
	recent := lastN(h, 8)
	elevated := map[string]bool{"shell": true, "exec": true, "run_code": true, "file_write": true, "http_request": true}
	credPhase := false
	for _, e := range recent {
		if containsSubstring(e.PolicyIDs, "credential") {
			credPhase = true
		} else if credPhase && elevated[e.Tool] {
			return true
		}
	}
	return false
}

func matchVerificationEvasion(h []govtypes.HistoryEntry) bool {
	recent := lastN(h, 10)
	blockedTools := map[string]bool{}
	for _, e := range recent {
		if e.Decision == "block" {
			blockedTools[e.Tool] = true
		}
	}
	if len(blockedTools) == 0 {
		return false
	}
	families := map[string][]string{
		"shell":           {"exec", "run_code", "subprocess", "system"},
		"exec":            {"shell", "run_code", "subprocess", "system"},
		"file_write":      {"file_append", "file_create", "file_modify"},
		"http_request":    {"browser_open", "fetch", "curl", "wget"},
		"messaging_send":  {"email_send", "slack_post", "notify"},
	}
	for _, e := range recent {
		if e.Decision == "block" {
			continue
		}
		for blocked := range blockedTools {
			for _, t := range families[blocked] {
				if e.Tool == t && e.Tool != blocked {
					return true
				}
			}
		}
	}
	return false
}

// Analyze evaluates every pattern against history in descending-boost order
// and returns the first (highest-severity) match, or Result{Triggered:
// false} if none fires or history is empty. A panicking match function is
// recovered and treated as a non-match so one bad pattern can't abort the
// whole scan.
func Analyze(history []govtypes.HistoryEntry) Result {
	if len(history) == 0 {
		return Result{}
	}

	ordered := make([]pattern, len(patterns))
	copy(ordered, patterns)
	// patterns is already authored in descending-boost order; a stable
	// sort guards against future edits breaking that invariant.
	for i := 1; i < len(ordered); i++ {
		for j := i; j > 0 && ordered[j].boost > ordered[j-1].boost; j-- {
			ordered[j], ordered[j-1] = ordered[j-1], ordered[j]
		}
	}

	for _, p := range ordered {
		if len(history) < p.minActions {
			continue
		}
		if safeMatch(p, history) {
			n := 5
			if len(history) < n {
				n = len(history)
			}
			recent := make([]string, n)
			for i, e := range lastN(history, n) {
				recent[i] = e.Tool
			}
			compactness, editDistance := compactnessScore(recent)
			evidence := fmt.Sprintf("Last %d tools: %s. Session depth: %d actions. Compactness: %.2f (edit distance %d/%d from a clean single-tool run).",
				n, strings.Join(recent, " → "), len(history), compactness, editDistance, n)
			return Result{
				Triggered:   true,
				Pattern:     p.name,
				Description: p.description,
				Boost:       p.boost,
				Evidence:    evidence,
			}
		}
	}

	return Result{}
}

func safeMatch(p pattern, h []govtypes.HistoryEntry) (matched bool) {
	defer func() {
		if recover() != nil {
			matched = false
		}
	}()
	return p.match(h)
}

func recentTools(h []govtypes.HistoryEntry, n int) []string {
	recent := lastN(h, n)
	out := make([]string, len(recent))
	for i, e := range recent {
		out[i] = e.Tool
	}
	return out
}

func recentPolicies(h []govtypes.HistoryEntry, n int) []string {
	recent := lastN(h, n)
	var out []string
	for _, e := range recent {
		out = append(out, e.PolicyIDs...)
	}
	return out
}

func lastN(h []govtypes.HistoryEntry, n int) []govtypes.HistoryEntry {
	if len(h) <= n {
		return h
	}
	return h[len(h)-n:]
}

// compactnessScore measures how close the observed tool sequence is to a
// "clean" run of its single most-frequent tool, via Levenshtein edit
// distance. 1.0 means recent is that dominant tool repeated; 0.0 means the
// sequence is maximally scattered relative to its own length.
func compactnessScore(recent []string) (score float64, editDistance int) {
	if len(recent) == 0 {
		return 1.0, 0
	}
	dominant := dominantTool(recent)
	reference := make([]string, len(recent))
	for i := range reference {
		reference[i] = dominant
	}
	editDistance = levenshteinDistance(recent, reference)
	return 1.0 - float64(editDistance)/float64(len(recent)), editDistance
}

func dominantTool(tools []string) string {
	counts := make(map[string]int, len(tools))
	best, bestCount := tools[0], 0
	for _, t := range tools {
		counts[t]++
		if counts[t] > bestCount {
			best, bestCount = t, counts[t]
		}
	}
	return best
}

// levenshteinDistance computes the edit distance between two string
// sequences via the standard dynamic-programming table.
func levenshteinDistance(a, b []string) int {
	la, lb := len(a), len(b)
	if la == 0 {
		return lb
	}
	if lb == 0 {
		return la
	}

	dp := make([][]int, la+1)
	for i := range dp {
		dp[i] = make([]int, lb+1)
		dp[i][0] = i
	}
	for j := 0; j <= lb; j++ {
		dp[0][j] = j
	}

	for i := 1; i <= la; i++ {
		for j := 1; j <= lb; j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			dp[i][j] = minOf3(dp[i-1][j]+1, dp[i][j-1]+1, dp[i-1][j-1]+cost)
		}
	}
	return dp[la][lb]
}

func minOf3(a, b, c int) int {
	m := a
	if b < m {
		m = b
	}
	if c < m {
		m = c
	}
	return m
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func containsSubstring(list []string, substr string) bool {
	for _, s := range list {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
