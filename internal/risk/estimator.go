// Package risk implements the heuristic neuro-risk estimator: a 0-100
// score derived from tool class, payload keywords, and recipient
// cardinality, independent of the policy engine's matched severities.
package risk

import (
	"fmt"
	"strings"

	"github.com/ocx/backend/internal/govtypes"
)

// sensitiveKeywords raise the risk baseline when found in the flattened
// action payload.
var sensitiveKeywords = []string{
	"delete", "destroy", "wipe", "format", "shutdown",
	"privileged", "root", "sudo", "credential", "api key",
	"secret", "password", "private key", "access token",
}

var highRiskTools = map[string]bool{
	"shell": true, "exec": true, "run_code": true,
}

var mediumRiskTools = map[string]bool{
	"http_request": true, "browser_open": true, "file_write": true,
}

// EstimateNeural returns a 0-100 heuristic risk score for req, combining a
// tool-class baseline, recipient-cardinality check, and keyword scan. The
// final score is the max of all contributing baselines, never a sum.
func EstimateNeural(req govtypes.ActionRequest) int {
	base := 0

	switch {
	case highRiskTools[req.Tool]:
		base = max(base, 40)
	case strings.HasPrefix(req.Tool, "surge_"):
		base = max(base, 70)
	case mediumRiskTools[req.Tool]:
		base = max(base, 20)
	}

	payload := strings.ToLower(fmt.Sprintf("%s %v %v", req.Tool, req.Args, req.Context))

	recipients := 0
	for _, key := range []string{"to", "cc", "bcc", "recipients"} {
		val, ok := req.Args[key]
		if !ok {
			continue
		}
		switch v := val.(type) {
		case []interface{}:
			recipients += len(v)
		case []string:
			recipients += len(v)
		case string:
			if v != "" {
				recipients++
			}
		}
	}

	if recipients >= 50 {
		base = max(base, 80)
	} else if recipients >= 10 {
		base = max(base, 60)
	}

	hits := 0
	for _, kw := range sensitiveKeywords {
		if strings.Contains(payload, kw) {
			hits++
		}
	}
	if hits >= 3 {
		base = max(base, 80)
	} else if hits >= 1 {
		base = max(base, 60)
	}

	if base < 0 {
		return 0
	}
	if base > 100 {
		return 100
	}
	return base
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}
