package verify

import (
	"context"
	"math"
	"time"

	"github.com/ocx/backend/internal/govtypes"
)

const (
	baselineWindow     = 7 * 24 * time.Hour
	minBaselineActions = 10
	currentWindow      = 120 * time.Minute
)

// HistorySource is satisfied by govstore.Store for the drift detector's
// baseline and current-window queries.
type HistorySource interface {
	HistorySince(ctx context.Context, agentID string, since, until time.Time) ([]govtypes.HistoryEntry, error)
}

// Drift computes cross-session behavioural drift: whether an agent's recent
// activity deviates from its own 7-day baseline across five weighted signals.
type Drift struct {
	store HistorySource
}

// NewDrift wires the drift detector against a history-capable store.
func NewDrift(store HistorySource) *Drift {
	return &Drift{store: store}
}

// Compute satisfies verify.DriftComputer.
func (d *Drift) Compute(ctx context.Context, agentID, sessionID, tool string, result map[string]interface{}) (float64, []govtypes.DriftSignal) {
	now := time.Now().UTC()
	currentStart := now.Add(-currentWindow)
	baselineStart := now.Add(-baselineWindow)

	baseline, err := d.store.HistorySince(ctx, agentID, baselineStart, currentStart)
	if err != nil {
		baseline = nil
	}
	current, err := d.store.HistorySince(ctx, agentID, currentStart, now)
	if err != nil {
		current = nil
	}

	if len(baseline) < minBaselineActions {
		return 0.0, []govtypes.DriftSignal{{
			Name:        "insufficient-baseline",
			Description: "Not enough baseline history to compute drift.",
			Weight:      1.0,
			Triggered:   false,
			Value:       0.0,
			Detail:      "Fewer than 10 baseline actions in the last 7 days.",
		}}
	}

	signals := []govtypes.DriftSignal{
		toolDistributionSignal(baseline, current),
		riskProfileSignal(baseline, current),
		operatingHoursSignal(baseline, current, now),
		actionVelocitySignal(baseline, current),
		scopeExpansionSignal(baseline, tool),
	}

	total := 0.0
	for _, s := range signals {
		total += s.Value * s.Weight
	}
	return math.Min(1.0, total), signals
}

func toolDistributionSignal(baseline, current []govtypes.HistoryEntry) govtypes.DriftSignal {
	baseDist := toolFrequencies(baseline)
	curDist := toolFrequencies(current)

	divergence := jensenShannonLike(baseDist, curDist)

	newTool := 0.0
	for t := range curDist {
		if _, ok := baseDist[t]; !ok {
			newTool = 0.2
			break
		}
	}

	value := math.Min(1.0, divergence+newTool)
	return govtypes.DriftSignal{
		Name:        "tool-distribution",
		Description: "Shift in the mix of tools invoked versus baseline.",
		Weight:      0.30,
		Triggered:   value >= 0.4,
		Value:       value,
		Detail:      "Jensen-Shannon-like divergence between current and baseline tool usage.",
	}
}

func riskProfileSignal(baseline, current []govtypes.HistoryEntry) govtypes.DriftSignal {
	baseRisk, baseBlockRate := riskStats(baseline)
	curRisk, curBlockRate := riskStats(current)

	riskDelta := math.Abs(curRisk-baseRisk) / 30.0
	blockDelta := math.Abs(curBlockRate-baseBlockRate) / 0.20

	value := math.Min(1.0, math.Max(riskDelta, blockDelta))
	return govtypes.DriftSignal{
		Name:        "risk-profile",
		Description: "Change in average risk score and block rate versus baseline.",
		Weight:      0.25,
		Triggered:   value >= 0.4,
		Value:       value,
		Detail:      "Worst-case of normalized mean risk_score delta (/30) and block rate delta (/0.20).",
	}
}

func operatingHoursSignal(baseline, current []govtypes.HistoryEntry, now time.Time) govtypes.DriftSignal {
	baseHours := hourFrequencies(baseline)
	curHour := now.Hour()

	freq := baseHours[curHour]
	var value float64
	switch {
	case freq < 0.02:
		value = 0.8
	case freq < 0.05:
		value = 0.4
	default:
		value = 0.0
	}

	return govtypes.DriftSignal{
		Name:        "operating-hours",
		Description: "Activity at an hour the agent rarely operates in.",
		Weight:      0.15,
		Triggered:   value >= 0.4,
		Value:       value,
		Detail:      "Current-hour frequency compared against the baseline hour-of-day histogram.",
	}
}

func actionVelocitySignal(baseline, current []govtypes.HistoryEntry) govtypes.DriftSignal {
	baselineRate := float64(len(baseline)) / (baselineWindow.Hours())
	currentRate := float64(len(current)) / (currentWindow.Hours())

	var value float64
	if baselineRate > 0 {
		ratio := currentRate / baselineRate
		switch {
		case ratio >= 5:
			value = 0.9
		case ratio >= 3:
			value = 0.6
		case ratio >= 2:
			value = 0.3
		default:
			value = 0.0
		}
	} else if currentRate > 0 {
		value = 0.9
	}

	return govtypes.DriftSignal{
		Name:        "action-velocity",
		Description: "Spike in action rate relative to baseline.",
		Weight:      0.15,
		Triggered:   value >= 0.4,
		Value:       value,
		Detail:      "Current actions/hour versus the 7-day baseline rate.",
	}
}

func scopeExpansionSignal(baseline []govtypes.HistoryEntry, tool string) govtypes.DriftSignal {
	seen := false
	for _, e := range baseline {
		if e.Tool == tool {
			seen = true
			break
		}
	}
	value := 0.0
	if !seen {
		value = 0.7
	}
	return govtypes.DriftSignal{
		Name:        "scope-expansion",
		Description: "Tool never used in this agent's baseline history.",
		Weight:      0.15,
		Triggered:   value >= 0.4,
		Value:       value,
		Detail:      "Binary signal: current tool absent from baseline tool set.",
	}
}

func toolFrequencies(entries []govtypes.HistoryEntry) map[string]float64 {
	counts := map[string]int{}
	for _, e := range entries {
		counts[e.Tool]++
	}
	total := len(entries)
	freq := make(map[string]float64, len(counts))
	if total == 0 {
		return freq
	}
	for t, c := range counts {
		freq[t] = float64(c) / float64(total)
	}
	return freq
}

// jensenShannonLike approximates JS divergence over the union of tool keys.
func jensenShannonLike(p, q map[string]float64) float64 {
	keys := map[string]bool{}
	for k := range p {
		keys[k] = true
	}
	for k := range q {
		keys[k] = true
	}
	if len(keys) == 0 {
		return 0.0
	}

	var sum float64
	for k := range keys {
		sum += math.Abs(p[k] - q[k])
	}
	return math.Min(1.0, sum/2.0)
}

func riskStats(entries []govtypes.HistoryEntry) (avgRisk, blockRate float64) {
	if len(entries) == 0 {
		return 0, 0
	}
	var totalRisk int
	var blocks int
	for _, e := range entries {
		totalRisk += e.RiskScore
		if e.Decision == "block" {
			blocks++
		}
	}
	return float64(totalRisk) / float64(len(entries)), float64(blocks) / float64(len(entries))
}

func hourFrequencies(entries []govtypes.HistoryEntry) map[int]float64 {
	counts := map[int]int{}
	for _, e := range entries {
		counts[e.CreatedAt.Hour()]++
	}
	total := len(entries)
	freq := make(map[int]float64, len(counts))
	if total == 0 {
		return freq
	}
	for h, c := range counts {
		freq[h] = float64(c) / float64(total)
	}
	return freq
}
