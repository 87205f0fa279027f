package risk

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ocx/backend/internal/govtypes"
)

func TestEstimateNeural_BenignActionIsZero(t *testing.T) {
	score := EstimateNeural(govtypes.ActionRequest{Tool: "read_file", Args: map[string]interface{}{"path": "/tmp/a.txt"}})
	assert.Equal(t, 0, score)
}

func TestEstimateNeural_HighRiskToolBaseline(t *testing.T) {
	score := EstimateNeural(govtypes.ActionRequest{Tool: "shell"})
	assert.Equal(t, 40, score)
}

func TestEstimateNeural_SurgePrefixedToolBaseline(t *testing.T) {
	score := EstimateNeural(govtypes.ActionRequest{Tool: "surge_deploy"})
	assert.Equal(t, 70, score)
}

func TestEstimateNeural_MassRecipientsRaisesRisk(t *testing.T) {
	recipients := make([]interface{}, 60)
	score := EstimateNeural(govtypes.ActionRequest{
		Tool: "messaging_send",
		Args: map[string]interface{}{"to": recipients},
	})
	assert.Equal(t, 80, score)
}

func TestEstimateNeural_SensitiveKeywordsCompound(t *testing.T) {
	score := EstimateNeural(govtypes.ActionRequest{
		Tool: "read_file",
		Args: map[string]interface{}{"note": "delete root credential for this sudo user"},
	})
	assert.Equal(t, 80, score)
}

func TestEstimateNeural_SingleKeywordHitIsModerate(t *testing.T) {
	score := EstimateNeural(govtypes.ActionRequest{
		Tool: "read_file",
		Args: map[string]interface{}{"note": "delete the temp cache"},
	})
	assert.Equal(t, 60, score)
}

func TestEstimateNeural_ScoreIsMaxNotSum(t *testing.T) {
	score := EstimateNeural(govtypes.ActionRequest{
		Tool: "shell",
		Args: map[string]interface{}{"note": "delete the temp cache"},
	})
	// high-risk tool baseline (40) and a single keyword hit (60) — max wins, not 100.
	assert.Equal(t, 60, score)
}
