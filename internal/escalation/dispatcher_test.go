package escalation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ocx/backend/internal/govstore"
)

func TestWantsEvent(t *testing.T) {
	wh := govstore.EscalationWebhook{OnBlock: true, OnReview: false, OnAutoKS: true}

	assert.True(t, wantsEvent(wh, "verdict.block"))
	assert.False(t, wantsEvent(wh, "verdict.review"))
	assert.True(t, wantsEvent(wh, "auto_kill_switch"))
	assert.False(t, wantsEvent(wh, "unknown.event"))
}

func TestDispatch_NoActiveWebhooksIsNoop(t *testing.T) {
	store := govstore.NewMemoryStore()
	d := NewDispatcher(store, 1)
	defer d.Shutdown()

	d.Dispatch(context.Background(), "verdict.block", map[string]interface{}{"tool": "send_email"})
}
