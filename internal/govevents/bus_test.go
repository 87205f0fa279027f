package govevents

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	mu       sync.Mutex
	published []string
	dropped   []string
}

func (f *fakeRecorder) OnPublished(eventType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, eventType)
}

func (f *fakeRecorder) OnDropped(eventType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped = append(f.dropped, eventType)
}

func TestBus_SubscribeAndPublishByType(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe("governor.decision")

	bus.Emit("governor.decision", "/govern/evaluate", "send_email", map[string]interface{}{"decision": "allow"})

	select {
	case event := <-ch:
		assert.Equal(t, "governor.decision", event.Type)
		assert.Equal(t, "send_email", event.Subject)
	default:
		t.Fatal("expected an event on the subscriber channel")
	}
}

func TestBus_SubscribeAllReceivesEveryType(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe()

	bus.Emit("auto_kill_switch", "governor", "agent-1", nil)

	select {
	case event := <-ch:
		assert.Equal(t, "auto_kill_switch", event.Type)
	default:
		t.Fatal("expected an event on the wildcard subscriber channel")
	}
}

func TestBus_UnsubscribeIsIdempotent(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe("governor.decision")

	bus.Unsubscribe(ch)
	assert.Equal(t, 0, bus.SubscriberCount())

	assert.NotPanics(t, func() { bus.Unsubscribe(ch) })
}

func TestBus_PublishDropsOnFullQueue(t *testing.T) {
	bus := NewBus()
	ch := bus.Subscribe("governor.decision")

	for i := 0; i < BufferSize; i++ {
		bus.Emit("governor.decision", "src", "subj", nil)
	}
	// the channel's buffer is now full; the next publish must drop rather
	// than block.
	bus.Emit("governor.decision", "src", "subj", nil)

	assert.Len(t, ch, BufferSize)
}

func TestBus_RecorderObservesPublishAndDrop(t *testing.T) {
	bus := NewBus()
	recorder := &fakeRecorder{}
	bus.SetRecorder(recorder)

	ch := bus.Subscribe("governor.decision")
	for i := 0; i < BufferSize+1; i++ {
		bus.Emit("governor.decision", "src", "subj", nil)
	}
	_ = ch

	recorder.mu.Lock()
	defer recorder.mu.Unlock()
	require.NotEmpty(t, recorder.published)
	require.NotEmpty(t, recorder.dropped)
}

func TestCloudEvent_SSEFormat(t *testing.T) {
	event := NewCloudEvent("governor.decision", "/govern/evaluate", "send_email", map[string]interface{}{"decision": "allow"})
	frame, err := event.SSEFormat()
	require.NoError(t, err)
	assert.Contains(t, string(frame), "event: governor.decision")
	assert.Contains(t, string(frame), "id: "+event.ID)
}
