// Package govevents is an in-process CloudEvents-shaped pub/sub broadcast
// bus: governance decisions and escalations are published here for
// operator dashboards and other real-time consumers to subscribe to.
package govevents

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"
)

// BufferSize bounds each subscriber's queue; a full queue silently drops
// the event rather than blocking the publisher.
const BufferSize = 256

// HeartbeatInterval is how often a stream consumer should emit a keep-alive
// comment while idling between events.
const HeartbeatInterval = 15 * time.Second

// CloudEvent is the CloudEvents 1.0 envelope used for every published event.
type CloudEvent struct {
	SpecVersion string                 `json:"specversion"`
	Type        string                 `json:"type"`
	Source      string                 `json:"source"`
	ID          string                 `json:"id"`
	Time        time.Time              `json:"time"`
	Subject     string                 `json:"subject,omitempty"`
	Data        map[string]interface{} `json:"data"`
}

// NewCloudEvent builds a CloudEvents 1.0 compliant event.
func NewCloudEvent(eventType, source, subject string, data map[string]interface{}) *CloudEvent {
	return &CloudEvent{
		SpecVersion: "1.0",
		Type:        eventType,
		Source:      source,
		ID:          fmt.Sprintf("ce-%d", time.Now().UnixNano()),
		Time:        time.Now().UTC(),
		Subject:     subject,
		Data:        data,
	}
}

// JSON serializes the event.
func (ce *CloudEvent) JSON() ([]byte, error) {
	return json.Marshal(ce)
}

// SSEFormat renders the event as a Server-Sent Events frame.
func (ce *CloudEvent) SSEFormat() ([]byte, error) {
	data, err := json.Marshal(ce)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("event: %s\ndata: %s\nid: %s\n\n", ce.Type, data, ce.ID)), nil
}

// HeartbeatFrame is the keep-alive comment a stream consumer sends every
// HeartbeatInterval while no event has been published.
func HeartbeatFrame() []byte {
	return []byte(": keep-alive\n\n")
}

// PublishRecorder receives a callback for every publish attempt, win or
// drop. *govmetrics.Metrics satisfies this structurally without either
// package importing the other.
type PublishRecorder interface {
	OnPublished(eventType string)
	OnDropped(eventType string)
}

// Bus is an in-process pub/sub broadcaster. Every evaluation decision and
// escalation is published here; subscribers never block the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]chan *CloudEvent
	allSubs     []chan *CloudEvent
	logger      *log.Logger
	recorder    PublishRecorder
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{
		subscribers: make(map[string][]chan *CloudEvent),
		logger:      log.New(log.Writer(), "[GOVEVENTS] ", log.LstdFlags),
	}
}

// SetRecorder wires an optional metrics recorder; nil disables recording.
func (b *Bus) SetRecorder(recorder PublishRecorder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.recorder = recorder
}

// Subscribe creates a BufferSize-capacity channel receiving events of the
// given types; an empty eventTypes subscribes to every event.
func (b *Bus) Subscribe(eventTypes ...string) chan *CloudEvent {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan *CloudEvent, BufferSize)
	if len(eventTypes) == 0 {
		b.allSubs = append(b.allSubs, ch)
		return ch
	}
	for _, et := range eventTypes {
		b.subscribers[et] = append(b.subscribers[et], ch)
	}
	return ch
}

// Unsubscribe removes and closes ch. Idempotent: unsubscribing a channel
// that isn't registered (or was already removed) is a no-op.
func (b *Bus) Unsubscribe(ch chan *CloudEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()

	found := false
	for et, subs := range b.subscribers {
		filtered := subs[:0:0]
		for _, s := range subs {
			if s == ch {
				found = true
				continue
			}
			filtered = append(filtered, s)
		}
		b.subscribers[et] = filtered
	}

	filtered := b.allSubs[:0:0]
	for _, s := range b.allSubs {
		if s == ch {
			found = true
			continue
		}
		filtered = append(filtered, s)
	}
	b.allSubs = filtered

	if found {
		close(ch)
	}
}

// Publish delivers event to every matching subscriber without blocking; a
// full subscriber queue drops the event.
func (b *Bus) Publish(event *CloudEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers[event.Type] {
		select {
		case ch <- event:
			b.record(event.Type, true)
		default:
			b.logger.Printf("subscriber queue full, dropping %s", event.Type)
			b.record(event.Type, false)
		}
	}
	for _, ch := range b.allSubs {
		select {
		case ch <- event:
			b.record(event.Type, true)
		default:
			b.logger.Printf("subscriber queue full, dropping %s", event.Type)
			b.record(event.Type, false)
		}
	}
}

func (b *Bus) record(eventType string, published bool) {
	if b.recorder == nil {
		return
	}
	if published {
		b.recorder.OnPublished(eventType)
	} else {
		b.recorder.OnDropped(eventType)
	}
}

// Emit builds and publishes a CloudEvent in one call, satisfying the
// escalation engine's Publisher interface.
func (b *Bus) Emit(eventType, source, subject string, data map[string]interface{}) {
	b.Publish(NewCloudEvent(eventType, source, subject, data))
}

// SubscriberCount returns the total number of active subscriber channels.
func (b *Bus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	count := len(b.allSubs)
	for _, subs := range b.subscribers {
		count += len(subs)
	}
	return count
}
