package escalation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/ocx/backend/internal/govstore"
	"github.com/ocx/backend/internal/webhooks"
)

// Dispatcher fans escalation notifications out to registered webhook
// subscriptions via a buffered worker pool, signing payloads with
// per-webhook secrets and retrying failed deliveries with backoff.
type Dispatcher struct {
	store      govstore.Store
	httpClient *http.Client
	queue      chan *deliveryJob
	logger     *log.Logger
	wg         sync.WaitGroup
}

type deliveryJob struct {
	webhook govstore.EscalationWebhook
	event   string
	payload map[string]interface{}
	attempt int
}

// NewDispatcher starts a fixed worker pool reading from a 1000-capacity
// delivery queue.
func NewDispatcher(store govstore.Store, workers int) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	d := &Dispatcher{
		store:      store,
		httpClient: &http.Client{Timeout: 5 * time.Second},
		queue:      make(chan *deliveryJob, 1000),
		logger:     log.New(log.Writer(), "[ESCALATION-WEBHOOK] ", log.LstdFlags),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// Dispatch loads all active webhooks and enqueues delivery for every one
// whose event-type flags include eventType. Queueing is non-blocking: a
// full queue drops the event and logs a warning.
func (d *Dispatcher) Dispatch(ctx context.Context, eventType string, payload map[string]interface{}) {
	active, err := d.store.ActiveWebhooks(ctx)
	if err != nil {
		d.logger.Printf("failed to load active webhooks: %v", err)
		return
	}

	for _, wh := range active {
		if !wantsEvent(wh, eventType) {
			continue
		}
		job := &deliveryJob{webhook: wh, event: eventType, payload: payload, attempt: 1}
		select {
		case d.queue <- job:
		default:
			d.logger.Printf("webhook queue full, dropping %s for %s", eventType, wh.ID)
		}
	}
}

func wantsEvent(wh govstore.EscalationWebhook, eventType string) bool {
	switch eventType {
	case "verdict.block":
		return wh.OnBlock
	case "verdict.review":
		return wh.OnReview
	case "auto_kill_switch":
		return wh.OnAutoKS
	default:
		return false
	}
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for job := range d.queue {
		d.deliver(job)
	}
}

func (d *Dispatcher) deliver(job *deliveryJob) {
	body, err := json.Marshal(map[string]interface{}{
		"event":   job.event,
		"payload": job.payload,
	})
	if err != nil {
		d.logger.Printf("failed to marshal escalation payload: %v", err)
		return
	}

	req, err := http.NewRequest(http.MethodPost, job.webhook.URL, bytes.NewReader(body))
	if err != nil {
		d.logger.Printf("failed to build escalation webhook request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-OCG-Event", job.event)
	req.Header.Set("X-OCG-Delivery-Attempt", fmt.Sprintf("%d", job.attempt))
	if job.webhook.AuthHeader != "" {
		req.Header.Set("Authorization", job.webhook.AuthHeader)
	}
	if job.webhook.Secret != "" {
		req.Header.Set("X-OCG-Signature", "sha256="+webhooks.SignPayload(body, job.webhook.Secret))
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		d.retry(job)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		d.logger.Printf("escalation webhook %s returned %d", job.webhook.URL, resp.StatusCode)
		d.retry(job)
	}
}

func (d *Dispatcher) retry(job *deliveryJob) {
	if job.attempt >= 3 {
		d.logger.Printf("escalation webhook %s failed after %d attempts", job.webhook.URL, job.attempt)
		return
	}
	time.Sleep(time.Duration(job.attempt*job.attempt) * time.Second)
	job.attempt++
	select {
	case d.queue <- job:
	default:
	}
}

// Shutdown drains in-flight deliveries and stops the worker pool.
func (d *Dispatcher) Shutdown() {
	close(d.queue)
	d.wg.Wait()
}
