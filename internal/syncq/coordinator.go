package syncq

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/logging"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/retry"
)

// Notifier receives the completion notice broadcast to connected clients.
type Notifier interface {
	SyncCompleted(timestamp time.Time)
}

// batch is the wire body of one drain cycle.
type batch struct {
	Items     []Item `json:"items"`
	Timestamp int64  `json:"timestamp"`
}

// drainRun is one in-flight drain; ok is written before done is closed.
type drainRun struct {
	done chan struct{}
	ok   bool
}

// Coordinator drains the pending queue to the remote sync endpoint. It owns
// the queue exclusively and moves Idle -> Draining -> Idle per trigger; a
// trigger arriving mid-drain is absorbed by the drain already underway and
// reports that drain's outcome.
type Coordinator struct {
	queue       Queue
	endpoint    string
	client      *http.Client
	engine      *retry.Engine
	maxAttempts int
	notifier    Notifier

	mu       sync.Mutex
	inflight *drainRun
}

// NewCoordinator creates a coordinator posting to the absolute endpoint URL.
// notifier may be nil.
func NewCoordinator(queue Queue, endpoint string, engine *retry.Engine, maxAttempts int, notifier Notifier) *Coordinator {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Coordinator{
		queue:       queue,
		endpoint:    endpoint,
		client:      &http.Client{Timeout: 30 * time.Second},
		engine:      engine,
		maxAttempts: maxAttempts,
		notifier:    notifier,
	}
}

// Size reports the number of pending items.
func (c *Coordinator) Size(ctx context.Context) (int, error) {
	return c.queue.Size(ctx)
}

// Enqueue appends a pending write. Producers call this while offline; the
// item survives until a drain confirms remote acceptance.
func (c *Coordinator) Enqueue(ctx context.Context, item Item) error {
	return c.queue.Enqueue(ctx, item)
}

// Drain submits the entire queue as one batch through the retry engine.
// An empty queue reports success trivially. On success the queue is cleared
// and clients are notified; on exhaustion the queue is left untouched so the
// next trigger retries the same batch. Concurrent triggers collapse: only
// one drain runs at a time, and a trigger arriving mid-drain waits for the
// one underway and returns its outcome. The remote endpoint is expected to
// be idempotent per batch.
func (c *Coordinator) Drain(ctx context.Context) bool {
	c.mu.Lock()
	if r := c.inflight; r != nil {
		c.mu.Unlock()
		<-r.done
		return r.ok
	}
	run := &drainRun{done: make(chan struct{})}
	c.inflight = run
	c.mu.Unlock()

	run.ok = c.drain(ctx)

	c.mu.Lock()
	c.inflight = nil
	c.mu.Unlock()
	close(run.done)
	return run.ok
}

func (c *Coordinator) drain(ctx context.Context) bool {
	items, err := c.queue.Items(ctx)
	if err != nil {
		logging.Errorf("sync: read queue: %v", err)
		return false
	}
	if len(items) == 0 {
		return true
	}

	body, err := json.Marshal(batch{Items: items, Timestamp: time.Now().UnixMilli()})
	if err != nil {
		logging.Errorf("sync: encode batch: %v", err)
		return false
	}

	ok := c.engine.Do(ctx, func(ctx context.Context) error {
		return c.post(ctx, body)
	}, c.maxAttempts)
	if !ok {
		logging.Warnf("sync: drain exhausted, %d items retained", len(items))
		return false
	}

	if err := c.queue.Clear(ctx); err != nil {
		// The remote accepted the batch; a clear failure means the next
		// drain resubmits it, which the idempotence contract covers.
		logging.Errorf("sync: clear queue after success: %v", err)
	}
	completed := time.Now()
	logging.Infof("sync: drained %d items", len(items))
	if c.notifier != nil {
		c.notifier.SyncCompleted(completed)
	}
	return true
}

func (c *Coordinator) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create sync request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &retry.StatusError{Status: resp.StatusCode}
	}
	return nil
}
