package syncq

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/db"
	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/retry"
)

func noSleep() *retry.Engine {
	return retry.NewWithSleep(func(context.Context, time.Duration) error { return nil })
}

type recordingNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *recordingNotifier) SyncCompleted(time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.calls
}

func item(id, payload string) Item {
	return Item{ID: id, Payload: json.RawMessage(payload), CreatedAt: time.Now()}
}

func TestDrainEmptyQueue(t *testing.T) {
	c := NewCoordinator(NewMemoryQueue(), "http://unreachable.invalid/api/sync", noSleep(), 3, nil)
	if !c.Drain(context.Background()) {
		t.Error("draining an empty queue should succeed trivially")
	}
}

func TestDrainPostsBatchAndClears(t *testing.T) {
	ctx := context.Background()

	var (
		mu     sync.Mutex
		bodies []batch
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var b batch
		if err := json.Unmarshal(raw, &b); err != nil {
			t.Errorf("batch body not valid JSON: %v", err)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("Content-Type = %q", ct)
		}
		mu.Lock()
		bodies = append(bodies, b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	q := NewMemoryQueue()
	q.Enqueue(ctx, item("a", `{"plate":"京A12345"}`))
	q.Enqueue(ctx, item("b", `{"plate":"京B67890"}`))

	notifier := &recordingNotifier{}
	c := NewCoordinator(q, srv.URL, noSleep(), 3, notifier)

	if !c.Drain(ctx) {
		t.Fatal("drain failed against a healthy endpoint")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(bodies) != 1 {
		t.Fatalf("endpoint hit %d times, want 1", len(bodies))
	}
	if len(bodies[0].Items) != 2 || bodies[0].Items[0].ID != "a" || bodies[0].Items[1].ID != "b" {
		t.Errorf("batch items = %+v, want a then b", bodies[0].Items)
	}
	if bodies[0].Timestamp == 0 {
		t.Error("batch missing timestamp")
	}
	if n, _ := q.Size(ctx); n != 0 {
		t.Errorf("queue size after success = %d, want 0", n)
	}
	if notifier.count() != 1 {
		t.Errorf("notifier called %d times, want 1", notifier.count())
	}
}

func TestDrainRetriesThenSucceeds(t *testing.T) {
	ctx := context.Background()

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		if hits < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	q := NewMemoryQueue()
	q.Enqueue(ctx, item("a", `{}`))
	c := NewCoordinator(q, srv.URL, noSleep(), 3, nil)

	if !c.Drain(ctx) {
		t.Fatal("drain should succeed on the third attempt")
	}
	if hits != 3 {
		t.Errorf("endpoint hit %d times, want 3", hits)
	}
	if n, _ := q.Size(ctx); n != 0 {
		t.Errorf("queue size = %d, want 0", n)
	}
}

func TestDrainExhaustionRetainsQueue(t *testing.T) {
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	q := NewMemoryQueue()
	q.Enqueue(ctx, item("a", `{}`))
	q.Enqueue(ctx, item("b", `{}`))

	notifier := &recordingNotifier{}
	c := NewCoordinator(q, srv.URL, noSleep(), 3, notifier)

	if c.Drain(ctx) {
		t.Fatal("drain reported success against a dead endpoint")
	}
	if n, _ := q.Size(ctx); n != 2 {
		t.Errorf("queue size after exhaustion = %d, want 2 (retained)", n)
	}
	if notifier.count() != 0 {
		t.Error("notifier fired on a failed drain")
	}
}

func TestDrainTerminalClientError(t *testing.T) {
	ctx := context.Background()

	var hits int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	q := NewMemoryQueue()
	q.Enqueue(ctx, item("a", `{}`))
	c := NewCoordinator(q, srv.URL, noSleep(), 3, nil)

	if c.Drain(ctx) {
		t.Fatal("drain reported success on a 400")
	}
	if hits != 1 {
		t.Errorf("endpoint hit %d times for a terminal status, want 1", hits)
	}
	if n, _ := q.Size(ctx); n != 1 {
		t.Errorf("queue size = %d, want 1", n)
	}
}

func TestConcurrentTriggersCollapseToOneDrain(t *testing.T) {
	ctx := context.Background()

	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		<-release
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	q := NewMemoryQueue()
	q.Enqueue(ctx, item("a", `{}`))
	c := NewCoordinator(q, srv.URL, noSleep(), 3, nil)

	results := make([]bool, 5)
	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Drain(ctx)
		}(i)
	}

	// Hold the endpoint until the first drain is in flight so the other
	// triggers arrive mid-drain.
	for hits.Load() == 0 {
		time.Sleep(time.Millisecond)
	}
	close(release)
	wg.Wait()

	if got := hits.Load(); got != 1 {
		t.Errorf("endpoint hit %d times for 5 concurrent triggers, want 1", got)
	}
	for i, ok := range results {
		if !ok {
			t.Errorf("trigger %d reported failure for a successful drain", i)
		}
	}
	if n, _ := q.Size(ctx); n != 0 {
		t.Errorf("queue size = %d, want 0", n)
	}
}

func TestMidDrainTriggerReportsInflightOutcome(t *testing.T) {
	ctx := context.Background()

	var hits atomic.Int32
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			<-release
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	q := NewMemoryQueue()
	q.Enqueue(ctx, item("a", `{}`))
	c := NewCoordinator(q, srv.URL, noSleep(), 3, nil)

	first := make(chan bool, 1)
	go func() { first <- c.Drain(ctx) }()
	for hits.Load() == 0 {
		time.Sleep(time.Millisecond)
	}

	// The first drain is parked on the endpoint; this trigger must not
	// report success for a drain that is about to exhaust.
	second := make(chan bool, 1)
	go func() { second <- c.Drain(ctx) }()
	close(release)

	if <-first {
		t.Error("first drain succeeded against a failing endpoint")
	}
	if <-second {
		t.Error("mid-drain trigger reported success for an exhausted drain")
	}
	if n, _ := q.Size(ctx); n != 1 {
		t.Errorf("queue size = %d, want 1 (retained)", n)
	}
}

func TestSQLiteQueueOrderAndClear(t *testing.T) {
	ctx := context.Background()
	conn, err := db.Open(filepath.Join(t.TempDir(), "agent.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer conn.Close()

	q := NewSQLiteQueue(conn)
	for _, id := range []string{"first", "second", "third"} {
		if err := q.Enqueue(ctx, item(id, `{"n":1}`)); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	items, err := q.Items(ctx)
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	if len(items) != 3 || items[0].ID != "first" || items[2].ID != "third" {
		t.Fatalf("items out of order: %+v", items)
	}
	if string(items[0].Payload) != `{"n":1}` {
		t.Errorf("payload round trip = %s", items[0].Payload)
	}

	if err := q.Clear(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if n, _ := q.Size(ctx); n != 0 {
		t.Errorf("size after clear = %d", n)
	}
}
