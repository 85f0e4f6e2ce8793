// Package lifecycle tracks detached background work so an event's processing
// lifetime extends until all of its asynchronous side effects finish.
package lifecycle

import (
	"sync"
	"time"

	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/logging"
)

// Tracker extends the host's lifetime over fire-and-forget work: background
// cache refreshes, trims, notification side effects. The request path spawns
// work through Go and never joins it; shutdown waits for the whole set.
type Tracker struct {
	wg sync.WaitGroup
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Go runs fn on its own goroutine with a terminal error boundary: a panic in
// detached work is logged and swallowed, it must never take down the host or
// leak into the path that spawned it.
func (t *Tracker) Go(name string, fn func()) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				logging.Errorf("background %s panicked: %v", name, r)
			}
		}()
		fn()
	}()
}

// Wait blocks until all tracked work has finished.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

// WaitTimeout waits for tracked work up to d and reports whether everything
// finished in time.
func (t *Tracker) WaitTimeout(d time.Duration) bool {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(d):
		return false
	}
}
