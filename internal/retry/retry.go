// Package retry wraps outbound calls with bounded exponential backoff.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	"github.com/vipwangxiaofeng/parking-reminder.github.io/internal/logging"
)

// StatusError reports a non-2xx HTTP outcome so the engine can classify it.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Status)
}

// Retryable reports whether an error is worth another attempt: server-side
// statuses (>=500), request timeout (408), and timeout/abort/network-class
// failures. Everything else (other 4xx, cancellation, logic errors) is
// terminal and short-circuits.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status >= 500 || se.Status == 408
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ue *url.Error
	if errors.As(err, &ue) {
		return true
	}
	return false
}

// Engine retries operations with 2^attempt second backoff. The zero value is
// not usable; construct with New.
type Engine struct {
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates an engine that sleeps on the wall clock between attempts.
func New() *Engine {
	return &Engine{sleep: sleepCtx}
}

// NewWithSleep creates an engine with a custom sleep function (tests).
func NewWithSleep(sleep func(ctx context.Context, d time.Duration) error) *Engine {
	return &Engine{sleep: sleep}
}

// Do attempts op up to maxAttempts times, sleeping 2^attempt seconds after
// each retryable failure (attempt counting from 1). It never panics and
// never returns an error: exhaustion is a normal false.
func (e *Engine) Do(ctx context.Context, op func(ctx context.Context) error, maxAttempts int) bool {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		err := func() (opErr error) {
			defer func() {
				if r := recover(); r != nil {
					opErr = fmt.Errorf("operation panic: %v", r)
				}
			}()
			return op(ctx)
		}()
		if err == nil {
			return true
		}
		if !Retryable(err) {
			logging.Warnf("retry: terminal failure on attempt %d: %v", attempt, err)
			return false
		}
		if attempt == maxAttempts {
			logging.Warnf("retry: exhausted after %d attempts: %v", attempt, err)
			return false
		}
		delay := Backoff(attempt)
		logging.Infof("retry: attempt %d failed (%v), next in %s", attempt, err, delay)
		if e.sleep(ctx, delay) != nil {
			return false
		}
	}
	return false
}

// Backoff returns the delay after the given attempt number: 2^attempt seconds.
func Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 30 {
		attempt = 30
	}
	return time.Duration(1<<uint(attempt)) * time.Second
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
