package retry

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"
)

type fakeClock struct {
	delays []time.Duration
}

func (f *fakeClock) sleep(_ context.Context, d time.Duration) error {
	f.delays = append(f.delays, d)
	return nil
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"status 500", &StatusError{Status: 500}, true},
		{"status 503", &StatusError{Status: 503}, true},
		{"status 408", &StatusError{Status: 408}, true},
		{"status 404", &StatusError{Status: 404}, false},
		{"status 401", &StatusError{Status: 401}, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"url error", &url.Error{Op: "Get", URL: "http://x", Err: errors.New("refused")}, true},
		{"plain error", errors.New("bad input"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Retryable(tt.err); got != tt.want {
				t.Errorf("Retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{0, 2 * time.Second},
	}
	for _, tt := range tests {
		if got := Backoff(tt.attempt); got != tt.want {
			t.Errorf("Backoff(%d) = %s, want %s", tt.attempt, got, tt.want)
		}
	}
}

func TestDoExhaustsWithBackoff(t *testing.T) {
	clock := &fakeClock{}
	e := NewWithSleep(clock.sleep)

	calls := 0
	ok := e.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &StatusError{Status: 503}
	}, 3)

	if ok {
		t.Error("Do returned success for an always-failing op")
	}
	if calls != 3 {
		t.Errorf("op called %d times, want 3", calls)
	}
	want := []time.Duration{2 * time.Second, 4 * time.Second}
	if len(clock.delays) != len(want) {
		t.Fatalf("slept %d times (%v), want %d", len(clock.delays), clock.delays, len(want))
	}
	for i := range want {
		if clock.delays[i] != want[i] {
			t.Errorf("delay[%d] = %s, want %s", i, clock.delays[i], want[i])
		}
	}
}

func TestDoSucceedsMidway(t *testing.T) {
	clock := &fakeClock{}
	e := NewWithSleep(clock.sleep)

	calls := 0
	ok := e.Do(context.Background(), func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return &StatusError{Status: 500}
		}
		return nil
	}, 5)

	if !ok || calls != 3 {
		t.Errorf("ok=%v calls=%d, want success on the third attempt", ok, calls)
	}
	if len(clock.delays) != 2 {
		t.Errorf("slept %d times, want 2", len(clock.delays))
	}
}

func TestDoTerminalFailureShortCircuits(t *testing.T) {
	clock := &fakeClock{}
	e := NewWithSleep(clock.sleep)

	calls := 0
	ok := e.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return &StatusError{Status: 404}
	}, 5)

	if ok || calls != 1 {
		t.Errorf("ok=%v calls=%d, want single terminal attempt", ok, calls)
	}
	if len(clock.delays) != 0 {
		t.Errorf("slept after a terminal failure: %v", clock.delays)
	}
}

func TestDoRecoversPanic(t *testing.T) {
	e := NewWithSleep(func(context.Context, time.Duration) error { return nil })

	ok := e.Do(context.Background(), func(ctx context.Context) error {
		panic("boom")
	}, 3)
	if ok {
		t.Error("panicking op reported success")
	}
}

func TestDoZeroAttemptsRunsOnce(t *testing.T) {
	e := NewWithSleep(func(context.Context, time.Duration) error { return nil })

	calls := 0
	e.Do(context.Background(), func(ctx context.Context) error {
		calls++
		return nil
	}, 0)
	if calls != 1 {
		t.Errorf("op called %d times with maxAttempts=0, want 1", calls)
	}
}
