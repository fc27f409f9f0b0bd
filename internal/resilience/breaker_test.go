package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errBoom = errors.New("boom")

// newTestBreaker returns a breaker on a manual clock and a func to advance it.
func newTestBreaker(cfg Config) (*Breaker, func(time.Duration)) {
	now := time.Unix(1_700_000_000, 0)
	b := New(cfg)
	b.now = func() time.Time { return now }
	return b, func(d time.Duration) { now = now.Add(d) }
}

func call(t *testing.T, b *Breaker, err error) {
	t.Helper()
	done, aerr := b.Allow()
	if aerr != nil {
		t.Fatalf("Allow() = %v, want nil", aerr)
	}
	done(err)
}

func TestBreakerStartsClosed(t *testing.T) {
	b := New(TranslationConfig("deepseek"))
	if b.State() != Closed {
		t.Errorf("initial state = %v, want Closed", b.State())
	}
}

func TestBreakerOpensAfterThreshold(t *testing.T) {
	b, _ := newTestBreaker(Config{Threshold: 3, ResetTimeout: time.Minute, HalfOpenSuccesses: 1})
	for range 3 {
		call(t, b, errBoom)
	}
	if b.State() != Open {
		t.Errorf("state = %v, want Open", b.State())
	}
	if _, err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Errorf("Allow() = %v, want ErrOpen", err)
	}
}

func TestBreakerHalfOpenAdmitsOneTrial(t *testing.T) {
	b, advance := newTestBreaker(Config{Threshold: 1, ResetTimeout: time.Minute, HalfOpenSuccesses: 2})
	call(t, b, errBoom)

	advance(59 * time.Second)
	if _, err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatalf("before reset timeout Allow() = %v, want ErrOpen", err)
	}

	advance(time.Second)
	done, err := b.Allow()
	if err != nil {
		t.Fatalf("Allow() = %v, want nil", err)
	}
	if b.State() != HalfOpen {
		t.Fatalf("state = %v, want HalfOpen", b.State())
	}
	if _, err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Errorf("second trial Allow() = %v, want ErrOpen", err)
	}

	done(nil)
	if b.State() != HalfOpen {
		t.Errorf("state after one success = %v, want HalfOpen", b.State())
	}
	call(t, b, nil)
	if b.State() != Closed {
		t.Errorf("state = %v, want Closed", b.State())
	}
}

func TestBreakerReopensOnTrialFailure(t *testing.T) {
	b, advance := newTestBreaker(Config{Threshold: 1, ResetTimeout: time.Minute, HalfOpenSuccesses: 3})
	call(t, b, errBoom)
	advance(time.Minute)

	call(t, b, errBoom)
	if b.State() != Open {
		t.Errorf("state = %v, want Open", b.State())
	}
	if _, err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Errorf("reopened breaker should wait a full timeout, Allow() = %v", err)
	}
}

func TestBreakerSuccessClearsFailures(t *testing.T) {
	b, _ := newTestBreaker(Config{Threshold: 3, ResetTimeout: time.Minute, HalfOpenSuccesses: 1})
	call(t, b, errBoom)
	call(t, b, errBoom)
	call(t, b, nil)
	call(t, b, errBoom)
	call(t, b, errBoom)
	if b.State() != Closed {
		t.Errorf("state = %v, want Closed", b.State())
	}
}

func TestBreakerIgnoresCancellation(t *testing.T) {
	b, advance := newTestBreaker(Config{Threshold: 1, ResetTimeout: time.Minute, HalfOpenSuccesses: 1})
	call(t, b, context.Canceled)
	if b.State() != Closed {
		t.Fatalf("cancelled call tripped the breaker")
	}

	call(t, b, errBoom)
	advance(time.Minute)
	call(t, b, context.Canceled)
	if b.State() != HalfOpen {
		t.Fatalf("state = %v, want HalfOpen", b.State())
	}
	// The cancelled trial frees the slot for the next one.
	call(t, b, nil)
	if b.State() != Closed {
		t.Errorf("state = %v, want Closed", b.State())
	}
}

func TestRun(t *testing.T) {
	b, _ := newTestBreaker(Config{Threshold: 1, ResetTimeout: time.Minute, HalfOpenSuccesses: 1})

	got, err := Run(b, func() (string, error) { return "hola", nil })
	if err != nil || got != "hola" {
		t.Fatalf("Run = (%q, %v), want (hola, nil)", got, err)
	}
	if _, err := Run(b, func() (string, error) { return "", errBoom }); !errors.Is(err, errBoom) {
		t.Fatalf("Run = %v, want boom", err)
	}
	calls := 0
	if _, err := Run(b, func() (string, error) { calls++; return "x", nil }); !errors.Is(err, ErrOpen) {
		t.Errorf("after trip = %v, want ErrOpen", err)
	}
	if calls != 0 {
		t.Error("open breaker must not run fn")
	}
}

func TestBreakerHook(t *testing.T) {
	var got []State
	b, advance := newTestBreaker(Config{Threshold: 1, ResetTimeout: time.Minute, HalfOpenSuccesses: 1})
	b.WithHook(func(_, to State) { got = append(got, to) })

	call(t, b, errBoom)
	advance(time.Minute)
	call(t, b, nil)
	b.Reset()

	want := []State{Open, HalfOpen, Closed}
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("transition %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestBreakerConcurrentSafety(t *testing.T) {
	b := New(Config{Threshold: 100, ResetTimeout: time.Second, HalfOpenSuccesses: 10})

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			done, err := b.Allow()
			if err != nil {
				return
			}
			if i%2 == 0 {
				done(nil)
			} else {
				done(errBoom)
			}
		}(i)
	}
	wg.Wait()
	_ = b.State()
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}.withDefaults()
	if cfg.Name != "default" {
		t.Errorf("Name = %q, want default", cfg.Name)
	}
	if cfg.Threshold != DefaultThreshold {
		t.Errorf("Threshold = %d, want %d", cfg.Threshold, DefaultThreshold)
	}
	if cfg.ResetTimeout != DefaultResetTimeout {
		t.Errorf("ResetTimeout = %v, want %v", cfg.ResetTimeout, DefaultResetTimeout)
	}
	if cfg.HalfOpenSuccesses != DefaultHalfOpenSuccesses {
		t.Errorf("HalfOpenSuccesses = %d, want %d", cfg.HalfOpenSuccesses, DefaultHalfOpenSuccesses)
	}
}

func TestStateString(t *testing.T) {
	tests := []struct {
		s    State
		want string
	}{
		{Closed, "closed"},
		{Open, "open"},
		{HalfOpen, "half-open"},
		{State(9), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.s.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.s, got, tt.want)
		}
	}
}
