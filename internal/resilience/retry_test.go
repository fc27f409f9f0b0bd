package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/fntranslate/livetranslate/internal/errors"
)

func fastRetry(n int) RetryConfig {
	return RetryConfig{MaxRetries: n, BaseDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond}
}

func TestRetrySucceedsFirst(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), DefaultRetryConfig(), func(context.Context) error {
		calls++
		return nil
	})
	if err != nil {
		t.Errorf("Retry() = %v, want nil", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestRetryRecoversFromTransient(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), fastRetry(3), func(context.Context) error {
		calls++
		if calls < 3 {
			return apperrors.New(apperrors.Unavailable, "upstream 503")
		}
		return nil
	})
	if err != nil {
		t.Errorf("Retry() = %v, want nil", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryExhausts(t *testing.T) {
	calls := 0
	want := apperrors.New(apperrors.Timeout, "slow")
	err := Retry(context.Background(), fastRetry(2), func(context.Context) error {
		calls++
		return want
	})
	if !errors.Is(err, want) {
		t.Errorf("Retry() = %v, want %v", err, want)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestRetryStopsOnPermanentError(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"unauthenticated", apperrors.New(apperrors.Unauthenticated, "bad key")},
		{"grpc invalid argument", status.Error(codes.InvalidArgument, "bad")},
		{"plain", errors.New("plain")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			_ = Retry(context.Background(), fastRetry(5), func(context.Context) error {
				calls++
				return tt.err
			})
			if calls != 1 {
				t.Errorf("calls = %d, want 1", calls)
			}
		})
	}
}

func TestRetryContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cfg := RetryConfig{MaxRetries: 10, BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := Retry(ctx, cfg, func(context.Context) error {
		return status.Error(codes.Unavailable, "down")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Retry() = %v, want context.Canceled", err)
	}
}

func TestCallTripsBreaker(t *testing.T) {
	b := New(Config{Threshold: 2, ResetTimeout: time.Hour, HalfOpenSuccesses: 1})
	calls := 0
	_, err := Call(context.Background(), b, fastRetry(5), func(context.Context) (string, error) {
		calls++
		return "", apperrors.New(apperrors.Unavailable, "down")
	})
	if !errors.Is(err, ErrOpen) {
		t.Errorf("Call() = %v, want ErrOpen", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2 before the breaker opened", calls)
	}
}

func TestCallReturnsValue(t *testing.T) {
	b := New(DefaultConfig())
	got, err := Call(context.Background(), b, fastRetry(1), func(context.Context) (int, error) { return 7, nil })
	if err != nil || got != 7 {
		t.Errorf("Call() = (%d, %v), want (7, nil)", got, err)
	}
}

func TestBackoffDelay(t *testing.T) {
	cfg := RetryConfig{BaseDelay: 100 * time.Millisecond, MaxDelay: 300 * time.Millisecond}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 300 * time.Millisecond, 300 * time.Millisecond}
	for attempt, w := range want {
		if got := backoffDelay(cfg, attempt); got != w {
			t.Errorf("attempt %d delay = %v, want %v", attempt, got, w)
		}
	}
}
