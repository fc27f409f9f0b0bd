package deepseek

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	apperrors "github.com/fntranslate/livetranslate/internal/errors"
	"github.com/fntranslate/livetranslate/internal/resilience"
)

func fastRetry() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.BaseDelay = time.Millisecond
	cfg.MaxDelay = 2 * time.Millisecond
	return cfg
}

func TestTranslateSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("auth header = %q", r.Header.Get("Authorization"))
		}
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatal(err)
		}
		if req.Model != DefaultModel || len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("request = %+v", req)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" 你好世界 \n"}}]}`))
	}))
	defer srv.Close()

	c := New(Options{APIKey: "key", BaseURL: srv.URL + "/", Retry: fastRetry()})
	got, err := c.Translate(context.Background(), "Hello World", "en", "zh")
	if err != nil {
		t.Fatal(err)
	}
	if got != "你好世界" {
		t.Errorf("got %q", got)
	}
}

func TestTranslateMissingKey(t *testing.T) {
	_, err := New(Options{}).Translate(context.Background(), "x", "en", "zh")
	if !apperrors.IsCode(err, apperrors.Unauthenticated) {
		t.Errorf("err = %v", err)
	}
}

func TestTranslateStatusClassification(t *testing.T) {
	tests := []struct {
		status    int
		want      apperrors.Code
		wantCalls int32
	}{
		{http.StatusUnauthorized, apperrors.Unauthenticated, 1},
		{http.StatusBadRequest, apperrors.TranslationFailed, 1},
		{http.StatusTooManyRequests, apperrors.RateLimited, 3},
		{http.StatusBadGateway, apperrors.Unavailable, 3},
	}
	for _, tt := range tests {
		var calls atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			calls.Add(1)
			http.Error(w, "nope", tt.status)
		}))
		retry := fastRetry()
		retry.MaxRetries = 2
		c := New(Options{APIKey: "key", BaseURL: srv.URL, Retry: retry})
		_, err := c.Translate(context.Background(), "x", "en", "zh")
		srv.Close()

		if got := apperrors.CodeOf(err); got != tt.want {
			t.Errorf("status %d: code = %s, want %s", tt.status, got, tt.want)
		}
		if calls.Load() != tt.wantCalls {
			t.Errorf("status %d: calls = %d, want %d", tt.status, calls.Load(), tt.wantCalls)
		}
	}
}

func TestTranslateRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := New(Options{APIKey: "key", BaseURL: srv.URL, Retry: fastRetry()})
	got, err := c.Translate(context.Background(), "x", "en", "zh")
	if err != nil || got != "ok" {
		t.Fatalf("got %q, %v", got, err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d", calls.Load())
	}
}

func TestTranslateEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	c := New(Options{APIKey: "key", BaseURL: srv.URL, Retry: fastRetry()})
	if _, err := c.Translate(context.Background(), "x", "en", "zh"); !apperrors.IsCode(err, apperrors.TranslationFailed) {
		t.Errorf("err = %v", err)
	}
}

func TestTranslateTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	retry := fastRetry()
	retry.MaxRetries = 0
	c := New(Options{APIKey: "key", BaseURL: srv.URL, Retry: retry})
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := c.Translate(ctx, "x", "en", "zh")
	if !apperrors.IsCode(err, apperrors.Timeout) {
		t.Errorf("err = %v, want Timeout", err)
	}
}
