// Package deepseek translates through an OpenAI-compatible chat completions endpoint.
package deepseek

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	apperrors "github.com/fntranslate/livetranslate/internal/errors"
	"github.com/fntranslate/livetranslate/internal/resilience"
	"github.com/fntranslate/livetranslate/internal/trace"
	"github.com/fntranslate/livetranslate/internal/translate"
)

const (
	DefaultURL   = "https://api.deepseek.com"
	DefaultModel = "deepseek-chat"
	temperature  = 0.3
	maxErrorBody = 512
)

// Options configures a Client.
type Options struct {
	APIKey  string
	BaseURL string
	Model   string
	RPS     float64 // <= 0 disables rate limiting
	Retry   resilience.RetryConfig
}

// Client is a translate.Translator.
type Client struct {
	apiKey  string
	url     string
	model   string
	httpc   *http.Client
	limiter *rate.Limiter
	breaker *resilience.Breaker
	retry   resilience.RetryConfig
}

// New creates a client.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultURL
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Retry.IsRetryable == nil {
		opts.Retry = resilience.DefaultRetryConfig()
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}
	return &Client{
		apiKey:  strings.TrimSpace(opts.APIKey),
		url:     strings.TrimRight(opts.BaseURL, "/") + "/chat/completions",
		model:   opts.Model,
		httpc:   &http.Client{Timeout: 60 * time.Second},
		limiter: limiter,
		breaker: resilience.New(resilience.TranslationConfig("deepseek")),
		retry:   opts.Retry,
	}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type request struct {
	Model       string    `json:"model"`
	Messages    []message `json:"messages"`
	Temperature float64   `json:"temperature"`
	Stream      bool      `json:"stream"`
}

type response struct {
	Choices []struct {
		Message message `json:"message"`
	} `json:"choices"`
}

// Translate implements translate.Translator.
func (c *Client) Translate(ctx context.Context, text, source, target string) (string, error) {
	if c.apiKey == "" {
		return "", apperrors.New(apperrors.Unauthenticated, "DEEPSEEK_API_KEY is empty")
	}
	ctx, span := trace.StartSpan(ctx, "deepseek.translate")
	defer span.End()

	payload, err := json.Marshal(request{
		Model: c.model,
		Messages: []message{
			{Role: "system", Content: translate.SystemPrompt},
			{Role: "user", Content: translate.Prompt(text, source, target)},
		},
		Temperature: temperature,
	})
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.Internal, "marshal request")
	}

	out, err := resilience.Call(ctx, c.breaker, c.retry, func(ctx context.Context) (string, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", classifyTransport(ctx, err)
		}
		return c.do(ctx, payload)
	})
	if errors.Is(err, resilience.ErrOpen) {
		return "", apperrors.Wrap(err, apperrors.Unavailable, "deepseek circuit open")
	}
	if err != nil {
		span.SetAttr("error", err.Error())
		return "", err
	}
	return out, nil
}

func (c *Client) do(ctx context.Context, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", apperrors.Wrap(err, apperrors.Internal, "build request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpc.Do(req)
	if err != nil {
		return "", classifyTransport(ctx, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", classifyStatus(resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var raw response
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return "", apperrors.Wrap(err, apperrors.TranslationFailed, "decode response")
	}
	if len(raw.Choices) == 0 {
		return "", apperrors.New(apperrors.TranslationFailed, "empty response")
	}
	out := strings.TrimSpace(raw.Choices[0].Message.Content)
	if out == "" {
		return "", apperrors.New(apperrors.TranslationFailed, "empty translation")
	}
	return out, nil
}

func classifyStatus(status int, body string) error {
	var code apperrors.Code
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		code = apperrors.Unauthenticated
	case status == http.StatusTooManyRequests:
		code = apperrors.RateLimited
	case status >= 500:
		code = apperrors.Unavailable
	default:
		code = apperrors.TranslationFailed
	}
	return apperrors.Newf(code, "deepseek status %d", status).WithMetadata("body", body)
}

func classifyTransport(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, context.Canceled) && ctx.Err() != nil:
		return apperrors.Wrap(err, apperrors.Cancelled, "deepseek request cancelled")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.Timeout, "deepseek request timed out")
	default:
		return apperrors.Wrap(err, apperrors.Unavailable, "deepseek request failed")
	}
}
