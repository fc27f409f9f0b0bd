// Package gemini translates with Google's Gemini models.
package gemini

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	apperrors "github.com/fntranslate/livetranslate/internal/errors"
	"github.com/fntranslate/livetranslate/internal/resilience"
	"github.com/fntranslate/livetranslate/internal/trace"
	"github.com/fntranslate/livetranslate/internal/translate"
)

const DefaultModel = "gemini-1.5-flash"

// Options configures a Client.
type Options struct {
	APIKey string
	Model  string
	RPS    float64
}

// Client is a translate.Translator. The underlying genai client is created on first use.
type Client struct {
	apiKey  string
	model   string
	limiter *rate.Limiter
	breaker *resilience.Breaker
	retry   resilience.RetryConfig

	mu     sync.Mutex
	client *genai.Client
}

// New creates a client.
func New(opts Options) *Client {
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if opts.RPS > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RPS), 1)
	}
	return &Client{
		apiKey:  strings.TrimSpace(opts.APIKey),
		model:   strings.TrimSpace(opts.Model),
		limiter: limiter,
		breaker: resilience.New(resilience.TranslationConfig("gemini")),
		retry:   resilience.DefaultRetryConfig(),
	}
}

func (c *Client) genai(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client != nil {
		return c.client, nil
	}
	cl, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.Unavailable, "create gemini client")
	}
	c.client = cl
	return cl, nil
}

// Translate implements translate.Translator.
func (c *Client) Translate(ctx context.Context, text, source, target string) (string, error) {
	if c.apiKey == "" {
		return "", apperrors.New(apperrors.Unauthenticated, "GEMINI_API_KEY is empty")
	}
	ctx, span := trace.StartSpan(ctx, "gemini.translate")
	defer span.End()

	cl, err := c.genai(ctx)
	if err != nil {
		return "", err
	}
	m := cl.GenerativeModel(c.model)
	m.GenerationConfig = genai.GenerationConfig{Temperature: ptrFloat32(0.3)}
	m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(translate.SystemPrompt)}}

	out, err := resilience.Call(ctx, c.breaker, c.retry, func(ctx context.Context) (string, error) {
		if err := c.limiter.Wait(ctx); err != nil {
			return "", classify(err)
		}
		resp, err := m.GenerateContent(ctx, genai.Text(translate.Prompt(text, source, target)))
		if err != nil {
			return "", classify(err)
		}
		txt := strings.TrimSpace(firstText(resp))
		if txt == "" {
			return "", apperrors.New(apperrors.TranslationFailed, "gemini: empty response")
		}
		return txt, nil
	})
	if errors.Is(err, resilience.ErrOpen) {
		return "", apperrors.Wrap(err, apperrors.Unavailable, "gemini circuit open")
	}
	if err != nil {
		span.SetAttr("error", err.Error())
		return "", err
	}
	return out, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

func classify(err error) error {
	var apiErr *googleapi.Error
	switch {
	case errors.As(err, &apiErr):
		switch {
		case apiErr.Code == 401 || apiErr.Code == 403:
			return apperrors.Wrap(err, apperrors.Unauthenticated, "gemini rejected credentials")
		case apiErr.Code == 429:
			return apperrors.Wrap(err, apperrors.RateLimited, "gemini rate limited")
		case apiErr.Code >= 500:
			return apperrors.Wrap(err, apperrors.Unavailable, "gemini unavailable")
		}
		return apperrors.Wrap(err, apperrors.TranslationFailed, "gemini request failed")
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Wrap(err, apperrors.Timeout, "gemini request timed out")
	case errors.Is(err, context.Canceled):
		return apperrors.Wrap(err, apperrors.Cancelled, "gemini request cancelled")
	}
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unauthenticated, codes.PermissionDenied:
			return apperrors.Wrap(err, apperrors.Unauthenticated, "gemini rejected credentials")
		case codes.ResourceExhausted:
			return apperrors.Wrap(err, apperrors.RateLimited, "gemini rate limited")
		case codes.Unavailable, codes.Internal:
			return apperrors.Wrap(err, apperrors.Unavailable, "gemini unavailable")
		case codes.DeadlineExceeded:
			return apperrors.Wrap(err, apperrors.Timeout, "gemini request timed out")
		}
	}
	return apperrors.Wrap(err, apperrors.TranslationFailed, "gemini request failed")
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}
	for _, cand := range resp.Candidates {
		if cand.Content == nil {
			continue
		}
		for _, p := range cand.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				return string(t)
			}
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
