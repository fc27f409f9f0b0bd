// Package trace attaches trace and span identifiers to contexts so every log line of a pipeline cycle
// or an HTTP request can be correlated. IDs follow the W3C sizes.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"sync"
	"time"
)

// Propagation keys for HTTP headers and gRPC metadata.
const (
	TraceIDKey      = "x-trace-id"
	SpanIDKey       = "x-span-id"
	ParentSpanIDKey = "x-parent-span-id"
)

type ctxKey struct{}

// Context holds trace identifiers for a single span.
type Context struct {
	TraceID      string
	SpanID       string
	ParentSpanID string
}

// New creates a root trace context.
func New() Context {
	return Context{TraceID: randomHex(16), SpanID: randomHex(8)}
}

// Child derives a span context under c.
func (c Context) Child() Context {
	if c.TraceID == "" {
		return New()
	}
	return Context{TraceID: c.TraceID, SpanID: randomHex(8), ParentSpanID: c.SpanID}
}

// FromContext extracts the trace context.
func FromContext(ctx context.Context) (Context, bool) {
	tc, ok := ctx.Value(ctxKey{}).(Context)
	return tc, ok
}

// WithContext stores tc in ctx.
func WithContext(ctx context.Context, tc Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// fromRemote builds a local span under a caller-supplied trace/span pair.
func fromRemote(traceID, parentSpanID string) Context {
	tc := Context{TraceID: traceID, SpanID: randomHex(8), ParentSpanID: parentSpanID}
	if tc.TraceID == "" {
		tc.TraceID = randomHex(16)
	}
	return tc
}

func randomHex(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}

// Span is a timed operation. Attributes are safe to set from concurrent goroutines of the same span.
type Span struct {
	Name  string
	Ctx   Context
	start time.Time

	mu    sync.Mutex
	end   time.Time
	attrs map[string]any
}

// StartSpan begins a span as a child of whatever span ctx carries.
func StartSpan(ctx context.Context, name string) (context.Context, *Span) {
	parent, _ := FromContext(ctx)
	s := &Span{
		Name:  name,
		Ctx:   parent.Child(),
		start: time.Now(),
		attrs: make(map[string]any),
	}
	return WithContext(ctx, s.Ctx), s
}

// SetAttr records an attribute.
func (s *Span) SetAttr(key string, val any) {
	s.mu.Lock()
	s.attrs[key] = val
	s.mu.Unlock()
}

// End stamps the end time and logs the span at debug level.
func (s *Span) End() {
	s.mu.Lock()
	s.end = time.Now()
	s.mu.Unlock()
	slog.Debug("span", "span", s)
}

// Duration returns the span duration, zero while running.
func (s *Span) Duration() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.end.IsZero() {
		return 0
	}
	return s.end.Sub(s.start)
}

// LogValue implements slog.LogValuer.
func (s *Span) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("name", s.Name),
		slog.String("trace_id", s.Ctx.TraceID),
		slog.String("span_id", s.Ctx.SpanID),
		slog.Duration("duration", s.Duration()),
	}
	if s.Ctx.ParentSpanID != "" {
		attrs = append(attrs, slog.String("parent_span_id", s.Ctx.ParentSpanID))
	}
	s.mu.Lock()
	for k, v := range s.attrs {
		attrs = append(attrs, slog.Any(k, v))
	}
	s.mu.Unlock()
	return slog.GroupValue(attrs...)
}

// Logger returns the default logger decorated with ctx's trace identifiers.
func Logger(ctx context.Context) *slog.Logger {
	tc, ok := FromContext(ctx)
	if !ok {
		return slog.Default()
	}
	args := []any{"trace_id", tc.TraceID, "span_id", tc.SpanID}
	if tc.ParentSpanID != "" {
		args = append(args, "parent_span_id", tc.ParentSpanID)
	}
	return slog.Default().With(args...)
}
