package trace

import (
	"encoding/json"
	"net/http"
)

// Middleware puts a trace context on every request, continuing the caller's trace when headers carry one.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc := fromRemote(r.Header.Get(TraceIDKey), r.Header.Get(SpanIDKey))
		w.Header().Set(TraceIDKey, tc.TraceID)
		next.ServeHTTP(w, r.WithContext(WithContext(r.Context(), tc)))
	})
}

// FromMessage reads an optional trace_id field from a websocket JSON message.
// The second result reports whether the message carried one.
func FromMessage(data []byte) (Context, bool) {
	var msg struct {
		TraceID string `json:"trace_id"`
	}
	if err := json.Unmarshal(data, &msg); err != nil || msg.TraceID == "" {
		return New(), false
	}
	return fromRemote(msg.TraceID, ""), true
}
