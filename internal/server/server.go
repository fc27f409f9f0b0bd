package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/fntranslate/livetranslate/internal/config"
	"github.com/fntranslate/livetranslate/internal/orchestrator"
	"github.com/fntranslate/livetranslate/internal/orchestrator/activity"
	"github.com/fntranslate/livetranslate/internal/orchestrator/history"
	"github.com/fntranslate/livetranslate/internal/trace"
)

// Pipeline is the part of the orchestrator the server drives.
type Pipeline interface {
	Status() orchestrator.Status
	Overlays() []orchestrator.Overlay
	Reset()
	Activity(ev activity.Event) bool
	History() *history.Store
}

// Message is a client request: an activity signal, a reset or a status ping.
type Message struct {
	Type string `json:"type"` // activity | reset | ping
	Kind string `json:"kind,omitempty"`
	Key  string `json:"key,omitempty"`
}

// TranslationMessage announces a translation newly recorded in history.
type TranslationMessage struct {
	Type  string        `json:"type"`
	Entry history.Entry `json:"entry"`
}

// StatusMessage answers a ping with the pipeline status.
type StatusMessage struct {
	Type   string              `json:"type"`
	Status orchestrator.Status `json:"status"`
}

// AckMessage confirms an activity or reset message; Reset reports whether a reset was requested.
type AckMessage struct {
	Type  string `json:"type"`
	Reset bool   `json:"reset"`
}

// ErrorMessage reports a rejected request, over the websocket or as an HTTP error body.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// rateLimiter tracks message timestamps using a sliding window.
type rateLimiter struct {
	timestamps []time.Time
	mu         sync.Mutex
}

// allow checks if a message is allowed and records the timestamp if so.
func (r *rateLimiter) allow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-RateLimitWindow)

	valid := r.timestamps[:0]
	for _, t := range r.timestamps {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	r.timestamps = valid

	if len(r.timestamps) >= RateLimitMessages {
		return false
	}

	r.timestamps = append(r.timestamps, now)
	return true
}

// Server handles HTTP and WebSocket connections.
type Server struct {
	pipeline Pipeline
	hub      *Hub
	origins  []string
}

// New creates a server. hub must be the Renderer the pipeline was built with.
func New(p Pipeline, hub *Hub, cfg *config.Config) *Server {
	return &Server{pipeline: p, hub: hub, origins: cfg.AllowedOrigins}
}

// Run forwards history events to websocket clients until ctx is done.
func (s *Server) Run(ctx context.Context) {
	events := s.pipeline.History().Events()
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			s.hub.Broadcast(TranslationMessage{Type: "translation", Entry: e})
		}
	}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("GET /api/overlay", s.handleOverlay)
	mux.HandleFunc("GET /api/status", s.handleStatus)
	mux.HandleFunc("GET /api/history", s.handleHistory)
	mux.HandleFunc("POST /api/reset", s.handleReset)
	mux.HandleFunc("POST /api/activity", s.handleActivity)

	return s.corsMiddleware(trace.Middleware(mux))
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Vary", "Origin")
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+trace.TraceIDKey)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, o := range s.origins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	log := trace.Logger(r.Context())
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: hostPatterns(s.origins),
	})
	if err != nil {
		log.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	ctx, cancel := context.WithCancel(r.Context())
	c := newClient(conn)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writeLoop(ctx)
	}()
	defer func() {
		cancel()
		<-writerDone
	}()

	// Current state goes out first, so a client that connects mid-session draws immediately.
	s.hub.join(c)
	defer s.hub.leave(c)
	limiter := &rateLimiter{}

	log.Info("websocket connected", "remote", r.RemoteAddr)
	for {
		var raw json.RawMessage
		if err := wsjson.Read(ctx, conn, &raw); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !limiter.allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			c.send(ErrorMessage{Type: "error", Message: "rate limit exceeded"})
			continue
		}

		var msg Message
		if err := json.Unmarshal(raw, &msg); err != nil {
			continue
		}
		mctx := ctx
		if tc, ok := trace.FromMessage(raw); ok {
			mctx = trace.WithContext(ctx, tc)
		}
		s.handleMessage(mctx, c, msg)
	}
}

func (s *Server) handleMessage(ctx context.Context, c *client, msg Message) {
	switch msg.Type {
	case "activity":
		reset := s.pipeline.Activity(activity.Event{Kind: msg.Kind, Key: msg.Key})
		trace.Logger(ctx).Debug("activity", "kind", msg.Kind, "key", msg.Key, "reset", reset)
		c.send(AckMessage{Type: "ack", Reset: reset})
	case "reset":
		s.pipeline.Reset()
		c.send(AckMessage{Type: "ack", Reset: true})
	case "ping":
		c.send(StatusMessage{Type: "status", Status: s.pipeline.Status()})
	}
}

func (s *Server) handleOverlay(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"overlays": s.pipeline.Overlays()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.pipeline.Status()
	writeJSON(w, http.StatusOK, map[string]any{
		"pipeline": st,
		"clients":  s.hub.Len(),
	})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := HistoryDefaultLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeJSON(w, http.StatusBadRequest, ErrorMessage{Type: "error", Message: "limit must be a positive integer"})
			return
		}
		limit = min(n, HistoryMaxLimit)
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": s.pipeline.History().Recent(limit)})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.pipeline.Reset()
	trace.Logger(r.Context()).Info("manual reset requested")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "reset_requested"})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	var ev activity.Event
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1024)).Decode(&ev); err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorMessage{Type: "error", Message: "invalid activity event"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"reset": s.pipeline.Activity(ev)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
