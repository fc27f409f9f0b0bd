package server

import (
	"context"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/fntranslate/livetranslate/internal/orchestrator"
	"github.com/fntranslate/livetranslate/internal/trace"
)

// OverlayMessage carries the full overlay list for one cycle. An empty list clears the screen.
type OverlayMessage struct {
	Type     string                 `json:"type"`
	Overlays []orchestrator.Overlay `json:"overlays"`
}

// client owns the only writer for its connection, so messages arrive in enqueue order.
type client struct {
	conn  *websocket.Conn
	queue chan any
}

func newClient(conn *websocket.Conn) *client {
	return &client{conn: conn, queue: make(chan any, ClientQueueSize)}
}

// send enqueues msg without blocking. A full queue drops its oldest message so the newest
// state always gets through.
func (c *client) send(msg any) {
	for {
		select {
		case c.queue <- msg:
			return
		default:
		}
		select {
		case <-c.queue:
		default:
		}
	}
}

// writeLoop drains the queue until ctx is done or a write fails.
func (c *client) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-c.queue:
			wctx, cancel := context.WithTimeout(ctx, WriteTimeout)
			err := wsjson.Write(wctx, c.conn, msg)
			cancel()
			if err != nil {
				trace.Logger(ctx).Debug("websocket write error", "error", err)
				return
			}
		}
	}
}

// Hub fans pipeline output out to websocket clients. It is the pipeline's Renderer.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	last    []orchestrator.Overlay
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{}), last: []orchestrator.Overlay{}}
}

// Render implements orchestrator.Renderer. It only enqueues, so a slow client never stalls
// the pipeline, and successive calls reach every client in call order.
func (h *Hub) Render(ctx context.Context, overlays []orchestrator.Overlay) error {
	if overlays == nil {
		overlays = []orchestrator.Overlay{}
	}
	h.mu.Lock()
	h.last = overlays
	n := len(h.clients)
	msg := OverlayMessage{Type: "overlay", Overlays: overlays}
	for c := range h.clients {
		c.send(msg)
	}
	h.mu.Unlock()

	trace.Logger(ctx).Debug("broadcast overlays", "count", len(overlays), "clients", n)
	return nil
}

// Last returns the most recent overlay list.
func (h *Hub) Last() []orchestrator.Overlay {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// Broadcast enqueues msg for every connected client.
func (h *Hub) Broadcast(msg any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		c.send(msg)
	}
}

// Len is the number of connected clients.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// join registers c and queues the current overlay list as its first message. Both happen
// under the hub lock so no Render can slip between them.
func (h *Hub) join(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	c.send(OverlayMessage{Type: "overlay", Overlays: h.last})
	h.clients[c] = struct{}{}
}

func (h *Hub) leave(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}
