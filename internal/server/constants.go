// Package server exposes the pipeline to overlay clients over HTTP and WebSocket
package server

import "time"

// Server configuration constants
const (
	// Per-connection inbound message limit (sliding window)
	RateLimitMessages = 30
	RateLimitWindow   = time.Second

	// Outbound write deadline per websocket message
	WriteTimeout = 2 * time.Second

	// Outbound messages buffered per client before the oldest is dropped
	ClientQueueSize = 8

	// Default and maximum entries returned by /api/history
	HistoryDefaultLimit = 50
	HistoryMaxLimit     = 500
)
