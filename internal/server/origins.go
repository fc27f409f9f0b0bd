package server

import (
	"net/url"
)

// hostPatterns converts allowed origins ("http://localhost:5173") into the host patterns
// websocket.Accept matches against ("localhost:5173").
func hostPatterns(origins []string) []string {
	out := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			return []string{"*"}
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			out = append(out, o)
			continue
		}
		out = append(out, u.Host)
	}
	return out
}
