package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/MrEthical07/loginguard"
)

// ClientOrigin returns the client address used for rate limiting: the
// first X-Forwarded-For entry, then X-Real-IP, then the host part of
// RemoteAddr. Deployments without a trusted proxy in front should strip
// the forwarding headers upstream.
func ClientOrigin(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		return realIP
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// Origin attaches ClientOrigin(r) to the request context for Engine.Login.
func Origin(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := loginguard.WithClientOrigin(r.Context(), ClientOrigin(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
