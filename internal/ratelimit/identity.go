package ratelimit

import (
	"net/http"
	"strings"
)

// fallbackIdentity keys requests that arrive without any usable client
// address header
const fallbackIdentity = "unknown"

// devIdentity keys every request in local development, where the proxy
// headers are absent and real addresses would all collapse to empty keys
const devIdentity = "dev-user"

// ClientIdentity derives the limiter identity for a request from trusted
// proxy headers, most reliable first: the edge-provided client IP, then the
// real-IP header, then the first entry of the forwarded-for list.
func ClientIdentity(h http.Header, env string) string {
	if env == "development" {
		return devIdentity
	}

	if ip := h.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	if ip := h.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if forwarded := h.Get("X-Forwarded-For"); forwarded != "" {
		if i := strings.IndexByte(forwarded, ','); i >= 0 {
			forwarded = forwarded[:i]
		}
		if ip := strings.TrimSpace(forwarded); ip != "" {
			return ip
		}
	}

	return fallbackIdentity
}
