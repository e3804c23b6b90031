package admission

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolve o IP do cliente pela cadeia de precedência de headers de
// proxy: X-Forwarded-For (primeiro IP) → X-Real-IP → CF-Connecting-IP →
// RemoteAddr. Headers só são considerados quando trustProxyHeaders=true.
func ClientIP(r *http.Request, trustProxyHeaders bool) string {
	if trustProxyHeaders {
		// pega o primeiro IP do X-Forwarded-For (cliente original)
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if len(parts) > 0 {
				ip := strings.TrimSpace(parts[0])
				if ip != "" {
					return ip
				}
			}
		}

		if v := strings.TrimSpace(r.Header.Get("X-Real-IP")); v != "" {
			return v
		}

		if v := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); v != "" {
			return v
		}
	}

	// fallback: RemoteAddr
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
