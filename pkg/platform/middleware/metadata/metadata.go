package metadata

import (
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"haven/pkg/requestcontext"
)

const HeaderDeviceID = "X-Device-ID"

// ClientMetadata extracts client IP, User-Agent, device and endpoint from the request
// and adds them to the context for audit enrichment.
// This middleware should be applied early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ua := r.Header.Get("User-Agent")

		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), ua)
		ctx = requestcontext.WithEndpoint(ctx, r.URL.Path, r.Method)
		if deviceID := strings.TrimSpace(r.Header.Get(HeaderDeviceID)); deviceID != "" {
			ctx = requestcontext.WithDeviceID(ctx, deviceID)
		}
		if device := DescribeDevice(ua); device != "" {
			ctx = requestcontext.WithDevice(ctx, device)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// DescribeDevice renders a coarse "Browser Version on OS" description from a User-Agent.
// Returns "" when the header is empty.
func DescribeDevice(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return ""
	}
	ua := useragent.New(userAgent)
	if ua.Bot() {
		return "bot"
	}
	name, version := ua.Browser()
	desc := strings.TrimSpace(name + " " + version)
	if os := ua.OS(); os != "" {
		if desc == "" {
			return os
		}
		desc += " on " + os
	}
	if ua.Mobile() {
		desc += " (mobile)"
	}
	return desc
}

// ClientIPFromRequest extracts the real client IP from the request, handling proxies and load balancers.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs (client, proxy1, proxy2, ...); the first is the client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if idx := strings.Index(xff, ","); idx != -1 {
			return strings.TrimSpace(xff[:idx])
		}
		return strings.TrimSpace(xff)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	// RemoteAddr is "ip:port" or "[::1]:port".
	if addr := r.RemoteAddr; addr != "" {
		if idx := strings.LastIndex(addr, ":"); idx != -1 {
			return strings.Trim(addr[:idx], "[]")
		}
		return addr
	}

	return "unknown"
}
