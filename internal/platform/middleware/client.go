package middleware

import (
	"net"
	"net/http"
	"strings"

	"github.com/mssola/useragent"

	"taxlens/pkg/requestcontext"
)

// ClientMetadata records the caller's IP and parsed User-Agent on the context
// so access logs and security warnings can name them.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := requestcontext.Client{IP: ClientIP(r)}
		if raw := r.Header.Get("User-Agent"); raw != "" {
			ua := useragent.New(raw)
			client.Browser, _ = ua.Browser()
			client.OS = ua.OS()
			client.Bot = ua.Bot()
		}
		next.ServeHTTP(w, r.WithContext(requestcontext.WithClient(r.Context(), client)))
	})
}

// ClientIP returns the originating address, preferring proxy headers.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
