package middleware

import (
	"net/http"
	"strings"
)

// SecurityHeadersMiddleware sets the baseline security headers on every
// response. Token and authorization responses additionally get cache
// suppression, as bearer credentials must never land in shared caches.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")

			if isSensitiveEndpoint(r.URL.Path) {
				w.Header().Set("Cache-Control", "no-store")
				w.Header().Set("Pragma", "no-cache")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodyMiddleware bounds request body size. The endpoints only ever take
// small form or JSON bodies.
func MaxBodyMiddleware(limit int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			next.ServeHTTP(w, r)
		})
	}
}

func isSensitiveEndpoint(path string) bool {
	sensitivePaths := []string{
		"/authorize",
		"/token",
		"/revoke",
		"/userinfo",
		"/login",
		"/consent",
	}

	for _, sensitivePath := range sensitivePaths {
		if strings.HasPrefix(path, sensitivePath) {
			return true
		}
	}
	return false
}
