package middleware

import (
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/xstarmail/authd/internal/web/response"
)

// RateLimit defines the limit applied to one class of requests.
type RateLimit struct {
	Requests int
	Window   time.Duration
	KeyFunc  KeyFunction
}

// KeyFunction derives the rate limiting key from the request.
type KeyFunction func(r *http.Request) string

var (
	// KeyByIP buckets requests per client IP address.
	KeyByIP KeyFunction = func(r *http.Request) string {
		return "ip:" + GetClientIP(r)
	}

	// KeyByClientID buckets token requests per OAuth client, falling back
	// to the IP for requests that carry no client identification.
	KeyByClientID KeyFunction = func(r *http.Request) string {
		if clientID, _, ok := r.BasicAuth(); ok && clientID != "" {
			return "client:" + clientID
		}
		if clientID := r.PostFormValue("client_id"); clientID != "" {
			return "client:" + clientID
		}
		return "ip:" + GetClientIP(r)
	}
)

// GetClientIP extracts the real client IP from the request, honoring the
// usual proxy headers before falling back to the socket address.
func GetClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if ips := strings.Split(xff, ","); len(ips) > 0 {
			if ip := strings.TrimSpace(ips[0]); ip != "" {
				return ip
			}
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}

	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}

	return r.RemoteAddr
}

func setRateLimitHeaders(w http.ResponseWriter, limit RateLimit, remaining int) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
	w.Header().Set("X-RateLimit-Window", limit.Window.String())
}

// RateLimitMiddleware enforces a single rate limit on the wrapped handler.
// Limiter failures fail open; an unreachable Redis must not take the
// endpoints down with it.
func RateLimitMiddleware(rateLimiter RateLimiter, limit RateLimit) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := limit.KeyFunc(r)
			if key == "" {
				key = "unknown"
			}

			allowed, err := rateLimiter.Allow(r.Context(), key, limit.Requests, limit.Window)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}

			remaining, _ := rateLimiter.GetRemaining(r.Context(), key, limit.Requests, limit.Window)
			setRateLimitHeaders(w, limit, remaining)

			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(int(limit.Window.Seconds())))
				response.OAuthErrorResponse(w, http.StatusTooManyRequests, "slow_down", "Too many requests, retry later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// MultiRateLimitMiddleware enforces several limits on the same handler; the
// request must pass all of them. The token endpoint uses this to limit per
// IP and per client at once.
func MultiRateLimitMiddleware(rateLimiter RateLimiter, limits ...RateLimit) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, limit := range limits {
				key := limit.KeyFunc(r)
				if key == "" {
					key = "unknown"
				}

				allowed, err := rateLimiter.Allow(r.Context(), key, limit.Requests, limit.Window)
				if err != nil {
					continue
				}

				if !allowed {
					remaining, _ := rateLimiter.GetRemaining(r.Context(), key, limit.Requests, limit.Window)
					setRateLimitHeaders(w, limit, remaining)
					w.Header().Set("Retry-After", strconv.Itoa(int(limit.Window.Seconds())))
					response.OAuthErrorResponse(w, http.StatusTooManyRequests, "slow_down",
						fmt.Sprintf("Too many requests, limit is %d per %s", limit.Requests, limit.Window))
					return
				}
			}

			if len(limits) > 0 {
				limit := limits[0]
				remaining, _ := rateLimiter.GetRemaining(r.Context(), limit.KeyFunc(r), limit.Requests, limit.Window)
				setRateLimitHeaders(w, limit, remaining)
			}

			next.ServeHTTP(w, r)
		})
	}
}

// Chain composes middlewares so the first listed runs outermost.
func Chain(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			next = middlewares[i](next)
		}
		return next
	}
}
