package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestInMemoryRateLimiter(t *testing.T) {
	rateLimiter := NewInMemoryRateLimiter()
	defer rateLimiter.Close()

	ctx := context.Background()
	key := "test-key"
	limit := 3
	window := time.Minute

	t.Run("allows requests within limit", func(t *testing.T) {
		for i := 0; i < limit; i++ {
			allowed, err := rateLimiter.Allow(ctx, key, limit, window)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !allowed {
				t.Fatalf("request %d should be allowed", i+1)
			}
		}
	})

	t.Run("blocks requests over limit", func(t *testing.T) {
		allowed, err := rateLimiter.Allow(ctx, key, limit, window)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if allowed {
			t.Fatal("request should be blocked")
		}
	})

	t.Run("different keys are independent", func(t *testing.T) {
		allowed, err := rateLimiter.Allow(ctx, "other-key", limit, window)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !allowed {
			t.Fatal("different key should be allowed")
		}
	})

	t.Run("reset restores the budget", func(t *testing.T) {
		if err := rateLimiter.Reset(ctx, key); err != nil {
			t.Fatalf("Reset failed: %v", err)
		}
		allowed, err := rateLimiter.Allow(ctx, key, limit, window)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !allowed {
			t.Fatal("request after reset should be allowed")
		}
	})
}

func TestRateLimitMiddleware(t *testing.T) {
	rateLimiter := NewInMemoryRateLimiter()
	defer rateLimiter.Close()

	limit := RateLimit{Requests: 2, Window: time.Minute, KeyFunc: KeyByIP}
	handler := RateLimitMiddleware(rateLimiter, limit)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	send := func(remoteAddr string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/token", nil)
		req.RemoteAddr = remoteAddr
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	for i := 0; i < limit.Requests; i++ {
		if rec := send("10.0.0.1:1234"); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want %d", i+1, rec.Code, http.StatusOK)
		}
	}

	rec := send("10.0.0.1:1234")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", rec.Code, http.StatusTooManyRequests)
	}
	if rec.Header().Get("X-RateLimit-Limit") == "" {
		t.Error("missing X-RateLimit-Limit header")
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}

	// A different address still gets through.
	if rec := send("10.0.0.2:1234"); rec.Code != http.StatusOK {
		t.Errorf("other IP: status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestKeyByClientID(t *testing.T) {
	t.Run("prefers basic auth", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/token", nil)
		req.SetBasicAuth("mail-web", "secret")
		if got := KeyByClientID(req); got != "client:mail-web" {
			t.Errorf("got %q, want client:mail-web", got)
		}
	})

	t.Run("falls back to IP without client credentials", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/token", nil)
		req.RemoteAddr = "10.0.0.9:4321"
		if got := KeyByClientID(req); got != "ip:10.0.0.9" {
			t.Errorf("got %q, want ip:10.0.0.9", got)
		}
	})
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		headers    map[string]string
		want       string
	}{
		{"remote addr only", "192.0.2.7:5000", nil, "192.0.2.7"},
		{"x-forwarded-for wins", "192.0.2.7:5000", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "203.0.113.5"},
		{"x-real-ip", "192.0.2.7:5000", map[string]string{"X-Real-IP": "203.0.113.9"}, "203.0.113.9"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			for key, value := range tt.headers {
				req.Header.Set(key, value)
			}
			if got := GetClientIP(req); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
