package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.OAuth.CodeTTL != 120*time.Second {
		t.Errorf("CodeTTL = %s, want 2m", cfg.OAuth.CodeTTL)
	}
	if cfg.OAuth.AccessTokenTTL != time.Hour {
		t.Errorf("AccessTokenTTL = %s, want 1h", cfg.OAuth.AccessTokenTTL)
	}
	if cfg.Database.URL != "" {
		t.Errorf("DB URL default should be empty, got %q", cfg.Database.URL)
	}
}

func TestLoadCodeTTLClamped(t *testing.T) {
	tests := []struct {
		name string
		env  string
		want time.Duration
	}{
		{"below minimum", "5s", CodeTTLMin},
		{"above maximum", "1h", CodeTTLMax},
		{"within bounds", "90s", 90 * time.Second},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("OAUTH_CODE_TTL", tt.env)

			cfg, err := Load()
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}
			if cfg.OAuth.CodeTTL != tt.want {
				t.Errorf("CodeTTL = %s, want %s", cfg.OAuth.CodeTTL, tt.want)
			}
		})
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"non-numeric port", "SERVER_PORT", "eighty"},
		{"bad duration", "OAUTH_ACCESS_TOKEN_TTL", "soon"},
		{"bad environment", "SERVER_ENVIRONMENT", "staging"},
		{"bad bool", "RATE_LIMIT_ENABLED", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Errorf("Load accepted %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestGetBaseURL(t *testing.T) {
	t.Run("explicit base URL wins", func(t *testing.T) {
		cfg := Config{BaseURL: "https://auth.xstarmail.com"}
		if got := cfg.GetBaseURL(); got != "https://auth.xstarmail.com" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("constructed from server config", func(t *testing.T) {
		cfg := Config{Server: Server{Port: 9090, Environment: EnvDevelopment}}
		if got := cfg.GetBaseURL(); got != "http://localhost:9090" {
			t.Errorf("got %q", got)
		}
	})

	t.Run("https in production", func(t *testing.T) {
		cfg := Config{Server: Server{Port: 443, Environment: EnvProduction}}
		if got := cfg.GetBaseURL(); got != "https://localhost:443" {
			t.Errorf("got %q", got)
		}
	})
}
