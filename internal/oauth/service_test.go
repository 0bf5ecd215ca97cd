package oauth

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xstarmail/authd/internal/account"
	"github.com/xstarmail/authd/internal/oauth/domain"
	"github.com/xstarmail/authd/internal/oauth/store"
)

func newTestService(st store.Store) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(st, logger, 2*time.Minute, time.Hour, 30*24*time.Hour, 3*time.Second)
}

func seedUser(t *testing.T, st store.Store) account.User {
	t.Helper()

	user := account.User{
		ID:            uuid.New(),
		Email:         "ada@xstarmail.com",
		EmailVerified: true,
		Name:          "Ada Lovelace",
	}
	if err := st.CreateUser(context.Background(), user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	return user
}

func TestServiceCodeExchange(t *testing.T) {
	ctx := context.Background()

	t.Run("code round trip", func(t *testing.T) {
		st := store.NewMemory()
		svc := newTestService(st)
		user := seedUser(t, st)

		code, err := svc.IssueCode(ctx, "mail-web", user.ID, "https://app.example.com/cb", []string{"email"})
		if err != nil {
			t.Fatalf("IssueCode failed: %v", err)
		}
		if code.Code == "" {
			t.Fatal("IssueCode returned an empty code value")
		}
		if got := time.Until(code.ExpiresAt); got > 2*time.Minute || got < time.Minute {
			t.Errorf("code TTL out of range: %s", got)
		}

		grant, err := svc.ExchangeCode(ctx, code.Code, "mail-web", "https://app.example.com/cb")
		if err != nil {
			t.Fatalf("ExchangeCode failed: %v", err)
		}
		if grant.AccessToken.UserID != user.ID {
			t.Errorf("token bound to user %s, want %s", grant.AccessToken.UserID, user.ID)
		}
		if grant.RefreshToken != nil {
			t.Error("got a refresh token without offline_access scope")
		}
		if grant.Scope() != "email" {
			t.Errorf("got scope %q, want %q", grant.Scope(), "email")
		}

		if _, err := svc.ExchangeCode(ctx, code.Code, "mail-web", "https://app.example.com/cb"); !errors.Is(err, store.ErrCodeInvalid) {
			t.Errorf("re-exchange: got %v, want ErrCodeInvalid", err)
		}
	})

	t.Run("offline_access adds a refresh token", func(t *testing.T) {
		st := store.NewMemory()
		svc := newTestService(st)
		user := seedUser(t, st)

		code, err := svc.IssueCode(ctx, "mail-web", user.ID, "https://app.example.com/cb", []string{"email", "offline_access"})
		if err != nil {
			t.Fatalf("IssueCode failed: %v", err)
		}

		grant, err := svc.ExchangeCode(ctx, code.Code, "mail-web", "https://app.example.com/cb")
		if err != nil {
			t.Fatalf("ExchangeCode failed: %v", err)
		}
		if grant.RefreshToken == nil {
			t.Fatal("expected a refresh token with offline_access scope")
		}
		if grant.RefreshToken.Token == grant.AccessToken.Token {
			t.Error("refresh and access token share a value")
		}
	})

	t.Run("redirect mismatch does not leak tokens", func(t *testing.T) {
		st := store.NewMemory()
		svc := newTestService(st)
		user := seedUser(t, st)

		code, err := svc.IssueCode(ctx, "mail-web", user.ID, "https://app.example.com/cb", []string{"email"})
		if err != nil {
			t.Fatalf("IssueCode failed: %v", err)
		}

		if _, err := svc.ExchangeCode(ctx, code.Code, "mail-web", "https://app.example.com/other"); !errors.Is(err, store.ErrCodeInvalid) {
			t.Errorf("got %v, want ErrCodeInvalid", err)
		}
	})
}

func TestServiceRefresh(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := newTestService(st)
	user := seedUser(t, st)

	code, err := svc.IssueCode(ctx, "mail-web", user.ID, "https://app.example.com/cb", []string{"email", "offline_access"})
	if err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}
	grant, err := svc.ExchangeCode(ctx, code.Code, "mail-web", "https://app.example.com/cb")
	if err != nil {
		t.Fatalf("ExchangeCode failed: %v", err)
	}

	rotated, err := svc.Refresh(ctx, grant.RefreshToken.Token, "mail-web")
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if rotated.RefreshToken == nil {
		t.Fatal("rotation dropped the refresh token")
	}
	if rotated.RefreshToken.Token == grant.RefreshToken.Token {
		t.Error("rotation reused the old refresh token value")
	}

	// The consumed token must not work a second time.
	if _, err := svc.Refresh(ctx, grant.RefreshToken.Token, "mail-web"); !errors.Is(err, store.ErrRefreshTokenInvalid) {
		t.Errorf("replayed refresh: got %v, want ErrRefreshTokenInvalid", err)
	}
}

func TestServiceClaims(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := newTestService(st)
	user := seedUser(t, st)

	tests := []struct {
		name       string
		scopes     []string
		wantKeys   []string
		absentKeys []string
	}{
		{
			name:       "no scopes yields sub only",
			scopes:     nil,
			wantKeys:   []string{"sub"},
			absentKeys: []string{"email", "email_verified", "name"},
		},
		{
			name:       "email scope",
			scopes:     []string{ScopeEmail},
			wantKeys:   []string{"sub", "email", "email_verified"},
			absentKeys: []string{"name"},
		},
		{
			name:       "profile scope",
			scopes:     []string{ScopeProfile},
			wantKeys:   []string{"sub", "name"},
			absentKeys: []string{"email", "email_verified"},
		},
		{
			name:     "both scopes",
			scopes:   []string{ScopeEmail, ScopeProfile},
			wantKeys: []string{"sub", "email", "email_verified", "name"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			accessToken := domain.AccessToken{
				Token:     "at-" + tt.name,
				ClientID:  "mail-web",
				UserID:    user.ID,
				Scopes:    tt.scopes,
				ExpiresAt: time.Now().Add(time.Hour),
			}

			claims, err := svc.Claims(ctx, accessToken)
			if err != nil {
				t.Fatalf("Claims failed: %v", err)
			}

			for _, key := range tt.wantKeys {
				if _, ok := claims[key]; !ok {
					t.Errorf("missing claim %q", key)
				}
			}
			for _, key := range tt.absentKeys {
				if _, ok := claims[key]; ok {
					t.Errorf("unexpected claim %q", key)
				}
			}

			if claims["sub"] != user.ID.String() {
				t.Errorf("sub = %v, want %s", claims["sub"], user.ID)
			}
		})
	}
}

func TestServiceRevoke(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := newTestService(st)
	user := seedUser(t, st)

	code, err := svc.IssueCode(ctx, "mail-web", user.ID, "https://app.example.com/cb", []string{"email"})
	if err != nil {
		t.Fatalf("IssueCode failed: %v", err)
	}
	grant, err := svc.ExchangeCode(ctx, code.Code, "mail-web", "https://app.example.com/cb")
	if err != nil {
		t.Fatalf("ExchangeCode failed: %v", err)
	}

	svc.Revoke(ctx, grant.AccessToken.Token, "access_token")

	if _, err := svc.Authenticate(ctx, grant.AccessToken.Token); !errors.Is(err, store.ErrTokenNotFound) {
		t.Errorf("revoked token: got %v, want ErrTokenNotFound", err)
	}

	// Revoking garbage must be silent.
	svc.Revoke(ctx, "no-such-token", "")
}

func TestParseScopes(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"email", 1},
		{"email profile", 2},
		{"  email   profile  ", 2},
	}

	for _, tt := range tests {
		if got := ParseScopes(tt.in); len(got) != tt.want {
			t.Errorf("ParseScopes(%q) = %v, want %d scopes", tt.in, got, tt.want)
		}
	}
}
