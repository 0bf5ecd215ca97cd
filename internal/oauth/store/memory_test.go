package store

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/xstarmail/authd/internal/oauth/domain"
	"github.com/xstarmail/authd/internal/session"
)

func newTestCode(value string) domain.AuthorizationCode {
	return domain.AuthorizationCode{
		Code:        value,
		ClientID:    "mail-web",
		UserID:      uuid.New(),
		RedirectURI: "https://app.example.com/callback",
		Scopes:      []string{"email", "profile"},
		ExpiresAt:   time.Now().Add(2 * time.Minute),
		CreatedAt:   time.Now(),
	}
}

func TestMemoryConsumeCode(t *testing.T) {
	ctx := context.Background()

	t.Run("consumes a valid code once", func(t *testing.T) {
		s := NewMemory()
		code := newTestCode("code-1")
		if err := s.PutCode(ctx, code); err != nil {
			t.Fatalf("PutCode failed: %v", err)
		}

		got, err := s.ConsumeCode(ctx, code.Code, code.ClientID, code.RedirectURI)
		if err != nil {
			t.Fatalf("ConsumeCode failed: %v", err)
		}
		if got.UserID != code.UserID {
			t.Errorf("got user %s, want %s", got.UserID, code.UserID)
		}

		if _, err := s.ConsumeCode(ctx, code.Code, code.ClientID, code.RedirectURI); !errors.Is(err, ErrCodeInvalid) {
			t.Errorf("second consume: got %v, want ErrCodeInvalid", err)
		}
	})

	t.Run("rejects unknown code", func(t *testing.T) {
		s := NewMemory()
		if _, err := s.ConsumeCode(ctx, "nope", "mail-web", "https://app.example.com/callback"); !errors.Is(err, ErrCodeInvalid) {
			t.Errorf("got %v, want ErrCodeInvalid", err)
		}
	})

	t.Run("rejects client mismatch", func(t *testing.T) {
		s := NewMemory()
		code := newTestCode("code-2")
		if err := s.PutCode(ctx, code); err != nil {
			t.Fatalf("PutCode failed: %v", err)
		}

		if _, err := s.ConsumeCode(ctx, code.Code, "other-client", code.RedirectURI); !errors.Is(err, ErrCodeInvalid) {
			t.Errorf("got %v, want ErrCodeInvalid", err)
		}

		// The mismatch must not have burned the code for the real client.
		if _, err := s.ConsumeCode(ctx, code.Code, code.ClientID, code.RedirectURI); err != nil {
			t.Errorf("consume after mismatch failed: %v", err)
		}
	})

	t.Run("rejects redirect_uri mismatch", func(t *testing.T) {
		s := NewMemory()
		code := newTestCode("code-3")
		if err := s.PutCode(ctx, code); err != nil {
			t.Fatalf("PutCode failed: %v", err)
		}

		for _, candidate := range []string{
			"https://app.example.com/callback/",
			"https://app.example.com/callback?x=1",
			"https://app.example.com/other",
			"",
		} {
			if _, err := s.ConsumeCode(ctx, code.Code, code.ClientID, candidate); !errors.Is(err, ErrCodeInvalid) {
				t.Errorf("redirect %q: got %v, want ErrCodeInvalid", candidate, err)
			}
		}
	})

	t.Run("rejects expired code", func(t *testing.T) {
		s := NewMemory()
		code := newTestCode("code-4")
		if err := s.PutCode(ctx, code); err != nil {
			t.Fatalf("PutCode failed: %v", err)
		}

		s.SetClock(func() time.Time { return code.ExpiresAt })

		if _, err := s.ConsumeCode(ctx, code.Code, code.ClientID, code.RedirectURI); !errors.Is(err, ErrCodeInvalid) {
			t.Errorf("got %v, want ErrCodeInvalid", err)
		}
	})

	t.Run("rejects duplicate code value", func(t *testing.T) {
		s := NewMemory()
		code := newTestCode("code-5")
		if err := s.PutCode(ctx, code); err != nil {
			t.Fatalf("PutCode failed: %v", err)
		}
		if err := s.PutCode(ctx, code); !errors.Is(err, ErrCodeConflict) {
			t.Errorf("got %v, want ErrCodeConflict", err)
		}
	})
}

func TestMemoryConsumeCodeConcurrent(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	code := newTestCode("contended")
	if err := s.PutCode(ctx, code); err != nil {
		t.Fatalf("PutCode failed: %v", err)
	}

	const workers = 64

	var wg sync.WaitGroup
	var successes atomic.Int64
	start := make(chan struct{})

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start

			_, err := s.ConsumeCode(ctx, code.Code, code.ClientID, code.RedirectURI)
			if err == nil {
				successes.Add(1)
			} else if !errors.Is(err, ErrCodeInvalid) {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}

	close(start)
	wg.Wait()

	if got := successes.Load(); got != 1 {
		t.Errorf("got %d successful consumes, want exactly 1", got)
	}
}

func TestMemoryAccessTokens(t *testing.T) {
	ctx := context.Background()

	token := domain.AccessToken{
		Token:     "at-1",
		ClientID:  "mail-web",
		UserID:    uuid.New(),
		Scopes:    []string{"email"},
		ExpiresAt: time.Now().Add(time.Hour),
	}

	t.Run("round trips a live token", func(t *testing.T) {
		s := NewMemory()
		if err := s.PutAccessToken(ctx, token); err != nil {
			t.Fatalf("PutAccessToken failed: %v", err)
		}

		got, err := s.GetAccessToken(ctx, token.Token)
		if err != nil {
			t.Fatalf("GetAccessToken failed: %v", err)
		}
		if got.UserID != token.UserID {
			t.Errorf("got user %s, want %s", got.UserID, token.UserID)
		}
	})

	t.Run("expired token reads as missing", func(t *testing.T) {
		s := NewMemory()
		if err := s.PutAccessToken(ctx, token); err != nil {
			t.Fatalf("PutAccessToken failed: %v", err)
		}
		s.SetClock(func() time.Time { return token.ExpiresAt.Add(time.Second) })

		if _, err := s.GetAccessToken(ctx, token.Token); !errors.Is(err, ErrTokenNotFound) {
			t.Errorf("got %v, want ErrTokenNotFound", err)
		}
	})

	t.Run("revoked token reads as missing", func(t *testing.T) {
		s := NewMemory()
		if err := s.PutAccessToken(ctx, token); err != nil {
			t.Fatalf("PutAccessToken failed: %v", err)
		}
		if err := s.RevokeAccessToken(ctx, token.Token); err != nil {
			t.Fatalf("RevokeAccessToken failed: %v", err)
		}

		if _, err := s.GetAccessToken(ctx, token.Token); !errors.Is(err, ErrTokenNotFound) {
			t.Errorf("got %v, want ErrTokenNotFound", err)
		}
	})
}

func TestMemoryConsumeRefreshToken(t *testing.T) {
	ctx := context.Background()

	refreshToken := domain.RefreshToken{
		Token:     "rt-1",
		ClientID:  "mail-web",
		UserID:    uuid.New(),
		Scopes:    []string{"email", "offline_access"},
		ExpiresAt: time.Now().Add(24 * time.Hour),
	}

	t.Run("is single use", func(t *testing.T) {
		s := NewMemory()
		if err := s.PutRefreshToken(ctx, refreshToken); err != nil {
			t.Fatalf("PutRefreshToken failed: %v", err)
		}

		if _, err := s.ConsumeRefreshToken(ctx, refreshToken.Token, refreshToken.ClientID); err != nil {
			t.Fatalf("first consume failed: %v", err)
		}
		if _, err := s.ConsumeRefreshToken(ctx, refreshToken.Token, refreshToken.ClientID); !errors.Is(err, ErrRefreshTokenInvalid) {
			t.Errorf("second consume: got %v, want ErrRefreshTokenInvalid", err)
		}
	})

	t.Run("is bound to the issuing client", func(t *testing.T) {
		s := NewMemory()
		if err := s.PutRefreshToken(ctx, refreshToken); err != nil {
			t.Fatalf("PutRefreshToken failed: %v", err)
		}

		if _, err := s.ConsumeRefreshToken(ctx, refreshToken.Token, "other-client"); !errors.Is(err, ErrRefreshTokenInvalid) {
			t.Errorf("got %v, want ErrRefreshTokenInvalid", err)
		}
	})

	t.Run("rejects revoked token", func(t *testing.T) {
		s := NewMemory()
		if err := s.PutRefreshToken(ctx, refreshToken); err != nil {
			t.Fatalf("PutRefreshToken failed: %v", err)
		}
		if err := s.RevokeRefreshToken(ctx, refreshToken.Token); err != nil {
			t.Fatalf("RevokeRefreshToken failed: %v", err)
		}

		if _, err := s.ConsumeRefreshToken(ctx, refreshToken.Token, refreshToken.ClientID); !errors.Is(err, ErrRefreshTokenInvalid) {
			t.Errorf("got %v, want ErrRefreshTokenInvalid", err)
		}
	})
}

func TestMemoryDeleteExpired(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	base := time.Now()

	live := newTestCode("live")
	live.ExpiresAt = base.Add(time.Hour)
	dead := newTestCode("dead")
	dead.ExpiresAt = base.Add(time.Minute)

	for _, code := range []domain.AuthorizationCode{live, dead} {
		if err := s.PutCode(ctx, code); err != nil {
			t.Fatalf("PutCode failed: %v", err)
		}
	}

	s.SetClock(func() time.Time { return base.Add(30 * time.Minute) })

	removed, err := s.DeleteExpiredCodes(ctx)
	if err != nil {
		t.Fatalf("DeleteExpiredCodes failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed %d codes, want 1", removed)
	}

	if _, err := s.ConsumeCode(ctx, live.Code, live.ClientID, live.RedirectURI); err != nil {
		t.Errorf("live code should survive the sweep: %v", err)
	}
}

func TestMemorySessions(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	sess := session.Session{
		Token:     "sess-token",
		ExpiresAt: time.Now().Add(time.Hour),
	}

	saved, err := s.SaveSession(ctx, sess)
	if err != nil {
		t.Fatalf("SaveSession failed: %v", err)
	}
	if saved.ID == uuid.Nil {
		t.Error("SaveSession did not assign an ID")
	}

	got, err := s.GetSessionByToken(ctx, sess.Token)
	if err != nil {
		t.Fatalf("GetSessionByToken failed: %v", err)
	}
	if got.ID != saved.ID {
		t.Errorf("got session %s, want %s", got.ID, saved.ID)
	}

	s.SetClock(func() time.Time { return sess.ExpiresAt })
	if _, err := s.GetSessionByToken(ctx, sess.Token); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("expired session: got %v, want ErrSessionNotFound", err)
	}
}
