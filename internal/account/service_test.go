package account_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/xstarmail/authd/internal/account"
	"github.com/xstarmail/authd/internal/oauth/store"
)

func TestServiceLogin(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	svc := account.NewService(st)

	passwordHash, err := account.HashPassword("correct horse")
	if err != nil {
		t.Fatalf("HashPassword failed: %v", err)
	}

	user := account.User{
		ID:           uuid.New(),
		Email:        "ada@xstarmail.com",
		PasswordHash: passwordHash,
	}
	if err := st.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}

	t.Run("accepts the right password", func(t *testing.T) {
		got, err := svc.Login(ctx, user.Email, "correct horse")
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
		if got.ID != user.ID {
			t.Errorf("got user %s, want %s", got.ID, user.ID)
		}
	})

	t.Run("rejects the wrong password", func(t *testing.T) {
		if _, err := svc.Login(ctx, user.Email, "battery staple"); err == nil {
			t.Error("wrong password accepted")
		}
	})

	t.Run("rejects unknown email", func(t *testing.T) {
		if _, err := svc.Login(ctx, "ghost@xstarmail.com", "correct horse"); err == nil {
			t.Error("unknown email accepted")
		}
	})
}
