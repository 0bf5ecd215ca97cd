package domain

import (
	"time"

	"github.com/google/uuid"
)

// ScopeOfflineAccess is the scope a client must request for a refresh token
// to be issued alongside the access token.
const ScopeOfflineAccess = "offline_access"

// RefreshToken is a long-lived, single-use credential. Each refresh rotates
// the token; presenting a used or revoked token fails the exchange.
type RefreshToken struct {
	Token     string
	ClientID  string
	UserID    uuid.UUID
	Scopes    []string
	Used      bool
	Revoked   bool
	ExpiresAt time.Time
	CreatedAt time.Time
}
