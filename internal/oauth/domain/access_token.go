package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// AccessToken is an opaque bearer credential. Tokens are immutable once
// issued; they expire passively or are revoked out of band.
type AccessToken struct {
	Token     string
	ClientID  string
	UserID    uuid.UUID
	Scopes    []string
	Revoked   bool
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the token's lifetime has elapsed at now.
func (t AccessToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

// HasScope reports whether the token grants the named scope.
func (t AccessToken) HasScope(scope string) bool {
	return slices.Contains(t.Scopes, scope)
}
