package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuthorizationCode is a short-lived, single-use credential minted by the
// authorize endpoint and exchanged for an access token. Used transitions
// false to true exactly once; the store is responsible for making that
// transition atomic.
type AuthorizationCode struct {
	Code        string    `json:"code"`
	ClientID    string    `json:"client_id"`
	UserID      uuid.UUID `json:"user_id"`
	RedirectURI string    `json:"redirect_uri"`
	Scopes      []string  `json:"scopes"`
	Used        bool      `json:"used"`
	ExpiresAt   time.Time `json:"expires_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// Expired reports whether the code's lifetime has elapsed at now.
func (c AuthorizationCode) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}
