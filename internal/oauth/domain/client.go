package domain

import (
	"time"

	"github.com/google/uuid"
)

// Client is a registered third-party application integrating
// "Login with Xstar Mail". The secret is only ever stored as a bcrypt hash.
// Clients are immutable after registration apart from secret rotation.
type Client struct {
	ID           string
	SecretHash   string
	Name         string
	RedirectURIs []string
	FirstParty   bool
	OwnerUserID  uuid.UUID
	CreatedAt    time.Time
}
