package account

import (
	"time"

	"github.com/google/uuid"
)

// User is a mail-account resource owner.
type User struct {
	ID            uuid.UUID
	Email         string
	EmailVerified bool
	Name          string
	PasswordHash  string
	CreatedAt     time.Time
}

// Identity is the minimal projection of a user exposed through the userinfo
// endpoint. Which fields end up on the wire is decided by the token's scopes.
type Identity struct {
	ID            uuid.UUID
	Email         string
	EmailVerified bool
	Name          string
}

// Identity returns the user's identity projection.
func (u User) Identity() Identity {
	return Identity{
		ID:            u.ID,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		Name:          u.Name,
	}
}
