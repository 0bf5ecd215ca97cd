package session

import (
	"time"

	"github.com/google/uuid"
	"github.com/xstarmail/authd/internal/random"
)

const (
	CookieName = "XSID"

	// Browser session lifetime. The session only carries the resource
	// owner's login state and, transiently, a pending authorize request.
	DefaultExpiry = 8 * time.Hour
)

// ContextKey is the request-context key under which the middleware stores
// the current session.
type contextKeyType struct{}

var ContextKey contextKeyType

// PendingAuthorize is an authorize request parked in the session while the
// resource owner logs in or decides on consent. The state value is carried
// only to be echoed back on the final redirect; it is never interpreted.
type PendingAuthorize struct {
	ClientID     string   `json:"client_id"`
	RedirectURI  string   `json:"redirect_uri"`
	ResponseType string   `json:"response_type"`
	Scopes       []string `json:"scopes"`
	State        string   `json:"state"`
}

// Session is a resource-owner browser session.
type Session struct {
	ID               uuid.UUID
	Token            string
	UserID           uuid.UUID
	PendingAuthorize *PendingAuthorize
	ExpiresAt        time.Time
	CreatedAt        time.Time
}

// Authenticated reports whether a resource owner has logged in on this
// session.
func (s Session) Authenticated() bool {
	return s.UserID != uuid.Nil
}

// New mints an anonymous session with a fresh token.
func New() (Session, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Session{}, err
	}

	token, err := random.URLSafeString(tokenBytes)
	if err != nil {
		return Session{}, err
	}

	now := time.Now().UTC()
	return Session{
		ID:        id,
		Token:     token,
		ExpiresAt: now.Add(DefaultExpiry),
		CreatedAt: now,
	}, nil
}

const tokenBytes = 32
