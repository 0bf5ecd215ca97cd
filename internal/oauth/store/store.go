// Package store persists the authorization server's records: clients, users,
// authorization codes, access and refresh tokens, and browser sessions.
//
// Two implementations exist: a Postgres store for real deployments and an
// in-memory store for development and tests. Both keep code and refresh-token
// consumption linearizable, so two callers racing the same credential see
// exactly one success.
package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/xstarmail/authd/internal/account"
	"github.com/xstarmail/authd/internal/oauth/domain"
	"github.com/xstarmail/authd/internal/session"
)

var (
	ErrClientNotFound = errors.New("client not found")
	ErrUserNotFound   = errors.New("user not found")

	// ErrCodeConflict signals an insert collision on the code value. The
	// caller regenerates and retries.
	ErrCodeConflict = errors.New("authorization code already exists")

	// ErrCodeInvalid covers every code-consumption failure: unknown code,
	// expired, already used, or client/redirect mismatch. The reasons are
	// deliberately not distinguished so responses cannot be used as an
	// oracle; stores may log the specific cause.
	ErrCodeInvalid = errors.New("authorization code invalid")

	// ErrTokenNotFound covers missing, expired and revoked access tokens.
	ErrTokenNotFound = errors.New("access token not found")

	// ErrRefreshTokenInvalid covers unknown, expired, used and revoked
	// refresh tokens, and client mismatches.
	ErrRefreshTokenInvalid = errors.New("refresh token invalid")

	ErrSessionNotFound = errors.New("session not found")
)

type ClientStore interface {
	CreateClient(ctx context.Context, client domain.Client) error
	GetClientByID(ctx context.Context, id string) (domain.Client, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user account.User) error
	GetUserByID(ctx context.Context, id uuid.UUID) (account.User, error)
	GetUserByEmail(ctx context.Context, email string) (account.User, error)
}

type CodeStore interface {
	// PutCode inserts a fresh code, failing with ErrCodeConflict on a
	// value collision.
	PutCode(ctx context.Context, code domain.AuthorizationCode) error

	// ConsumeCode atomically loads the code, verifies the stored clientID
	// and redirectURI match the presented values, verifies the code is
	// unexpired and unused, and flips used to true. All checks and the
	// flip are one indivisible step: concurrent callers racing the same
	// code see exactly one success, the rest ErrCodeInvalid.
	ConsumeCode(ctx context.Context, code, clientID, redirectURI string) (domain.AuthorizationCode, error)

	DeleteExpiredCodes(ctx context.Context) (int64, error)
}

type TokenStore interface {
	PutAccessToken(ctx context.Context, token domain.AccessToken) error

	// GetAccessToken returns the token, treating expired and revoked
	// tokens identically to absent ones.
	GetAccessToken(ctx context.Context, token string) (domain.AccessToken, error)

	RevokeAccessToken(ctx context.Context, token string) error

	PutRefreshToken(ctx context.Context, token domain.RefreshToken) error

	// ConsumeRefreshToken is the refresh-token analogue of ConsumeCode:
	// single-use, atomic, bound to the issuing client.
	ConsumeRefreshToken(ctx context.Context, token, clientID string) (domain.RefreshToken, error)

	RevokeRefreshToken(ctx context.Context, token string) error

	DeleteExpiredTokens(ctx context.Context) (int64, error)
}

type SessionStore interface {
	SaveSession(ctx context.Context, sess session.Session) (session.Session, error)
	GetSessionByToken(ctx context.Context, token string) (session.Session, error)
	DeleteSession(ctx context.Context, token string) error
}

// Store is the full persistence surface the server is wired against.
type Store interface {
	ClientStore
	UserStore
	CodeStore
	TokenStore
	SessionStore

	Ping(ctx context.Context) error
	Close()
}
