package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/xstarmail/authd/internal/account"
	"github.com/xstarmail/authd/internal/database"
	"github.com/xstarmail/authd/internal/oauth/domain"
	"github.com/xstarmail/authd/internal/session"
)

const pgUniqueViolation = "23505"

// Postgres persists all records in a Postgres database. Code and
// refresh-token consumption are conditional single-statement updates, so
// their atomicity holds across processes without any in-memory locking.
type Postgres struct {
	DB *database.Database
}

var _ Store = (*Postgres)(nil)

func NewPostgres(db *database.Database) *Postgres {
	return &Postgres{DB: db}
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.DB.Ping(ctx)
}

func (s *Postgres) Close() {
	s.DB.Close()
}

func (s *Postgres) CreateClient(ctx context.Context, client domain.Client) error {
	var ownerID *uuid.UUID
	if client.OwnerUserID != uuid.Nil {
		ownerID = &client.OwnerUserID
	}

	query := `
		INSERT INTO tbl_client (id, secret_hash, name, redirect_uris, first_party, owner_user_id)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.DB.Exec(ctx, query,
		client.ID,
		client.SecretHash,
		client.Name,
		client.RedirectURIs,
		client.FirstParty,
		ownerID,
	); err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}
	return nil
}

func (s *Postgres) GetClientByID(ctx context.Context, id string) (domain.Client, error) {
	var client domain.Client
	var ownerID *uuid.UUID

	query := `
		SELECT id, secret_hash, name, redirect_uris, first_party, owner_user_id, created_at
		FROM tbl_client
		WHERE id = $1
	`
	row := s.DB.QueryRow(ctx, query, id)
	if err := row.Scan(
		&client.ID,
		&client.SecretHash,
		&client.Name,
		&client.RedirectURIs,
		&client.FirstParty,
		&ownerID,
		&client.CreatedAt,
	); err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return domain.Client{}, ErrClientNotFound
		}
		return domain.Client{}, fmt.Errorf("failed to get client by ID: %w", err)
	}

	if ownerID != nil {
		client.OwnerUserID = *ownerID
	}
	return client, nil
}

func (s *Postgres) CreateUser(ctx context.Context, user account.User) error {
	query := `
		INSERT INTO tbl_user (id, email, email_verified, name, password_hash)
		VALUES ($1, $2, $3, $4, $5)
	`
	if _, err := s.DB.Exec(ctx, query,
		user.ID,
		user.Email,
		user.EmailVerified,
		user.Name,
		user.PasswordHash,
	); err != nil {
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

func (s *Postgres) GetUserByID(ctx context.Context, id uuid.UUID) (account.User, error) {
	query := `
		SELECT id, email, email_verified, name, password_hash, created_at
		FROM tbl_user
		WHERE id = $1
	`
	return s.scanUser(s.DB.QueryRow(ctx, query, id))
}

func (s *Postgres) GetUserByEmail(ctx context.Context, email string) (account.User, error) {
	query := `
		SELECT id, email, email_verified, name, password_hash, created_at
		FROM tbl_user
		WHERE email = $1
	`
	return s.scanUser(s.DB.QueryRow(ctx, query, email))
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Postgres) scanUser(row rowScanner) (account.User, error) {
	var user account.User
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.EmailVerified,
		&user.Name,
		&user.PasswordHash,
		&user.CreatedAt,
	); err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return account.User{}, ErrUserNotFound
		}
		return account.User{}, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

func (s *Postgres) PutCode(ctx context.Context, code domain.AuthorizationCode) error {
	query := `
		INSERT INTO tbl_authorization_code (code, client_id, user_id, redirect_uri, scopes, used, expires_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, $6)
	`
	if _, err := s.DB.Exec(ctx, query,
		code.Code,
		code.ClientID,
		code.UserID,
		code.RedirectURI,
		code.Scopes,
		code.ExpiresAt,
	); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrCodeConflict
		}
		return fmt.Errorf("failed to save authorization code: %w", err)
	}
	return nil
}

func (s *Postgres) ConsumeCode(ctx context.Context, code, clientID, redirectURI string) (domain.AuthorizationCode, error) {
	// Conditional update: the row-level lock taken by UPDATE makes the
	// load-check-flip indivisible, so concurrent exchanges of the same
	// code serialize and only the first sees used = FALSE.
	query := `
		UPDATE tbl_authorization_code
		SET used = TRUE
		WHERE code = $1
		  AND client_id = $2
		  AND redirect_uri = $3
		  AND used = FALSE
		  AND expires_at > NOW()
		RETURNING user_id, scopes, expires_at, created_at
	`

	authCode := domain.AuthorizationCode{
		Code:        code,
		ClientID:    clientID,
		RedirectURI: redirectURI,
		Used:        true,
	}
	row := s.DB.QueryRow(ctx, query, code, clientID, redirectURI)
	if err := row.Scan(&authCode.UserID, &authCode.Scopes, &authCode.ExpiresAt, &authCode.CreatedAt); err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return domain.AuthorizationCode{}, ErrCodeInvalid
		}
		return domain.AuthorizationCode{}, fmt.Errorf("failed to consume authorization code: %w", err)
	}

	return authCode, nil
}

func (s *Postgres) DeleteExpiredCodes(ctx context.Context) (int64, error) {
	tag, err := s.DB.Exec(ctx, `DELETE FROM tbl_authorization_code WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired authorization codes: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (s *Postgres) PutAccessToken(ctx context.Context, token domain.AccessToken) error {
	query := `
		INSERT INTO tbl_access_token (token, client_id, user_id, scopes, revoked, expires_at)
		VALUES ($1, $2, $3, $4, FALSE, $5)
	`
	if _, err := s.DB.Exec(ctx, query,
		token.Token,
		token.ClientID,
		token.UserID,
		token.Scopes,
		token.ExpiresAt,
	); err != nil {
		return fmt.Errorf("failed to save access token: %w", err)
	}
	return nil
}

func (s *Postgres) GetAccessToken(ctx context.Context, token string) (domain.AccessToken, error) {
	var accessToken domain.AccessToken

	query := `
		SELECT token, client_id, user_id, scopes, revoked, expires_at, created_at
		FROM tbl_access_token
		WHERE token = $1 AND revoked = FALSE AND expires_at > NOW()
	`
	row := s.DB.QueryRow(ctx, query, token)
	if err := row.Scan(
		&accessToken.Token,
		&accessToken.ClientID,
		&accessToken.UserID,
		&accessToken.Scopes,
		&accessToken.Revoked,
		&accessToken.ExpiresAt,
		&accessToken.CreatedAt,
	); err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return domain.AccessToken{}, ErrTokenNotFound
		}
		return domain.AccessToken{}, fmt.Errorf("failed to get access token: %w", err)
	}

	return accessToken, nil
}

func (s *Postgres) RevokeAccessToken(ctx context.Context, token string) error {
	if _, err := s.DB.Exec(ctx, `UPDATE tbl_access_token SET revoked = TRUE WHERE token = $1`, token); err != nil {
		return fmt.Errorf("failed to revoke access token: %w", err)
	}
	return nil
}

func (s *Postgres) PutRefreshToken(ctx context.Context, token domain.RefreshToken) error {
	query := `
		INSERT INTO tbl_refresh_token (token, client_id, user_id, scopes, used, revoked, expires_at)
		VALUES ($1, $2, $3, $4, FALSE, FALSE, $5)
	`
	if _, err := s.DB.Exec(ctx, query,
		token.Token,
		token.ClientID,
		token.UserID,
		token.Scopes,
		token.ExpiresAt,
	); err != nil {
		return fmt.Errorf("failed to save refresh token: %w", err)
	}
	return nil
}

func (s *Postgres) ConsumeRefreshToken(ctx context.Context, token, clientID string) (domain.RefreshToken, error) {
	query := `
		UPDATE tbl_refresh_token
		SET used = TRUE
		WHERE token = $1
		  AND client_id = $2
		  AND used = FALSE
		  AND revoked = FALSE
		  AND expires_at > NOW()
		RETURNING user_id, scopes, expires_at, created_at
	`

	refreshToken := domain.RefreshToken{
		Token:    token,
		ClientID: clientID,
		Used:     true,
	}
	row := s.DB.QueryRow(ctx, query, token, clientID)
	if err := row.Scan(&refreshToken.UserID, &refreshToken.Scopes, &refreshToken.ExpiresAt, &refreshToken.CreatedAt); err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return domain.RefreshToken{}, ErrRefreshTokenInvalid
		}
		return domain.RefreshToken{}, fmt.Errorf("failed to consume refresh token: %w", err)
	}

	return refreshToken, nil
}

func (s *Postgres) RevokeRefreshToken(ctx context.Context, token string) error {
	if _, err := s.DB.Exec(ctx, `UPDATE tbl_refresh_token SET revoked = TRUE WHERE token = $1`, token); err != nil {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

func (s *Postgres) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	var total int64

	tag, err := s.DB.Exec(ctx, `DELETE FROM tbl_access_token WHERE expires_at <= NOW()`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired access tokens: %w", err)
	}
	total += tag.RowsAffected()

	tag, err = s.DB.Exec(ctx, `DELETE FROM tbl_refresh_token WHERE expires_at <= NOW()`)
	if err != nil {
		return total, fmt.Errorf("failed to delete expired refresh tokens: %w", err)
	}
	total += tag.RowsAffected()

	return total, nil
}

func (s *Postgres) SaveSession(ctx context.Context, sess session.Session) (session.Session, error) {
	pending, err := marshalPending(sess.PendingAuthorize)
	if err != nil {
		return session.Session{}, err
	}

	var userID *uuid.UUID
	if sess.UserID != uuid.Nil {
		userID = &sess.UserID
	}

	if sess.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return session.Session{}, fmt.Errorf("failed to generate session ID: %w", err)
		}
		sess.ID = id

		query := `
			INSERT INTO tbl_session (id, token, user_id, pending_authorize, expires_at)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING created_at
		`
		if err := s.DB.QueryRow(ctx, query, sess.ID, sess.Token, userID, pending, sess.ExpiresAt).Scan(&sess.CreatedAt); err != nil {
			return session.Session{}, fmt.Errorf("failed to create session: %w", err)
		}
		return sess, nil
	}

	query := `UPDATE tbl_session SET user_id = $1, pending_authorize = $2, expires_at = $3 WHERE id = $4`
	if _, err := s.DB.Exec(ctx, query, userID, pending, sess.ExpiresAt, sess.ID); err != nil {
		return session.Session{}, fmt.Errorf("failed to update session: %w", err)
	}
	return sess, nil
}

func (s *Postgres) GetSessionByToken(ctx context.Context, token string) (session.Session, error) {
	var sess session.Session
	var userID *uuid.UUID
	var pending []byte

	query := `
		SELECT id, user_id, pending_authorize, expires_at, created_at
		FROM tbl_session
		WHERE token = $1 AND expires_at > NOW()
	`
	row := s.DB.QueryRow(ctx, query, token)
	if err := row.Scan(&sess.ID, &userID, &pending, &sess.ExpiresAt, &sess.CreatedAt); err != nil {
		if errors.Is(err, database.ErrNoRows) {
			return session.Session{}, ErrSessionNotFound
		}
		return session.Session{}, fmt.Errorf("failed to get session by token: %w", err)
	}

	sess.Token = token
	if userID != nil {
		sess.UserID = *userID
	}
	if len(pending) > 0 {
		var pa session.PendingAuthorize
		if err := json.Unmarshal(pending, &pa); err != nil {
			return session.Session{}, fmt.Errorf("failed to unmarshal pending authorize request: %w", err)
		}
		sess.PendingAuthorize = &pa
	}

	return sess, nil
}

func (s *Postgres) DeleteSession(ctx context.Context, token string) error {
	if _, err := s.DB.Exec(ctx, `DELETE FROM tbl_session WHERE token = $1`, token); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

func marshalPending(pending *session.PendingAuthorize) ([]byte, error) {
	if pending == nil {
		return nil, nil
	}
	data, err := json.Marshal(pending)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pending authorize request: %w", err)
	}
	return data, nil
}
