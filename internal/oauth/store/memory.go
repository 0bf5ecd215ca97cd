package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xstarmail/authd/internal/account"
	"github.com/xstarmail/authd/internal/oauth/domain"
	"github.com/xstarmail/authd/internal/session"
)

// Memory is an in-memory store for development, tests and single-instance
// deployments. A single mutex guards every map, which trivially makes code
// and refresh-token consumption linearizable. Records are copied in and out
// so callers never share memory with the store.
type Memory struct {
	mu sync.RWMutex

	clients       map[string]domain.Client
	users         map[uuid.UUID]account.User
	usersByEmail  map[string]uuid.UUID
	codes         map[string]domain.AuthorizationCode
	accessTokens  map[string]domain.AccessToken
	refreshTokens map[string]domain.RefreshToken
	sessions      map[string]session.Session

	// now is swappable so expiry behaviour is testable without sleeping.
	now func() time.Time
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		clients:       make(map[string]domain.Client),
		users:         make(map[uuid.UUID]account.User),
		usersByEmail:  make(map[string]uuid.UUID),
		codes:         make(map[string]domain.AuthorizationCode),
		accessTokens:  make(map[string]domain.AccessToken),
		refreshTokens: make(map[string]domain.RefreshToken),
		sessions:      make(map[string]session.Session),
		now:           time.Now,
	}
}

// SetClock overrides the store's time source. Intended for tests.
func (s *Memory) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *Memory) Close() {}

func (s *Memory) CreateClient(ctx context.Context, client domain.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if client.CreatedAt.IsZero() {
		client.CreatedAt = s.now()
	}
	s.clients[client.ID] = client
	return nil
}

func (s *Memory) GetClientByID(ctx context.Context, id string) (domain.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	client, ok := s.clients[id]
	if !ok {
		return domain.Client{}, ErrClientNotFound
	}
	return client, nil
}

func (s *Memory) CreateUser(ctx context.Context, user account.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if user.CreatedAt.IsZero() {
		user.CreatedAt = s.now()
	}
	s.users[user.ID] = user
	s.usersByEmail[user.Email] = user.ID
	return nil
}

func (s *Memory) GetUserByID(ctx context.Context, id uuid.UUID) (account.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return account.User{}, ErrUserNotFound
	}
	return user, nil
}

func (s *Memory) GetUserByEmail(ctx context.Context, email string) (account.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usersByEmail[email]
	if !ok {
		return account.User{}, ErrUserNotFound
	}
	return s.users[id], nil
}

func (s *Memory) PutCode(ctx context.Context, code domain.AuthorizationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.codes[code.Code]; exists {
		return ErrCodeConflict
	}
	if code.CreatedAt.IsZero() {
		code.CreatedAt = s.now()
	}
	code.Used = false
	s.codes[code.Code] = code
	return nil
}

func (s *Memory) ConsumeCode(ctx context.Context, code, clientID, redirectURI string) (domain.AuthorizationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	authCode, ok := s.codes[code]
	if !ok {
		return domain.AuthorizationCode{}, ErrCodeInvalid
	}
	if authCode.ClientID != clientID || authCode.RedirectURI != redirectURI {
		return domain.AuthorizationCode{}, ErrCodeInvalid
	}
	if authCode.Used || authCode.Expired(s.now()) {
		return domain.AuthorizationCode{}, ErrCodeInvalid
	}

	authCode.Used = true
	s.codes[code] = authCode
	return authCode, nil
}

func (s *Memory) DeleteExpiredCodes(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed int64
	for value, code := range s.codes {
		if code.Expired(now) {
			delete(s.codes, value)
			removed++
		}
	}
	return removed, nil
}

func (s *Memory) PutAccessToken(ctx context.Context, token domain.AccessToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token.CreatedAt.IsZero() {
		token.CreatedAt = s.now()
	}
	s.accessTokens[token.Token] = token
	return nil
}

func (s *Memory) GetAccessToken(ctx context.Context, token string) (domain.AccessToken, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	accessToken, ok := s.accessTokens[token]
	if !ok || accessToken.Revoked || accessToken.Expired(s.now()) {
		return domain.AccessToken{}, ErrTokenNotFound
	}
	return accessToken, nil
}

func (s *Memory) RevokeAccessToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if accessToken, ok := s.accessTokens[token]; ok {
		accessToken.Revoked = true
		s.accessTokens[token] = accessToken
	}
	return nil
}

func (s *Memory) PutRefreshToken(ctx context.Context, token domain.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token.CreatedAt.IsZero() {
		token.CreatedAt = s.now()
	}
	s.refreshTokens[token.Token] = token
	return nil
}

func (s *Memory) ConsumeRefreshToken(ctx context.Context, token, clientID string) (domain.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	refreshToken, ok := s.refreshTokens[token]
	if !ok || refreshToken.ClientID != clientID {
		return domain.RefreshToken{}, ErrRefreshTokenInvalid
	}
	if refreshToken.Used || refreshToken.Revoked || !s.now().Before(refreshToken.ExpiresAt) {
		return domain.RefreshToken{}, ErrRefreshTokenInvalid
	}

	refreshToken.Used = true
	s.refreshTokens[token] = refreshToken
	return refreshToken, nil
}

func (s *Memory) RevokeRefreshToken(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if refreshToken, ok := s.refreshTokens[token]; ok {
		refreshToken.Revoked = true
		s.refreshTokens[token] = refreshToken
	}
	return nil
}

func (s *Memory) DeleteExpiredTokens(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var removed int64
	for value, token := range s.accessTokens {
		if token.Expired(now) {
			delete(s.accessTokens, value)
			removed++
		}
	}
	for value, token := range s.refreshTokens {
		if !now.Before(token.ExpiresAt) {
			delete(s.refreshTokens, value)
			removed++
		}
	}
	return removed, nil
}

func (s *Memory) SaveSession(ctx context.Context, sess session.Session) (session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess.ID == uuid.Nil {
		id, err := uuid.NewV7()
		if err != nil {
			return session.Session{}, err
		}
		sess.ID = id
		sess.CreatedAt = s.now()
	}
	s.sessions[sess.Token] = sess
	return sess, nil
}

func (s *Memory) GetSessionByToken(ctx context.Context, token string) (session.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[token]
	if !ok || !s.now().Before(sess.ExpiresAt) {
		return session.Session{}, ErrSessionNotFound
	}
	return sess, nil
}

func (s *Memory) DeleteSession(ctx context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, token)
	return nil
}
