package oauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/xstarmail/authd/internal/errors"
	"github.com/xstarmail/authd/internal/oauth/domain"
	"github.com/xstarmail/authd/internal/oauth/store"
	"github.com/xstarmail/authd/internal/random"
)

const (
	ScopeEmail   = "email"
	ScopeProfile = "profile"

	// codeBytes yields 192 bits of entropy per authorization code,
	// accessTokenBytes 256 bits per token.
	codeBytes        = 24
	accessTokenBytes = 32

	// putCodeAttempts bounds regeneration on a value collision. With
	// 192-bit codes a single collision is already implausible.
	putCodeAttempts = 3
)

// Service implements the issuance rules of the authorization server: codes,
// access tokens and refresh tokens. Handlers translate its errors onto the
// OAuth wire vocabulary.
type Service struct {
	Store           store.Store
	Logger          *slog.Logger
	CodeTTL         time.Duration
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// StoreTimeout bounds every store round trip. A store that exceeds it
	// surfaces as server_error rather than hanging the request.
	StoreTimeout time.Duration
}

func NewService(st store.Store, logger *slog.Logger, codeTTL, accessTokenTTL, refreshTokenTTL, storeTimeout time.Duration) *Service {
	return &Service{
		Store:           st,
		Logger:          logger,
		CodeTTL:         codeTTL,
		AccessTokenTTL:  accessTokenTTL,
		RefreshTokenTTL: refreshTokenTTL,
		StoreTimeout:    storeTimeout,
	}
}

// Grant is the outcome of a successful token exchange.
type Grant struct {
	AccessToken  domain.AccessToken
	RefreshToken *domain.RefreshToken
}

// ExpiresIn returns the whole seconds until the access token expires.
func (g Grant) ExpiresIn() int64 {
	return int64(time.Until(g.AccessToken.ExpiresAt).Seconds())
}

// Scope returns the space-delimited scope string of the grant.
func (g Grant) Scope() string {
	return strings.Join(g.AccessToken.Scopes, " ")
}

func (s *Service) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.StoreTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.StoreTimeout)
}

// wrapStoreErr converts deadline and cancellation failures into
// server_error; any other error passes through untouched.
func wrapStoreErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return apperrors.ServerError("store operation timed out", err)
	}
	return err
}

// IssueCode mints and persists a single-use authorization code bound to the
// exact redirect URI presented on the authorize request.
func (s *Service) IssueCode(ctx context.Context, clientID string, userID uuid.UUID, redirectURI string, scopes []string) (domain.AuthorizationCode, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	for attempt := 0; attempt < putCodeAttempts; attempt++ {
		value, err := random.URLSafeString(codeBytes)
		if err != nil {
			return domain.AuthorizationCode{}, fmt.Errorf("failed to generate authorization code: %w", err)
		}

		now := time.Now().UTC()
		authCode := domain.AuthorizationCode{
			Code:        value,
			ClientID:    clientID,
			UserID:      userID,
			RedirectURI: redirectURI,
			Scopes:      scopes,
			ExpiresAt:   now.Add(s.CodeTTL),
			CreatedAt:   now,
		}

		err = s.Store.PutCode(ctx, authCode)
		if err == nil {
			return authCode, nil
		}
		if errors.Is(err, store.ErrCodeConflict) {
			s.Logger.WarnContext(ctx, "Authorization code collision, regenerating", "attempt", attempt+1)
			continue
		}
		return domain.AuthorizationCode{}, wrapStoreErr(err)
	}

	return domain.AuthorizationCode{}, apperrors.InternalError("failed to store authorization code without collision", nil)
}

// ExchangeCode atomically consumes the code and mints an access token bound
// to the code's user and scopes. A refresh token is added when the code
// carries the offline_access scope. Any consumption failure is
// store.ErrCodeInvalid; the caller must not retry with the same code.
func (s *Service) ExchangeCode(ctx context.Context, code, clientID, redirectURI string) (Grant, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	authCode, err := s.Store.ConsumeCode(ctx, code, clientID, redirectURI)
	if err != nil {
		return Grant{}, wrapStoreErr(err)
	}

	return s.issueTokens(ctx, clientID, authCode.UserID, authCode.Scopes)
}

// Refresh rotates a refresh token: the presented token is consumed and a
// fresh access/refresh pair is issued with the same scopes.
func (s *Service) Refresh(ctx context.Context, token, clientID string) (Grant, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	refreshToken, err := s.Store.ConsumeRefreshToken(ctx, token, clientID)
	if err != nil {
		return Grant{}, wrapStoreErr(err)
	}

	return s.issueTokens(ctx, clientID, refreshToken.UserID, refreshToken.Scopes)
}

func (s *Service) issueTokens(ctx context.Context, clientID string, userID uuid.UUID, scopes []string) (Grant, error) {
	value, err := random.String(accessTokenBytes)
	if err != nil {
		return Grant{}, fmt.Errorf("failed to generate access token: %w", err)
	}

	now := time.Now().UTC()
	accessToken := domain.AccessToken{
		Token:     value,
		ClientID:  clientID,
		UserID:    userID,
		Scopes:    scopes,
		ExpiresAt: now.Add(s.AccessTokenTTL),
		CreatedAt: now,
	}
	if err := s.Store.PutAccessToken(ctx, accessToken); err != nil {
		return Grant{}, wrapStoreErr(err)
	}

	grant := Grant{AccessToken: accessToken}

	if slices.Contains(scopes, domain.ScopeOfflineAccess) {
		refreshValue, err := random.String(accessTokenBytes)
		if err != nil {
			return Grant{}, fmt.Errorf("failed to generate refresh token: %w", err)
		}

		refreshToken := domain.RefreshToken{
			Token:     refreshValue,
			ClientID:  clientID,
			UserID:    userID,
			Scopes:    scopes,
			ExpiresAt: now.Add(s.RefreshTokenTTL),
			CreatedAt: now,
		}
		if err := s.Store.PutRefreshToken(ctx, refreshToken); err != nil {
			return Grant{}, wrapStoreErr(err)
		}
		grant.RefreshToken = &refreshToken
	}

	return grant, nil
}

// Authenticate validates a bearer token, returning the token record.
// Expired and revoked tokens are indistinguishable from unknown ones.
func (s *Service) Authenticate(ctx context.Context, bearer string) (domain.AccessToken, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	accessToken, err := s.Store.GetAccessToken(ctx, bearer)
	if err != nil {
		return domain.AccessToken{}, wrapStoreErr(err)
	}
	return accessToken, nil
}

// Claims projects the identity claims a token's scopes permit. The sub
// claim is always present; email claims require the email scope and the
// name claim requires the profile scope.
func (s *Service) Claims(ctx context.Context, accessToken domain.AccessToken) (map[string]any, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	user, err := s.Store.GetUserByID(ctx, accessToken.UserID)
	if err != nil {
		return nil, wrapStoreErr(err)
	}

	identity := user.Identity()
	claims := map[string]any{
		"sub": identity.ID.String(),
	}
	if accessToken.HasScope(ScopeEmail) {
		claims["email"] = identity.Email
		claims["email_verified"] = identity.EmailVerified
	}
	if accessToken.HasScope(ScopeProfile) {
		claims["name"] = identity.Name
	}

	return claims, nil
}

// Revoke invalidates a token out of band. Unknown tokens are not an error:
// per RFC 7009 the endpoint never discloses token validity.
func (s *Service) Revoke(ctx context.Context, token, tokenTypeHint string) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()

	if tokenTypeHint == "refresh_token" || tokenTypeHint == "" {
		if err := s.Store.RevokeRefreshToken(ctx, token); err != nil {
			s.Logger.WarnContext(ctx, "Failed to revoke refresh token", "error", err)
		}
	}
	if tokenTypeHint == "access_token" || tokenTypeHint == "" {
		if err := s.Store.RevokeAccessToken(ctx, token); err != nil {
			s.Logger.WarnContext(ctx, "Failed to revoke access token", "error", err)
		}
	}
}

// ParseScopes splits a space-delimited scope parameter into its fields.
func ParseScopes(scope string) []string {
	return strings.Fields(scope)
}
