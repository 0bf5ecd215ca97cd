package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/xstarmail/authd/internal/oauth"
	"github.com/xstarmail/authd/internal/oauth/store"
	"github.com/xstarmail/authd/internal/web/middleware"
	"github.com/xstarmail/authd/internal/web/response"
)

type UserInfoHandler struct {
	Logger       *slog.Logger
	OAuthService *oauth.Service
}

func NewUserInfoHandler(logger *slog.Logger, oauthService *oauth.Service) *UserInfoHandler {
	return &UserInfoHandler{
		Logger:       logger,
		OAuthService: oauthService,
	}
}

func (h *UserInfoHandler) RegisterRoutes(mux *http.ServeMux) {
	secureMiddleware := middleware.SecurityHeadersMiddleware()
	mux.Handle("/userinfo", secureMiddleware(http.HandlerFunc(h.HandleUserInfo)))
}

// HandleUserInfo returns the identity claims the presented bearer token's
// scopes permit. Missing, malformed, unknown, expired and revoked tokens all
// get the same 401.
func (h *UserInfoHandler) HandleUserInfo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	bearer, ok := bearerToken(r)
	if !ok {
		h.writeUnauthorized(w)
		return
	}

	accessToken, err := h.OAuthService.Authenticate(ctx, bearer)
	if err != nil {
		if !errors.Is(err, store.ErrTokenNotFound) {
			h.Logger.ErrorContext(ctx, "Failed to authenticate bearer token", "error", err)
			response.OAuthErrorResponse(w, http.StatusInternalServerError, errOAuthServerError, "")
			return
		}
		h.writeUnauthorized(w)
		return
	}

	claims, err := h.OAuthService.Claims(ctx, accessToken)
	if err != nil {
		h.Logger.ErrorContext(ctx, "Failed to load claims", "error", err)
		response.OAuthErrorResponse(w, http.StatusInternalServerError, errOAuthServerError, "")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	response.JSONResponse(w, http.StatusOK, claims)
}

func (h *UserInfoHandler) writeUnauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
	response.OAuthErrorResponse(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired access token")
}

// bearerToken extracts the token from the Authorization header. The Bearer
// prefix match is case insensitive per RFC 6750.
func bearerToken(r *http.Request) (string, bool) {
	authorization := r.Header.Get("Authorization")
	if len(authorization) < len("Bearer ") || !strings.EqualFold(authorization[:len("Bearer ")], "Bearer ") {
		return "", false
	}

	token := strings.TrimSpace(authorization[len("Bearer "):])
	if token == "" {
		return "", false
	}
	return token, true
}
