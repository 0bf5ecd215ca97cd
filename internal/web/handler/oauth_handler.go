package handler

import (
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"mime"
	"net/http"
	"net/url"

	"github.com/xstarmail/authd/internal/account"
	"github.com/xstarmail/authd/internal/config"
	"github.com/xstarmail/authd/internal/oauth"
	"github.com/xstarmail/authd/internal/oauth/store"
	"github.com/xstarmail/authd/internal/session"
	"github.com/xstarmail/authd/internal/web/middleware"
	"github.com/xstarmail/authd/internal/web/response"
)

const (
	errOAuthServerError             = "server_error"
	errOAuthInvalidRequest          = "invalid_request"
	errOAuthInvalidClient           = "invalid_client"
	errOAuthInvalidGrant            = "invalid_grant"
	errOAuthAccessDenied            = "access_denied"
	errOAuthUnsupportedGrantType    = "unsupported_grant_type"
	errOAuthUnsupportedResponseType = "unsupported_response_type"
)

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	Scope        string `json:"scope,omitempty"`
	RefreshToken string `json:"refresh_token,omitempty"`
}

type OAuthHandler struct {
	Config         *config.Config
	Logger         *slog.Logger
	Registry       *oauth.Registry
	OAuthService   *oauth.Service
	AccountService *account.Service
	Store          store.Store

	// RateLimiter is optional; when nil and rate limiting is enabled an
	// in-memory limiter is created. Multi-instance deployments inject the
	// Redis limiter here.
	RateLimiter middleware.RateLimiter
}

func NewOAuthHandler(cfg *config.Config, logger *slog.Logger, registry *oauth.Registry, oauthService *oauth.Service, accountService *account.Service, st store.Store, rateLimiter middleware.RateLimiter) *OAuthHandler {
	return &OAuthHandler{
		Config:         cfg,
		Logger:         logger,
		Registry:       registry,
		OAuthService:   oauthService,
		AccountService: accountService,
		Store:          st,
		RateLimiter:    rateLimiter,
	}
}

func (h *OAuthHandler) RegisterRoutes(mux *http.ServeMux) {
	secureMiddleware := middleware.Chain(
		middleware.SecurityHeadersMiddleware(),
		middleware.MaxBodyMiddleware(1<<20),
	)

	if h.Config.RateLimit.Enabled {
		rateLimiter := h.RateLimiter
		if rateLimiter == nil {
			rateLimiter = middleware.NewInMemoryRateLimiter()
		}

		authorizeLimit := middleware.RateLimit{
			Requests: h.Config.RateLimit.AuthorizeRequests,
			Window:   h.Config.RateLimit.WindowDuration,
			KeyFunc:  middleware.KeyByIP,
		}
		tokenIPLimit := middleware.RateLimit{
			Requests: h.Config.RateLimit.TokenRequests,
			Window:   h.Config.RateLimit.WindowDuration,
			KeyFunc:  middleware.KeyByIP,
		}
		tokenClientLimit := middleware.RateLimit{
			Requests: h.Config.RateLimit.TokenRequests,
			Window:   h.Config.RateLimit.WindowDuration,
			KeyFunc:  middleware.KeyByClientID,
		}

		sessionMiddleware := middleware.Session(h.Config, h.Logger, h.Store)
		authorizeChain := middleware.Chain(secureMiddleware, middleware.RateLimitMiddleware(rateLimiter, authorizeLimit), sessionMiddleware)
		tokenChain := middleware.Chain(secureMiddleware, middleware.MultiRateLimitMiddleware(rateLimiter, tokenIPLimit, tokenClientLimit))

		mux.Handle("/authorize", authorizeChain(http.HandlerFunc(h.HandleAuthorize)))
		mux.Handle("/token", tokenChain(http.HandlerFunc(h.HandleToken)))
		mux.Handle("/revoke", tokenChain(http.HandlerFunc(h.HandleRevoke)))
		return
	}

	sessionMiddleware := middleware.Session(h.Config, h.Logger, h.Store)
	mux.Handle("/authorize", secureMiddleware(sessionMiddleware(http.HandlerFunc(h.HandleAuthorize))))
	mux.Handle("/token", secureMiddleware(http.HandlerFunc(h.HandleToken)))
	mux.Handle("/revoke", secureMiddleware(http.HandlerFunc(h.HandleRevoke)))
}

// HandleAuthorize serves the authorization endpoint. Requests from unknown
// clients or with unregistered redirect URIs get an inline error page and
// are never redirected; everything else reports errors on the redirect URI.
func (h *OAuthHandler) HandleAuthorize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.Header().Set("Allow", http.MethodGet)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	sess, ok := middleware.FromContext(ctx)
	if !ok {
		h.Logger.ErrorContext(ctx, "Session not found in context")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	queryParams := r.URL.Query()
	clientID := queryParams.Get("client_id")
	redirectURI := queryParams.Get("redirect_uri")
	responseType := queryParams.Get("response_type")
	scope := queryParams.Get("scope")
	state := queryParams.Get("state")

	client, err := h.Registry.Resolve(ctx, clientID)
	if err != nil {
		if errors.Is(err, store.ErrClientNotFound) {
			h.Logger.WarnContext(ctx, "Authorize request from unknown client", "client_id", clientID)
			h.renderAuthorizeError(w, http.StatusBadRequest, "Unknown application",
				"The application that sent you here is not registered.")
			return
		}
		h.Logger.ErrorContext(ctx, "Failed to resolve client", "error", err)
		h.renderAuthorizeError(w, http.StatusInternalServerError, "Something went wrong",
			"We could not process the request. Please try again later.")
		return
	}

	// Never redirect to an address the client did not register. The user
	// stays here instead of being bounced to an attacker-chosen URI.
	if !h.Registry.VerifyRedirectURI(client, redirectURI) {
		h.Logger.WarnContext(ctx, "Authorize request with unregistered redirect_uri",
			"client_id", clientID, "redirect_uri", redirectURI)
		h.renderAuthorizeError(w, http.StatusBadRequest, "Invalid redirect address",
			"The application supplied a return address it has not registered.")
		return
	}

	if responseType != "code" {
		h.Logger.WarnContext(ctx, "Unsupported response_type", "response_type", responseType)
		redirectWithError(w, redirectURI, errOAuthUnsupportedResponseType, state)
		return
	}

	pending := session.PendingAuthorize{
		ClientID:     clientID,
		RedirectURI:  redirectURI,
		ResponseType: responseType,
		Scopes:       oauth.ParseScopes(scope),
		State:        state,
	}

	if !sess.Authenticated() {
		sess.PendingAuthorize = &pending
		if _, err := h.Store.SaveSession(ctx, sess); err != nil {
			h.Logger.ErrorContext(ctx, "Failed to park authorize request in session", "error", err)
			redirectWithError(w, redirectURI, errOAuthServerError, state)
			return
		}
		response.Redirect(w, http.StatusSeeOther, "/login")
		return
	}

	if !client.FirstParty {
		sess.PendingAuthorize = &pending
		if _, err := h.Store.SaveSession(ctx, sess); err != nil {
			h.Logger.ErrorContext(ctx, "Failed to park authorize request in session", "error", err)
			redirectWithError(w, redirectURI, errOAuthServerError, state)
			return
		}
		response.Redirect(w, http.StatusSeeOther, "/consent")
		return
	}

	h.finishAuthorize(w, r, sess, pending)
}

// finishAuthorize mints the authorization code and sends the user agent back
// to the client. Called directly for first-party clients and from the
// consent page after approval.
func (h *OAuthHandler) finishAuthorize(w http.ResponseWriter, r *http.Request, sess session.Session, pending session.PendingAuthorize) {
	ctx := r.Context()

	code, err := h.OAuthService.IssueCode(ctx, pending.ClientID, sess.UserID, pending.RedirectURI, pending.Scopes)
	if err != nil {
		h.Logger.ErrorContext(ctx, "Failed to issue authorization code", "error", err)
		redirectWithError(w, pending.RedirectURI, errOAuthServerError, pending.State)
		return
	}

	if sess.PendingAuthorize != nil {
		sess.PendingAuthorize = nil
		if _, err := h.Store.SaveSession(ctx, sess); err != nil {
			h.Logger.WarnContext(ctx, "Failed to clear pending authorize request", "error", err)
		}
	}

	redirectTo, err := appendQuery(pending.RedirectURI, url.Values{"code": {code.Code}}, pending.State)
	if err != nil {
		h.Logger.ErrorContext(ctx, "Failed to build redirect URL", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	response.Redirect(w, http.StatusFound, redirectTo)
}

// HandleToken serves the token endpoint for the authorization_code and
// refresh_token grants.
func (h *OAuthHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	req, err := parseTokenRequest(r)
	if err != nil {
		response.OAuthErrorResponse(w, http.StatusBadRequest, errOAuthInvalidRequest, "Malformed token request body")
		return
	}

	if req.GrantType == "" {
		response.OAuthErrorResponse(w, http.StatusBadRequest, errOAuthInvalidRequest, "Missing grant_type parameter")
		return
	}

	client, err := h.Registry.Resolve(ctx, req.ClientID)
	if err != nil && !errors.Is(err, store.ErrClientNotFound) {
		h.Logger.ErrorContext(ctx, "Failed to resolve client", "error", err)
		response.OAuthErrorResponse(w, http.StatusInternalServerError, errOAuthServerError, "")
		return
	}
	// Unknown client and wrong secret produce the identical response, so
	// the endpoint cannot be used to probe for registered client IDs.
	if err != nil || !h.Registry.VerifySecret(client, req.ClientSecret) {
		h.Logger.WarnContext(ctx, "Client authentication failed", "client_id", req.ClientID)
		w.Header().Set("WWW-Authenticate", `Basic realm="token"`)
		response.OAuthErrorResponse(w, http.StatusUnauthorized, errOAuthInvalidClient, "Client authentication failed")
		return
	}

	var grant oauth.Grant
	switch req.GrantType {
	case "authorization_code":
		if req.Code == "" || req.RedirectURI == "" {
			response.OAuthErrorResponse(w, http.StatusBadRequest, errOAuthInvalidRequest, "Missing code or redirect_uri parameter")
			return
		}
		grant, err = h.OAuthService.ExchangeCode(ctx, req.Code, client.ID, req.RedirectURI)
	case "refresh_token":
		if req.RefreshToken == "" {
			response.OAuthErrorResponse(w, http.StatusBadRequest, errOAuthInvalidRequest, "Missing refresh_token parameter")
			return
		}
		grant, err = h.OAuthService.Refresh(ctx, req.RefreshToken, client.ID)
	default:
		response.OAuthErrorResponse(w, http.StatusBadRequest, errOAuthUnsupportedGrantType, "Unsupported grant_type")
		return
	}

	if err != nil {
		h.writeGrantError(w, r, err)
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")

	tokenResponse := TokenResponse{
		AccessToken: grant.AccessToken.Token,
		TokenType:   "Bearer",
		ExpiresIn:   grant.ExpiresIn(),
		Scope:       grant.Scope(),
	}
	if grant.RefreshToken != nil {
		tokenResponse.RefreshToken = grant.RefreshToken.Token
	}
	response.JSONResponse(w, http.StatusOK, tokenResponse)
}

// writeGrantError maps exchange failures onto the wire vocabulary. Every
// consumption failure collapses into one invalid_grant message; the specific
// reason is logged, never disclosed.
func (h *OAuthHandler) writeGrantError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()

	switch {
	case errors.Is(err, store.ErrCodeInvalid):
		h.Logger.WarnContext(ctx, "Rejected authorization code exchange", "error", err)
		response.OAuthErrorResponse(w, http.StatusBadRequest, errOAuthInvalidGrant, "Invalid authorization code")
	case errors.Is(err, store.ErrRefreshTokenInvalid):
		h.Logger.WarnContext(ctx, "Rejected refresh token exchange", "error", err)
		response.OAuthErrorResponse(w, http.StatusBadRequest, errOAuthInvalidGrant, "Invalid refresh token")
	default:
		h.Logger.ErrorContext(ctx, "Token exchange failed", "error", err)
		response.OAuthErrorResponse(w, http.StatusInternalServerError, errOAuthServerError, "")
	}
}

// HandleRevoke serves RFC 7009 revocation. The response is 200 regardless of
// whether the token existed.
func (h *OAuthHandler) HandleRevoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	ctx := r.Context()

	req, err := parseTokenRequest(r)
	if err != nil {
		response.OAuthErrorResponse(w, http.StatusBadRequest, errOAuthInvalidRequest, "Malformed revocation request body")
		return
	}

	client, err := h.Registry.Resolve(ctx, req.ClientID)
	if err != nil || !h.Registry.VerifySecret(client, req.ClientSecret) {
		if err != nil && !errors.Is(err, store.ErrClientNotFound) {
			h.Logger.ErrorContext(ctx, "Failed to resolve client", "error", err)
			response.OAuthErrorResponse(w, http.StatusInternalServerError, errOAuthServerError, "")
			return
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="token"`)
		response.OAuthErrorResponse(w, http.StatusUnauthorized, errOAuthInvalidClient, "Client authentication failed")
		return
	}

	if req.Token == "" {
		response.OAuthErrorResponse(w, http.StatusBadRequest, errOAuthInvalidRequest, "Missing token parameter")
		return
	}

	h.OAuthService.Revoke(ctx, req.Token, req.TokenTypeHint)
	w.WriteHeader(http.StatusOK)
}

// tokenRequest carries the parameters of a token or revocation request,
// whichever way the client chose to send them.
type tokenRequest struct {
	GrantType     string `json:"grant_type"`
	Code          string `json:"code"`
	RedirectURI   string `json:"redirect_uri"`
	RefreshToken  string `json:"refresh_token"`
	ClientID      string `json:"client_id"`
	ClientSecret  string `json:"client_secret"`
	Token         string `json:"token"`
	TokenTypeHint string `json:"token_type_hint"`
}

// parseTokenRequest reads the request parameters from a form or JSON body.
// Basic credentials, when present, take precedence over body credentials.
func parseTokenRequest(r *http.Request) (tokenRequest, error) {
	var req tokenRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			return tokenRequest{}, err
		}
	} else {
		if err := r.ParseForm(); err != nil {
			return tokenRequest{}, err
		}
		req = tokenRequest{
			GrantType:     r.PostForm.Get("grant_type"),
			Code:          r.PostForm.Get("code"),
			RedirectURI:   r.PostForm.Get("redirect_uri"),
			RefreshToken:  r.PostForm.Get("refresh_token"),
			ClientID:      r.PostForm.Get("client_id"),
			ClientSecret:  r.PostForm.Get("client_secret"),
			Token:         r.PostForm.Get("token"),
			TokenTypeHint: r.PostForm.Get("token_type_hint"),
		}
	}

	if clientID, clientSecret, ok := r.BasicAuth(); ok {
		req.ClientID = clientID
		req.ClientSecret = clientSecret
	}

	return req, nil
}

// appendQuery adds params to the redirect URI, preserving any query string
// the client registered. The state value is appended untouched so the client
// receives exactly the bytes it sent.
func appendQuery(redirectURI string, params url.Values, state string) (string, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return "", err
	}

	q := u.Query()
	for key, values := range params {
		for _, value := range values {
			q.Set(key, value)
		}
	}
	if state != "" {
		q.Set("state", state)
	}
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func redirectWithError(w http.ResponseWriter, redirectURI, oauthError, state string) {
	redirectTo, err := appendQuery(redirectURI, url.Values{"error": {oauthError}}, state)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	response.Redirect(w, http.StatusSeeOther, redirectTo)
}

var authorizeErrorTemplate = template.Must(template.New("authorize_error").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8">
	<title>{{.Title}} - Xstar Mail</title>
</head>
<body>
	<h1>{{.Title}}</h1>
	<p>{{.Detail}}</p>
	<p>Close this window and return to the application you came from.</p>
</body>
</html>
`))

func (h *OAuthHandler) renderAuthorizeError(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := authorizeErrorTemplate.Execute(w, struct {
		Title  string
		Detail string
	}{Title: title, Detail: detail}); err != nil {
		h.Logger.Error("Failed to render authorize error page", "error", err)
	}
}
