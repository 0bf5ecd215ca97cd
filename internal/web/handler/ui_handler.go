package handler

import (
	"html/template"
	"log/slog"
	"net/http"

	"github.com/xstarmail/authd/internal/account"
	"github.com/xstarmail/authd/internal/config"
	"github.com/xstarmail/authd/internal/oauth"
	"github.com/xstarmail/authd/internal/oauth/store"
	"github.com/xstarmail/authd/internal/session"
	"github.com/xstarmail/authd/internal/web/middleware"
	"github.com/xstarmail/authd/internal/web/response"
)

const (
	routeLogin   = "/login"
	routeLogout  = "/logout"
	routeConsent = "/consent"

	errLoginMissingFields      = "missing_fields"
	errLoginInvalidCredentials = "invalid_credentials"
	errLoginServerError        = "server_error"
)

// UIHandler serves the resource-owner facing pages: login, logout and the
// consent prompt for third-party clients.
type UIHandler struct {
	Config         *config.Config
	Logger         *slog.Logger
	Store          store.Store
	AccountService *account.Service
	Registry       *oauth.Registry
	OAuth          *OAuthHandler
}

func NewUIHandler(cfg *config.Config, logger *slog.Logger, st store.Store, accountService *account.Service, registry *oauth.Registry, oauthHandler *OAuthHandler) *UIHandler {
	return &UIHandler{
		Config:         cfg,
		Logger:         logger,
		Store:          st,
		AccountService: accountService,
		Registry:       registry,
		OAuth:          oauthHandler,
	}
}

func (h *UIHandler) RegisterRoutes(mux *http.ServeMux) {
	securityMiddleware := middleware.SecurityHeadersMiddleware()
	sessionMiddleware := middleware.Session(h.Config, h.Logger, h.Store)
	chain := middleware.Chain(securityMiddleware, middleware.MaxBodyMiddleware(1<<20), sessionMiddleware)

	mux.Handle(routeLogin, chain(http.HandlerFunc(h.HandleLogin)))
	mux.Handle(routeLogout, chain(http.HandlerFunc(h.HandleLogout)))
	mux.Handle(routeConsent, chain(http.HandlerFunc(h.HandleConsent)))
}

func (h *UIHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		h.handleLoginGet(w, r)
	case http.MethodPost:
		h.handleLoginPost(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *UIHandler) handleLoginGet(w http.ResponseWriter, r *http.Request) {
	sess, ok := middleware.FromContext(r.Context())
	if !ok {
		h.Logger.ErrorContext(r.Context(), "Session not found in context")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if sess.Authenticated() {
		if sess.PendingAuthorize != nil {
			h.resumeAuthorize(w, r, sess)
			return
		}
		w.Write([]byte("Already logged in"))
		return
	}

	errMsg := ""
	switch r.URL.Query().Get("error") {
	case "":
	case errLoginMissingFields:
		errMsg = "Please fill in all required fields."
	case errLoginInvalidCredentials:
		errMsg = "Invalid email or password."
	default:
		errMsg = "Something went wrong. Please try again."
	}

	h.renderPage(w, loginTemplate, struct {
		Error string
	}{Error: errMsg})
}

func (h *UIHandler) handleLoginPost(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, ok := middleware.FromContext(ctx)
	if !ok {
		h.Logger.ErrorContext(ctx, "Session not found in context")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if err := r.ParseForm(); err != nil {
		response.Redirect(w, http.StatusSeeOther, routeLogin+"?error="+errLoginServerError)
		return
	}

	email := r.PostForm.Get("email")
	password := r.PostForm.Get("password")
	if email == "" || password == "" {
		response.Redirect(w, http.StatusSeeOther, routeLogin+"?error="+errLoginMissingFields)
		return
	}

	user, err := h.AccountService.Login(ctx, email, password)
	if err != nil {
		h.Logger.WarnContext(ctx, "Login attempt failed", "email", email)
		response.Redirect(w, http.StatusSeeOther, routeLogin+"?error="+errLoginInvalidCredentials)
		return
	}

	sess.UserID = user.ID
	sess, err = h.Store.SaveSession(ctx, sess)
	if err != nil {
		h.Logger.ErrorContext(ctx, "Failed to persist login", "error", err)
		response.Redirect(w, http.StatusSeeOther, routeLogin+"?error="+errLoginServerError)
		return
	}

	if sess.PendingAuthorize != nil {
		h.resumeAuthorize(w, r, sess)
		return
	}

	w.Write([]byte("Logged in"))
}

// resumeAuthorize picks the parked authorize request back up after login.
// Third-party clients still pass through the consent page.
func (h *UIHandler) resumeAuthorize(w http.ResponseWriter, r *http.Request, sess session.Session) {
	ctx := r.Context()
	pending := *sess.PendingAuthorize

	client, err := h.Registry.Resolve(ctx, pending.ClientID)
	if err != nil {
		h.Logger.ErrorContext(ctx, "Failed to resolve client for parked authorize request", "error", err)
		redirectWithError(w, pending.RedirectURI, errOAuthServerError, pending.State)
		return
	}

	if !client.FirstParty {
		response.Redirect(w, http.StatusSeeOther, routeConsent)
		return
	}

	h.OAuth.finishAuthorize(w, r, sess, pending)
}

func (h *UIHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
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

	if err := h.Store.DeleteSession(ctx, sess.Token); err != nil {
		h.Logger.ErrorContext(ctx, "Failed to delete session", "error", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     session.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.Config.Server.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	})
	response.Redirect(w, http.StatusSeeOther, routeLogin)
}

func (h *UIHandler) HandleConsent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	sess, ok := middleware.FromContext(ctx)
	if !ok {
		h.Logger.ErrorContext(ctx, "Session not found in context")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	if !sess.Authenticated() {
		response.Redirect(w, http.StatusSeeOther, routeLogin)
		return
	}

	if sess.PendingAuthorize == nil {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte("No authorization request in progress"))
		return
	}
	pending := *sess.PendingAuthorize

	client, err := h.Registry.Resolve(ctx, pending.ClientID)
	if err != nil {
		h.Logger.ErrorContext(ctx, "Failed to resolve client for consent", "error", err)
		redirectWithError(w, pending.RedirectURI, errOAuthServerError, pending.State)
		return
	}

	switch r.Method {
	case http.MethodGet:
		h.renderPage(w, consentTemplate, struct {
			ClientName string
			Scopes     []string
		}{ClientName: client.Name, Scopes: pending.Scopes})

	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if r.PostForm.Get("decision") != "approve" {
			sess.PendingAuthorize = nil
			if _, err := h.Store.SaveSession(ctx, sess); err != nil {
				h.Logger.WarnContext(ctx, "Failed to clear pending authorize request", "error", err)
			}
			redirectWithError(w, pending.RedirectURI, errOAuthAccessDenied, pending.State)
			return
		}

		h.OAuth.finishAuthorize(w, r, sess, pending)

	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (h *UIHandler) renderPage(w http.ResponseWriter, tmpl *template.Template, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.Execute(w, data); err != nil {
		h.Logger.Error("Failed to render page", "template", tmpl.Name(), "error", err)
	}
}

var loginTemplate = template.Must(template.New("login").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8">
	<title>Sign in - Xstar Mail</title>
</head>
<body>
	<h1>Sign in to Xstar Mail</h1>
	{{if .Error}}<p>{{.Error}}</p>{{end}}
	<form method="post" action="/login">
		<label>Email <input type="email" name="email" required></label>
		<label>Password <input type="password" name="password" required></label>
		<button type="submit">Sign in</button>
	</form>
</body>
</html>
`))

var consentTemplate = template.Must(template.New("consent").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
	<meta charset="utf-8">
	<title>Authorize {{.ClientName}} - Xstar Mail</title>
</head>
<body>
	<h1>Authorize {{.ClientName}}</h1>
	<p>{{.ClientName}} is asking for access to your Xstar Mail account:</p>
	<ul>
	{{range .Scopes}}<li>{{.}}</li>{{end}}
	</ul>
	<form method="post" action="/consent">
		<button type="submit" name="decision" value="approve">Allow</button>
		<button type="submit" name="decision" value="deny">Deny</button>
	</form>
</body>
</html>
`))
