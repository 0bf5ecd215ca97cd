package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/xstarmail/authd/internal/config"
	"github.com/xstarmail/authd/internal/oauth/store"
	"github.com/xstarmail/authd/internal/session"
)

// Session attaches a browser session to the request context, minting a new
// anonymous one when no valid cookie is present.
func Session(cfg *config.Config, logger *slog.Logger, sessions store.SessionStore) func(http.Handler) http.Handler {
	newSession := func(w http.ResponseWriter, r *http.Request) (session.Session, bool) {
		sess, err := session.New()
		if err != nil {
			logger.ErrorContext(r.Context(), "Failed to create new session", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			return session.Session{}, false
		}

		sess, err = sessions.SaveSession(r.Context(), sess)
		if err != nil {
			logger.ErrorContext(r.Context(), "Failed to save new session", "error", err)
			w.WriteHeader(http.StatusInternalServerError)
			return session.Session{}, false
		}

		http.SetCookie(w, &http.Cookie{
			Name:     session.CookieName,
			Value:    sess.Token,
			Path:     "/",
			HttpOnly: true,
			Secure:   cfg.Server.IsProduction(),
			SameSite: http.SameSiteLaxMode,
		})
		return sess, true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			var sess session.Session

			sessionCookie, err := r.Cookie(session.CookieName)
			if err != nil {
				var ok bool
				sess, ok = newSession(w, r)
				if !ok {
					return
				}
			} else {
				sess, err = sessions.GetSessionByToken(r.Context(), sessionCookie.Value)
				if err != nil {
					if !errors.Is(err, store.ErrSessionNotFound) {
						logger.ErrorContext(r.Context(), "Failed to get session by token", "error", err)
						w.WriteHeader(http.StatusInternalServerError)
						return
					}

					// Cookie points at a missing or expired session.
					var ok bool
					sess, ok = newSession(w, r)
					if !ok {
						return
					}
				}
			}

			ctx := context.WithValue(r.Context(), session.ContextKey, sess)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromContext returns the session attached by the Session middleware.
func FromContext(ctx context.Context) (session.Session, bool) {
	sess, ok := ctx.Value(session.ContextKey).(session.Session)
	return sess, ok
}
