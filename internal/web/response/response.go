package response

import (
	"encoding/json"
	"net/http"
)

// OAuthError is the RFC 6749 error body shared by the token, userinfo and
// revocation endpoints.
type OAuthError struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
}

func Redirect(w http.ResponseWriter, status int, url string) {
	w.Header().Set("Location", url)
	w.WriteHeader(status)
}

func JSONResponse(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

// OAuthErrorResponse writes an RFC 6749 error body with the given status.
func OAuthErrorResponse(w http.ResponseWriter, status int, code, description string) {
	JSONResponse(w, status, OAuthError{
		Error:            code,
		ErrorDescription: description,
	})
}
