package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is a structured application error carrying a machine-readable
// code, an HTTP status and the underlying cause.
type AppError struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	HTTPCode int    `json:"-"`
	Cause    error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Internal error codes
const (
	CodeValidationFailed = "VALIDATION_FAILED"
	CodeNotFound         = "NOT_FOUND"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeInternalError    = "INTERNAL_ERROR"
	CodeDatabaseError    = "DATABASE_ERROR"
	CodeConfigError      = "CONFIG_ERROR"
	CodeRateLimited      = "RATE_LIMITED"

	// OAuth 2.0 wire error codes (RFC 6749)
	CodeInvalidRequest          = "invalid_request"
	CodeInvalidClient           = "invalid_client"
	CodeInvalidGrant            = "invalid_grant"
	CodeInvalidRedirectURI      = "invalid_redirect_uri"
	CodeUnauthorizedClient      = "unauthorized_client"
	CodeUnsupportedGrantType    = "unsupported_grant_type"
	CodeUnsupportedResponseType = "unsupported_response_type"
	CodeAccessDenied            = "access_denied"
	CodeServerError             = "server_error"
)

func ValidationError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeValidationFailed,
		Message:  message,
		HTTPCode: http.StatusBadRequest,
		Cause:    cause,
	}
}

func NotFoundError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeNotFound,
		Message:  message,
		HTTPCode: http.StatusNotFound,
		Cause:    cause,
	}
}

func UnauthorizedError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeUnauthorized,
		Message:  message,
		HTTPCode: http.StatusUnauthorized,
		Cause:    cause,
	}
}

func InternalError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeInternalError,
		Message:  message,
		HTTPCode: http.StatusInternalServerError,
		Cause:    cause,
	}
}

func DatabaseError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeDatabaseError,
		Message:  message,
		HTTPCode: http.StatusInternalServerError,
		Cause:    cause,
	}
}

func ConfigError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeConfigError,
		Message:  message,
		HTTPCode: http.StatusInternalServerError,
		Cause:    cause,
	}
}

func RateLimitedError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeRateLimited,
		Message:  message,
		HTTPCode: http.StatusTooManyRequests,
		Cause:    cause,
	}
}

// OAuth 2.0 wire error constructors

func InvalidRequestError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeInvalidRequest,
		Message:  message,
		HTTPCode: http.StatusBadRequest,
		Cause:    cause,
	}
}

func InvalidClientError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeInvalidClient,
		Message:  message,
		HTTPCode: http.StatusUnauthorized,
		Cause:    cause,
	}
}

func InvalidGrantError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeInvalidGrant,
		Message:  message,
		HTTPCode: http.StatusBadRequest,
		Cause:    cause,
	}
}

func InvalidRedirectURIError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeInvalidRedirectURI,
		Message:  message,
		HTTPCode: http.StatusBadRequest,
		Cause:    cause,
	}
}

func UnauthorizedClientError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeUnauthorizedClient,
		Message:  message,
		HTTPCode: http.StatusBadRequest,
		Cause:    cause,
	}
}

func UnsupportedGrantTypeError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeUnsupportedGrantType,
		Message:  message,
		HTTPCode: http.StatusBadRequest,
		Cause:    cause,
	}
}

func UnsupportedResponseTypeError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeUnsupportedResponseType,
		Message:  message,
		HTTPCode: http.StatusBadRequest,
		Cause:    cause,
	}
}

func AccessDeniedError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeAccessDenied,
		Message:  message,
		HTTPCode: http.StatusForbidden,
		Cause:    cause,
	}
}

func ServerError(message string, cause error) *AppError {
	return &AppError{
		Code:     CodeServerError,
		Message:  message,
		HTTPCode: http.StatusInternalServerError,
		Cause:    cause,
	}
}

// IsType reports whether err is an AppError with the given code.
func IsType(err error, code string) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// GetHTTPCode extracts the HTTP status code from an error, defaulting to 500.
func GetHTTPCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.HTTPCode
	}
	return http.StatusInternalServerError
}
