package oauth2

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error codes from RFC 6749 and OpenID Connect Core
const (
	ErrorInvalidRequest       = "invalid_request"
	ErrorInvalidClient        = "invalid_client"
	ErrorInvalidGrant         = "invalid_grant"
	ErrorInvalidScope         = "invalid_scope"
	ErrorInvalidToken         = "invalid_token"
	ErrorUnauthorizedClient   = "unauthorized_client"
	ErrorUnsupportedGrantType = "unsupported_grant_type"
	ErrorUnsupportedResponse  = "unsupported_response_type"
	ErrorAccessDenied         = "access_denied"
	ErrorLoginRequired        = "login_required"
	ErrorConsentRequired      = "consent_required"
	ErrorServerError          = "server_error"
)

// Error is an OAuth2 error response
type Error struct {
	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
	Status      int    `json:"-"`
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// NewError creates an error response with the given HTTP status
func NewError(status int, code, description string) *Error {
	return &Error{Code: code, Description: description, Status: status}
}

// WriteJSONError writes an OAuth2 error response
func WriteJSONError(w http.ResponseWriter, e *Error) {
	status := e.Status
	if status == 0 {
		status = http.StatusBadRequest
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	if e.Code == ErrorInvalidClient && status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Basic realm="token"`)
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(e)
}
