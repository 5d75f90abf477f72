package oauth2

import (
	"net/url"
	"strings"
)

// AuthorizationParameters holds parameters for the OAuth2 authorization request.
// These are received as query parameters (or form fields) at the authorization endpoint.
type AuthorizationParameters struct {
	// ClientID identifies the application requesting authorization.
	ClientID string `json:"client_id"`

	// ResponseType specifies what the authorization endpoint should return ("code").
	ResponseType ResponseType `json:"response_type"`

	// RedirectURI is where the authorization response will be sent.
	// Security: Must exactly match a pre-registered URI to prevent open redirects
	RedirectURI string `json:"redirect_uri"`

	// ResponseMode controls how authorization response is returned, "query" when empty.
	ResponseMode ResponseModeType `json:"response_mode,omitempty"`

	// Scope specifies the permissions being requested, must include "openid".
	Scope string `json:"scope"`

	// State is an opaque value echoed back to the client on the redirect.
	State string `json:"state,omitempty"`

	// CodeChallenge is the PKCE challenge derived from code_verifier.
	CodeChallenge string `json:"code_challenge,omitempty"`

	// CodeChallengeMethod specifies how code_challenge was derived, "plain" when empty.
	CodeChallengeMethod CodeMethodType `json:"code_challenge_method,omitempty"`

	// Nonce is echoed into the ID token so the client can detect replays.
	Nonce string `json:"nonce,omitempty"`

	// Prompt asks for a fresh login or consent, or forbids any interaction ("none").
	Prompt string `json:"prompt,omitempty"`

	// LoginHint pre-fills the community handle on the login form.
	LoginHint string `json:"login_hint,omitempty"`
}

// ParseAuthorizationParameters reads the authorization request parameters from values
func ParseAuthorizationParameters(values url.Values) AuthorizationParameters {
	return AuthorizationParameters{
		ClientID:            values.Get("client_id"),
		ResponseType:        ResponseType(values.Get("response_type")),
		RedirectURI:         values.Get("redirect_uri"),
		ResponseMode:        ResponseModeType(values.Get("response_mode")),
		Scope:               values.Get("scope"),
		State:               values.Get("state"),
		CodeChallenge:       values.Get("code_challenge"),
		CodeChallengeMethod: CodeMethodType(values.Get("code_challenge_method")),
		Nonce:               values.Get("nonce"),
		Prompt:              values.Get("prompt"),
		LoginHint:           values.Get("login_hint"),
	}
}

// Scopes returns the requested scopes in order, without duplicates
func (p *AuthorizationParameters) Scopes() []string {
	return SplitScope(p.Scope)
}

// HasPrompt reports whether prompt is among the space separated prompt values
func (p *AuthorizationParameters) HasPrompt(prompt string) bool {
	for _, v := range strings.Fields(p.Prompt) {
		if v == prompt {
			return true
		}
	}
	return false
}

// SplitScope splits a space separated scope string, dropping duplicates
func SplitScope(scope string) []string {
	fields := strings.Fields(scope)
	out := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, s := range fields {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
