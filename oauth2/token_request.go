package oauth2

import (
	"net/http"
	"net/url"
)

// TokenRequest holds parameters for the OAuth2 token request.
// This represents the request body sent to the /token endpoint.
type TokenRequest struct {
	GrantType GrantType

	// ClientID and ClientSecret come from HTTP Basic authentication or the form body.
	ClientID     string
	ClientSecret string

	// BasicAuth records that the client authenticated with HTTP Basic (client_secret_basic).
	BasicAuth bool

	// Code is the authorization code received from the authorization endpoint.
	// Usage: Exchanged once for tokens, then becomes invalid
	Code string

	// RedirectURI must repeat the redirect_uri of the authorization request.
	RedirectURI string

	// CodeVerifier is the PKCE code verifier that matches the code_challenge.
	CodeVerifier string

	// RefreshToken is used to obtain new tokens without re-authentication.
	// Behavior: Rotated - old refresh token invalidated, new one issued
	RefreshToken string

	// Scope optionally narrows the scope on refresh.
	Scope string
}

// ParseTokenRequest reads a token request from a parsed form request
func ParseTokenRequest(r *http.Request) TokenRequest {
	req := TokenRequest{
		GrantType:    GrantType(r.PostFormValue("grant_type")),
		ClientID:     r.PostFormValue("client_id"),
		ClientSecret: r.PostFormValue("client_secret"),
		Code:         r.PostFormValue("code"),
		RedirectURI:  r.PostFormValue("redirect_uri"),
		CodeVerifier: r.PostFormValue("code_verifier"),
		RefreshToken: r.PostFormValue("refresh_token"),
		Scope:        r.PostFormValue("scope"),
	}

	if id, secret, ok := r.BasicAuth(); ok {
		// RFC 6749 section 2.3.1: both values are form-urlencoded before Basic encoding
		if v, err := url.QueryUnescape(id); err == nil {
			id = v
		}
		if v, err := url.QueryUnescape(secret); err == nil {
			secret = v
		}
		req.ClientID = id
		req.ClientSecret = secret
		req.BasicAuth = true
	}
	return req
}
