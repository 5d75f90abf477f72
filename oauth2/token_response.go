package oauth2

// TokenResponse represents the response from an OAuth2 token request.
// Returned from the /token endpoint for all grant types.
type TokenResponse struct {
	// AccessToken is the JWT bearer token accepted by the userinfo endpoint.
	// Usage: Include in Authorization header: "Bearer <access_token>"
	AccessToken string `json:"access_token"`

	// IdToken is the OpenID Connect ID token carrying the authenticated subject.
	// Only present: When "openid" scope was granted
	IdToken string `json:"id_token,omitempty"`

	// TokenType indicates how to use the access token (always "Bearer").
	TokenType string `json:"token_type"`

	// ExpiresIn is the lifetime in seconds of the access token.
	ExpiresIn int `json:"expires_in"`

	// RefreshToken is an opaque token used to obtain new tokens.
	// Security: rotates on each use, the previous one is consumed
	RefreshToken string `json:"refresh_token,omitempty"`

	// Scope indicates the access token's granted permissions, space separated.
	Scope string `json:"scope,omitempty"`
}
