package clients

import (
	"crypto/subtle"
	"slices"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Token endpoint authentication methods
const (
	AuthMethodSecretBasic = "client_secret_basic"
	AuthMethodSecretPost  = "client_secret_post"
	AuthMethodNone        = "none" // Public clients, which must use PKCE
)

// Client is a registered relying party, described with the standard client metadata names
type Client struct {
	ID                      string   `json:"client_id"`
	Secret                  string   `json:"client_secret,omitempty"` // Plain or bcrypt hash
	RedirectURIs            []string `json:"redirect_uris"`
	PostLogoutRedirectURIs  []string `json:"post_logout_redirect_uris,omitempty"`
	GrantTypes              []string `json:"grant_types,omitempty"`
	ResponseTypes           []string `json:"response_types,omitempty"`
	TokenEndpointAuthMethod string   `json:"token_endpoint_auth_method,omitempty"`
	Scope                   string   `json:"scope,omitempty"` // Allowed scopes, any when empty
}

// AuthMethod returns the token endpoint authentication method, client_secret_basic unless set
func (c *Client) AuthMethod() string {
	if c.TokenEndpointAuthMethod == "" {
		return AuthMethodSecretBasic
	}
	return c.TokenEndpointAuthMethod
}

// IsPublic returns true if the client is a public client
func (c *Client) IsPublic() bool {
	return c.AuthMethod() == AuthMethodNone
}

// AllowsGrant reports whether the client registered grantType. Clients registering none
// may use the authorization code grant and its refresh tokens.
func (c *Client) AllowsGrant(grantType string) bool {
	if len(c.GrantTypes) == 0 {
		return grantType == "authorization_code" || grantType == "refresh_token"
	}
	return slices.Contains(c.GrantTypes, grantType)
}

// HasRedirectURI reports whether uri exactly matches a registered redirect URI
func (c *Client) HasRedirectURI(uri string) bool {
	return slices.Contains(c.RedirectURIs, uri)
}

// HasPostLogoutRedirectURI reports whether uri exactly matches a registered post logout redirect URI
func (c *Client) HasPostLogoutRedirectURI(uri string) bool {
	return slices.Contains(c.PostLogoutRedirectURIs, uri)
}

// HasScope checks if the client has permission for a specific scope
func (c *Client) HasScope(scope string) bool {
	if strings.TrimSpace(c.Scope) == "" {
		return true
	}
	return slices.Contains(strings.Fields(c.Scope), scope)
}

// ValidateScopes checks if all requested scopes are allowed for this client
func (c *Client) ValidateScopes(requestedScopes string) error {
	for _, scope := range strings.Fields(requestedScopes) {
		if !c.HasScope(scope) {
			return ErrInvalidScope
		}
	}
	return nil
}

// CheckSecret compares secret with the registered one, which may be stored as a bcrypt hash
func (c *Client) CheckSecret(secret string) bool {
	if c.Secret == "" || secret == "" {
		return false
	}
	if isBcryptHash(c.Secret) {
		return bcrypt.CompareHashAndPassword([]byte(c.Secret), []byte(secret)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(c.Secret), []byte(secret)) == 1
}

// HashSecret returns the bcrypt hash to register in place of a plain secret
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func isBcryptHash(s string) bool {
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}
