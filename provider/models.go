package provider

import (
	"context"
	"slices"
	"time"

	"github.com/jrsteele09/onche-connect/oauth2"
)

// Prompt names what an interaction asks of the end user
const (
	PromptLogin   = "login"
	PromptConsent = "consent"
)

// Prompt describes why an interaction was started
type Prompt struct {
	Name    string   `json:"name"`
	Reasons []string `json:"reasons,omitempty"`
}

// InteractionSession is the authenticated session an interaction started from, if any
type InteractionSession struct {
	AccountID string `json:"accountId"`
}

// LoginResult records the account authenticated during an interaction
type LoginResult struct {
	AccountID string `json:"accountId"`
}

// ConsentResult records the grant the end user approved
type ConsentResult struct {
	GrantID string `json:"grantId"`
}

// Result is what an interaction produced, submitted through InteractionFinished
type Result struct {
	Login   *LoginResult   `json:"login,omitempty"`
	Consent *ConsentResult `json:"consent,omitempty"`
}

// merge overlays the non-empty parts of next onto r
func (r *Result) merge(next Result) Result {
	merged := Result{}
	if r != nil {
		merged = *r
	}
	if next.Login != nil {
		merged.Login = next.Login
	}
	if next.Consent != nil {
		merged.Consent = next.Consent
	}
	return merged
}

// Interaction is a pending end-user step of an authorization request
type Interaction struct {
	UID       string                         `json:"uid"`
	Prompt    Prompt                         `json:"prompt"`
	Params    oauth2.AuthorizationParameters `json:"params"`
	Session   *InteractionSession            `json:"session,omitempty"`
	GrantID   string                         `json:"grantId,omitempty"`
	Result    *Result                        `json:"result,omitempty"`
	ReturnTo  string                         `json:"returnTo"`
	CreatedAt time.Time                      `json:"createdAt"`
	ExpiresAt time.Time                      `json:"expiresAt"`
}

// AccountID returns the account of the session the interaction started from, or ""
func (i *Interaction) AccountID() string {
	if i.Session == nil {
		return ""
	}
	return i.Session.AccountID
}

// Session is an authenticated browser session at the provider
type Session struct {
	ID        string            `json:"id"`
	AccountID string            `json:"accountId"`
	LoginTime time.Time         `json:"loginTime"`
	ExpiresAt time.Time         `json:"expiresAt"`
	Grants    map[string]string `json:"grants,omitempty"` // client id -> grant id
}

// Grant is what an account allowed a client to receive
type Grant struct {
	ID        string   `json:"id"`
	AccountID string   `json:"accountId"`
	ClientID  string   `json:"clientId"`
	Scopes    []string `json:"scopes"`
	Claims    []string `json:"claims"`
}

// AddScope adds the space separated scopes to the grant
func (g *Grant) AddScope(scope string) {
	for _, s := range oauth2.SplitScope(scope) {
		if !slices.Contains(g.Scopes, s) {
			g.Scopes = append(g.Scopes, s)
		}
	}
}

// AddClaims adds claim names to the grant
func (g *Grant) AddClaims(claims ...string) {
	for _, c := range claims {
		if !slices.Contains(g.Claims, c) {
			g.Claims = append(g.Claims, c)
		}
	}
}

// Covers reports whether every scope was granted
func (g *Grant) Covers(scopes []string) bool {
	for _, s := range scopes {
		if !slices.Contains(g.Scopes, s) {
			return false
		}
	}
	return true
}

// AuthorizationCode is a single-use code issued at the end of an authorization request
type AuthorizationCode struct {
	ClientID            string                `json:"clientId"`
	RedirectURI         string                `json:"redirectUri"`
	AccountID           string                `json:"accountId"`
	GrantID             string                `json:"grantId"`
	Scope               string                `json:"scope"`
	Nonce               string                `json:"nonce,omitempty"`
	CodeChallenge       string                `json:"codeChallenge,omitempty"`
	CodeChallengeMethod oauth2.CodeMethodType `json:"codeChallengeMethod,omitempty"`
	AuthTime            time.Time             `json:"authTime"`
	ExpiresAt           time.Time             `json:"expiresAt"`
}

// RefreshToken is an opaque, rotating refresh token record
type RefreshToken struct {
	ClientID  string    `json:"clientId"`
	AccountID string    `json:"accountId"`
	GrantID   string    `json:"grantId"`
	Scope     string    `json:"scope"`
	AuthTime  time.Time `json:"authTime"`
	IssuedAt  time.Time `json:"iat"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// AccessToken is the record backing a JWT access token; its absence means the token was revoked
type AccessToken struct {
	ClientID  string    `json:"clientId"`
	AccountID string    `json:"accountId"`
	GrantID   string    `json:"grantId"`
	Scope     string    `json:"scope"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Claim uses passed to Account.Claims
const (
	ClaimsUseIDToken  = "id_token"
	ClaimsUseUserInfo = "userinfo"
)

// Account is an end user known to the provider
type Account interface {
	AccountID() string
	Claims(ctx context.Context, use, scope string) (map[string]any, error)
}

// FindAccountFunc resolves an account id to an Account
type FindAccountFunc func(ctx context.Context, id string) (Account, error)
