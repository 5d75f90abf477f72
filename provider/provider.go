// Package provider is a compact OpenID Connect provider: authorization code flow with PKCE,
// refresh token rotation, userinfo, revocation, introspection and end-user interactions
// delegated to the host application.
package provider

import (
	"crypto/rand"
	"encoding/base64"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/onche-connect/clients"
	"github.com/jrsteele09/onche-connect/storage"
	"github.com/jrsteele09/onche-connect/token"
	"github.com/pkg/errors"
)

// Route paths served by the provider
const (
	RouteDiscovery     = "/.well-known/openid-configuration"
	RouteJWKS          = "/jwks"
	RouteAuthorize     = "/auth"
	RouteResume        = "/auth/{uid}"
	RouteToken         = "/token"
	RouteUserInfo      = "/me"
	RouteRevocation    = "/token/revocation"
	RouteIntrospection = "/token/introspection"
	RouteEndSession    = "/session/end"
)

const (
	sessionCookieName     = "_session"
	interactionCookieName = "_interaction"
	resumeCookieName      = "_interaction_resume"

	defaultInteractionTTL  = 5 * time.Minute
	defaultSessionTTL      = 14 * 24 * time.Hour
	defaultAuthCodeTTL     = 10 * time.Minute
	defaultRefreshTokenTTL = 24 * time.Hour
	defaultSecretBytes     = 32
)

// Provider is the protocol engine. Interactions (login, consent) are handed to the host
// application at InteractionURL and come back through InteractionFinished.
type Provider struct {
	issuer      string
	store       storage.Adapter
	clients     clients.Repo
	tokens      *token.Manager
	findAccount FindAccountFunc

	interactionURL  func(uid string) string
	interactionTTL  time.Duration
	sessionTTL      time.Duration
	authCodeTTL     time.Duration
	refreshTokenTTL time.Duration
	secretBytes     int
	requirePKCE     bool
	secureCookies   bool
	nowFunc         func() time.Time
}

// Option defines a function type to modify the Provider instance.
type Option func(*Provider)

// WithInteractionTTL sets how long an interaction stays valid
func WithInteractionTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		p.interactionTTL = ttl
	}
}

// WithSessionTTL sets the lifetime of provider sessions and the grants made in them
func WithSessionTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		p.sessionTTL = ttl
	}
}

// WithAuthCodeTTL sets the lifetime of authorization codes
func WithAuthCodeTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		p.authCodeTTL = ttl
	}
}

// WithRefreshTokenTTL sets the lifetime of refresh tokens
func WithRefreshTokenTTL(ttl time.Duration) Option {
	return func(p *Provider) {
		p.refreshTokenTTL = ttl
	}
}

// WithSecretBytes sets the entropy of authorization codes and refresh tokens
func WithSecretBytes(n int) Option {
	return func(p *Provider) {
		p.secretBytes = n
	}
}

// WithRequirePKCE requires PKCE from confidential clients too. Public clients always need it.
func WithRequirePKCE(required bool) Option {
	return func(p *Provider) {
		p.requirePKCE = required
	}
}

// WithSecureCookies marks the provider's cookies Secure
func WithSecureCookies(secure bool) Option {
	return func(p *Provider) {
		p.secureCookies = secure
	}
}

// WithNowFunc sets the now time function (primarily for testing)
func WithNowFunc(nowFunc func() time.Time) Option {
	return func(p *Provider) {
		p.nowFunc = nowFunc
	}
}

// New creates a provider for issuer
func New(issuer string, store storage.Adapter, clientRepo clients.Repo, tokens *token.Manager, findAccount FindAccountFunc, options ...Option) (*Provider, error) {
	if issuer == "" {
		return nil, errors.New("[provider.New] issuer is required")
	}
	if store == nil || clientRepo == nil || tokens == nil || findAccount == nil {
		return nil, errors.New("[provider.New] store, clients, tokens and findAccount are required")
	}

	p := &Provider{
		issuer:          strings.TrimSuffix(issuer, "/"),
		store:           store,
		clients:         clientRepo,
		tokens:          tokens,
		findAccount:     findAccount,
		interactionTTL:  defaultInteractionTTL,
		sessionTTL:      defaultSessionTTL,
		authCodeTTL:     defaultAuthCodeTTL,
		refreshTokenTTL: defaultRefreshTokenTTL,
		secretBytes:     defaultSecretBytes,
		nowFunc:         time.Now,
	}
	p.interactionURL = func(uid string) string {
		return "/interaction/" + uid
	}

	for _, opt := range options {
		opt(p)
	}

	if tokens.Issuer() != p.issuer {
		return nil, errors.Errorf("[provider.New] token issuer %q does not match %q", tokens.Issuer(), p.issuer)
	}
	return p, nil
}

// Issuer returns the issuer identifier
func (p *Provider) Issuer() string {
	return p.issuer
}

// Route is a provider endpoint. CORS marks endpoints called directly by browser clients.
type Route struct {
	Pattern string
	Handler http.HandlerFunc
	CORS    bool
}

// Routes lists the provider's endpoints for registration on a mux
func (p *Provider) Routes() []Route {
	return []Route{
		{Pattern: "GET " + RouteDiscovery, Handler: p.Discovery(), CORS: true},
		{Pattern: "GET " + RouteJWKS, Handler: p.JWKS(), CORS: true},
		{Pattern: "GET " + RouteAuthorize, Handler: p.Authorize()},
		{Pattern: "POST " + RouteAuthorize, Handler: p.Authorize()},
		{Pattern: "GET " + RouteResume, Handler: p.Resume()},
		{Pattern: "POST " + RouteToken, Handler: p.Token(), CORS: true},
		{Pattern: "GET " + RouteUserInfo, Handler: p.UserInfo(), CORS: true},
		{Pattern: "POST " + RouteUserInfo, Handler: p.UserInfo(), CORS: true},
		{Pattern: "POST " + RouteRevocation, Handler: p.Revoke(), CORS: true},
		{Pattern: "POST " + RouteIntrospection, Handler: p.Introspect(), CORS: true},
		{Pattern: "GET " + RouteEndSession, Handler: p.EndSession()},
		{Pattern: "POST " + RouteEndSession, Handler: p.EndSession()},
	}
}

// Handler serves every provider route
func (p *Provider) Handler() http.Handler {
	mux := http.NewServeMux()
	for _, route := range p.Routes() {
		mux.HandleFunc(route.Pattern, route.Handler)
	}
	return mux
}

func (p *Provider) setCookie(w http.ResponseWriter, name, value, path string, ttl time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     path,
		MaxAge:   int(ttl.Seconds()),
		HttpOnly: true,
		Secure:   p.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (p *Provider) clearCookie(w http.ResponseWriter, name, path string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     path,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   p.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (p *Provider) newSecret() (string, error) {
	b := make([]byte, p.secretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "[Provider.newSecret]")
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// remaining returns the time left until expiresAt, at least one second so a store never
// receives a zero ttl meaning "forever"
func (p *Provider) remaining(expiresAt time.Time) time.Duration {
	d := expiresAt.Sub(p.nowFunc())
	if d < time.Second {
		return time.Second
	}
	return d
}

func resumePath(uid string) string {
	return RouteAuthorize + "/" + uid
}
