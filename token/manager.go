package token

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	apperrors "github.com/jrsteele09/onche-connect/internal/errors"
	"github.com/pkg/errors"
)

// IDTokenParams describes the ID token issued with an authorization code exchange
type IDTokenParams struct {
	Subject     string
	ClientID    string
	Nonce       string
	AuthTime    time.Time
	AccessToken string         // Hashed into at_hash when set
	Claims      map[string]any // Extra claims; registered claims always win
}

// AccessTokenParams describes a bearer access token
type AccessTokenParams struct {
	JTI      string
	Subject  string
	ClientID string
	Scope    string
}

// Manager mints and verifies the provider's JWTs
type Manager struct {
	signer            Signer
	issuer            string
	accessTokenExpiry time.Duration
	idTokenExpiry     time.Duration
	nowFunc           func() time.Time
}

type ManagerOption func(*Manager)

func WithTokenExpiry(accessTokenExpiry time.Duration, idTokenExpiry time.Duration) ManagerOption {
	return func(m *Manager) {
		m.accessTokenExpiry = accessTokenExpiry
		m.idTokenExpiry = idTokenExpiry
	}
}

func WithNowFunc(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.nowFunc = now
	}
}

func WithIssuer(issuer string) ManagerOption {
	return func(m *Manager) {
		m.issuer = issuer
	}
}

func New(signer Signer, options ...ManagerOption) *Manager {
	m := &Manager{
		signer: signer,
	}

	for _, opt := range options {
		opt(m)
	}

	if m.accessTokenExpiry == 0 {
		m.accessTokenExpiry = time.Hour
	}
	if m.idTokenExpiry == 0 {
		m.idTokenExpiry = time.Hour
	}
	if m.nowFunc == nil {
		m.nowFunc = time.Now
	}
	return m
}

func (c *Manager) Issuer() string {
	return c.issuer
}

func (c *Manager) AccessTokenExpiry() time.Duration {
	return c.accessTokenExpiry
}

// SigningAlg returns the JWS algorithm tokens are signed with
func (c *Manager) SigningAlg() string {
	return c.signer.GetSigningMethod().Alg()
}

func (c *Manager) CreateIDToken(p IDTokenParams) (string, error) {
	now := c.nowFunc()

	claims := jwt.MapClaims{}
	for k, v := range p.Claims {
		claims[k] = v
	}
	claims["iss"] = c.issuer
	claims["sub"] = p.Subject
	claims["aud"] = p.ClientID
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(c.idTokenExpiry).Unix()

	if !p.AuthTime.IsZero() {
		claims["auth_time"] = p.AuthTime.Unix()
	}
	if p.Nonce != "" {
		claims["nonce"] = p.Nonce
	}
	if p.AccessToken != "" {
		claims["at_hash"] = leftHalfHash(p.AccessToken)
	}

	signed, err := c.signer.Sign(claims)
	if err != nil {
		return "", errors.Wrap(err, "[Manager.CreateIDToken] sign")
	}
	return signed, nil
}

// CreateAccessToken returns a signed access token and its expiry time
func (c *Manager) CreateAccessToken(p AccessTokenParams) (string, time.Time, error) {
	now := c.nowFunc()
	exp := now.Add(c.accessTokenExpiry)

	claims := jwt.MapClaims{
		"iss":       c.issuer,
		"sub":       p.Subject,
		"aud":       c.issuer,
		"client_id": p.ClientID,
		"scope":     p.Scope,
		"iat":       now.Unix(),
		"exp":       exp.Unix(),
		"jti":       p.JTI,
	}

	signed, err := c.signer.Sign(claims)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, "[Manager.CreateAccessToken] sign")
	}
	return signed, exp, nil
}

// Parse verifies the signature, issuer and expiry of a token minted by this manager
func (c *Manager) Parse(rawToken string) (jwt.MapClaims, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return nil, apperrors.ErrInvalidToken
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{c.signer.GetSigningMethod().Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.nowFunc),
	)
	token, err := parser.Parse(rawToken, c.signer.GetVerificationKey)
	if err != nil || !token.Valid {
		return nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "[Manager.Parse] %v", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, apperrors.ErrInvalidToken
	}
	return claims, nil
}

// GetJWKS returns the JSON Web Key Set for public key distribution
func (c *Manager) GetJWKS() (*JWKS, error) {
	return c.signer.GetJWKS()
}

func leftHalfHash(value string) string {
	sum := sha256.Sum256([]byte(value))
	return base64.RawURLEncoding.EncodeToString(sum[:len(sum)/2])
}
