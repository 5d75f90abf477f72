package token_test

import (
	"path/filepath"
	"testing"
	"time"

	apperrors "github.com/jrsteele09/onche-connect/internal/errors"
	"github.com/jrsteele09/onche-connect/token"
	"github.com/stretchr/testify/require"
)

const issuer = "http://localhost:3000"

func newManager(t *testing.T, now func() time.Time) *token.Manager {
	t.Helper()
	kp, err := token.GenerateRSAKeyPair(token.DefaultKeyID, 2048)
	require.NoError(t, err)
	return token.New(token.NewKeyPairSigner(kp),
		token.WithIssuer(issuer),
		token.WithTokenExpiry(time.Hour, time.Hour),
		token.WithNowFunc(now))
}

func TestManager_AccessTokenRoundTrip(t *testing.T) {
	m := newManager(t, time.Now)

	raw, exp, err := m.CreateAccessToken(token.AccessTokenParams{
		JTI:      "jti-1",
		Subject:  "kheyvarnish",
		ClientID: "test-client",
		Scope:    "openid profile",
	})
	require.NoError(t, err)
	require.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	claims, err := m.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "kheyvarnish", claims["sub"])
	require.Equal(t, "jti-1", claims["jti"])
	require.Equal(t, "test-client", claims["client_id"])
	require.Equal(t, "openid profile", claims["scope"])
}

func TestManager_ParseRejects(t *testing.T) {
	now := time.Now()
	m := newManager(t, func() time.Time { return now })

	raw, _, err := m.CreateAccessToken(token.AccessTokenParams{JTI: "j", Subject: "s", ClientID: "c"})
	require.NoError(t, err)

	_, err = m.Parse("")
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)

	_, err = m.Parse("not.a.jwt")
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)

	other := newManager(t, func() time.Time { return now })
	_, err = other.Parse(raw)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken, "signed by another key")

	kp, err := token.GenerateRSAKeyPair(token.DefaultKeyID, 2048)
	require.NoError(t, err)
	past := token.New(token.NewKeyPairSigner(kp), token.WithIssuer(issuer),
		token.WithNowFunc(func() time.Time { return now.Add(-2 * time.Hour) }))
	present := token.New(token.NewKeyPairSigner(kp), token.WithIssuer(issuer),
		token.WithNowFunc(func() time.Time { return now }))

	oldRaw, _, err := past.CreateAccessToken(token.AccessTokenParams{JTI: "j", Subject: "s", ClientID: "c"})
	require.NoError(t, err)
	_, err = present.Parse(oldRaw)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken, "an hour past expiry")

	wrongIssuer := token.New(token.NewKeyPairSigner(kp), token.WithIssuer("https://elsewhere"))
	_, err = wrongIssuer.Parse(oldRaw)
	require.ErrorIs(t, err, apperrors.ErrInvalidToken)
}

func TestManager_IDToken(t *testing.T) {
	m := newManager(t, time.Now)
	authTime := time.Now().Add(-time.Minute).Truncate(time.Second)

	raw, err := m.CreateIDToken(token.IDTokenParams{
		Subject:     "kheyvarnish",
		ClientID:    "test-client",
		Nonce:       "n-0S6_WzA2Mj",
		AuthTime:    authTime,
		AccessToken: "access",
		Claims:      map[string]any{"name": "Kheyvarnish", "sub": "spoofed"},
	})
	require.NoError(t, err)

	claims, err := m.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "kheyvarnish", claims["sub"], "registered claims cannot be overridden")
	require.Equal(t, "test-client", claims["aud"])
	require.Equal(t, "n-0S6_WzA2Mj", claims["nonce"])
	require.Equal(t, "Kheyvarnish", claims["name"])
	require.EqualValues(t, authTime.Unix(), claims["auth_time"])
	require.NotEmpty(t, claims["at_hash"])
}

func TestManager_JWKS(t *testing.T) {
	m := newManager(t, time.Now)
	set, err := m.GetJWKS()
	require.NoError(t, err)
	require.Len(t, set.Keys, 1)
	require.Equal(t, "RSA", set.Keys[0].Kty)
	require.Equal(t, token.DefaultKeyID, set.Keys[0].Kid)
	require.Equal(t, "RS256", set.Keys[0].Alg)
	require.Empty(t, set.Keys[0].D, "private members are never published")
}

func TestLoadOrCreateKeyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "jwks.json")

	created, err := token.LoadOrCreateKeyFile(path, "")
	require.NoError(t, err)
	require.Equal(t, token.DefaultKeyID, created.KeyID)

	loaded, err := token.LoadOrCreateKeyFile(path, "ignored")
	require.NoError(t, err)
	require.Equal(t, created.KeyID, loaded.KeyID)

	// A token signed with the created key verifies with the loaded one
	signer := token.New(token.NewKeyPairSigner(created), token.WithIssuer(issuer))
	verifier := token.New(token.NewKeyPairSigner(loaded), token.WithIssuer(issuer))
	raw, _, err := signer.CreateAccessToken(token.AccessTokenParams{JTI: "j", Subject: "s", ClientID: "c"})
	require.NoError(t, err)
	_, err = verifier.Parse(raw)
	require.NoError(t, err)
}
