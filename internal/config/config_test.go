package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/onche-connect/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	for _, v := range []string{"PORT", "ENV", "OIDC_ISSUER", "REDIS_URL", "REDIS_PREFIX", "CORS_ORIGINS", "REQUIRE_PKCE", "ONCHE_TIMEOUT", "ONCHE_MAX_ATTEMPTS", "ONCHE_LAYOUT"} {
		t.Setenv(v, "")
	}
	c := config.New()

	require.Equal(t, ":3000", c.GetPort())
	require.Equal(t, "DEV", c.GetEnv())
	require.Equal(t, "http://localhost:3000", c.GetIssuer())
	require.Equal(t, "./clients.json", c.GetClientsFile())
	require.Equal(t, "./jwks.json", c.GetKeysFile())

	require.Empty(t, c.GetRedisURL(), "no Redis means in-memory stores")
	require.Equal(t, "oidc:", c.GetRedisPrefix())
	require.Equal(t, 600*time.Second, c.GetPinTTL())

	require.Equal(t, "https://onche.org", c.GetUpstreamBaseURL())
	require.Equal(t, "cover-v2", c.GetUpstreamLayout())
	require.Equal(t, 10*time.Second, c.GetUpstreamRequestTimeout())
	require.Equal(t, 3, c.GetUpstreamMaxAttempts())
	require.Equal(t, 3, c.GetUpstreamCandidatePages())

	require.Equal(t, 10*time.Minute, c.GetAuthCodeTimeout())
	require.Equal(t, time.Hour, c.GetDefaultAccessTokenExpiry())
	require.Equal(t, 24*time.Hour, c.GetDefaultRefreshTokenExpiry())
	require.Equal(t, 5*time.Minute, c.GetInteractionTTL())
	require.False(t, c.GetRequirePKCE())
	require.False(t, c.GetSecureCookies())
	require.Empty(t, c.GetAllowedOrigins())
}

func TestOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("OIDC_ISSUER", "https://connect.example/")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example,")
	t.Setenv("REQUIRE_PKCE", "TRUE")
	t.Setenv("ONCHE_TIMEOUT", "3s")
	t.Setenv("ONCHE_MAX_ATTEMPTS", "5")
	c := config.New()

	require.Equal(t, ":8080", c.GetPort())
	require.Equal(t, "https://connect.example", c.GetIssuer())
	require.True(t, c.GetSecureCookies())
	require.True(t, c.GetRequirePKCE())
	require.Equal(t, 3*time.Second, c.GetUpstreamRequestTimeout())
	require.Equal(t, 5, c.GetUpstreamMaxAttempts())

	origins := c.GetAllowedOrigins()
	require.Len(t, origins, 2)
	require.True(t, origins.IsAllowedOrigin("https://a.example"))
	require.True(t, origins.IsAllowedOrigin("https://b.example"))
	require.False(t, origins.IsAllowedOrigin("https://c.example"))
}

func TestMalformedNumbersFallBack(t *testing.T) {
	t.Setenv("ONCHE_TIMEOUT", "soon")
	t.Setenv("ONCHE_CANDIDATE_PAGES", "many")
	c := config.New()

	require.Equal(t, 10*time.Second, c.GetUpstreamRequestTimeout())
	require.Equal(t, 3, c.GetUpstreamCandidatePages())
}
