package oauth2_test

import (
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/jrsteele09/onche-connect/oauth2"
	"github.com/stretchr/testify/require"
)

const (
	testCodeChallenge = "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM"
	testCodeVerifier  = "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
)

func TestVerifyCodeChallenge(t *testing.T) {
	require.True(t, oauth2.VerifyCodeChallenge(testCodeChallenge, oauth2.CodeMethodTypeS256, testCodeVerifier))
	require.False(t, oauth2.VerifyCodeChallenge(testCodeChallenge, oauth2.CodeMethodTypeS256, testCodeVerifier+"x"))
	require.False(t, oauth2.VerifyCodeChallenge(testCodeChallenge, oauth2.CodeMethodTypeS256, "short"))
	require.True(t, oauth2.VerifyCodeChallenge(testCodeVerifier, oauth2.CodeMethodTypePlain, testCodeVerifier))
	require.False(t, oauth2.VerifyCodeChallenge(testCodeVerifier, "S512", testCodeVerifier))
}

func TestParseAuthorizationParameters(t *testing.T) {
	values, err := url.ParseQuery("client_id=app&response_type=code&scope=openid+profile+openid&prompt=login+consent&state=xyz")
	require.NoError(t, err)

	p := oauth2.ParseAuthorizationParameters(values)
	require.Equal(t, "app", p.ClientID)
	require.Equal(t, oauth2.CodeResponseType, p.ResponseType)
	require.Equal(t, []string{"openid", "profile"}, p.Scopes())
	require.True(t, p.HasPrompt(oauth2.PromptConsent))
	require.False(t, p.HasPrompt(oauth2.PromptNone))
}

func TestParseTokenRequest(t *testing.T) {
	form := url.Values{"grant_type": {"authorization_code"}, "code": {"c"}, "client_id": {"ignored"}}
	r := httptest.NewRequest("POST", "/token", strings.NewReader(form.Encode()))
	r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	r.SetBasicAuth("my%20app", "p%40ss")

	req := oauth2.ParseTokenRequest(r)
	require.Equal(t, oauth2.AuthorizationCodeGrant, req.GrantType)
	require.Equal(t, "my app", req.ClientID)
	require.Equal(t, "p@ss", req.ClientSecret)
	require.True(t, req.BasicAuth)
	require.Equal(t, "c", req.Code)
}
