package server_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/jrsteele09/onche-connect/clients"
	"github.com/jrsteele09/onche-connect/interaction"
	"github.com/jrsteele09/onche-connect/internal/config"
	"github.com/jrsteele09/onche-connect/pin"
	"github.com/jrsteele09/onche-connect/provider"
	"github.com/jrsteele09/onche-connect/server"
	"github.com/jrsteele09/onche-connect/storage"
	"github.com/jrsteele09/onche-connect/token"
	"github.com/jrsteele09/onche-connect/upstream"
	"github.com/jrsteele09/onche-connect/upstream/fakesite"
	"github.com/stretchr/testify/require"
)

const (
	botUsername = "onche-connect-bot"
	botPassword = "bot-password"
	rpCallback  = "https://rp.example/cb"
	rpOrigin    = "https://rp.example"
	rpSecret    = "s3cret"
)

var (
	kheyvarnish = fakesite.Account{
		ID:            4242,
		Handle:        "kheyvarnish",
		DisplayName:   "Kheyvarnish",
		AvatarURL:     "https://onche.org/avatars/4242.png",
		Level:         "Niveau 12",
		SignupDate:    "12/03/2019",
		LastLoginDate: "Aujourd'hui",
		MessageCount:  "12 345 messages",
		PostsOnPage:   2,
	}

	pinPattern  = regexp.MustCompile(`\[b\](\d{6})\[/b\]`)
	formPattern = regexp.MustCompile(`action="(/interaction/[^"]+)"`)
)

// testFixture runs the whole service against a fake community site
type testFixture struct {
	site    *fakesite.Site
	server  *httptest.Server
	browser *http.Client
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	t.Setenv("CORS_ORIGINS", rpOrigin)

	site := fakesite.New(botUsername, botPassword, kheyvarnish)
	t.Cleanup(site.Close)

	var handler http.Handler
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	session, err := upstream.NewSession(site.URL, botUsername, botPassword, upstream.WithLoginTimeout(5*time.Second))
	require.NoError(t, err)
	client, err := upstream.NewClient(session, upstream.WithRequestTimeout(2*time.Second))
	require.NoError(t, err)

	exchange, err := pin.NewExchange(pin.NewInMemoryStore(), client)
	require.NoError(t, err)
	accounts, err := interaction.NewAccounts(client)
	require.NoError(t, err)

	keyPair, err := token.GenerateRSAKeyPair(token.DefaultKeyID, 2048)
	require.NoError(t, err)
	tokens := token.New(token.NewKeyPairSigner(keyPair), token.WithIssuer(srv.URL))
	repo := clients.NewInMemoryRepo(
		&clients.Client{ID: "webapp", Secret: rpSecret, RedirectURIs: []string{rpCallback}},
	)
	p, err := provider.New(srv.URL, storage.NewMemory(), repo, tokens, accounts.FindAccount)
	require.NoError(t, err)

	renderer, err := server.NewTemplateRenderer("Onche Connect")
	require.NoError(t, err)
	orchestrator, err := interaction.NewOrchestrator(p, exchange, renderer)
	require.NoError(t, err)

	s, err := server.New("TEST", config.Cors{}, p, orchestrator)
	require.NoError(t, err)
	handler = s

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &testFixture{
		site:   site,
		server: srv,
		browser: &http.Client{
			Jar: jar,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

type page struct {
	status   int
	body     string
	location *url.URL
	header   http.Header
}

func (f *testFixture) do(t *testing.T, req *http.Request) page {
	t.Helper()
	resp, err := f.browser.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	p := page{status: resp.StatusCode, body: string(body), header: resp.Header}
	if loc, err := resp.Location(); err == nil {
		p.location = loc
	}
	return p
}

func (f *testFixture) get(t *testing.T, target string) page {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, target, nil)
	require.NoError(t, err)
	return f.do(t, req)
}

func (f *testFixture) postForm(t *testing.T, target string, form url.Values) page {
	t.Helper()
	req, err := http.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.do(t, req)
}

// startAuthorization follows the browser to the first interaction form
func (f *testFixture) startAuthorization(t *testing.T) page {
	t.Helper()
	params := url.Values{
		"client_id":     {"webapp"},
		"response_type": {"code"},
		"redirect_uri":  {rpCallback},
		"scope":         {"openid profile"},
		"state":         {"xyz-state"},
		"nonce":         {"n-0S6_WzA2Mj"},
	}
	redirect := f.get(t, f.server.URL+provider.RouteAuthorize+"?"+params.Encode())
	require.Equal(t, http.StatusSeeOther, redirect.status)
	require.True(t, strings.HasPrefix(redirect.location.Path, "/interaction/"), redirect.location.String())

	form := f.get(t, redirect.location.String())
	require.Equal(t, http.StatusOK, form.status)
	return form
}

func (f *testFixture) formAction(t *testing.T, p page) string {
	t.Helper()
	m := formPattern.FindStringSubmatch(p.body)
	require.Len(t, m, 2, "no form in %s", p.body)
	return f.server.URL + m[1]
}

func (f *testFixture) lastPin(t *testing.T) string {
	t.Helper()
	messages := f.site.Messages()
	require.NotEmpty(t, messages, "no PIN was delivered")
	m := pinPattern.FindStringSubmatch(messages[len(messages)-1].Body)
	require.Len(t, m, 2)
	return m[1]
}

func pinForm(handle, code string) url.Values {
	form := url.Values{"username": {handle}}
	for i, c := range code {
		form.Set("pin"+strconv.Itoa(i+1), string(c))
	}
	return form
}

// followToClient follows redirects until one leaves the provider
func (f *testFixture) followToClient(t *testing.T, p page) page {
	t.Helper()
	for i := 0; i < 10; i++ {
		require.Equal(t, http.StatusSeeOther, p.status, p.body)
		if p.location.Host != strings.TrimPrefix(f.server.URL, "http://") {
			return p
		}
		if strings.HasPrefix(p.location.Path, "/interaction/") {
			return p
		}
		p = f.get(t, p.location.String())
	}
	t.Fatal("too many redirects")
	return p
}

func TestEndToEndLogin(t *testing.T) {
	f := setupTestFixture(t)

	login := f.startAuthorization(t)
	require.Contains(t, login.body, `name="username"`)
	require.Equal(t, "no-store", login.header.Get("Cache-Control"))
	require.Equal(t, "SAMEORIGIN", login.header.Get("X-Frame-Options"))

	otp := f.postForm(t, f.formAction(t, login), url.Values{"username": {"kheyvarnish"}})
	require.Equal(t, http.StatusOK, otp.status)
	require.Contains(t, otp.body, `name="pin6"`)

	messages := f.site.Messages()
	require.Len(t, messages, 1)
	require.Equal(t, "kheyvarnish", messages[0].To)

	verified := f.postForm(t, f.formAction(t, otp), pinForm("kheyvarnish", f.lastPin(t)))
	next := f.followToClient(t, verified)
	require.True(t, strings.HasPrefix(next.location.Path, "/interaction/"), "consent is asked next")

	consent := f.get(t, next.location.String())
	require.Equal(t, http.StatusOK, consent.status)
	require.Contains(t, consent.body, "webapp")
	require.Contains(t, consent.body, "<li>profile</li>")

	callback := f.followToClient(t, f.get(t, f.formAction(t, consent)))
	require.Equal(t, "rp.example", callback.location.Host)
	require.Equal(t, "xyz-state", callback.location.Query().Get("state"))
	code := callback.location.Query().Get("code")
	require.NotEmpty(t, code)

	tokens := exchangeCode(t, f.server.URL, code)
	require.Equal(t, "openid profile", tokens["scope"])

	info := userInfo(t, f.server.URL, tokens["access_token"].(string))
	require.Equal(t, "kheyvarnish", info["sub"])
	require.EqualValues(t, 4242, info["id"])
	require.Equal(t, "Kheyvarnish", info["name"])
	require.Equal(t, "https://onche.org/avatars/4242.png", info["picture"])
	require.Equal(t, "Niveau 12", info["onche_level"])
	require.Equal(t, "12/03/2019", info["onche_signup_date"])
	require.Equal(t, "Aujourd'hui", info["onche_last_login_date"])
	require.EqualValues(t, 12345, info["onche_msg_count"])

	// A second authorization reuses the session and the grant
	params := url.Values{
		"client_id":     {"webapp"},
		"response_type": {"code"},
		"redirect_uri":  {rpCallback},
		"scope":         {"openid profile"},
		"state":         {"again"},
	}
	again := f.get(t, f.server.URL+provider.RouteAuthorize+"?"+params.Encode())
	require.Equal(t, http.StatusSeeOther, again.status)
	require.Equal(t, "rp.example", again.location.Host)
	require.NotEmpty(t, again.location.Query().Get("code"))
	require.Len(t, f.site.Messages(), 1, "no new PIN for a live session")
}

func TestEndToEndWrongPin(t *testing.T) {
	f := setupTestFixture(t)

	login := f.startAuthorization(t)
	otp := f.postForm(t, f.formAction(t, login), url.Values{"username": {"kheyvarnish"}})
	require.Equal(t, http.StatusOK, otp.status)

	wrong := "000000"
	if f.lastPin(t) == wrong {
		wrong = "111111"
	}
	retry := f.postForm(t, f.formAction(t, otp), pinForm("kheyvarnish", wrong))
	require.Equal(t, http.StatusOK, retry.status)
	require.Contains(t, retry.body, interaction.MessagePinMismatch)
	require.Contains(t, retry.body, "******")

	// The live PIN still works after a wrong guess
	verified := f.postForm(t, f.formAction(t, retry), pinForm("kheyvarnish", f.lastPin(t)))
	require.Equal(t, http.StatusSeeOther, verified.status)
}

func TestEndToEndUnknownHandle(t *testing.T) {
	f := setupTestFixture(t)

	login := f.startAuthorization(t)
	retry := f.postForm(t, f.formAction(t, login), url.Values{"username": {"nobody"}})
	require.Equal(t, http.StatusOK, retry.status)
	require.Contains(t, retry.body, interaction.MessageSubjectUnknown)
	require.Empty(t, f.site.Messages())
}

func TestUnknownInteraction(t *testing.T) {
	f := setupTestFixture(t)

	p := f.get(t, f.server.URL+"/interaction/does-not-exist")
	require.Equal(t, http.StatusBadRequest, p.status)
}

func TestStaticStylesheet(t *testing.T) {
	f := setupTestFixture(t)

	p := f.get(t, f.server.URL+"/css/onche.css")
	require.Equal(t, http.StatusOK, p.status)
	require.Contains(t, p.header.Get("Content-Type"), "text/css")
	require.NotEmpty(t, p.header.Get("Cache-Control"))

	missing := f.get(t, f.server.URL+"/css/missing.css")
	require.Equal(t, http.StatusNotFound, missing.status)
}

func TestCorsPreflight(t *testing.T) {
	f := setupTestFixture(t)

	req, err := http.NewRequest(http.MethodOptions, f.server.URL+provider.RouteToken, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", rpOrigin)
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	p := f.do(t, req)
	require.Equal(t, http.StatusOK, p.status)
	require.Equal(t, rpOrigin, p.header.Get("Access-Control-Allow-Origin"))
	require.Contains(t, p.header.Get("Access-Control-Allow-Methods"), "POST")

	req, err = http.NewRequest(http.MethodGet, f.server.URL+provider.RouteDiscovery, nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://evil.example")
	p = f.do(t, req)
	require.Equal(t, http.StatusOK, p.status)
	require.Empty(t, p.header.Get("Access-Control-Allow-Origin"))
}

func TestNew_Validation(t *testing.T) {
	_, err := server.New("TEST", nil, nil, nil)
	require.Error(t, err)
}

func exchangeCode(t *testing.T, issuer, code string) map[string]any {
	t.Helper()
	form := url.Values{
		"grant_type":   {"authorization_code"},
		"code":         {code},
		"redirect_uri": {rpCallback},
	}
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, issuer+provider.RouteToken, strings.NewReader(form.Encode()))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("webapp", rpSecret)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, http.StatusOK, resp.StatusCode, "%v", body)
	return body
}

func userInfo(t *testing.T, issuer, accessToken string) map[string]any {
	t.Helper()
	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, issuer+provider.RouteUserInfo, nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	body := map[string]any{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, http.StatusOK, resp.StatusCode, "%v", body)
	return body
}
