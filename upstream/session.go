package upstream

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	apperrors "github.com/jrsteele09/onche-connect/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

const (
	authCookieName = "auth"
	sessCookieName = "sess"
	captchaMarker  = "h-captcha"
	loginPath      = "/account/login"
	loginFlightKey = "login"

	defaultLoginTimeout = 20 * time.Second
	maxBodySize         = 2 << 20
)

// Credential is the cookie pair proving the bot account is logged in
type Credential struct {
	Auth          string
	Sess          string
	EstablishedAt time.Time
}

// Cookies returns the credential as request cookies
func (c Credential) Cookies() []*http.Cookie {
	return []*http.Cookie{
		{Name: authCookieName, Value: c.Auth},
		{Name: sessCookieName, Value: c.Sess},
	}
}

func (c Credential) sameAs(other Credential) bool {
	return c.Auth == other.Auth && c.Sess == other.Sess
}

// Session owns the single upstream credential shared by every request in the process.
// The credential is either fully held or absent. Logins are collapsed so that any number
// of concurrent callers discovering a missing credential trigger one login sequence.
type Session struct {
	baseURL      string
	username     string
	password     string
	layout       Layout
	httpClient   *http.Client
	loginTimeout time.Duration
	nowFunc      func() time.Time

	mu         sync.RWMutex
	credential *Credential
	logins     singleflight.Group
}

// SessionOption defines a function type to modify the Session instance.
type SessionOption func(*Session)

// WithHTTPClient sets the HTTP client used for upstream calls. Redirects are never followed.
func WithHTTPClient(client *http.Client) SessionOption {
	return func(s *Session) {
		c := *client
		s.httpClient = &c
	}
}

// WithLayout selects the markup strategy used to read upstream pages
func WithLayout(layout Layout) SessionOption {
	return func(s *Session) {
		s.layout = layout
	}
}

// WithLoginTimeout bounds a whole login sequence
func WithLoginTimeout(timeout time.Duration) SessionOption {
	return func(s *Session) {
		s.loginTimeout = timeout
	}
}

// WithSessionNowFunc sets the now time function (primarily for testing)
func WithSessionNowFunc(nowFunc func() time.Time) SessionOption {
	return func(s *Session) {
		s.nowFunc = nowFunc
	}
}

// NewSession creates an unauthenticated session for the bot account
func NewSession(baseURL, username, password string, options ...SessionOption) (*Session, error) {
	if _, err := url.ParseRequestURI(baseURL); err != nil {
		return nil, errors.Wrap(err, "[NewSession] invalid base URL")
	}
	if username == "" || password == "" {
		return nil, errors.New("[NewSession] username and password are required")
	}

	s := &Session{
		baseURL:      strings.TrimSuffix(baseURL, "/"),
		username:     username,
		password:     password,
		layout:       CoverV2Layout{},
		httpClient:   &http.Client{},
		loginTimeout: defaultLoginTimeout,
		nowFunc:      time.Now,
	}

	for _, opt := range options {
		opt(s)
	}

	s.httpClient.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}

	return s, nil
}

// Credential returns the current credential, if one is held
func (s *Session) Credential() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.credential == nil {
		return Credential{}, false
	}
	return *s.credential, true
}

// InvalidateIfCurrent drops the held credential only if it is still stale.
// A caller holding an outdated credential must not discard one another caller already renewed.
func (s *Session) InvalidateIfCurrent(stale Credential) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.credential == nil || !s.credential.sameAs(stale) {
		return false
	}
	s.credential = nil
	return true
}

// Renew replaces a credential the site rejected. Callers that raced on the same stale
// credential share one login.
func (s *Session) Renew(ctx context.Context, stale Credential) error {
	if s.InvalidateIfCurrent(stale) {
		log.Info().Str("username", s.username).Dur("age", s.nowFunc().Sub(stale.EstablishedAt)).Msg("Upstream credential rejected, renewing")
	}
	return s.Ensure(ctx)
}

// Ensure makes sure a credential is held, logging in if necessary.
// Concurrent callers share one login; its failure is returned to all of them.
// A caller whose context ends stops waiting without cancelling the shared login.
func (s *Session) Ensure(ctx context.Context) error {
	if _, ok := s.Credential(); ok {
		return nil
	}

	result := s.logins.DoChan(loginFlightKey, func() (interface{}, error) {
		if _, ok := s.Credential(); ok {
			return nil, nil
		}

		loginCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.loginTimeout)
		defer cancel()

		credential, err := s.login(loginCtx)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		s.credential = credential
		s.mu.Unlock()
		return nil, nil
	})

	select {
	case res := <-result:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) login(ctx context.Context) (*Credential, error) {
	log.Info().Str("username", s.username).Msg("Logging in to upstream")

	page, err := s.fetchLoginPage(ctx)
	if err != nil {
		return nil, err
	}

	if strings.Contains(page, captchaMarker) {
		log.Error().Str("username", s.username).Msg("Upstream login blocked by captcha, manual intervention required")
		return nil, apperrors.ErrCaptchaDetected
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable login page", apperrors.ErrAuthenticationFailed)
	}
	formToken, ok := s.layout.LoginToken(doc)
	if !ok {
		return nil, fmt.Errorf("%w: login form token not found", apperrors.ErrAuthenticationFailed)
	}

	body, contentType, err := multipartBody(url.Values{
		"login":    {s.username},
		"password": {s.password},
		"token":    {formToken},
	})
	if err != nil {
		return nil, errors.Wrap(err, "[Session.login] build form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+loginPath, body)
	if err != nil {
		return nil, errors.Wrap(err, "[Session.login] build request")
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: submit credentials: %v", apperrors.ErrAuthenticationFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))

	credential, ok := credentialFromCookies(resp.Cookies(), s.nowFunc())
	if !ok {
		log.Error().Str("username", s.username).Int("status", resp.StatusCode).Msg("Upstream login returned no session cookies")
		return nil, fmt.Errorf("%w: session cookies missing", apperrors.ErrAuthenticationFailed)
	}

	log.Info().Str("username", s.username).Msg("Logged in to upstream")
	return credential, nil
}

func (s *Session) fetchLoginPage(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+loginPath, nil)
	if err != nil {
		return "", errors.Wrap(err, "[Session.fetchLoginPage] build request")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: fetch login page: %v", apperrors.ErrAuthenticationFailed, err)
	}
	defer resp.Body.Close()

	page, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return "", fmt.Errorf("%w: read login page: %v", apperrors.ErrAuthenticationFailed, err)
	}
	return string(page), nil
}

func credentialFromCookies(cookies []*http.Cookie, now time.Time) (*Credential, bool) {
	credential := &Credential{EstablishedAt: now}
	for _, c := range cookies {
		switch c.Name {
		case authCookieName:
			credential.Auth = c.Value
		case sessCookieName:
			credential.Sess = c.Value
		}
	}
	if credential.Auth == "" || credential.Sess == "" {
		return nil, false
	}
	return credential, true
}
