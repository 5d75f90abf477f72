package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/PuerkitoBio/goquery"
	apperrors "github.com/jrsteele09/onche-connect/internal/errors"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"
)

const (
	chatPath = "/chat"

	defaultMaxAttempts    = 3
	defaultRequestTimeout = 10 * time.Second
	defaultCandidatePages = 3
)

// Client performs privileged actions on the community site with the shared session.
// An attempt failing for any reason other than a definitive answer invalidates the
// credential it used and the next attempt logs in again, up to a fixed number of attempts.
type Client struct {
	session        *Session
	maxAttempts    int
	requestTimeout time.Duration
	candidatePages int
}

// ClientOption defines a function type to modify the Client instance.
type ClientOption func(*Client)

// WithMaxAttempts sets how many attempts a single call may use, logins included
func WithMaxAttempts(attempts int) ClientOption {
	return func(c *Client) {
		c.maxAttempts = attempts
	}
}

// WithRequestTimeout bounds every outbound request
func WithRequestTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.requestTimeout = timeout
	}
}

// WithCandidatePages sets how many pages of recent posts are searched for an account id
func WithCandidatePages(pages int) ClientOption {
	return func(c *Client) {
		c.candidatePages = pages
	}
}

// NewClient creates a client acting through session
func NewClient(session *Session, options ...ClientOption) (*Client, error) {
	if session == nil {
		return nil, errors.New("[NewClient] session is required")
	}

	c := &Client{
		session:        session,
		maxAttempts:    defaultMaxAttempts,
		requestTimeout: defaultRequestTimeout,
		candidatePages: defaultCandidatePages,
	}

	for _, opt := range options {
		opt(c)
	}

	if c.maxAttempts < 1 {
		return nil, errors.New("[NewClient] at least one attempt is required")
	}
	return c, nil
}

// FetchActionToken reads the one-time token the site requires before a private message
func (c *Client) FetchActionToken(ctx context.Context) (string, error) {
	var token string
	_, err := c.do(ctx, "fetch action token", request{method: http.MethodGet, path: chatPath}, func(resp *response) error {
		doc, err := resp.document()
		if err != nil {
			return err
		}
		t, ok := c.session.layout.ActionToken(doc)
		if !ok {
			return fmt.Errorf("%w: action token missing", apperrors.ErrAuthenticationFailed)
		}
		token = t
		return nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// SendDirectMessage delivers body to toHandle. It reports true only when the site
// explicitly confirms the recipient did not block the message.
func (c *Client) SendDirectMessage(ctx context.Context, toHandle, body, token string) (bool, error) {
	conversationID, err := c.resolveConversation(ctx, toHandle, token)
	if err != nil {
		return false, err
	}

	resp, err := c.do(ctx, "send direct message", request{
		method: http.MethodPost,
		path:   chatPath + "/" + conversationID,
		form:   url.Values{"message": {body}, "token": {token}},
	}, nil)
	if err != nil {
		return false, err
	}

	blocked := gjson.GetBytes(resp.body, "blocked")
	if !blocked.Exists() || blocked.String() != "no" {
		log.Warn().Str("recipient", toHandle).Str("blocked", blocked.String()).Msg("Direct message not delivered")
		return false, nil
	}
	return true, nil
}

func (c *Client) resolveConversation(ctx context.Context, handle, token string) (string, error) {
	resp, err := c.do(ctx, "resolve conversation", request{
		method: http.MethodPost,
		path:   chatPath,
		form:   url.Values{"username": {handle}, "token": {token}},
	}, nil)
	if errors.Is(err, apperrors.ErrNotFound) {
		return "", fmt.Errorf("%w: %s", apperrors.ErrRecipientUnresolvable, handle)
	}
	if err != nil {
		return "", err
	}

	if !gjson.ValidBytes(resp.body) {
		return "", fmt.Errorf("%w: %s: malformed response", apperrors.ErrRecipientUnresolvable, handle)
	}
	id := gjson.GetBytes(resp.body, "id").Int()
	if id <= 0 {
		return "", fmt.Errorf("%w: %s", apperrors.ErrRecipientUnresolvable, handle)
	}
	return strconv.FormatInt(id, 10), nil
}

// FetchProfile reads the public profile of handle. A nil profile with a nil error means
// the account cannot be resolved: it does not exist, its page cannot be read, or none of
// its recent posts reveal its numeric id.
func (c *Client) FetchProfile(ctx context.Context, handle string) (*Profile, error) {
	if handle == "" {
		return nil, nil
	}
	escaped := url.PathEscape(handle)

	resp, err := c.do(ctx, "fetch profile", request{method: http.MethodGet, path: "/profile/" + escaped}, nil)
	if errors.Is(err, apperrors.ErrNotFound) {
		log.Info().Str("handle", handle).Msg("Upstream profile not found")
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	doc, err := resp.document()
	if err != nil {
		return nil, nil
	}
	fields, ok := c.session.layout.ProfileFields(doc)
	if !ok {
		log.Warn().Str("handle", handle).Str("layout", c.session.layout.Name()).Msg("Upstream profile page did not match layout")
		return nil, nil
	}

	id, ok, err := c.resolveAccountID(ctx, handle, escaped)
	if err != nil {
		return nil, err
	}
	if !ok {
		log.Info().Str("handle", handle).Int("pages", c.candidatePages).Msg("No public post reveals the upstream account id")
		return nil, nil
	}

	return &Profile{ID: id, Handle: handle, ProfileFields: fields}, nil
}

// resolveAccountID looks for a post by handle in its most recent message pages;
// the profile page itself does not expose the numeric id.
func (c *Client) resolveAccountID(ctx context.Context, handle, escaped string) (int64, bool, error) {
	for page := 1; page <= c.candidatePages; page++ {
		resp, err := c.do(ctx, "resolve account id", request{
			method: http.MethodGet,
			path:   fmt.Sprintf("/profile/%s/messages?page=%d", escaped, page),
		}, nil)
		if errors.Is(err, apperrors.ErrNotFound) {
			break
		}
		if err != nil {
			return 0, false, err
		}

		doc, err := resp.document()
		if err != nil {
			continue
		}
		if id, ok := c.session.layout.AuthorID(doc, handle); ok {
			return id, true, nil
		}
	}
	return 0, false, nil
}

type request struct {
	method string
	path   string
	form   url.Values // Sent as multipart/form-data when set
}

type response struct {
	status int
	body   []byte
}

func (r *response) document() (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(r.body))
	if err != nil {
		return nil, fmt.Errorf("%w: unreadable page", apperrors.ErrAuthenticationFailed)
	}
	return doc, nil
}

// do runs req within the attempt budget. validate inspects successful pages; returning an
// error wrapping ErrAuthenticationFailed marks the page as served to a logged-out visitor
// and consumes an attempt like an unauthorized status would.
func (c *Client) do(ctx context.Context, op string, req request, validate func(*response) error) (*response, error) {
	var (
		lastErr error
		stale   *Credential
	)
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("[upstream %s] %w: %w", op, apperrors.ErrUpstreamUnavailable, err)
		}

		var err error
		if stale != nil {
			err = c.session.Renew(ctx, *stale)
		} else {
			err = c.session.Ensure(ctx)
		}
		if err != nil {
			if errors.Is(err, apperrors.ErrCaptchaDetected) {
				return nil, err
			}
			lastErr = err
			log.Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("Upstream session unavailable")
			continue
		}

		credential, ok := c.session.Credential()
		if !ok {
			lastErr = apperrors.ErrAuthenticationFailed
			continue
		}

		resp, err := c.send(ctx, credential, req)
		switch {
		case err != nil:
			lastErr = err
		case resp.status == http.StatusNotFound:
			return nil, fmt.Errorf("[upstream %s] %w", op, apperrors.ErrNotFound)
		case resp.status < 200 || resp.status > 299:
			lastErr = fmt.Errorf("%w: status %d", apperrors.ErrAuthenticationFailed, resp.status)
		case validate == nil:
			return resp, nil
		default:
			verr := validate(resp)
			if verr == nil {
				return resp, nil
			}
			if !errors.Is(verr, apperrors.ErrAuthenticationFailed) {
				return nil, verr
			}
			lastErr = verr
		}

		log.Debug().Err(lastErr).Str("op", op).Int("attempt", attempt).Msg("Upstream attempt failed, renewing session")
		stale = &credential
	}

	log.Warn().Err(lastErr).Str("op", op).Int("attempts", c.maxAttempts).Msg("Upstream retry budget exhausted")
	return nil, fmt.Errorf("[upstream %s] %w: %v", op, apperrors.ErrUpstreamUnavailable, lastErr)
}

func (c *Client) send(ctx context.Context, credential Credential, req request) (*response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	var (
		body        io.Reader
		contentType string
	)
	if req.form != nil {
		var err error
		body, contentType, err = multipartBody(req.form)
		if err != nil {
			return nil, err
		}
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, c.session.baseURL+req.path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for _, cookie := range credential.Cookies() {
		httpReq.AddCookie(cookie)
	}

	resp, err := c.session.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, err
	}
	return &response{status: resp.StatusCode, body: data}, nil
}
