package pin

import (
	"context"
	"fmt"

	apperrors "github.com/jrsteele09/onche-connect/internal/errors"
	"github.com/jrsteele09/onche-connect/upstream"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const messageTemplate = "[b][ONCHE CONNECT][/b] Code PIN pour la session [i][%s][/i]: [b]%s[/b]"

// Upstream is the part of the community site client the exchange needs
type Upstream interface {
	FetchProfile(ctx context.Context, handle string) (*upstream.Profile, error)
	FetchActionToken(ctx context.Context) (string, error)
	SendDirectMessage(ctx context.Context, toHandle, body, token string) (bool, error)
}

var _ Upstream = (*upstream.Client)(nil)

// Exchange issues a code for a login attempt and delivers it by private message
type Exchange struct {
	store        Store
	upstream     Upstream
	displayToken func() (string, error)
}

// ExchangeOption defines a function type to modify the Exchange instance.
type ExchangeOption func(*Exchange)

// WithDisplayTokenFunc replaces the display token source (primarily for testing)
func WithDisplayTokenFunc(f func() (string, error)) ExchangeOption {
	return func(e *Exchange) {
		e.displayToken = f
	}
}

// NewExchange creates an exchange issuing codes into store and delivering them through up
func NewExchange(store Store, up Upstream, options ...ExchangeOption) (*Exchange, error) {
	if store == nil || up == nil {
		return nil, errors.New("[NewExchange] store and upstream are required")
	}
	e := &Exchange{
		store:        store,
		upstream:     up,
		displayToken: NewDisplayToken,
	}
	for _, opt := range options {
		opt(e)
	}
	return e, nil
}

// Send issues a code for (handle, uid) and delivers it to handle. It returns the display
// token quoted in the message. A handle that cannot be resolved to an account fails with
// ErrSubjectUnknown before any code is issued; a message that is not confirmed delivered
// fails with ErrDeliveryFailed.
func (e *Exchange) Send(ctx context.Context, handle, uid string) (string, error) {
	profile, err := e.upstream.FetchProfile(ctx, handle)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperrors.ErrSubjectUnknown, err)
	}
	if profile == nil {
		return "", fmt.Errorf("%w: %s", apperrors.ErrSubjectUnknown, handle)
	}

	display, err := e.displayToken()
	if err != nil {
		return "", errors.Wrap(err, "[Exchange.Send] display token")
	}

	code, err := e.store.Issue(ctx, handle, uid)
	if err != nil {
		return "", errors.Wrap(err, "[Exchange.Send] issue code")
	}

	token, err := e.upstream.FetchActionToken(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", apperrors.ErrDeliveryFailed, err)
	}

	delivered, err := e.upstream.SendDirectMessage(ctx, handle, fmt.Sprintf(messageTemplate, display, code), token)
	switch {
	case errors.Is(err, apperrors.ErrRecipientUnresolvable):
		return "", fmt.Errorf("%w: %w", apperrors.ErrSubjectUnknown, err)
	case err != nil:
		return "", fmt.Errorf("%w: %w", apperrors.ErrDeliveryFailed, err)
	case !delivered:
		return "", fmt.Errorf("%w: %s refused the message", apperrors.ErrDeliveryFailed, handle)
	}

	log.Info().Str("handle", handle).Str("uid", uid).Int64("account_id", profile.ID).Msg("PIN delivered")
	return display, nil
}

// Verify consumes the code issued for (handle, uid) if code matches it
func (e *Exchange) Verify(ctx context.Context, handle, uid, code string) (bool, error) {
	return e.store.VerifyAndConsume(ctx, handle, uid, code)
}
