// Package interaction drives the end-user side of an authorization request: the community
// handle form, PIN delivery, PIN verification and consent.
package interaction

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	apperrors "github.com/jrsteele09/onche-connect/internal/errors"
	"github.com/jrsteele09/onche-connect/pin"
	"github.com/jrsteele09/onche-connect/provider"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ConsentScope is the scope every consent grants
const ConsentScope = "openid profile"

// ConsentClaims are the claims every consent grants
var ConsentClaims = []string{
	"sub",
	"id",
	"name",
	"picture",
	"onche_level",
	"onche_signup_date",
	"onche_last_login_date",
	"onche_msg_count",
}

// Messages shown on the forms
const (
	MessageHandleRequired = "Pseudo requis"
	MessageSubjectUnknown = "Compte introuvable"
	MessageDeliveryFailed = "Impossible d'envoyer le PIN, réessayez"
	MessageUnavailable    = "Service indisponible, réessayez plus tard"
	MessagePinMismatch    = "PIN invalide"
)

const (
	maskedDisplayToken = "******"
	pinFieldCount      = 6
	failureMessage     = "Oops! Something went wrong"
)

// Engine is the part of the protocol engine the orchestrator drives
type Engine interface {
	InteractionDetails(r *http.Request) (*provider.Interaction, error)
	InteractionFinished(w http.ResponseWriter, r *http.Request, result provider.Result, opts provider.FinishOptions) error
	FindGrant(ctx context.Context, id string) (*provider.Grant, error)
	NewGrant(accountID, clientID string) *provider.Grant
	SaveGrant(ctx context.Context, grant *provider.Grant) (string, error)
}

var _ Engine = (*provider.Provider)(nil)

// PinExchange delivers and verifies one-time PINs
type PinExchange interface {
	Send(ctx context.Context, handle, uid string) (string, error)
	Verify(ctx context.Context, handle, uid, code string) (bool, error)
}

var _ PinExchange = (*pin.Exchange)(nil)

// Orchestrator sequences present form -> send PIN -> verify PIN -> consent. It holds no state
// of its own; everything lives on the engine's interaction record and in the PIN store.
type Orchestrator struct {
	engine   Engine
	pins     PinExchange
	renderer Renderer
}

// NewOrchestrator creates an orchestrator rendering its forms through renderer
func NewOrchestrator(engine Engine, pins PinExchange, renderer Renderer) (*Orchestrator, error) {
	if engine == nil || pins == nil || renderer == nil {
		return nil, errors.New("[NewOrchestrator] engine, pins and renderer are required")
	}
	return &Orchestrator{engine: engine, pins: pins, renderer: renderer}, nil
}

// PresentForm renders the login form for a login prompt and the consent form otherwise
func (o *Orchestrator) PresentForm() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		details, err := o.engine.InteractionDetails(r)
		if err != nil {
			o.fail(w, err)
			return
		}

		if details.Prompt.Name == provider.PromptLogin {
			o.renderer.Render(w, http.StatusOK, Page{
				Name:     PageLogin,
				UID:      details.UID,
				ClientID: details.Params.ClientID,
				Username: details.Params.LoginHint,
			})
			return
		}
		o.renderer.Render(w, http.StatusOK, Page{
			Name:     PageConsent,
			UID:      details.UID,
			ClientID: details.Params.ClientID,
			Username: details.AccountID(),
			Scopes:   details.Params.Scopes(),
		})
	}
}

// SendPin delivers a PIN to the submitted handle and renders the PIN form
func (o *Orchestrator) SendPin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		details, err := o.engine.InteractionDetails(r)
		if err != nil {
			o.fail(w, err)
			return
		}

		handle := normalizeHandle(r.PostFormValue("username"))
		page := Page{Name: PageLogin, UID: details.UID, ClientID: details.Params.ClientID, Username: handle}
		if handle == "" {
			page.Error = MessageHandleRequired
			o.renderer.Render(w, http.StatusBadRequest, page)
			return
		}

		displayToken, err := o.pins.Send(r.Context(), handle, details.UID)
		if err != nil {
			page.Error = sendFailureMessage(err)
			log.Err(err).Str("handle", handle).Str("uid", details.UID).Msg("PIN delivery failed")
			o.renderer.Render(w, http.StatusOK, page)
			return
		}

		o.renderer.Render(w, http.StatusOK, Page{
			Name:     PageOTP,
			UID:      details.UID,
			ClientID: details.Params.ClientID,
			Username: handle,
			Session:  displayToken,
		})
	}
}

// VerifyPin checks the six submitted digits and, on a match, finishes the login
func (o *Orchestrator) VerifyPin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		details, err := o.engine.InteractionDetails(r)
		if err != nil {
			o.fail(w, err)
			return
		}

		handle := normalizeHandle(r.PostFormValue("username"))
		err = o.authenticate(r.Context(), handle, details.UID, joinPin(r))
		if apperrors.Is(err, apperrors.ErrPinMismatch) {
			o.renderer.Render(w, http.StatusOK, Page{
				Name:     PageOTP,
				UID:      details.UID,
				ClientID: details.Params.ClientID,
				Username: handle,
				Session:  maskedDisplayToken,
				Error:    MessagePinMismatch,
			})
			return
		}
		if err != nil {
			log.Err(err).Str("handle", handle).Str("uid", details.UID).Msg("PIN verification failed")
			o.renderer.Render(w, http.StatusOK, Page{
				Name:     PageOTP,
				UID:      details.UID,
				ClientID: details.Params.ClientID,
				Username: handle,
				Session:  maskedDisplayToken,
				Error:    MessageUnavailable,
			})
			return
		}

		log.Info().Str("handle", handle).Str("uid", details.UID).Msg("PIN verified")
		result := provider.Result{Login: &provider.LoginResult{AccountID: handle}}
		if err := o.engine.InteractionFinished(w, r, result, provider.FinishOptions{MergeWithLastSubmission: false}); err != nil {
			o.fail(w, err)
		}
	}
}

// Consent grants the fixed scope and claim set to the interaction's client and finishes the interaction
func (o *Orchestrator) Consent() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		details, err := o.engine.InteractionDetails(r)
		if err != nil {
			o.fail(w, err)
			return
		}

		grantID, err := o.grantConsent(r.Context(), details)
		if err != nil {
			o.fail(w, err)
			return
		}

		result := provider.Result{Consent: &provider.ConsentResult{GrantID: grantID}}
		if err := o.engine.InteractionFinished(w, r, result, provider.FinishOptions{MergeWithLastSubmission: true}); err != nil {
			o.fail(w, err)
		}
	}
}

// authenticate returns ErrPinMismatch when code is not the live PIN for (handle, uid)
func (o *Orchestrator) authenticate(ctx context.Context, handle, uid, code string) error {
	if handle == "" {
		return apperrors.ErrPinMismatch
	}
	ok, err := o.pins.Verify(ctx, handle, uid, code)
	if err != nil {
		return err
	}
	if !ok {
		return apperrors.ErrPinMismatch
	}
	return nil
}

// grantConsent loads or creates the grant for the interaction and adds the consented scope and claims
func (o *Orchestrator) grantConsent(ctx context.Context, details *provider.Interaction) (string, error) {
	accountID := details.AccountID()
	if accountID == "" {
		return "", apperrors.ErrUnauthenticatedConsent
	}

	grant, err := o.engine.FindGrant(ctx, details.GrantID)
	if err != nil {
		return "", errors.Wrap(err, "[Orchestrator.grantConsent] find grant")
	}
	if grant == nil {
		grant = o.engine.NewGrant(accountID, details.Params.ClientID)
	}

	grant.AddScope(ConsentScope)
	grant.AddClaims(ConsentClaims...)

	grantID, err := o.engine.SaveGrant(ctx, grant)
	if err != nil {
		return "", errors.Wrap(err, "[Orchestrator.grantConsent] save grant")
	}
	log.Info().Str("account_id", accountID).Str("client_id", details.Params.ClientID).Str("grant_id", grantID).Msg("Consent granted")
	return grantID, nil
}

// fail answers a request the flow cannot recover from
func (o *Orchestrator) fail(w http.ResponseWriter, err error) {
	switch {
	case apperrors.Is(err, apperrors.ErrInteractionNotFound), apperrors.Is(err, apperrors.ErrInteractionExpired):
		log.Warn().Err(err).Msg("Interaction not found")
		http.Error(w, "Interaction expirée ou introuvable", http.StatusBadRequest)
	case apperrors.Is(err, apperrors.ErrUnauthenticatedConsent):
		log.Error().Err(err).Msg("Consent reached without a login")
		http.Error(w, failureMessage, http.StatusInternalServerError)
	default:
		log.Err(err).Msg("Interaction failed")
		http.Error(w, failureMessage, http.StatusInternalServerError)
	}
}

func sendFailureMessage(err error) string {
	switch {
	case apperrors.Is(err, apperrors.ErrSubjectUnknown):
		return MessageSubjectUnknown
	case apperrors.Is(err, apperrors.ErrDeliveryFailed):
		return MessageDeliveryFailed
	default:
		return MessageUnavailable
	}
}

// joinPin concatenates the pin1..pin6 form fields
// normalizeHandle gives one subject per upstream account, whose handles are case-insensitive
func normalizeHandle(handle string) string {
	return strings.ToLower(strings.TrimSpace(handle))
}

func joinPin(r *http.Request) string {
	var b strings.Builder
	for i := 1; i <= pinFieldCount; i++ {
		b.WriteString(strings.TrimSpace(r.PostFormValue("pin" + strconv.Itoa(i))))
	}
	return b.String()
}
