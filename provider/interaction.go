package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	apperrors "github.com/jrsteele09/onche-connect/internal/errors"
	"github.com/jrsteele09/onche-connect/oauth2"
	"github.com/jrsteele09/onche-connect/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// FinishOptions controls how InteractionFinished records a result
type FinishOptions struct {
	// MergeWithLastSubmission keeps the parts of an earlier result the new one leaves empty
	MergeWithLastSubmission bool
}

// InteractionDetails loads the interaction addressed by the request's {uid} path value.
// The browser must present the interaction cookie set when the interaction started.
func (p *Provider) InteractionDetails(r *http.Request) (*Interaction, error) {
	uid := r.PathValue("uid")
	if uid == "" {
		return nil, apperrors.ErrInteractionNotFound
	}

	cookie, err := r.Cookie(interactionCookieName)
	if err != nil || cookie.Value != uid {
		return nil, apperrors.Wrapf(apperrors.ErrInteractionNotFound, "[Provider.InteractionDetails] %s: cookie missing", uid)
	}
	return p.loadInteraction(r.Context(), uid)
}

// InteractionFinished records result on the interaction and sends the browser back to the
// authorization endpoint to resume the request
func (p *Provider) InteractionFinished(w http.ResponseWriter, r *http.Request, result Result, opts FinishOptions) error {
	interaction, err := p.InteractionDetails(r)
	if err != nil {
		return err
	}

	if opts.MergeWithLastSubmission {
		merged := interaction.Result.merge(result)
		interaction.Result = &merged
	} else {
		interaction.Result = &result
	}

	if err := p.saveInteraction(r.Context(), interaction); err != nil {
		return err
	}

	http.Redirect(w, r, interaction.ReturnTo, http.StatusSeeOther)
	return nil
}

// FindGrant loads a grant. A missing grant is reported as nil with no error.
func (p *Provider) FindGrant(ctx context.Context, id string) (*Grant, error) {
	if id == "" {
		return nil, nil
	}
	grant, err := storage.Load[Grant](ctx, p.store, storage.KindGrant, id)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Provider.FindGrant]")
	}
	return grant, nil
}

// NewGrant starts an empty grant of accountID to clientID
func (p *Provider) NewGrant(accountID, clientID string) *Grant {
	return &Grant{
		ID:        uuid.NewString(),
		AccountID: accountID,
		ClientID:  clientID,
	}
}

// SaveGrant persists the grant and returns its id
func (p *Provider) SaveGrant(ctx context.Context, grant *Grant) (string, error) {
	if grant == nil || grant.ID == "" {
		return "", errors.New("[Provider.SaveGrant] grant id is required")
	}
	if err := storage.Save(ctx, p.store, storage.KindGrant, grant.ID, grant, p.sessionTTL); err != nil {
		return "", errors.Wrap(err, "[Provider.SaveGrant]")
	}
	return grant.ID, nil
}

// startInteraction stores a new interaction for params, binds it to the browser and redirects to it
func (p *Provider) startInteraction(w http.ResponseWriter, r *http.Request, params oauth2.AuthorizationParameters, prompt Prompt, session *Session, grantID string) error {
	now := p.nowFunc()
	uid := uuid.NewString()

	interaction := &Interaction{
		UID:       uid,
		Prompt:    prompt,
		Params:    params,
		GrantID:   grantID,
		ReturnTo:  p.issuer + resumePath(uid),
		CreatedAt: now,
		ExpiresAt: now.Add(p.interactionTTL),
	}
	if session != nil {
		interaction.Session = &InteractionSession{AccountID: session.AccountID}
	}

	if err := p.saveInteraction(r.Context(), interaction); err != nil {
		return err
	}

	target := p.interactionURL(uid)
	p.setCookie(w, interactionCookieName, uid, urlPath(target), p.interactionTTL)
	p.setCookie(w, resumeCookieName, uid, resumePath(uid), p.interactionTTL)

	log.Debug().Str("uid", uid).Str("prompt", prompt.Name).Str("client_id", params.ClientID).Msg("Interaction started")
	http.Redirect(w, r, target, http.StatusSeeOther)
	return nil
}

func (p *Provider) loadInteraction(ctx context.Context, uid string) (*Interaction, error) {
	interaction, err := storage.Load[Interaction](ctx, p.store, storage.KindInteraction, uid)
	if errors.Is(err, apperrors.ErrNotFound) {
		return nil, apperrors.Wrapf(apperrors.ErrInteractionNotFound, "[Provider.loadInteraction] %s", uid)
	}
	if err != nil {
		return nil, errors.Wrap(err, "[Provider.loadInteraction]")
	}
	if !p.nowFunc().Before(interaction.ExpiresAt) {
		return nil, apperrors.Wrapf(apperrors.ErrInteractionExpired, "[Provider.loadInteraction] %s", uid)
	}
	return interaction, nil
}

func (p *Provider) saveInteraction(ctx context.Context, interaction *Interaction) error {
	err := storage.Save(ctx, p.store, storage.KindInteraction, interaction.UID, interaction, p.remaining(interaction.ExpiresAt))
	return errors.Wrap(err, "[Provider.saveInteraction]")
}

// currentSession returns the live session named by the session cookie, or nil
func (p *Provider) currentSession(r *http.Request) *Session {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil
	}
	session, err := storage.Load[Session](r.Context(), p.store, storage.KindSession, cookie.Value)
	if err != nil {
		if !errors.Is(err, apperrors.ErrNotFound) {
			log.Err(err).Msg("Failed to load provider session")
		}
		return nil
	}
	if !p.nowFunc().Before(session.ExpiresAt) {
		return nil
	}
	return session
}

func (p *Provider) saveSession(ctx context.Context, session *Session) error {
	err := storage.Save(ctx, p.store, storage.KindSession, session.ID, session, p.remaining(session.ExpiresAt))
	return errors.Wrap(err, "[Provider.saveSession]")
}

func urlPath(target string) string {
	u, err := url.Parse(target)
	if err != nil || u.Path == "" {
		return "/"
	}
	return strings.TrimSuffix(u.Path, "/")
}
