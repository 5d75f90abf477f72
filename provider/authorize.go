package provider

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/jrsteele09/onche-connect/clients"
	"github.com/jrsteele09/onche-connect/oauth2"
	"github.com/jrsteele09/onche-connect/storage"
	"github.com/rs/zerolog/log"
)

// Authorize begins the authorization flow
func (p *Provider) Authorize() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			renderError(w, oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidRequest, "failed to parse request"))
			return
		}
		params := oauth2.ParseAuthorizationParameters(r.Form)

		client, err := p.clients.Get(params.ClientID)
		if err != nil {
			renderError(w, oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidClient, "unknown client"))
			return
		}
		if e := validateRedirect(&params, client); e != nil {
			renderError(w, e)
			return
		}
		if e := p.validateAuthorizationRequest(&params, client); e != nil {
			p.redirectError(w, r, params, e)
			return
		}

		session := p.currentSession(r)
		var grant *Grant
		if session != nil {
			grant = p.sessionGrant(r.Context(), session, client)
		}

		switch {
		case session == nil || params.HasPrompt(oauth2.PromptLogin):
			if params.HasPrompt(oauth2.PromptNone) {
				p.redirectError(w, r, params, oauth2.NewError(http.StatusBadRequest, oauth2.ErrorLoginRequired, "end-user authentication is required"))
				return
			}
			reason := "no_session"
			if session != nil {
				reason = "login_prompt"
			}
			p.interact(w, r, params, Prompt{Name: PromptLogin, Reasons: []string{reason}}, session, grantIDFor(session, client))

		case grant == nil || !grant.Covers(params.Scopes()) || params.HasPrompt(oauth2.PromptConsent):
			if params.HasPrompt(oauth2.PromptNone) {
				p.redirectError(w, r, params, oauth2.NewError(http.StatusBadRequest, oauth2.ErrorConsentRequired, "end-user consent is required"))
				return
			}
			reason := "op_scopes_missing"
			if params.HasPrompt(oauth2.PromptConsent) {
				reason = "consent_prompt"
			}
			p.interact(w, r, params, Prompt{Name: PromptConsent, Reasons: []string{reason}}, session, grantIDFor(session, client))

		default:
			p.issueCode(w, r, params, session, grant)
		}
	}
}

// Resume applies the result of a finished interaction and carries on with the authorization request
func (p *Provider) Resume() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		uid := r.PathValue("uid")

		cookie, err := r.Cookie(resumeCookieName)
		if err != nil || cookie.Value != uid {
			renderError(w, oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidRequest, "interaction session not found"))
			return
		}

		interaction, err := p.loadInteraction(ctx, uid)
		if err != nil {
			log.Err(err).Str("uid", uid).Msg("Cannot resume interaction")
			renderError(w, oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidRequest, "interaction expired or not found"))
			return
		}
		if err := p.store.Destroy(ctx, storage.KindInteraction, uid); err != nil {
			log.Err(err).Str("uid", uid).Msg("Failed to destroy interaction")
		}
		p.clearCookie(w, resumeCookieName, resumePath(uid))
		p.clearCookie(w, interactionCookieName, urlPath(p.interactionURL(uid)))

		params := interaction.Params
		client, err := p.clients.Get(params.ClientID)
		if err != nil {
			renderError(w, oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidClient, "unknown client"))
			return
		}

		result := interaction.Result
		if result == nil {
			p.redirectError(w, r, params, oauth2.NewError(http.StatusBadRequest, oauth2.ErrorAccessDenied, "interaction was not completed"))
			return
		}

		session := p.currentSession(r)
		if result.Login != nil {
			session = p.login(session, result.Login.AccountID)
			params.Prompt = removePrompt(params.Prompt, oauth2.PromptLogin)
		}
		if session == nil || (interaction.AccountID() != "" && result.Login == nil && interaction.AccountID() != session.AccountID) {
			p.redirectError(w, r, params, oauth2.NewError(http.StatusBadRequest, oauth2.ErrorLoginRequired, "end-user session changed"))
			return
		}

		grantID := interaction.GrantID
		if result.Consent != nil {
			grantID = result.Consent.GrantID
			params.Prompt = removePrompt(params.Prompt, oauth2.PromptConsent)
			if session.Grants == nil {
				session.Grants = map[string]string{}
			}
			session.Grants[client.ID] = grantID
		} else if id := grantIDFor(session, client); id != "" {
			grantID = id
		}

		if err := p.saveSession(ctx, session); err != nil {
			log.Err(err).Str("uid", uid).Msg("Failed to save provider session")
			p.redirectError(w, r, params, oauth2.NewError(http.StatusInternalServerError, oauth2.ErrorServerError, "failed to save session"))
			return
		}
		p.setCookie(w, sessionCookieName, session.ID, "/", p.remaining(session.ExpiresAt))

		grant, err := p.FindGrant(ctx, grantID)
		if err != nil {
			log.Err(err).Str("uid", uid).Msg("Failed to load grant")
		}
		if grant != nil && (grant.AccountID != session.AccountID || grant.ClientID != client.ID) {
			grant = nil
		}

		if grant == nil || !grant.Covers(params.Scopes()) || params.HasPrompt(oauth2.PromptConsent) {
			p.interact(w, r, params, Prompt{Name: PromptConsent, Reasons: []string{"op_scopes_missing"}}, session, grantID)
			return
		}
		p.issueCode(w, r, params, session, grant)
	}
}

// login returns the session for accountID, reusing session when it already belongs to that account
func (p *Provider) login(session *Session, accountID string) *Session {
	now := p.nowFunc()
	if session != nil && session.AccountID == accountID {
		session.LoginTime = now
		return session
	}
	return &Session{
		ID:        uuid.NewString(),
		AccountID: accountID,
		LoginTime: now,
		ExpiresAt: now.Add(p.sessionTTL),
		Grants:    map[string]string{},
	}
}

func (p *Provider) interact(w http.ResponseWriter, r *http.Request, params oauth2.AuthorizationParameters, prompt Prompt, session *Session, grantID string) {
	if err := p.startInteraction(w, r, params, prompt, session, grantID); err != nil {
		log.Err(err).Str("client_id", params.ClientID).Msg("Failed to start interaction")
		p.redirectError(w, r, params, oauth2.NewError(http.StatusInternalServerError, oauth2.ErrorServerError, "failed to start interaction"))
	}
}

// sessionGrant returns the grant the session holds for client, if it is still valid
func (p *Provider) sessionGrant(ctx context.Context, session *Session, client *clients.Client) *Grant {
	grant, err := p.FindGrant(ctx, grantIDFor(session, client))
	if err != nil {
		log.Err(err).Str("client_id", client.ID).Msg("Failed to load grant")
		return nil
	}
	if grant == nil || grant.AccountID != session.AccountID || grant.ClientID != client.ID {
		return nil
	}
	return grant
}

// issueCode mints an authorization code and returns it to the client
func (p *Provider) issueCode(w http.ResponseWriter, r *http.Request, params oauth2.AuthorizationParameters, session *Session, grant *Grant) {
	code, err := p.newSecret()
	if err != nil {
		log.Err(err).Msg("Failed to generate authorization code")
		p.redirectError(w, r, params, oauth2.NewError(http.StatusInternalServerError, oauth2.ErrorServerError, "failed to issue code"))
		return
	}

	now := p.nowFunc()
	record := &AuthorizationCode{
		ClientID:            params.ClientID,
		RedirectURI:         params.RedirectURI,
		AccountID:           session.AccountID,
		GrantID:             grant.ID,
		Scope:               params.Scope,
		Nonce:               params.Nonce,
		CodeChallenge:       params.CodeChallenge,
		CodeChallengeMethod: params.CodeChallengeMethod,
		AuthTime:            session.LoginTime,
		ExpiresAt:           now.Add(p.authCodeTTL),
	}
	if err := storage.Save(r.Context(), p.store, storage.KindAuthorizationCode, code, record, p.authCodeTTL); err != nil {
		log.Err(err).Msg("Failed to save authorization code")
		p.redirectError(w, r, params, oauth2.NewError(http.StatusInternalServerError, oauth2.ErrorServerError, "failed to issue code"))
		return
	}

	log.Info().Str("client_id", params.ClientID).Str("account_id", session.AccountID).Msg("Authorization code issued")
	p.redirectTo(w, r, params.RedirectURI, url.Values{"code": {code}}, params.State)
}

// redirectError reports an authorization error to the client's redirect URI
func (p *Provider) redirectError(w http.ResponseWriter, r *http.Request, params oauth2.AuthorizationParameters, e *oauth2.Error) {
	values := url.Values{"error": {e.Code}}
	if e.Description != "" {
		values.Set("error_description", e.Description)
	}
	p.redirectTo(w, r, params.RedirectURI, values, params.State)
}

func (p *Provider) redirectTo(w http.ResponseWriter, r *http.Request, redirectURI string, values url.Values, state string) {
	target, err := url.Parse(redirectURI)
	if err != nil {
		renderError(w, oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidRequest, "invalid redirect_uri"))
		return
	}

	query := target.Query()
	for k, v := range values {
		query[k] = v
	}
	if state != "" {
		query.Set("state", state)
	}
	query.Set("iss", p.issuer)
	target.RawQuery = query.Encode()

	http.Redirect(w, r, target.String(), http.StatusSeeOther)
}

func renderError(w http.ResponseWriter, e *oauth2.Error) {
	status := e.Status
	if status == 0 {
		status = http.StatusBadRequest
	}
	http.Error(w, e.Error(), status)
}

func grantIDFor(session *Session, client *clients.Client) string {
	if session == nil {
		return ""
	}
	return session.Grants[client.ID]
}

func removePrompt(prompt, name string) string {
	var kept []string
	for _, v := range strings.Fields(prompt) {
		if v != name {
			kept = append(kept, v)
		}
	}
	return strings.Join(kept, " ")
}
