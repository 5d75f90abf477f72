package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/onche-connect/clients"
	apperrors "github.com/jrsteele09/onche-connect/internal/errors"
	"github.com/jrsteele09/onche-connect/oauth2"
	"github.com/jrsteele09/onche-connect/storage"
	"github.com/jrsteele09/onche-connect/token"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const contentTypeJSON = "application/json; charset=utf-8"

// Token exchanges an authorization code or a refresh token for tokens
func (p *Provider) Token() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			oauth2.WriteJSONError(w, oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidRequest, "failed to parse form data"))
			return
		}
		req := oauth2.ParseTokenRequest(r)

		client, e := p.authenticateClient(req)
		if e != nil {
			oauth2.WriteJSONError(w, e)
			return
		}
		if req.GrantType != oauth2.AuthorizationCodeGrant && req.GrantType != oauth2.RefreshTokenGrant {
			oauth2.WriteJSONError(w, oauth2.NewError(http.StatusBadRequest, oauth2.ErrorUnsupportedGrantType, "unsupported grant_type"))
			return
		}
		if !client.AllowsGrant(string(req.GrantType)) {
			oauth2.WriteJSONError(w, oauth2.NewError(http.StatusBadRequest, oauth2.ErrorUnauthorizedClient, "grant_type not allowed for this client"))
			return
		}

		var (
			resp *oauth2.TokenResponse
			err  error
		)
		switch req.GrantType {
		case oauth2.AuthorizationCodeGrant:
			resp, err = p.exchangeCode(r.Context(), client, req)
		case oauth2.RefreshTokenGrant:
			resp, err = p.refresh(r.Context(), client, req)
		}
		if err != nil {
			var e *oauth2.Error
			if !apperrors.As(err, &e) {
				log.Err(err).Str("client_id", client.ID).Str("grant_type", string(req.GrantType)).Msg("Token request failed")
				e = oauth2.NewError(http.StatusInternalServerError, oauth2.ErrorServerError, "token request failed")
			}
			oauth2.WriteJSONError(w, e)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("Pragma", "no-cache")
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// authenticateClient identifies the client and checks its credentials against its
// registered token endpoint authentication method
func (p *Provider) authenticateClient(req oauth2.TokenRequest) (*clients.Client, *oauth2.Error) {
	invalid := func(description string) *oauth2.Error {
		return oauth2.NewError(http.StatusUnauthorized, oauth2.ErrorInvalidClient, description)
	}

	if req.ClientID == "" {
		return nil, invalid("client authentication is required")
	}
	client, err := p.clients.Get(req.ClientID)
	if err != nil {
		return nil, invalid("unknown client")
	}

	switch client.AuthMethod() {
	case clients.AuthMethodNone:
		if req.ClientSecret != "" {
			return nil, invalid("public clients must not provide client_secret")
		}
	case clients.AuthMethodSecretBasic:
		if !req.BasicAuth || !client.CheckSecret(req.ClientSecret) {
			return nil, invalid("client authentication failed")
		}
	case clients.AuthMethodSecretPost:
		if req.BasicAuth || !client.CheckSecret(req.ClientSecret) {
			return nil, invalid("client authentication failed")
		}
	default:
		return nil, invalid("unsupported client authentication method")
	}
	return client, nil
}

func (p *Provider) exchangeCode(ctx context.Context, client *clients.Client, req oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	invalid := func(description string) error {
		return oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidGrant, description)
	}

	if req.Code == "" {
		return nil, oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidRequest, "code is required")
	}

	code, err := storage.Take[AuthorizationCode](ctx, p.store, storage.KindAuthorizationCode, req.Code)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, invalid("authorization code is invalid or was already used")
	}
	if err != nil {
		return nil, err
	}

	switch {
	case !p.nowFunc().Before(code.ExpiresAt):
		return nil, invalid("authorization code expired")
	case code.ClientID != client.ID:
		return nil, invalid("authorization code was issued to another client")
	case code.RedirectURI != req.RedirectURI:
		return nil, invalid("redirect_uri does not match the authorization request")
	}

	if code.CodeChallenge != "" {
		if !oauth2.VerifyCodeChallenge(code.CodeChallenge, code.CodeChallengeMethod, req.CodeVerifier) {
			return nil, invalid("PKCE verification failed")
		}
	} else if req.CodeVerifier != "" {
		return nil, invalid("code_verifier given but no code_challenge was sent")
	}

	grant, err := p.FindGrant(ctx, code.GrantID)
	if err != nil {
		return nil, err
	}
	if grant == nil {
		return nil, invalid("grant not found")
	}

	return p.issueTokens(ctx, client, grant, code.AccountID, code.Scope, code.Nonce, code.AuthTime)
}

func (p *Provider) refresh(ctx context.Context, client *clients.Client, req oauth2.TokenRequest) (*oauth2.TokenResponse, error) {
	invalid := func(description string) error {
		return oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidGrant, description)
	}

	if req.RefreshToken == "" {
		return nil, oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidRequest, "refresh_token is required")
	}

	// Rotation: the presented token is consumed whatever the outcome
	rt, err := storage.Take[RefreshToken](ctx, p.store, storage.KindRefreshToken, req.RefreshToken)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil, invalid("refresh token is invalid or was already used")
	}
	if err != nil {
		return nil, err
	}

	switch {
	case !p.nowFunc().Before(rt.ExpiresAt):
		return nil, invalid("refresh token expired")
	case rt.ClientID != client.ID:
		return nil, invalid("refresh token was issued to another client")
	}

	scope := rt.Scope
	if req.Scope != "" {
		granted := oauth2.SplitScope(rt.Scope)
		for _, s := range oauth2.SplitScope(req.Scope) {
			if !slices.Contains(granted, s) {
				return nil, oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidScope, "requested scope exceeds the original grant")
			}
		}
		scope = req.Scope
	}

	grant, err := p.FindGrant(ctx, rt.GrantID)
	if err != nil {
		return nil, err
	}
	if grant == nil {
		return nil, invalid("grant was revoked")
	}

	return p.issueTokens(ctx, client, grant, rt.AccountID, scope, "", rt.AuthTime)
}

// issueTokens mints the access, ID and refresh tokens for an exchange
func (p *Provider) issueTokens(ctx context.Context, client *clients.Client, grant *Grant, accountID, scope, nonce string, authTime time.Time) (*oauth2.TokenResponse, error) {
	account, err := p.findAccount(ctx, accountID)
	if err != nil {
		return nil, errors.Wrap(err, "[Provider.issueTokens] find account")
	}
	if account == nil {
		return nil, oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidGrant, "account not found")
	}

	jti := uuid.NewString()
	accessToken, expiresAt, err := p.tokens.CreateAccessToken(token.AccessTokenParams{
		JTI:      jti,
		Subject:  account.AccountID(),
		ClientID: client.ID,
		Scope:    scope,
	})
	if err != nil {
		return nil, err
	}
	record := &AccessToken{
		ClientID:  client.ID,
		AccountID: accountID,
		GrantID:   grant.ID,
		Scope:     scope,
		ExpiresAt: expiresAt,
	}
	if err := storage.Save(ctx, p.store, storage.KindAccessToken, jti, record, p.remaining(expiresAt)); err != nil {
		return nil, err
	}

	resp := &oauth2.TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int(p.tokens.AccessTokenExpiry().Seconds()),
		Scope:       scope,
	}

	if slices.Contains(oauth2.SplitScope(scope), oauth2.ScopeOpenID) {
		// Profile claims are served by userinfo; the ID token carries the subject only
		resp.IdToken, err = p.tokens.CreateIDToken(token.IDTokenParams{
			Subject:     account.AccountID(),
			ClientID:    client.ID,
			Nonce:       nonce,
			AuthTime:    authTime,
			AccessToken: accessToken,
		})
		if err != nil {
			return nil, err
		}
	}

	if client.AllowsGrant(string(oauth2.RefreshTokenGrant)) {
		refreshToken, err := p.newSecret()
		if err != nil {
			return nil, err
		}
		now := p.nowFunc()
		rt := &RefreshToken{
			ClientID:  client.ID,
			AccountID: accountID,
			GrantID:   grant.ID,
			Scope:     scope,
			AuthTime:  authTime,
			IssuedAt:  now,
			ExpiresAt: now.Add(p.refreshTokenTTL),
		}
		if err := storage.Save(ctx, p.store, storage.KindRefreshToken, refreshToken, rt, p.refreshTokenTTL); err != nil {
			return nil, err
		}
		resp.RefreshToken = refreshToken
	}

	log.Info().Str("client_id", client.ID).Str("account_id", accountID).Str("scope", scope).Msg("Tokens issued")
	return resp, nil
}
