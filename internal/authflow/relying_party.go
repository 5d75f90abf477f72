package authflow

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// Config describes the registered client the relying party acts as
type Config struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scopes       []string
}

// RelyingParty runs the authorization code flow with PKCE against an OpenID provider
type RelyingParty struct {
	provider *oidc.Provider
	oauth2   *oauth2.Config
	verifier *oidc.IDTokenVerifier
	states   Repo
	nowFunc  func() time.Time
}

// Result is what the callback reports once the flow completes
type Result struct {
	Tokens   Tokens         `json:"tokens"`
	Claims   map[string]any `json:"claims"`
	UserInfo map[string]any `json:"userInfo"`
}

// Tokens are the tokens returned by the token endpoint
type Tokens struct {
	AccessToken  string    `json:"access_token"`
	TokenType    string    `json:"token_type"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	IDToken      string    `json:"id_token"`
	Expiry       time.Time `json:"expiry"`
}

// NewRelyingParty discovers the provider at cfg.Issuer
func NewRelyingParty(ctx context.Context, cfg Config, states Repo) (*RelyingParty, error) {
	if cfg.ClientID == "" || cfg.RedirectURL == "" {
		return nil, errors.New("[NewRelyingParty] client id and redirect url are required")
	}
	if states == nil {
		states = NewInMemoryRepo()
	}

	provider, err := oidc.NewProvider(ctx, cfg.Issuer)
	if err != nil {
		return nil, errors.Wrapf(err, "[NewRelyingParty] discover %s", cfg.Issuer)
	}

	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{oidc.ScopeOpenID}
	}

	return &RelyingParty{
		provider: provider,
		oauth2: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.ClientID}),
		states:   states,
		nowFunc:  time.Now,
	}, nil
}

// AuthCodeURL starts a flow, remembering its verifier and nonce under a fresh state
func (rp *RelyingParty) AuthCodeURL() (string, error) {
	state := uuid.NewString()
	authState := &State{
		CodeVerifier: oauth2.GenerateVerifier(),
		Nonce:        uuid.NewString(),
		CreatedAt:    rp.nowFunc(),
	}
	if err := rp.states.Upsert(state, authState); err != nil {
		return "", errors.Wrap(err, "[RelyingParty.AuthCodeURL] store state")
	}

	return rp.oauth2.AuthCodeURL(state,
		oauth2.S256ChallengeOption(authState.CodeVerifier),
		oidc.Nonce(authState.Nonce),
	), nil
}

// Login redirects the browser to the provider
func (rp *RelyingParty) Login() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		target, err := rp.AuthCodeURL()
		if err != nil {
			log.Err(err).Msg("Failed to start authorization")
			http.Error(w, "Failed to start authorization", http.StatusInternalServerError)
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
	}
}

// Callback exchanges the code, verifies the ID token, fetches userinfo and answers with all three as JSON
func (rp *RelyingParty) Callback() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if errorParam := r.FormValue("error"); errorParam != "" {
			http.Error(w, fmt.Sprintf("Authorization failed: %s - %s", errorParam, r.FormValue("error_description")), http.StatusBadRequest)
			return
		}

		result, err := rp.Complete(r.Context(), r.FormValue("state"), r.FormValue("code"))
		if err != nil {
			log.Err(err).Msg("Authorization callback failed")
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			log.Err(err).Msg("Failed to write callback result")
		}
	}
}

// Complete finishes the flow started under state
func (rp *RelyingParty) Complete(ctx context.Context, state, code string) (*Result, error) {
	if code == "" || state == "" {
		return nil, errors.New("[RelyingParty.Complete] missing code or state parameter")
	}

	authState, err := rp.states.Get(state)
	if err != nil {
		return nil, errors.Wrap(err, "[RelyingParty.Complete] invalid state parameter")
	}
	if err := rp.states.Delete(state); err != nil {
		return nil, errors.Wrap(err, "[RelyingParty.Complete] delete state")
	}

	token, err := rp.oauth2.Exchange(ctx, code, oauth2.VerifierOption(authState.CodeVerifier))
	if err != nil {
		return nil, errors.Wrap(err, "[RelyingParty.Complete] token exchange")
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok {
		return nil, errors.New("[RelyingParty.Complete] no id_token in token response")
	}
	idToken, err := rp.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, errors.Wrap(err, "[RelyingParty.Complete] verify id_token")
	}
	if idToken.Nonce != authState.Nonce {
		return nil, errors.New("[RelyingParty.Complete] nonce mismatch")
	}

	claims := map[string]any{}
	if err := idToken.Claims(&claims); err != nil {
		return nil, errors.Wrap(err, "[RelyingParty.Complete] read id_token claims")
	}

	info, err := rp.provider.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return nil, errors.Wrap(err, "[RelyingParty.Complete] userinfo")
	}
	if info.Subject != idToken.Subject {
		return nil, errors.Errorf("[RelyingParty.Complete] userinfo subject %q does not match %q", info.Subject, idToken.Subject)
	}
	userInfo := map[string]any{}
	if err := info.Claims(&userInfo); err != nil {
		return nil, errors.Wrap(err, "[RelyingParty.Complete] read userinfo claims")
	}

	return &Result{
		Tokens: Tokens{
			AccessToken:  token.AccessToken,
			TokenType:    token.TokenType,
			RefreshToken: token.RefreshToken,
			IDToken:      rawIDToken,
			Expiry:       token.Expiry,
		},
		Claims:   claims,
		UserInfo: userInfo,
	}, nil
}
