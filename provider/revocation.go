package provider

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/onche-connect/clients"
	"github.com/jrsteele09/onche-connect/oauth2"
	"github.com/jrsteele09/onche-connect/storage"
	"github.com/rs/zerolog/log"
)

// Revoke revokes an access or refresh token (RFC 7009). Unknown tokens are not an error.
func (p *Provider) Revoke() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			oauth2.WriteJSONError(w, oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidRequest, "failed to parse form data"))
			return
		}

		client, e := p.authenticateClient(oauth2.ParseTokenRequest(r))
		if e != nil {
			oauth2.WriteJSONError(w, e)
			return
		}

		raw := r.PostFormValue("token")
		if raw == "" {
			oauth2.WriteJSONError(w, oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidRequest, "token parameter is required"))
			return
		}

		if err := p.revoke(r.Context(), client, raw); err != nil {
			log.Err(err).Str("client_id", client.ID).Msg("Token revocation failed")
			oauth2.WriteJSONError(w, oauth2.NewError(http.StatusServiceUnavailable, oauth2.ErrorServerError, "revocation failed"))
			return
		}
		w.WriteHeader(http.StatusOK)
	}
}

func (p *Provider) revoke(ctx context.Context, client *clients.Client, raw string) error {
	if jti, record, err := p.accessToken(ctx, raw); err == nil {
		if record.ClientID != client.ID {
			return nil
		}
		log.Info().Str("client_id", client.ID).Str("jti", jti).Msg("Access token revoked")
		return p.store.Destroy(ctx, storage.KindAccessToken, jti)
	}

	rt, err := storage.Load[RefreshToken](ctx, p.store, storage.KindRefreshToken, raw)
	if err != nil || rt.ClientID != client.ID {
		return nil
	}
	log.Info().Str("client_id", client.ID).Msg("Refresh token revoked")
	return p.store.Destroy(ctx, storage.KindRefreshToken, raw)
}

// Introspect reports whether a token is active (RFC 7662). Tokens of other clients are reported inactive.
func (p *Provider) Introspect() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			oauth2.WriteJSONError(w, oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidRequest, "failed to parse form data"))
			return
		}

		client, e := p.authenticateClient(oauth2.ParseTokenRequest(r))
		if e != nil {
			oauth2.WriteJSONError(w, e)
			return
		}

		raw := r.PostFormValue("token")
		if raw == "" {
			oauth2.WriteJSONError(w, oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidRequest, "token parameter is required"))
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(p.introspect(r.Context(), client, raw))
	}
}

func (p *Provider) introspect(ctx context.Context, client *clients.Client, raw string) map[string]any {
	inactive := map[string]any{"active": false}

	if jti, record, err := p.accessToken(ctx, raw); err == nil {
		if record.ClientID != client.ID {
			return inactive
		}
		return map[string]any{
			"active":     true,
			"token_type": "access_token",
			"iss":        p.issuer,
			"sub":        record.AccountID,
			"client_id":  record.ClientID,
			"scope":      record.Scope,
			"exp":        record.ExpiresAt.Unix(),
			"jti":        jti,
		}
	}

	rt, err := storage.Load[RefreshToken](ctx, p.store, storage.KindRefreshToken, raw)
	if err != nil || rt.ClientID != client.ID || !p.nowFunc().Before(rt.ExpiresAt) {
		return inactive
	}
	return map[string]any{
		"active":     true,
		"token_type": "refresh_token",
		"iss":        p.issuer,
		"sub":        rt.AccountID,
		"client_id":  rt.ClientID,
		"scope":      rt.Scope,
		"iat":        rt.IssuedAt.Unix(),
		"exp":        rt.ExpiresAt.Unix(),
	}
}
