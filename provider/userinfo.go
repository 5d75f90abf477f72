package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"

	apperrors "github.com/jrsteele09/onche-connect/internal/errors"
	"github.com/jrsteele09/onche-connect/oauth2"
	"github.com/jrsteele09/onche-connect/storage"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// UserInfo returns the claims of the access token's subject, filtered by scope and grant
func (p *Provider) UserInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := bearerToken(r)
		if !ok {
			writeBearerError(w, oauth2.NewError(http.StatusUnauthorized, oauth2.ErrorInvalidToken, "missing bearer token"))
			return
		}

		ctx := r.Context()
		jti, record, err := p.accessToken(ctx, raw)
		if err != nil {
			writeBearerError(w, oauth2.NewError(http.StatusUnauthorized, oauth2.ErrorInvalidToken, "invalid or revoked access token"))
			return
		}
		if !slices.Contains(oauth2.SplitScope(record.Scope), oauth2.ScopeOpenID) {
			writeBearerError(w, oauth2.NewError(http.StatusForbidden, "insufficient_scope", "openid scope is required"))
			return
		}

		grant, err := p.FindGrant(ctx, record.GrantID)
		if err != nil || grant == nil {
			writeBearerError(w, oauth2.NewError(http.StatusUnauthorized, oauth2.ErrorInvalidToken, "grant was revoked"))
			return
		}

		account, err := p.findAccount(ctx, record.AccountID)
		if err != nil || account == nil {
			log.Err(err).Str("jti", jti).Msg("Userinfo account lookup failed")
			writeBearerError(w, oauth2.NewError(http.StatusUnauthorized, oauth2.ErrorInvalidToken, "account not found"))
			return
		}

		claims, err := account.Claims(ctx, ClaimsUseUserInfo, record.Scope)
		if err != nil {
			log.Err(err).Str("account_id", record.AccountID).Msg("Userinfo claims failed")
			claims = map[string]any{}
		}
		claims = FilterClaims(claims, record.Scope, grant.Claims)
		claims["sub"] = account.AccountID()

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		_ = json.NewEncoder(w).Encode(claims)
	}
}

// accessToken verifies a JWT access token and loads its record. A token whose record is gone was revoked.
func (p *Provider) accessToken(ctx context.Context, raw string) (string, *AccessToken, error) {
	claims, err := p.tokens.Parse(raw)
	if err != nil {
		return "", nil, err
	}
	jti, _ := claims["jti"].(string)
	if jti == "" {
		return "", nil, apperrors.ErrInvalidToken
	}

	record, err := storage.Load[AccessToken](ctx, p.store, storage.KindAccessToken, jti)
	if errors.Is(err, apperrors.ErrNotFound) {
		return "", nil, apperrors.Wrapf(apperrors.ErrInvalidToken, "[Provider.accessToken] %s revoked", jti)
	}
	if err != nil {
		return "", nil, err
	}
	return jti, record, nil
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") && strings.TrimSpace(parts[1]) != "" {
		return strings.TrimSpace(parts[1]), true
	}
	if r.Method == http.MethodPost {
		if v := r.PostFormValue("access_token"); v != "" {
			return v, true
		}
	}
	return "", false
}

func writeBearerError(w http.ResponseWriter, e *oauth2.Error) {
	w.Header().Set("WWW-Authenticate", `Bearer error="`+e.Code+`", error_description="`+e.Description+`"`)
	oauth2.WriteJSONError(w, e)
}
