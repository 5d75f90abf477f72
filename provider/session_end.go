package provider

import (
	"net/http"
	"net/url"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/onche-connect/storage"
	"github.com/rs/zerolog/log"
)

// EndSession logs the end user out of the provider and, when asked, sends them back to a
// registered post logout redirect URI
func (p *Provider) EndSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "failed to parse request", http.StatusBadRequest)
			return
		}

		redirectURI := r.Form.Get("post_logout_redirect_uri")
		clientID := r.Form.Get("client_id")
		if clientID == "" {
			clientID = audienceOf(r.Form.Get("id_token_hint"))
		}

		if redirectURI != "" {
			client, err := p.clients.Get(clientID)
			if err != nil || !client.HasPostLogoutRedirectURI(redirectURI) {
				http.Error(w, "post_logout_redirect_uri is not registered for this client", http.StatusBadRequest)
				return
			}
		}

		if session := p.currentSession(r); session != nil {
			if err := p.store.Destroy(r.Context(), storage.KindSession, session.ID); err != nil {
				log.Err(err).Msg("Failed to destroy provider session")
			}
			log.Info().Str("account_id", session.AccountID).Msg("Provider session ended")
		}
		p.clearCookie(w, sessionCookieName, "/")

		if redirectURI == "" {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			_, _ = w.Write([]byte("Vous êtes déconnecté.\n"))
			return
		}

		target, err := url.Parse(redirectURI)
		if err != nil {
			http.Error(w, "invalid post_logout_redirect_uri", http.StatusBadRequest)
			return
		}
		if state := r.Form.Get("state"); state != "" {
			query := target.Query()
			query.Set("state", state)
			target.RawQuery = query.Encode()
		}
		http.Redirect(w, r, target.String(), http.StatusSeeOther)
	}
}

// audienceOf reads the audience of an ID token hint without verifying it. The hint only
// selects which client's registered URIs to check against.
func audienceOf(idTokenHint string) string {
	if idTokenHint == "" {
		return ""
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idTokenHint, claims); err != nil {
		return ""
	}
	aud, err := claims.GetAudience()
	if err != nil || len(aud) == 0 {
		return ""
	}
	return aud[0]
}
