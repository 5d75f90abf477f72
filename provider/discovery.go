package provider

import (
	"encoding/json"
	"net/http"

	"github.com/jrsteele09/onche-connect/clients"
	"github.com/jrsteele09/onche-connect/oauth2"
)

// Discovery serves the OIDC discovery document
func (p *Provider) Discovery() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		baseURL := p.issuer

		resp := map[string]any{
			"issuer":                 baseURL,
			"authorization_endpoint": baseURL + RouteAuthorize,
			"token_endpoint":         baseURL + RouteToken,
			"userinfo_endpoint":      baseURL + RouteUserInfo,
			"jwks_uri":               baseURL + RouteJWKS,
			"revocation_endpoint":    baseURL + RouteRevocation,
			"introspection_endpoint": baseURL + RouteIntrospection,
			"end_session_endpoint":   baseURL + RouteEndSession,

			"response_types_supported": []oauth2.ResponseType{oauth2.CodeResponseType},
			"response_modes_supported": []oauth2.ResponseModeType{oauth2.QueryResponseMode},
			"grant_types_supported":    []oauth2.GrantType{oauth2.AuthorizationCodeGrant, oauth2.RefreshTokenGrant},
			"subject_types_supported":  []string{"public"},

			"id_token_signing_alg_values_supported": []string{p.tokens.SigningAlg()},

			"scopes_supported": SupportedScopes(),
			"claims_supported": SupportedClaims(),

			"token_endpoint_auth_methods_supported": []string{
				clients.AuthMethodSecretBasic,
				clients.AuthMethodSecretPost,
				clients.AuthMethodNone,
			},
			"revocation_endpoint_auth_methods_supported": []string{
				clients.AuthMethodSecretBasic,
				clients.AuthMethodSecretPost,
				clients.AuthMethodNone,
			},
			"introspection_endpoint_auth_methods_supported": []string{
				clients.AuthMethodSecretBasic,
				clients.AuthMethodSecretPost,
				clients.AuthMethodNone,
			},

			"code_challenge_methods_supported": []oauth2.CodeMethodType{oauth2.CodeMethodTypeS256, oauth2.CodeMethodTypePlain},

			"authorization_response_iss_parameter_supported": true,
			"claims_parameter_supported":                     false,
			"request_parameter_supported":                    false,
			"request_uri_parameter_supported":                false,
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "public, max-age=3600") // Cache for 1 hour
		_ = json.NewEncoder(w).Encode(resp)
	}
}

// JWKS returns the JSON Web Key Set used to validate tokens
func (p *Provider) JWKS() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jwks, err := p.tokens.GetJWKS()
		if err != nil {
			http.Error(w, "Failed to get JWKS: "+err.Error(), http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "public, max-age=3600")
		_ = json.NewEncoder(w).Encode(jwks)
	}
}
