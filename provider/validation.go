package provider

import (
	"net/http"
	"slices"
	"strings"

	"github.com/jrsteele09/onche-connect/clients"
	"github.com/jrsteele09/onche-connect/oauth2"
)

// validateRedirect checks the parts of an authorization request that must hold before
// errors can be reported to the client's redirect URI
func validateRedirect(params *oauth2.AuthorizationParameters, client *clients.Client) *oauth2.Error {
	if params.RedirectURI == "" {
		if len(client.RedirectURIs) != 1 {
			return oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidRequest, "redirect_uri is required")
		}
		params.RedirectURI = client.RedirectURIs[0]
	}
	if !client.HasRedirectURI(params.RedirectURI) {
		return oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidRequest, "redirect_uri is not registered for this client")
	}
	return nil
}

// validateAuthorizationRequest validates an authorization request against its client
func (p *Provider) validateAuthorizationRequest(params *oauth2.AuthorizationParameters, client *clients.Client) *oauth2.Error {
	if params.ResponseType != oauth2.CodeResponseType {
		return oauth2.NewError(http.StatusBadRequest, oauth2.ErrorUnsupportedResponse, "only response_type=code is supported")
	}
	if params.ResponseMode != "" && params.ResponseMode != oauth2.QueryResponseMode {
		return oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidRequest, "only response_mode=query is supported")
	}
	if !client.AllowsGrant(string(oauth2.AuthorizationCodeGrant)) {
		return oauth2.NewError(http.StatusBadRequest, oauth2.ErrorUnauthorizedClient, "client may not use the authorization code grant")
	}

	// Unrecognised scopes are dropped rather than rejected
	var scopes []string
	for _, s := range params.Scopes() {
		if _, ok := ScopeClaims[s]; ok {
			scopes = append(scopes, s)
		}
	}
	if !slices.Contains(scopes, oauth2.ScopeOpenID) {
		return oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidRequest, "openid scope is required")
	}
	params.Scope = strings.Join(scopes, " ")
	if err := client.ValidateScopes(params.Scope); err != nil {
		return oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidScope, err.Error())
	}

	if params.HasPrompt(oauth2.PromptNone) && len(strings.Fields(params.Prompt)) > 1 {
		return oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidRequest, "prompt=none cannot be combined with other values")
	}

	return validatePKCE(params.CodeChallenge, params.CodeChallengeMethod, client.IsPublic() || p.requirePKCE)
}

// validatePKCE validates PKCE (Proof Key for Code Exchange) parameters
func validatePKCE(codeChallenge string, codeChallengeMethod oauth2.CodeMethodType, required bool) *oauth2.Error {
	if codeChallenge == "" {
		if required {
			return oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidRequest, "PKCE required: code_challenge must be provided")
		}
		if codeChallengeMethod != "" {
			return oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidRequest, "code_challenge_method given without code_challenge")
		}
		return nil
	}

	if !oauth2.ValidPKCEValue(codeChallenge) {
		return oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidRequest, "code_challenge length must be between 43 and 128 characters")
	}

	switch codeChallengeMethod {
	case oauth2.CodeMethodTypeS256, oauth2.CodeMethodTypePlain, "":
		return nil
	default:
		return oauth2.NewError(http.StatusBadRequest, oauth2.ErrorInvalidRequest, "code_challenge_method must be 'S256' or 'plain'")
	}
}
