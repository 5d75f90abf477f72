package provider

import (
	"slices"

	"github.com/jrsteele09/onche-connect/oauth2"
)

// ScopeClaims maps each supported scope to the claims it releases
var ScopeClaims = map[string][]string{
	oauth2.ScopeOpenID: {"sub"},
	oauth2.ScopeProfile: {
		"id",
		"name",
		"picture",
		"onche_level",
		"onche_signup_date",
		"onche_last_login_date",
		"onche_msg_count",
	},
	oauth2.ScopeOfflineAccess: nil,
}

// SupportedScopes lists the registry's scopes in a stable order
func SupportedScopes() []string {
	return []string{oauth2.ScopeOpenID, oauth2.ScopeProfile, oauth2.ScopeOfflineAccess}
}

// SupportedClaims lists every claim the registry can release
func SupportedClaims() []string {
	var out []string
	for _, scope := range SupportedScopes() {
		out = append(out, ScopeClaims[scope]...)
	}
	return out
}

// FilterClaims keeps the claims released by scope and, when granted is not nil, present in granted.
// sub is always kept.
func FilterClaims(claims map[string]any, scope string, granted []string) map[string]any {
	allowed := map[string]struct{}{"sub": {}}
	for _, s := range oauth2.SplitScope(scope) {
		for _, c := range ScopeClaims[s] {
			if granted == nil || slices.Contains(granted, c) {
				allowed[c] = struct{}{}
			}
		}
	}

	out := make(map[string]any, len(allowed))
	for name, value := range claims {
		if _, ok := allowed[name]; ok {
			out[name] = value
		}
	}
	return out
}
