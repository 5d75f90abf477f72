package config

import (
	"strings"
	"time"
)

type SecurityConfig interface {
	GetRequirePKCE() bool
	GetSecureCookies() bool
	GetSessionTTL() time.Duration
	GetInteractionTTL() time.Duration
}

type Security struct{}

var _ SecurityConfig = Security{}

// GetRequirePKCE extends PKCE to confidential clients. Public clients always need it.
func (Security) GetRequirePKCE() bool {
	return strings.EqualFold(GetEnv("REQUIRE_PKCE", "false"), "true")
}

// GetSecureCookies marks provider cookies Secure when the issuer is served over https
func (Security) GetSecureCookies() bool {
	return strings.HasPrefix(EnvVars{}.GetIssuer(), "https://")
}

func (Security) GetSessionTTL() time.Duration {
	return 14 * 24 * time.Hour
}

func (Security) GetInteractionTTL() time.Duration {
	return 5 * time.Minute
}
