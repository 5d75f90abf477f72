package oauth2

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// ValidPKCEValue reports whether v has the length RFC 7636 requires of verifiers and challenges
func ValidPKCEValue(v string) bool {
	return len(v) >= 43 && len(v) <= 128
}

// VerifyCodeChallenge checks verifier against the challenge recorded at authorization time
func VerifyCodeChallenge(challenge string, method CodeMethodType, verifier string) bool {
	if !ValidPKCEValue(verifier) {
		return false
	}

	var computed string
	switch method {
	case CodeMethodTypeS256:
		sum := sha256.Sum256([]byte(verifier))
		computed = base64.RawURLEncoding.EncodeToString(sum[:])
	case CodeMethodTypePlain, "":
		computed = verifier
	default:
		return false
	}
	return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
}
