package pin

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"

	"github.com/pkg/errors"
)

const (
	codeLength = 6
	codeSpace  = 1_000_000

	displayTokenBytes = 4
)

var maxCode = big.NewInt(codeSpace)

// CodeGenerator returns a fresh PIN code
type CodeGenerator func() (string, error)

// NewCode returns a uniformly random, zero padded six digit code
func NewCode() (string, error) {
	n, err := rand.Int(rand.Reader, maxCode)
	if err != nil {
		return "", errors.Wrap(err, "[NewCode] read random")
	}
	return fmt.Sprintf("%0*d", codeLength, n.Int64()), nil
}

// NewDisplayToken returns the short hex string shown next to a PIN so the user can
// tell which login attempt a message belongs to
func NewDisplayToken() (string, error) {
	b := make([]byte, displayTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", errors.Wrap(err, "[NewDisplayToken] read random")
	}
	return hex.EncodeToString(b), nil
}

// ValidCode reports whether code has the shape of an issued code
func ValidCode(code string) bool {
	if len(code) != codeLength {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
