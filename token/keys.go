package token

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"math/big"

	"github.com/golang-jwt/jwt/v5"
	"github.com/pkg/errors"
)

// RS256 is the only signing algorithm published by the provider
const RS256 = "RS256"

// KeyPair represents a public/private key pair for signing tokens
type KeyPair struct {
	KeyID      string
	PrivateKey crypto.PrivateKey
	PublicKey  crypto.PublicKey
	Algorithm  string
}

// JWKS represents a JSON Web Key Set
type JWKS struct {
	Keys []JWK `json:"keys"`
}

// JWK represents a JSON Web Key. The private members are only set in the key file.
type JWK struct {
	Kty string `json:"kty"`           // Key type (RSA)
	Use string `json:"use,omitempty"` // sig
	Kid string `json:"kid,omitempty"` // Key ID
	Alg string `json:"alg,omitempty"` // Algorithm

	N string `json:"n,omitempty"` // Modulus
	E string `json:"e,omitempty"` // Exponent

	D  string `json:"d,omitempty"`
	P  string `json:"p,omitempty"`
	Q  string `json:"q,omitempty"`
	DP string `json:"dp,omitempty"`
	DQ string `json:"dq,omitempty"`
	QI string `json:"qi,omitempty"`
}

// GenerateRSAKeyPair generates a new RSA key pair for RS256 signing
func GenerateRSAKeyPair(keyID string, bits int) (*KeyPair, error) {
	if bits < 2048 {
		bits = 2048
	}

	privateKey, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, errors.Wrap(err, "failed to generate RSA key")
	}

	return &KeyPair{
		KeyID:      keyID,
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		Algorithm:  RS256,
	}, nil
}

// GetSigningMethod returns the JWT signing method for this key pair
func (kp *KeyPair) GetSigningMethod() jwt.SigningMethod {
	return jwt.SigningMethodRS256
}

// ToJWK converts the key pair's public key to JWK format
func (kp *KeyPair) ToJWK() (*JWK, error) {
	pubKey, ok := kp.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, errors.New("unsupported public key type")
	}
	return &JWK{
		Kty: "RSA",
		Use: "sig",
		Kid: kp.KeyID,
		Alg: kp.Algorithm,
		N:   b64(pubKey.N),
		E:   b64(big.NewInt(int64(pubKey.E))),
	}, nil
}

// ToPrivateJWK converts the whole key pair to JWK format, for persisting it
func (kp *KeyPair) ToPrivateJWK() (*JWK, error) {
	privKey, ok := kp.PrivateKey.(*rsa.PrivateKey)
	if !ok || len(privKey.Primes) != 2 {
		return nil, errors.New("unsupported private key type")
	}
	jwk, err := kp.ToJWK()
	if err != nil {
		return nil, err
	}
	privKey.Precompute()
	jwk.D = b64(privKey.D)
	jwk.P = b64(privKey.Primes[0])
	jwk.Q = b64(privKey.Primes[1])
	jwk.DP = b64(privKey.Precomputed.Dp)
	jwk.DQ = b64(privKey.Precomputed.Dq)
	jwk.QI = b64(privKey.Precomputed.Qinv)
	return jwk, nil
}

// KeyPairFromJWK rebuilds a key pair from a private RSA JWK
func KeyPairFromJWK(jwk JWK) (*KeyPair, error) {
	if jwk.Kty != "RSA" {
		return nil, errors.Errorf("unsupported key type %q", jwk.Kty)
	}

	var (
		n, e, d, p, q *big.Int
		err           error
	)
	for _, field := range []struct {
		dst **big.Int
		src string
		nm  string
	}{{&n, jwk.N, "n"}, {&e, jwk.E, "e"}, {&d, jwk.D, "d"}, {&p, jwk.P, "p"}, {&q, jwk.Q, "q"}} {
		if *field.dst, err = unb64(field.src); err != nil {
			return nil, errors.Wrapf(err, "invalid JWK member %q", field.nm)
		}
	}

	privateKey := &rsa.PrivateKey{
		PublicKey: rsa.PublicKey{N: n, E: int(e.Int64())},
		D:         d,
		Primes:    []*big.Int{p, q},
	}
	if err := privateKey.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid RSA key")
	}
	privateKey.Precompute()

	alg := jwk.Alg
	if alg == "" {
		alg = RS256
	}
	return &KeyPair{
		KeyID:      jwk.Kid,
		PrivateKey: privateKey,
		PublicKey:  &privateKey.PublicKey,
		Algorithm:  alg,
	}, nil
}

func b64(n *big.Int) string {
	return base64.RawURLEncoding.EncodeToString(n.Bytes())
}

func unb64(s string) (*big.Int, error) {
	if s == "" {
		return nil, errors.New("missing")
	}
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(b), nil
}
