package token

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// DefaultKeyID identifies the generated signing key
const DefaultKeyID = "key-1"

// LoadOrCreateKeyFile reads the first key of the private JWKS at path, generating and
// writing a new RS256 key when the file does not exist yet
func LoadOrCreateKeyFile(path, keyID string) (*KeyPair, error) {
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		var set JWKS
		if err := json.Unmarshal(data, &set); err != nil {
			return nil, errors.Wrapf(err, "[LoadOrCreateKeyFile] parse %s", path)
		}
		if len(set.Keys) == 0 {
			return nil, errors.Errorf("[LoadOrCreateKeyFile] %s holds no keys", path)
		}
		kp, err := KeyPairFromJWK(set.Keys[0])
		if err != nil {
			return nil, errors.Wrapf(err, "[LoadOrCreateKeyFile] %s", path)
		}
		log.Info().Str("path", path).Str("kid", kp.KeyID).Msg("Loaded signing key")
		return kp, nil

	case !os.IsNotExist(err):
		return nil, errors.Wrapf(err, "[LoadOrCreateKeyFile] read %s", path)
	}

	if keyID == "" {
		keyID = DefaultKeyID
	}
	kp, err := GenerateRSAKeyPair(keyID, 2048)
	if err != nil {
		return nil, err
	}
	jwk, err := kp.ToPrivateJWK()
	if err != nil {
		return nil, err
	}
	data, err = json.MarshalIndent(JWKS{Keys: []JWK{*jwk}}, "", "  ")
	if err != nil {
		return nil, errors.Wrap(err, "[LoadOrCreateKeyFile] encode")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, errors.Wrapf(err, "[LoadOrCreateKeyFile] create %s", dir)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return nil, errors.Wrapf(err, "[LoadOrCreateKeyFile] write %s", path)
	}

	log.Info().Str("path", path).Str("kid", kp.KeyID).Msg("Generated new signing key")
	return kp, nil
}
