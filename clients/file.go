package clients

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// LoadFile reads the JSON array of client metadata at path. A missing file is not an
// error: the provider starts with no clients and logs a warning.
func LoadFile(path string) ([]*Client, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		log.Warn().Str("path", path).Msg("No clients file found, starting without registered clients")
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "[LoadFile] read %s", path)
	}

	var clients []*Client
	if err := json.Unmarshal(data, &clients); err != nil {
		return nil, errors.Wrapf(err, "[LoadFile] parse %s", path)
	}

	seen := make(map[string]struct{}, len(clients))
	for i, c := range clients {
		if err := c.validate(); err != nil {
			return nil, errors.Wrapf(err, "[LoadFile] client #%d", i)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, errors.Wrapf(ErrInvalidClient, "[LoadFile] duplicate client_id %q", c.ID)
		}
		seen[c.ID] = struct{}{}
	}

	log.Info().Str("path", path).Int("clients", len(clients)).Msg("Loaded clients")
	return clients, nil
}

func (c *Client) validate() error {
	switch {
	case c.ID == "":
		return fmt.Errorf("%w: client_id is required", ErrInvalidClient)
	case len(c.RedirectURIs) == 0:
		return fmt.Errorf("%w: %s has no redirect_uris", ErrInvalidClient, c.ID)
	}

	switch c.AuthMethod() {
	case AuthMethodNone:
		if c.Secret != "" {
			return fmt.Errorf("%w: public client %s must not have a secret", ErrInvalidClient, c.ID)
		}
	case AuthMethodSecretBasic, AuthMethodSecretPost:
		if c.Secret == "" {
			return fmt.Errorf("%w: %s requires a client_secret", ErrInvalidClient, c.ID)
		}
	default:
		return fmt.Errorf("%w: %s uses unsupported token_endpoint_auth_method %q", ErrInvalidClient, c.ID, c.TokenEndpointAuthMethod)
	}
	return nil
}
