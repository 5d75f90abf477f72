// Package authflow is the relying-party side of the authorization code flow, used by the
// test client to exercise the provider end to end.
package authflow

import (
	"errors"
	"time"
)

var (
	ErrEmptyState    = errors.New("state cannot be empty")
	ErrStateNotFound = errors.New("state not found")
)

// State is what the relying party remembers between the redirect and the callback
type State struct {
	CodeVerifier string
	Nonce        string
	CreatedAt    time.Time
}

type Repo interface {
	Upsert(state string, authState *State) error
	Get(state string) (*State, error)
	Delete(state string) error
}
