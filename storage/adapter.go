// Package storage persists the identity provider's short-lived entities.
package storage

import (
	"context"
	"encoding/json"
	"time"

	apperrors "github.com/jrsteele09/onche-connect/internal/errors"
	"github.com/pkg/errors"
)

// Kind names a family of stored entities
type Kind string

const (
	KindInteraction       Kind = "Interaction"
	KindSession           Kind = "Session"
	KindGrant             Kind = "Grant"
	KindAuthorizationCode Kind = "AuthorizationCode"
	KindRefreshToken      Kind = "RefreshToken"
	KindAccessToken       Kind = "AccessToken"
)

// Adapter stores opaque payloads per kind and id. A zero ttl keeps the entry until destroyed.
// Find and Consume return apperrors.ErrNotFound for missing or expired entries.
// Consume returns the payload and removes it in one step, so only one caller can consume an entry.
type Adapter interface {
	Upsert(ctx context.Context, kind Kind, id string, payload []byte, ttl time.Duration) error
	Find(ctx context.Context, kind Kind, id string) ([]byte, error)
	Consume(ctx context.Context, kind Kind, id string) ([]byte, error)
	Destroy(ctx context.Context, kind Kind, id string) error
}

// Save encodes v as JSON and upserts it
func Save[T any](ctx context.Context, a Adapter, kind Kind, id string, v *T, ttl time.Duration) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "[storage.Save] encode %s", kind)
	}
	return a.Upsert(ctx, kind, id, payload, ttl)
}

// Load finds and decodes the entry stored under id
func Load[T any](ctx context.Context, a Adapter, kind Kind, id string) (*T, error) {
	payload, err := a.Find(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	return decode[T](kind, payload)
}

// Take consumes and decodes the entry stored under id
func Take[T any](ctx context.Context, a Adapter, kind Kind, id string) (*T, error) {
	payload, err := a.Consume(ctx, kind, id)
	if err != nil {
		return nil, err
	}
	return decode[T](kind, payload)
}

func decode[T any](kind Kind, payload []byte) (*T, error) {
	v := new(T)
	if err := json.Unmarshal(payload, v); err != nil {
		return nil, apperrors.Wrapf(apperrors.ErrInternal, "[storage] decode %s: %v", kind, err)
	}
	return v, nil
}
