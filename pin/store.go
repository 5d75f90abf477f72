// Package pin issues and verifies the one-time codes delivered to community site accounts.
package pin

import (
	"context"
	"time"
)

// DefaultTTL is how long an issued code stays valid
const DefaultTTL = 600 * time.Second

// Store keeps at most one live code per (handle, interaction) pair.
// Issue overwrites any previous code for the pair. VerifyAndConsume succeeds at most once
// per issued code; a wrong guess leaves the entry in place until it expires.
type Store interface {
	Issue(ctx context.Context, handle, uid string) (string, error)
	VerifyAndConsume(ctx context.Context, handle, uid, code string) (bool, error)
}

// StoreOption defines a function type to modify a store's settings.
type StoreOption func(*storeOptions)

type storeOptions struct {
	ttl      time.Duration
	generate CodeGenerator
	nowFunc  func() time.Time
}

func defaultStoreOptions() storeOptions {
	return storeOptions{
		ttl:      DefaultTTL,
		generate: NewCode,
		nowFunc:  time.Now,
	}
}

// WithTTL sets how long issued codes stay valid
func WithTTL(ttl time.Duration) StoreOption {
	return func(o *storeOptions) {
		o.ttl = ttl
	}
}

// WithCodeGenerator replaces the random code source (primarily for testing)
func WithCodeGenerator(generate CodeGenerator) StoreOption {
	return func(o *storeOptions) {
		o.generate = generate
	}
}

// WithNowFunc sets the now time function used for expiry by the in-memory store (primarily for testing)
func WithNowFunc(nowFunc func() time.Time) StoreOption {
	return func(o *storeOptions) {
		o.nowFunc = nowFunc
	}
}

func entryKey(handle, uid string) string {
	return "pin:" + handle + ":" + uid
}
