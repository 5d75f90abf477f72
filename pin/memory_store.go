package pin

import (
	"context"
	"crypto/subtle"
	"strings"
	"sync"
	"time"
)

type memoryEntry struct {
	code      string
	expiresAt time.Time
}

// InMemoryStore keeps codes in process, for development and single-instance deployments
type InMemoryStore struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	opts    storeOptions
}

var _ Store = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store
func NewInMemoryStore(options ...StoreOption) *InMemoryStore {
	s := &InMemoryStore{
		entries: make(map[string]memoryEntry),
		opts:    defaultStoreOptions(),
	}
	for _, opt := range options {
		opt(&s.opts)
	}
	return s
}

func (s *InMemoryStore) Issue(_ context.Context, handle, uid string) (string, error) {
	code, err := s.opts.generate()
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.opts.nowFunc()
	s.sweep(now)
	s.entries[entryKey(handle, uid)] = memoryEntry{code: code, expiresAt: now.Add(s.opts.ttl)}
	return code, nil
}

func (s *InMemoryStore) VerifyAndConsume(_ context.Context, handle, uid, code string) (bool, error) {
	code = strings.TrimSpace(code)
	if !ValidCode(code) {
		return false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	key := entryKey(handle, uid)
	entry, ok := s.entries[key]
	if !ok {
		return false, nil
	}
	if !s.opts.nowFunc().Before(entry.expiresAt) {
		delete(s.entries, key)
		return false, nil
	}
	if subtle.ConstantTimeCompare([]byte(entry.code), []byte(code)) != 1 {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

// Pending reports whether a live code exists for (handle, uid)
func (s *InMemoryStore) Pending(handle, uid string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[entryKey(handle, uid)]
	return ok && s.opts.nowFunc().Before(entry.expiresAt)
}

func (s *InMemoryStore) sweep(now time.Time) {
	for key, entry := range s.entries {
		if !now.Before(entry.expiresAt) {
			delete(s.entries, key)
		}
	}
}
