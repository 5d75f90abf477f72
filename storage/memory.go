package storage

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/jrsteele09/onche-connect/internal/errors"
)

type memoryEntry struct {
	payload   []byte
	expiresAt time.Time // zero for no expiry
}

// Memory keeps entries in process
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	nowFunc func() time.Time
}

var _ Adapter = (*Memory)(nil)

// MemoryOption defines a function type to modify the Memory instance.
type MemoryOption func(*Memory)

// WithMemoryNowFunc sets the now time function (primarily for testing)
func WithMemoryNowFunc(nowFunc func() time.Time) MemoryOption {
	return func(m *Memory) {
		m.nowFunc = nowFunc
	}
}

// NewMemory creates an empty in-memory adapter
func NewMemory(options ...MemoryOption) *Memory {
	m := &Memory{
		entries: make(map[string]memoryEntry),
		nowFunc: time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func memoryKey(kind Kind, id string) string {
	return string(kind) + ":" + id
}

func (m *Memory) Upsert(_ context.Context, kind Kind, id string, payload []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry := memoryEntry{payload: append([]byte(nil), payload...)}
	if ttl > 0 {
		entry.expiresAt = m.nowFunc().Add(ttl)
	}
	m.entries[memoryKey(kind, id)] = entry
	return nil
}

func (m *Memory) Find(_ context.Context, kind Kind, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.live(memoryKey(kind, id))
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return append([]byte(nil), entry.payload...), nil
}

func (m *Memory) Consume(_ context.Context, kind Kind, id string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := memoryKey(kind, id)
	entry, ok := m.live(key)
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	delete(m.entries, key)
	return entry.payload, nil
}

func (m *Memory) Destroy(_ context.Context, kind Kind, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, memoryKey(kind, id))
	return nil
}

// live must be called with mu held
func (m *Memory) live(key string) (memoryEntry, bool) {
	entry, ok := m.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !entry.expiresAt.IsZero() && !m.nowFunc().Before(entry.expiresAt) {
		delete(m.entries, key)
		return memoryEntry{}, false
	}
	return entry, true
}
