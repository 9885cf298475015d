package studio

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Keys persisted per session
const (
	KeyWorkingLogo = "working_logo"
	KeyTitle       = "title"
)

// Store is a session scoped key-value persistence port
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
	Clear(ctx context.Context, key string) error
	// Flush removes every key of the session
	Flush(ctx context.Context) error
}

// SessionStore hands out stores scoped to one session
type SessionStore interface {
	ForSession(sessionID string) Store
}

// Purger is implemented by stores that expire entries in process and need
// a periodic sweep.
type Purger interface {
	Purge(now time.Time) int
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time // zero = never
}

// MemoryStore keeps session data in process memory
type MemoryStore struct {
	mu   sync.RWMutex
	ttl  time.Duration
	now  func() time.Time
	data map[string]memoryEntry
}

// NewMemoryStore creates an empty in-memory store without expiry
func NewMemoryStore() *MemoryStore {
	return NewMemoryStoreWithTTL(0)
}

// NewMemoryStoreWithTTL creates an in-memory store whose entries expire ttl
// after their last write. Zero disables expiry.
func NewMemoryStoreWithTTL(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:  ttl,
		now:  time.Now,
		data: make(map[string]memoryEntry),
	}
}

// ForSession returns a view of the store scoped to sessionID
func (m *MemoryStore) ForSession(sessionID string) Store {
	return &memorySessionStore{parent: m, prefix: sessionID + "/"}
}

// Purge drops expired entries and returns how many were removed
func (m *MemoryStore) Purge(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for k, e := range m.data {
		if e.expired(now) {
			delete(m.data, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored entries, expired ones included
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

type memorySessionStore struct {
	parent *MemoryStore
	prefix string
}

func (s *memorySessionStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.parent.mu.RLock()
	defer s.parent.mu.RUnlock()
	e, ok := s.parent.data[s.prefix+key]
	if !ok || e.expired(s.parent.now()) {
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (s *memorySessionStore) Set(_ context.Context, key string, value []byte) error {
	e := memoryEntry{value: make([]byte, len(value))}
	copy(e.value, value)
	if s.parent.ttl > 0 {
		e.expiresAt = s.parent.now().Add(s.parent.ttl)
	}
	s.parent.mu.Lock()
	s.parent.data[s.prefix+key] = e
	s.parent.mu.Unlock()
	return nil
}

func (s *memorySessionStore) Clear(_ context.Context, key string) error {
	s.parent.mu.Lock()
	delete(s.parent.data, s.prefix+key)
	s.parent.mu.Unlock()
	return nil
}

func (s *memorySessionStore) Flush(_ context.Context) error {
	s.parent.mu.Lock()
	defer s.parent.mu.Unlock()
	for k := range s.parent.data {
		if strings.HasPrefix(k, s.prefix) {
			delete(s.parent.data, k)
		}
	}
	return nil
}
