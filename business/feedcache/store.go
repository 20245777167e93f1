package feedcache

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bluele/gcache"
)

var (
	// ErrNotFound is returned by Store.Get when key is absent or expired
	ErrNotFound = errors.New("key not found")
	// ErrKeyExists is returned by Store.Create when key is already present
	ErrKeyExists = errors.New("key exists")
)

// Store is a key value store with a fixed expiry for every key, shared by all instances of the tracker
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	// Create puts value only if key is absent, otherwise returns ErrKeyExists
	Create(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// MemoryStore is a Store local to the process built on an expiring lru cache
type MemoryStore struct {
	mu    sync.Mutex
	cache gcache.Cache
}

// NewMemoryStore creates MemoryStore holding up to size keys that expire after ttl.
// clock may be nil to use the wall clock
func NewMemoryStore(size int, ttl time.Duration, clock gcache.Clock) *MemoryStore {
	builder := gcache.New(size).LRU().Expiration(ttl)
	if clock != nil {
		builder = builder.Clock(clock)
	}
	return &MemoryStore{cache: builder.Build()}
}

func (m *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	value, err := m.cache.Get(key)
	if errors.Is(err, gcache.KeyNotFoundError) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return value.([]byte), nil
}

func (m *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	return m.cache.Set(key, value)
}

func (m *MemoryStore) Create(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.cache.Get(key); err == nil {
		return ErrKeyExists
	}
	return m.cache.Set(key, value)
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.cache.Remove(key)
	return nil
}
