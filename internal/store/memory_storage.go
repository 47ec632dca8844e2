package store

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

const memoryCleanupInterval = time.Minute

// MemoryStorage keeps state in process. It is used when redis is not configured
// and in tests; counters are not shared between replicas.
type MemoryStorage struct {
	mu    sync.Mutex
	cache *cache.Cache
}

func (s *MemoryStorage) Get(ctx context.Context, key string) (string, error) {
	val, ok := s.cache.Get(key)
	if !ok {
		return "", ErrNotFound
	}
	switch v := val.(type) {
	case string:
		return v, nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	}
	return "", ErrNotFound
}

func (s *MemoryStorage) Set(ctx context.Context, key string, val string, expiresIn time.Duration) error {
	if expiresIn <= 0 {
		expiresIn = cache.NoExpiration
	}
	s.cache.Set(key, val, expiresIn)
	return nil
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	if _, ok := s.cache.Get(key); !ok {
		return ErrNotFound
	}
	s.cache.Delete(key)
	return nil
}

func (s *MemoryStorage) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.cache.Add(key, int64(1), ttl); err == nil {
		return 1, nil
	}
	return s.cache.IncrementInt64(key, 1)
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		cache: cache.New(cache.NoExpiration, memoryCleanupInterval),
	}
}
