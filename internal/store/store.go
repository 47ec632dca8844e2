package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("not found")
)

// Storage is a small key/value store for short-lived security state such as
// attempt counters, replay windows and pending enrollments.
type Storage interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, val string, expiresIn time.Duration) error
	Delete(ctx context.Context, key string) error
	// Incr increments a counter, starting a new ttl window when the key does not exist.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type Store[T any] interface {
	Storage() Storage
	Get(ctx context.Context, key string) (T, error)
	Set(ctx context.Context, key string, val T, expiresIn time.Duration) error
	Delete(ctx context.Context, key string) error
}

type store[T any] struct {
	storage Storage
}

func (s *store[T]) Storage() Storage {
	return s.storage
}

func (s *store[T]) Get(ctx context.Context, key string) (T, error) {
	var obj T
	raw, err := s.storage.Get(ctx, key)
	if err != nil {
		return obj, err
	}
	err = json.Unmarshal([]byte(raw), &obj)
	return obj, err
}

func (s *store[T]) Set(ctx context.Context, key string, val T, expiresIn time.Duration) error {
	raw, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return s.storage.Set(ctx, key, string(raw), expiresIn)
}

func (s *store[T]) Delete(ctx context.Context, key string) error {
	return s.storage.Delete(ctx, key)
}

func New[T any](storage Storage, keyPrefix string) Store[T] {
	return &store[T]{
		storage: StorageWithPrefix(storage, keyPrefix),
	}
}
