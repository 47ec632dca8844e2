package store

import (
	"context"
	"time"
)

type prefixedStorage struct {
	underlying Storage
	prefix     string
}

func (p *prefixedStorage) Get(ctx context.Context, key string) (string, error) {
	return p.underlying.Get(ctx, p.prefix+key)
}

func (p *prefixedStorage) Set(ctx context.Context, key string, val string, expiresIn time.Duration) error {
	return p.underlying.Set(ctx, p.prefix+key, val, expiresIn)
}

func (p *prefixedStorage) Delete(ctx context.Context, key string) error {
	return p.underlying.Delete(ctx, p.prefix+key)
}

func (p *prefixedStorage) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return p.underlying.Incr(ctx, p.prefix+key, ttl)
}

func StorageWithPrefix(storage Storage, prefix string) Storage {
	if prefix == "" {
		return storage
	}
	return &prefixedStorage{underlying: storage, prefix: prefix}
}
