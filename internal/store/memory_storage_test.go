package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStorageGetSetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	_, err := s.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))
	val, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	require.NoError(t, s.Delete(ctx, "k"))
	assert.ErrorIs(t, s.Delete(ctx, "k"), ErrNotFound)
}

func TestMemoryStorageExpiry(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	require.NoError(t, s.Set(ctx, "k", "v", 20*time.Millisecond))
	time.Sleep(40 * time.Millisecond)
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorageIncr(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Incr(ctx, "counter", time.Minute)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	n, err := s.Incr(ctx, "counter", time.Minute)
	require.NoError(t, err)
	assert.EqualValues(t, 21, n)

	n, err = s.Incr(ctx, "short", 20*time.Millisecond)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)
	time.Sleep(40 * time.Millisecond)
	n, err = s.Incr(ctx, "short", 20*time.Millisecond)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n, "expired counter starts a new window")
}

func TestTypedStoreWithPrefix(t *testing.T) {
	type pending struct {
		Secret string `json:"secret"`
	}
	ctx := context.Background()
	mem := NewMemoryStorage()
	s := New[pending](mem, "mfa:")

	require.NoError(t, s.Set(ctx, "42", pending{Secret: "abc"}, time.Minute))
	got, err := s.Get(ctx, "42")
	require.NoError(t, err)
	assert.Equal(t, "abc", got.Secret)

	raw, err := mem.Get(ctx, "mfa:42")
	require.NoError(t, err)
	assert.JSONEq(t, `{"secret":"abc"}`, raw)

	require.NoError(t, s.Delete(ctx, "42"))
	_, err = s.Get(ctx, "42")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStorageGetCounter(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStorage()

	_, err := s.Incr(ctx, "fails", time.Minute)
	require.NoError(t, err)
	_, err = s.Incr(ctx, "fails", time.Minute)
	require.NoError(t, err)

	val, err := s.Get(ctx, "fails")
	require.NoError(t, err)
	assert.Equal(t, "2", val)
}
