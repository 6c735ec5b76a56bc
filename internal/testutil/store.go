// Package testutil holds shared test doubles used across packages.
package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/darmiel/satellite/internal/store"
)

var _ store.Store = (*MockStore)(nil)

// MockStore is a stateful store.Store backed by an in-memory store.
// Set the *Err fields to inject errors for specific operations; the zero value is ready to use.
type MockStore struct {
	GetErr          error
	SetErr          error
	DeleteErr       error
	DeletePrefixErr error
	HitErr          error
	AdvanceErr      error
	CheckpointErr   error
	LockErr         error
	PingErr         error

	once  sync.Once
	inner *store.InMemoryStore
}

func (m *MockStore) backend() *store.InMemoryStore {
	m.once.Do(func() {
		if m.inner == nil {
			m.inner = store.NewInMemoryStore()
		}
	})
	return m.inner
}

func (m *MockStore) Get(ctx context.Context, key string) ([]byte, error) {
	if m.GetErr != nil {
		return nil, m.GetErr
	}
	return m.backend().Get(ctx, key)
}

func (m *MockStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if m.SetErr != nil {
		return m.SetErr
	}
	return m.backend().Set(ctx, key, value, ttl)
}

func (m *MockStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	if m.DeleteErr != nil {
		return 0, m.DeleteErr
	}
	return m.backend().Delete(ctx, keys...)
}

func (m *MockStore) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	if m.DeletePrefixErr != nil {
		return 0, m.DeletePrefixErr
	}
	return m.backend().DeletePrefix(ctx, prefix)
}

func (m *MockStore) Hit(ctx context.Context, key string, limit int64, window time.Duration) (store.Window, error) {
	if m.HitErr != nil {
		return store.Window{}, m.HitErr
	}
	return m.backend().Hit(ctx, key, limit, window)
}

func (m *MockStore) Advance(ctx context.Context, key string, t time.Time) (bool, error) {
	if m.AdvanceErr != nil {
		return false, m.AdvanceErr
	}
	return m.backend().Advance(ctx, key, t)
}

func (m *MockStore) Checkpoint(ctx context.Context, key string) (time.Time, error) {
	if m.CheckpointErr != nil {
		return time.Time{}, m.CheckpointErr
	}
	return m.backend().Checkpoint(ctx, key)
}

func (m *MockStore) TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	if m.LockErr != nil {
		return false, m.LockErr
	}
	return m.backend().TryLock(ctx, key, token, ttl)
}

func (m *MockStore) Unlock(ctx context.Context, key, token string) error {
	return m.backend().Unlock(ctx, key, token)
}

func (m *MockStore) Ping(context.Context) error {
	return m.PingErr
}

func (m *MockStore) Close() error {
	return nil
}
