package store

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"
)

var (
	_ Store   = (*InMemoryStore)(nil)
	_ Sweeper = (*InMemoryStore)(nil)
)

type memEntry struct {
	value     []byte
	count     int64
	expiresAt time.Time
}

func (e memEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// InMemoryStore is the single-process Store. State is lost on restart.
type InMemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memEntry
	now     func() time.Time
}

func NewInMemoryStore() *InMemoryStore {
	return NewInMemoryStoreWithClock(time.Now)
}

func NewInMemoryStoreWithClock(now func() time.Time) *InMemoryStore {
	return &InMemoryStore{
		entries: make(map[string]memEntry),
		now:     now,
	}
}

func (s *InMemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok || e.expired(s.now()) {
		return nil, ErrNotFound
	}
	cpy := make([]byte, len(e.value))
	copy(cpy, e.value)
	return cpy, nil
}

func (s *InMemoryStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := memEntry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}
	s.entries[key] = e
	return nil
}

func (s *InMemoryStore) Delete(_ context.Context, keys ...string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var deleted int64
	for _, key := range keys {
		if e, ok := s.entries[key]; ok {
			if !e.expired(now) {
				deleted++
			}
			delete(s.entries, key)
		}
	}
	return deleted, nil
}

func (s *InMemoryStore) DeletePrefix(_ context.Context, prefix string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var deleted int64
	for key, e := range s.entries {
		if strings.HasPrefix(key, prefix) {
			if !e.expired(now) {
				deleted++
			}
			delete(s.entries, key)
		}
	}
	return deleted, nil
}

func (s *InMemoryStore) Hit(_ context.Context, key string, limit int64, window time.Duration) (Window, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	e, ok := s.entries[key]
	if !ok || e.expired(now) {
		e = memEntry{}
	}
	if e.count >= limit {
		return Window{Count: e.count, ExpiresAt: e.expiresAt, Allowed: false}, nil
	}

	e.count++
	if e.count == 1 {
		e.expiresAt = now.Add(window)
	}
	e.value = []byte(strconv.FormatInt(e.count, 10))
	s.entries[key] = e

	return Window{Count: e.count, ExpiresAt: e.expiresAt, Allowed: true}, nil
}

func (s *InMemoryStore) Advance(_ context.Context, key string, t time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := toMillis(t)
	if e, ok := s.entries[key]; ok {
		cur, _ := strconv.ParseInt(string(e.value), 10, 64)
		if next <= cur {
			return false, nil
		}
	}
	s.entries[key] = memEntry{value: []byte(strconv.FormatInt(next, 10))}
	return true, nil
}

func (s *InMemoryStore) Checkpoint(_ context.Context, key string) (time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[key]
	if !ok {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(string(e.value), 10, 64)
	if err != nil {
		return time.Time{}, nil
	}
	return fromMillis(ms), nil
}

func (s *InMemoryStore) TryLock(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if e, ok := s.entries[key]; ok && !e.expired(now) {
		return false, nil
	}
	s.entries[key] = memEntry{value: []byte(token), expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *InMemoryStore) Unlock(_ context.Context, key, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[key]; ok && string(e.value) == token {
		delete(s.entries, key)
	}
	return nil
}

func (s *InMemoryStore) DeleteExpired(_ context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var deletedCount int64
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			deletedCount++
		}
	}
	return deletedCount, nil
}

func (s *InMemoryStore) Ping(context.Context) error {
	return nil
}

func (s *InMemoryStore) Close() error {
	return nil
}
