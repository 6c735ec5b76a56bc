package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("key not found")

// Window is the state of a fixed rate window after a Hit.
type Window struct {
	Count     int64
	ExpiresAt time.Time
	Allowed   bool
}

// Store is the shared key-value medium for rate windows, registration state, checkpoints,
// task locks and the cache namespace. Every method is a single atomic operation.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key. A ttl of 0 means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	Delete(ctx context.Context, keys ...string) (int64, error)
	DeletePrefix(ctx context.Context, prefix string) (int64, error)

	// Hit checks and increments the fixed window counter under key.
	// If the count already reached limit the counter is left untouched and Allowed is false.
	// The window expiry is set on the first increment and never extended.
	Hit(ctx context.Context, key string, limit int64, window time.Duration) (Window, error)

	// Advance moves the checkpoint under key to t if t is later than the stored value.
	// It reports whether the checkpoint moved.
	Advance(ctx context.Context, key string, t time.Time) (bool, error)

	// Checkpoint returns the stored checkpoint or the zero time.
	Checkpoint(ctx context.Context, key string) (time.Time, error)

	// TryLock acquires key for token until ttl elapses or Unlock is called.
	TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key, token string) error

	Ping(ctx context.Context) error
	Close() error
}

// Sweeper is implemented by stores which do not expire keys on their own.
type Sweeper interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Keys builds the key namespaces. State keys and the cache namespace never overlap,
// so clearing the cache cannot remove registration state or checkpoints.
type Keys struct {
	Prefix string
}

func NewKeys(prefix string) Keys {
	prefix = strings.TrimRight(prefix, ":")
	if prefix == "" {
		prefix = "satellite"
	}
	return Keys{Prefix: prefix}
}

func (k Keys) RateLimit(clientIP string) string {
	return k.Prefix + ":ratelimit:" + clientIP
}

func (k Keys) Registration() string {
	return k.Prefix + ":state:registration"
}

func (k Keys) Instance() string {
	return k.Prefix + ":state:instance"
}

// Probe is written and removed again by the health check.
func (k Keys) Probe() string {
	return k.Prefix + ":state:probe"
}

func (k Keys) Checkpoint(name string) string {
	return k.Prefix + ":checkpoint:" + name
}

func (k Keys) Lock(name string) string {
	return k.Prefix + ":lock:" + name
}

// CacheNamespace is the prefix shared by every cache entry.
func (k Keys) CacheNamespace() string {
	return k.Prefix + ":cache:"
}

func (k Keys) CacheTag(tag string) string {
	return k.CacheNamespace() + tag + ":"
}

// CacheKey maps a caller supplied cache key into the cache namespace.
func (k Keys) CacheKey(key string) string {
	return k.CacheNamespace() + strings.TrimPrefix(key, k.CacheNamespace())
}

func (k Keys) Cache(tag, key string) string {
	return k.CacheTag(tag) + key
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms)
}
