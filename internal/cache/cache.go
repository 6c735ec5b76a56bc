// Package cache is the tagged cache namespace on top of the shared store.
// It can never reach registration state, checkpoints or locks.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/darmiel/satellite/internal/store"
)

var DefaultTags = []string{"satellite", "sync", "unicyhub"}

type Cache struct {
	store       store.Store
	keys        store.Keys
	ttl         time.Duration
	defaultTags []string
}

func New(s store.Store, keys store.Keys, ttl time.Duration, defaultTags []string) *Cache {
	if len(defaultTags) == 0 {
		defaultTags = DefaultTags
	}
	return &Cache{store: s, keys: keys, ttl: ttl, defaultTags: defaultTags}
}

func (c *Cache) DefaultTags() []string {
	return c.defaultTags
}

// Put stores v as JSON under tag and key with the default TTL.
func (c *Cache) Put(ctx context.Context, tag, key string, v any) error {
	return c.PutTTL(ctx, tag, key, v, c.ttl)
}

func (c *Cache) PutTTL(ctx context.Context, tag, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding cache entry %s:%s: %w", tag, key, err)
	}
	return c.store.Set(ctx, c.keys.Cache(tag, key), raw, ttl)
}

// Get decodes the entry into v. It reports false if the entry does not exist.
func (c *Cache) Get(ctx context.Context, tag, key string, v any) (bool, error) {
	raw, err := c.store.Get(ctx, c.keys.Cache(tag, key))
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decoding cache entry %s:%s: %w", tag, key, err)
	}
	return true, nil
}

func (c *Cache) ClearAll(ctx context.Context) (int64, error) {
	return c.store.DeletePrefix(ctx, c.keys.CacheNamespace())
}

func (c *Cache) ClearTags(ctx context.Context, tags ...string) (int64, error) {
	var total int64
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			continue
		}
		n, err := c.store.DeletePrefix(ctx, c.keys.CacheTag(tag))
		if err != nil {
			return total, fmt.Errorf("clearing tag %s: %w", tag, err)
		}
		total += n
	}
	return total, nil
}

// ClearKeys deletes single entries. Keys are relative to the cache namespace ("tag:key").
func (c *Cache) ClearKeys(ctx context.Context, keys ...string) (int64, error) {
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			full = append(full, c.keys.CacheKey(k))
		}
	}
	return c.store.Delete(ctx, full...)
}

// Request selects what to clear. All wins over Tags, Tags over Keys.
type Request struct {
	All  bool     `json:"all" mapstructure:"all"`
	Tags []string `json:"tags" mapstructure:"tags"`
	Keys []string `json:"keys" mapstructure:"keys"`
}

func (r Request) Empty() bool {
	return !r.All && len(r.Tags) == 0 && len(r.Keys) == 0
}

// Clear executes r and returns a human readable summary.
func (c *Cache) Clear(ctx context.Context, r Request) (string, int64, error) {
	switch {
	case r.All:
		n, err := c.ClearAll(ctx)
		return "All cache cleared", n, err
	case len(r.Tags) > 0:
		n, err := c.ClearTags(ctx, r.Tags...)
		return "Cache cleared for tags: " + strings.Join(r.Tags, ", "), n, err
	case len(r.Keys) > 0:
		n, err := c.ClearKeys(ctx, r.Keys...)
		return "Cache cleared for keys: " + strings.Join(r.Keys, ", "), n, err
	default:
		n, err := c.ClearTags(ctx, c.defaultTags...)
		return "Satellite cache cleared", n, err
	}
}
