package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/darmiel/satellite/internal/store"
)

const DefaultWindow = time.Minute

// FixedWindow limits requests per client over a fixed window. The check and the increment
// are one atomic store operation, so concurrent requests can never exceed the limit.
type FixedWindow struct {
	store  store.Store
	keys   store.Keys
	limit  int64
	window time.Duration
}

func NewFixedWindow(s store.Store, keys store.Keys, limit int) *FixedWindow {
	return &FixedWindow{
		store:  s,
		keys:   keys,
		limit:  int64(limit),
		window: DefaultWindow,
	}
}

// Enabled reports whether limiting is active. A limit of 0 or below disables it.
func (f *FixedWindow) Enabled() bool {
	return f != nil && f.limit > 0
}

func (f *FixedWindow) Limit() int64 {
	return f.limit
}

// Allow consumes one unit of the client's budget.
// It returns false without consuming anything once the budget is exhausted.
func (f *FixedWindow) Allow(ctx context.Context, clientKey string) (bool, error) {
	w, err := f.Hit(ctx, clientKey)
	if err != nil {
		return false, err
	}
	return w.Allowed, nil
}

// Hit is Allow with the window state, used for rate limit headers.
func (f *FixedWindow) Hit(ctx context.Context, clientKey string) (store.Window, error) {
	if !f.Enabled() {
		return store.Window{Allowed: true}, nil
	}
	w, err := f.store.Hit(ctx, f.keys.RateLimit(clientKey), f.limit, f.window)
	if err != nil {
		return store.Window{}, fmt.Errorf("rate limit for %s: %w", clientKey, err)
	}
	return w, nil
}
