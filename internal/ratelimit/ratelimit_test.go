package ratelimit

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/darmiel/satellite/internal/store"
	"github.com/darmiel/satellite/internal/testutil"
)

func TestFixedWindow_LimitAndReset(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	s := store.NewInMemoryStoreWithClock(clock)
	rl := NewFixedWindow(s, store.NewKeys("satellite"), 100)
	ctx := context.Background()

	for i := 0; i < 100; i++ {
		ok, err := rl.Allow(ctx, "1.2.3.4")
		if err != nil || !ok {
			t.Fatalf("request %d: Allow = %v, %v", i+1, ok, err)
		}
	}

	ok, err := rl.Allow(ctx, "1.2.3.4")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("101st request within the window must be rejected")
	}

	// other clients have their own budget
	if ok, _ := rl.Allow(ctx, "5.6.7.8"); !ok {
		t.Fatal("another client must not be affected")
	}

	mu.Lock()
	now = now.Add(61 * time.Second)
	mu.Unlock()

	if ok, _ := rl.Allow(ctx, "1.2.3.4"); !ok {
		t.Fatal("request after the window expired must be allowed")
	}
}

func TestFixedWindow_Disabled(t *testing.T) {
	tests := []struct {
		name  string
		limit int
	}{
		{"zero", 0},
		{"negative", -5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := &testutil.MockStore{HitErr: errors.New("must not be called")}
			rl := NewFixedWindow(s, store.NewKeys(""), tt.limit)
			if rl.Enabled() {
				t.Fatal("Enabled() = true")
			}
			for i := 0; i < 1000; i++ {
				ok, err := rl.Allow(context.Background(), "1.2.3.4")
				if err != nil || !ok {
					t.Fatalf("Allow = %v, %v", ok, err)
				}
			}
		})
	}
}

func TestFixedWindow_StoreError(t *testing.T) {
	s := &testutil.MockStore{HitErr: errors.New("connection refused")}
	rl := NewFixedWindow(s, store.NewKeys(""), 10)

	ok, err := rl.Allow(context.Background(), "1.2.3.4")
	if err == nil {
		t.Fatal("expected error")
	}
	if ok {
		t.Fatal("a store error must never allow the request")
	}
}

func TestFixedWindow_ConcurrentBurst(t *testing.T) {
	rl := NewFixedWindow(store.NewInMemoryStore(), store.NewKeys(""), 25)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := rl.Allow(context.Background(), "9.9.9.9"); ok {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 25 {
		t.Fatalf("allowed = %d, want 25", allowed)
	}
}
