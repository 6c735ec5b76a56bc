package updates

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/darmiel/satellite/internal/cache"
	"github.com/darmiel/satellite/internal/store"
	"github.com/darmiel/satellite/pkg/hub"
)

func newDispatcher(t *testing.T) (*Dispatcher, *cache.Cache) {
	t.Helper()
	c := cache.New(store.NewInMemoryStore(), store.NewKeys("satellite"), time.Hour, nil)
	d := NewDispatcher()
	RegisterDefaults(d, c)
	return d, c
}

func TestDispatcher_IsolatesFailures(t *testing.T) {
	d, _ := newDispatcher(t)
	d.Handle("explode", func(context.Context, map[string]any) (string, error) {
		panic("boom")
	})
	d.Handle("fail", func(context.Context, map[string]any) (string, error) {
		return "", errors.New("handler failed")
	})

	records := []hub.Update{
		{Type: TypeConfigUpdate, Data: json.RawMessage(`{"key":"sync.interval","value":600}`)},
		{Type: "bogus", Data: json.RawMessage(`{}`)},
		{Type: TypeTenantUpdate, Data: json.RawMessage(`{"id":7,"name":"ACME"}`)},
		{Type: TypeTenantUpdate},
		{Type: "explode", Data: json.RawMessage(`{}`)},
		{Type: "fail", Data: json.RawMessage(`{}`)},
		{Type: TypeCacheClear, Data: json.RawMessage(`{"tags":["sync"]}`)},
	}
	results := d.Process(context.Background(), records)

	want := []bool{true, false, true, false, false, false, true}
	if len(results) != len(want) {
		t.Fatalf("got %d results, want %d", len(results), len(want))
	}
	for i, ok := range want {
		if results[i].Success != ok {
			t.Errorf("record %d (%s): success = %v, want %v (error %q)",
				i, records[i].Type, results[i].Success, ok, results[i].Error)
		}
		if results[i].Type != records[i].Type {
			t.Errorf("record %d type = %q", i, results[i].Type)
		}
	}
	if results[1].Error != (UnknownTypeError{Type: "bogus"}).Error() {
		t.Errorf("unknown type error = %q", results[1].Error)
	}
	if results[3].Error != ErrMissingData.Error() {
		t.Errorf("missing data error = %q", results[3].Error)
	}
}

func TestDispatcher_MalformedDataIsPerRecord(t *testing.T) {
	d, c := newDispatcher(t)
	ctx := context.Background()
	_ = c.Put(ctx, "sync", "last", 1)

	tests := []struct {
		name    string
		record  hub.Update
		wantErr error
	}{
		{"string data", hub.Update{Type: TypeConfigUpdate, Data: json.RawMessage(`"not-an-object"`)}, ErrMalformedData},
		{"array data", hub.Update{Type: TypeTenantUpdate, Data: json.RawMessage(`[1]`)}, ErrMalformedData},
		{"null data", hub.Update{Type: TypeCacheClear, Data: json.RawMessage(`null`)}, ErrMissingData},
		{"no type", hub.Update{Data: json.RawMessage(`{}`)}, ErrMissingType},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			valid := hub.Update{Type: TypeCacheClear, Data: json.RawMessage(`{"tags":["sync"]}`)}
			results := d.Process(ctx, []hub.Update{tt.record, valid})
			if len(results) != 2 {
				t.Fatalf("got %d results", len(results))
			}
			if results[0].Success {
				t.Fatalf("malformed record succeeded: %+v", results[0])
			}
			_, err := d.apply(ctx, tt.record)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if !results[1].Success {
				t.Fatalf("valid record after a malformed one failed: %+v", results[1])
			}
		})
	}
}

func TestConfigUpdate_StoresOverride(t *testing.T) {
	d, c := newDispatcher(t)
	ctx := context.Background()

	results := d.Process(ctx, []hub.Update{
		{Type: TypeConfigUpdate, Data: json.RawMessage(`{"key":"metrics.interval","value":120}`)},
	})
	if !results[0].Success || results[0].Result != "Config updated: metrics.interval" {
		t.Fatalf("result = %+v", results[0])
	}

	var v int
	ok, err := c.Get(ctx, OverrideTag, "metrics.interval", &v)
	if err != nil || !ok || v != 120 {
		t.Fatalf("override = %d, %v, %v", v, ok, err)
	}
}

func TestCacheClear_WithoutSelectorClearsNamespace(t *testing.T) {
	d, c := newDispatcher(t)
	ctx := context.Background()
	_ = c.Put(ctx, "custom", "x", 1)

	results := d.Process(ctx, []hub.Update{{Type: TypeCacheClear, Data: json.RawMessage(`{}`)}})
	if !results[0].Success || results[0].Result != "All cache cleared" {
		t.Fatalf("result = %+v", results[0])
	}
	var v int
	if ok, _ := c.Get(ctx, "custom", "x", &v); ok {
		t.Fatal("entry survived cache_clear")
	}
}

func TestDispatcher_Types(t *testing.T) {
	d, _ := newDispatcher(t)
	got := d.Types()
	want := []string{TypeCacheClear, TypeConfigUpdate, TypeTenantUpdate, TypeUserUpdate}
	if len(got) != len(want) {
		t.Fatalf("Types() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Types() = %v, want %v", got, want)
		}
	}
}
