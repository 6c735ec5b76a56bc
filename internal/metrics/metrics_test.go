package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/darmiel/satellite/internal/config"
	"github.com/darmiel/satellite/internal/logging"
	"github.com/darmiel/satellite/internal/store"
	"github.com/darmiel/satellite/internal/testutil"
	"github.com/darmiel/satellite/pkg/hub"
)

func newCollector(typ string, include []string, counts map[string]int64) *Collector {
	cfg := &config.Config{}
	cfg.Satellite.Name = "sat-1"
	cfg.Satellite.Type = typ
	cfg.Metrics.Include = include
	cfg.Source.StoragePath = "/data"

	c := NewCollector(cfg, &testutil.StaticSource{Counts: counts})
	c.disk = func(path string) (Disk, error) {
		if path != "/data" {
			return Disk{}, errors.New("unexpected path " + path)
		}
		return newDisk(1000, 250), nil
	}
	return c
}

func TestCollect(t *testing.T) {
	counts := map[string]int64{
		baseCounters[UsersCount].query:   12,
		baseCounters[TenantsCount].query: 3,
		typeCounters["vinci"][0].query:   5,
	}
	tests := []struct {
		name    string
		typ     string
		include []string
		want    []string
		absent  []string
	}{
		{
			name:    "base counters",
			typ:     "default",
			include: []string{UsersCount, TenantsCount},
			want:    []string{UsersCount, TenantsCount, "timestamp", "satellite_name", "satellite_type"},
			absent:  []string{MemoryUsage, DiskUsageName, "brokers_active"},
		},
		{
			name:    "unavailable counters are left out",
			typ:     "default",
			include: []string{UsersCount, ActiveSessions},
			want:    []string{UsersCount},
			absent:  []string{ActiveSessions},
		},
		{
			name:    "system groups",
			typ:     "default",
			include: []string{MemoryUsage, DiskUsageName, Runtime},
			want:    []string{MemoryUsage, DiskUsageName, Runtime},
			absent:  []string{UsersCount},
		},
		{
			name:   "type specific",
			typ:    "vinci",
			want:   []string{"brokers_active"},
			absent: []string{"jobs_today", "orders_today"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newCollector(tt.typ, tt.include, counts).Collect(context.Background())
			for _, k := range tt.want {
				if _, ok := m[k]; !ok {
					t.Errorf("metric %q missing in %v", k, m)
				}
			}
			for _, k := range tt.absent {
				if _, ok := m[k]; ok {
					t.Errorf("metric %q should not be present", k)
				}
			}
		})
	}
}

func TestCollectValues(t *testing.T) {
	c := newCollector("default", []string{UsersCount, DiskUsageName}, map[string]int64{
		baseCounters[UsersCount].query: 42,
	})
	m := c.Collect(context.Background())
	if m[UsersCount] != int64(42) {
		t.Fatalf("users_count = %v", m[UsersCount])
	}
	d, ok := m[DiskUsageName].(Disk)
	if !ok {
		t.Fatalf("disk_usage = %T", m[DiskUsageName])
	}
	if d.Used != 750 || d.Percent != 75 {
		t.Fatalf("disk = %+v", d)
	}
}

func TestNewDisk(t *testing.T) {
	tests := []struct {
		total, free uint64
		used        uint64
		percent     float64
	}{
		{0, 0, 0, 0},
		{100, 100, 0, 0},
		{300, 100, 200, 66.67},
		{100, 200, 0, 0},
	}
	for _, tt := range tests {
		d := newDisk(tt.total, tt.free)
		if d.Used != tt.used || d.Percent != tt.percent {
			t.Errorf("newDisk(%d, %d) = %+v", tt.total, tt.free, d)
		}
	}
}

type fakePusher struct {
	err      error
	payloads []hub.MetricsPayload
}

func (f *fakePusher) PushMetrics(_ context.Context, p hub.MetricsPayload) error {
	if f.err != nil {
		return f.err
	}
	f.payloads = append(f.payloads, p)
	return nil
}

func TestPublisher(t *testing.T) {
	now := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	c := newCollector("default", []string{UsersCount}, map[string]int64{baseCounters[UsersCount].query: 1})
	c.now = func() time.Time { return now }

	s := store.NewInMemoryStore()
	keys := store.NewKeys("satellite")
	pusher := &fakePusher{err: &hub.Error{Kind: hub.KindMetrics, Err: hub.ErrConnection}}
	p := NewPublisher(c, pusher, s, keys)
	ctx := context.Background()

	if err := p.Task(ctx, logging.Nop{}); err == nil {
		t.Fatal("expected task error while the hub is down")
	}
	if last, _ := p.LastSent(ctx); !last.IsZero() {
		t.Fatalf("checkpoint advanced without ack: %s", last)
	}

	pusher.err = nil
	if err := p.Task(ctx, logging.Nop{}); err != nil {
		t.Fatal(err)
	}
	if len(pusher.payloads) != 1 || pusher.payloads[0].SatelliteName != "sat-1" {
		t.Fatalf("payloads = %+v", pusher.payloads)
	}
	last, err := p.LastSent(ctx)
	if err != nil || !last.Equal(now) {
		t.Fatalf("LastSent = %s, %v; want %s", last, err, now)
	}
}
