// Package metrics collects the values pushed to the hub on the metrics interval.
package metrics

import (
	"context"
	"errors"
	"math"
	"runtime"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/darmiel/satellite/internal/buildinfo"
	"github.com/darmiel/satellite/internal/config"
	"github.com/darmiel/satellite/internal/source"
)

const (
	UsersCount     = "users_count"
	TenantsCount   = "tenants_count"
	ActiveSessions = "active_sessions"
	MemoryUsage    = "memory_usage"
	DiskUsageName  = "disk_usage"
	Runtime        = "runtime"
)

type Disk struct {
	Total   uint64  `json:"total"`
	Used    uint64  `json:"used"`
	Free    uint64  `json:"free"`
	Percent float64 `json:"percent"`
}

func newDisk(total, free uint64) Disk {
	d := Disk{Total: total, Free: free}
	if free < total {
		d.Used = total - free
	}
	if total > 0 {
		d.Percent = round2(float64(d.Used) / float64(total) * 100)
	}
	return d
}

type counter struct {
	name  string
	query string
}

var baseCounters = map[string]counter{
	UsersCount:     {UsersCount, `SELECT count(*) FROM users`},
	TenantsCount:   {TenantsCount, `SELECT count(*) FROM tenants`},
	ActiveSessions: {ActiveSessions, `SELECT count(*) FROM sessions WHERE last_activity > extract(epoch FROM now() - interval '5 minutes')`},
}

var typeCounters = map[string][]counter{
	"logistik": {
		{"orders_today", `SELECT count(*) FROM orders WHERE created_at::date = current_date`},
		{"orders_pending", `SELECT count(*) FROM orders WHERE status = 'pending'`},
		{"shipments_active", `SELECT count(*) FROM shipments WHERE status IN ('in_transit', 'processing')`},
	},
	"vinci": {
		{"brokers_active", `SELECT count(*) FROM brokers WHERE status = 'active'`},
		{"jobs_today", `SELECT count(*) FROM jobs WHERE created_at::date = current_date`},
		{"jobs_pending", `SELECT count(*) FROM jobs WHERE status = 'pending'`},
	},
	"pixel": {
		{"qr_codes_today", `SELECT count(*) FROM qr_codes WHERE created_at::date = current_date`},
		{"scans_today", `SELECT count(*) FROM qr_scans WHERE created_at::date = current_date`},
	},
}

type Collector struct {
	cfg       *config.Config
	source    source.Source
	disk      func(path string) (Disk, error)
	now       func() time.Time
	startedAt time.Time
}

func NewCollector(cfg *config.Config, src source.Source) *Collector {
	return &Collector{
		cfg:       cfg,
		source:    src,
		disk:      DiskUsage,
		now:       time.Now,
		startedAt: time.Now(),
	}
}

// Collect gathers every included metric. A metric that cannot be read is left out.
func (c *Collector) Collect(ctx context.Context) map[string]any {
	m := make(map[string]any)
	inc := c.cfg.Metrics

	for _, name := range []string{UsersCount, TenantsCount, ActiveSessions} {
		if inc.Includes(name) {
			c.count(ctx, m, baseCounters[name])
		}
	}
	if inc.Includes(MemoryUsage) {
		m[MemoryUsage] = memoryUsage()
	}
	if inc.Includes(DiskUsageName) {
		if d, err := c.disk(c.cfg.Source.StoragePath); err != nil {
			log.Ctx(ctx).Warn().Err(err).Msg("failed to collect disk usage")
		} else {
			m[DiskUsageName] = d
		}
	}
	if inc.Includes(Runtime) {
		m[Runtime] = map[string]any{
			"goroutines":     runtime.NumGoroutine(),
			"go_version":     runtime.Version(),
			"version":        buildinfo.Version,
			"uptime_seconds": int64(c.now().Sub(c.startedAt).Seconds()),
		}
	}
	for _, ctr := range typeCounters[c.cfg.Satellite.Type] {
		c.count(ctx, m, ctr)
	}

	m["timestamp"] = c.now().UTC()
	m["satellite_name"] = c.cfg.Satellite.Name
	m["satellite_type"] = c.cfg.Satellite.Type
	return m
}

func (c *Collector) count(ctx context.Context, m map[string]any, ctr counter) {
	n, err := c.source.Count(ctx, ctr.query)
	switch {
	case errors.Is(err, source.ErrUnavailable):
		log.Ctx(ctx).Debug().Str("metric", ctr.name).Msg("metric unavailable")
	case err != nil:
		log.Ctx(ctx).Warn().Err(err).Str("metric", ctr.name).Msg("failed to collect metric")
	default:
		m[ctr.name] = n
	}
}

func memoryUsage() map[string]any {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	percent := 0.0
	if ms.Sys > 0 {
		percent = round2(float64(ms.HeapInuse) / float64(ms.Sys) * 100)
	}
	return map[string]any{
		"current": ms.HeapAlloc,
		"in_use":  ms.HeapInuse,
		"system":  ms.Sys,
		"percent": percent,
		"gc_runs": ms.NumGC,
	}
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
