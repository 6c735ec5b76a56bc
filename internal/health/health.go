// Package health runs the local checks reported by /health and sent to the hub.
package health

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/darmiel/satellite/internal/cache"
	"github.com/darmiel/satellite/internal/config"
	"github.com/darmiel/satellite/internal/metrics"
	"github.com/darmiel/satellite/internal/source"
	"github.com/darmiel/satellite/internal/store"
	"github.com/darmiel/satellite/pkg/hub"
)

const (
	StatusHealthy  = "healthy"
	StatusWarning  = "warning"
	StatusDegraded = "degraded"
	StatusError    = "error"
)

// DiskWarnPercent is the usage above which the storage check warns.
const DiskWarnPercent = 90.0

const (
	lastReportKey = "last_health"
	probeTTL      = 10 * time.Second
)

type Checker struct {
	cfg    *config.Config
	store  store.Store
	keys   store.Keys
	source source.Source
	cache  *cache.Cache
	disk   func(path string) (metrics.Disk, error)
	now    func() time.Time
}

func NewChecker(cfg *config.Config, s store.Store, keys store.Keys, src source.Source, c *cache.Cache) *Checker {
	return &Checker{
		cfg:    cfg,
		store:  s,
		keys:   keys,
		source: src,
		cache:  c,
		disk:   metrics.DiskUsage,
		now:    time.Now,
	}
}

// Run executes every local check. The overall status is healthy only if every check is.
func (c *Checker) Run(ctx context.Context) hub.HealthPayload {
	checks := map[string]hub.Check{
		"cache":   c.checkStore(ctx),
		"storage": c.checkStorage(),
	}
	if !c.cfg.Source.DatabaseURL.Empty() {
		checks["database"] = c.checkDatabase(ctx)
	}
	return hub.HealthPayload{
		SatelliteName: c.cfg.Satellite.Name,
		Timestamp:     c.now().UTC(),
		Status:        Overall(checks),
		Checks:        checks,
	}
}

// Overall is healthy when every check is healthy, degraded otherwise.
func Overall(checks map[string]hub.Check) string {
	for _, ch := range checks {
		if ch.Status != StatusHealthy {
			return StatusDegraded
		}
	}
	return StatusHealthy
}

func (c *Checker) checkDatabase(ctx context.Context) hub.Check {
	if err := c.source.Ping(ctx); err != nil {
		return hub.Check{Status: StatusError, Message: "Database connection failed: " + err.Error()}
	}
	return hub.Check{Status: StatusHealthy, Message: "Database connection OK"}
}

func (c *Checker) checkStore(ctx context.Context) hub.Check {
	key := c.keys.Probe()
	want := []byte(xid.New().String())
	if err := c.store.Set(ctx, key, want, probeTTL); err != nil {
		return hub.Check{Status: StatusError, Message: "Cache failed: " + err.Error()}
	}
	got, err := c.store.Get(ctx, key)
	if _, derr := c.store.Delete(ctx, key); derr != nil && err == nil {
		err = derr
	}
	switch {
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return hub.Check{Status: StatusError, Message: "Cache failed: " + err.Error()}
	case !bytes.Equal(got, want):
		return hub.Check{Status: StatusWarning, Message: "Cache read/write issue"}
	}
	return hub.Check{Status: StatusHealthy, Message: "Cache working OK"}
}

func (c *Checker) checkStorage() hub.Check {
	d, err := c.disk(c.cfg.Source.StoragePath)
	if err != nil {
		return hub.Check{Status: StatusError, Message: "Storage check failed: " + err.Error()}
	}
	status := StatusHealthy
	if d.Percent > DiskWarnPercent {
		status = StatusWarning
	}
	return hub.Check{
		Status:  status,
		Message: fmt.Sprintf("Disk usage: %.2f%%", d.Percent),
		Details: map[string]any{
			"free_space":  d.Free,
			"total_space": d.Total,
		},
	}
}

// Remember stores the last local report so /status can show it.
func (c *Checker) Remember(ctx context.Context, p hub.HealthPayload) error {
	if c.cache == nil {
		return nil
	}
	return c.cache.Put(ctx, "satellite", lastReportKey, p)
}

func (c *Checker) Last(ctx context.Context) (*hub.HealthPayload, error) {
	if c.cache == nil {
		return nil, nil
	}
	var p hub.HealthPayload
	ok, err := c.cache.Get(ctx, "satellite", lastReportKey, &p)
	if err != nil || !ok {
		return nil, err
	}
	return &p, nil
}
