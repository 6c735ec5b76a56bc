// Package source reads the domain entities that are pushed to the hub.
package source

import (
	"context"
	"errors"

	"github.com/darmiel/satellite/internal/config"
)

// ErrUnavailable marks a dataset or metric that does not exist on this satellite.
// Callers report it as skipped, not as a failure.
var ErrUnavailable = errors.New("dataset unavailable")

type Dataset struct {
	Name  string
	Query string
}

// Source is the read side of the satellite's own database.
type Source interface {
	Collect(ctx context.Context, ds Dataset) ([]map[string]any, error)
	Count(ctx context.Context, query string) (int64, error)
	Ping(ctx context.Context) error
	Close()
}

var commonDatasets = []Dataset{
	{Name: "tenants", Query: `SELECT id, name, slug, domain, status, created_at, updated_at FROM tenants`},
	{Name: "users", Query: `SELECT id, name, email, email_verified_at, created_at, updated_at FROM users`},
}

var typeDatasets = map[string][]Dataset{
	"logistik": {
		{Name: "orders", Query: `SELECT id, status, total, customer_id, created_at, updated_at FROM orders
WHERE updated_at >= now() - interval '7 days'`},
		{Name: "shipments", Query: `SELECT id, order_id, status, tracking_number, created_at, updated_at FROM shipments
WHERE status IN ('processing', 'in_transit', 'delivered') AND updated_at >= now() - interval '7 days'`},
	},
	"vinci": {
		{Name: "brokers", Query: `SELECT id, name, email, status, commission_rate, created_at, updated_at FROM brokers
WHERE status = 'active'`},
		{Name: "jobs", Query: `SELECT id, title, status, broker_id, value, created_at, updated_at FROM jobs
WHERE updated_at >= now() - interval '7 days'`},
	},
	"pixel": {
		{Name: "qr_codes", Query: `SELECT id, code, type, data, scan_count, created_at, updated_at FROM qr_codes
WHERE created_at >= now() - interval '7 days'`},
		{Name: "qr_scans", Query: `SELECT id, qr_code_id, user_id, ip_address, user_agent, created_at FROM qr_scans
WHERE created_at >= now() - interval '1 day'`},
	},
}

// Datasets returns the configured datasets, or the built-in ones for the satellite type.
func Datasets(cfg *config.Config) []Dataset {
	if len(cfg.Sync.Datasets) > 0 {
		out := make([]Dataset, 0, len(cfg.Sync.Datasets))
		for _, ds := range cfg.Sync.Datasets {
			out = append(out, Dataset{Name: ds.Name, Query: ds.Query})
		}
		return out
	}
	out := append([]Dataset{}, commonDatasets...)
	return append(out, typeDatasets[cfg.Satellite.Type]...)
}

// Open connects to the configured database. Without a database url every dataset is unavailable.
func Open(ctx context.Context, cfg *config.Config) (Source, error) {
	if cfg.Source.DatabaseURL.Empty() {
		return Empty{}, nil
	}
	return NewPostgres(ctx, cfg.Source.DatabaseURL.Reveal())
}

// Empty is the source of a satellite without a database.
type Empty struct{}

func (Empty) Collect(context.Context, Dataset) ([]map[string]any, error) { return nil, ErrUnavailable }
func (Empty) Count(context.Context, string) (int64, error)               { return 0, ErrUnavailable }
func (Empty) Ping(context.Context) error                                 { return ErrUnavailable }
func (Empty) Close()                                                     {}
