package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUndefinedTable  = "42P01"
	pgUndefinedColumn = "42703"
)

var _ Source = (*Postgres)(nil)

// Postgres reads datasets from the satellite's PostgreSQL database.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (p *Postgres) Collect(ctx context.Context, ds Dataset) ([]map[string]any, error) {
	if err := readOnly(ds.Query); err != nil {
		return nil, fmt.Errorf("dataset %s: %w", ds.Name, err)
	}
	rows, err := p.pool.Query(ctx, ds.Query)
	if err != nil {
		return nil, classify(ds.Name, err)
	}
	records, err := pgx.CollectRows(rows, pgx.RowToMap)
	if err != nil {
		return nil, classify(ds.Name, err)
	}
	for _, rec := range records {
		for k, v := range rec {
			rec[k] = normalize(v)
		}
	}
	return records, nil
}

func (p *Postgres) Count(ctx context.Context, query string) (int64, error) {
	if err := readOnly(query); err != nil {
		return 0, err
	}
	var n int64
	if err := p.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, classify("count", err)
	}
	return n, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

func (p *Postgres) Close() {
	p.pool.Close()
}

// classify turns a missing table or column into ErrUnavailable.
func classify(name string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == pgUndefinedTable || pgErr.Code == pgUndefinedColumn) {
		return fmt.Errorf("%s: %w: %s", name, ErrUnavailable, pgErr.Message)
	}
	return fmt.Errorf("%s: %w", name, err)
}

func readOnly(query string) error {
	q := strings.ToUpper(strings.TrimSpace(query))
	if !strings.HasPrefix(q, "SELECT") && !strings.HasPrefix(q, "WITH") {
		return fmt.Errorf("only SELECT queries are allowed")
	}
	return nil
}

// normalize converts driver values that do not serialize well to JSON.
func normalize(v any) any {
	switch val := v.(type) {
	case [16]byte:
		return uuid.UUID(val).String()
	case []byte:
		return string(val)
	default:
		return v
	}
}
