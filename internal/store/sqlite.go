package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	_ Store   = (*SQLiteStore)(nil)
	_ Sweeper = (*SQLiteStore)(nil)
)

// SQLiteStore keeps satellite state on disk for single-node deployments.
// Expired rows are ignored on read and removed by DeleteExpired.
type SQLiteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (and creates) the database at path and applies migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("mkdir db dir: %w", err)
	}
	dsn := fmt.Sprintf(
		"file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)",
		path,
	)
	return openSQLite(ctx, dsn)
}

func openSQLite(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	// single connection, so a transaction owns the database for its duration
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLiteStore{db: db, now: time.Now}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, error) {
	var val []byte
	err := s.db.QueryRowContext(ctx,
		"SELECT value FROM kv WHERE key = ? AND (expires_at_ms = 0 OR expires_at_ms > ?);",
		key, toMillis(s.now()),
	).Scan(&val)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", key, err)
	}
	return val, nil
}

func (s *SQLiteStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expires int64
	if ttl > 0 {
		expires = toMillis(s.now().Add(ttl))
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO kv(key, value, expires_at_ms) VALUES(?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at_ms = excluded.expires_at_ms;`,
		key, value, expires,
	)
	if err != nil {
		return fmt.Errorf("storing %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(keys)), ",")
	args := make([]any, 0, len(keys)+1)
	for _, k := range keys {
		args = append(args, k)
	}
	args = append(args, toMillis(s.now()))

	res, err := s.db.ExecContext(ctx,
		"DELETE FROM kv WHERE key IN ("+placeholders+") AND (expires_at_ms = 0 OR expires_at_ms > ?);",
		args...,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting keys: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM kv WHERE substr(key, 1, length(?)) = ?;",
		prefix, prefix,
	)
	if err != nil {
		return 0, fmt.Errorf("deleting prefix %s: %w", prefix, err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Hit(ctx context.Context, key string, limit int64, window time.Duration) (Window, error) {
	now := s.now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Window{}, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		raw       string
		expiresMs int64
		count     int64
	)
	err = tx.QueryRowContext(ctx,
		"SELECT CAST(value AS TEXT), expires_at_ms FROM kv WHERE key = ?;", key,
	).Scan(&raw, &expiresMs)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return Window{}, fmt.Errorf("rate window %s: %w", key, err)
	default:
		if expiresMs == 0 || expiresMs > toMillis(now) {
			count, _ = strconv.ParseInt(raw, 10, 64)
		} else {
			expiresMs = 0
		}
	}

	if count >= limit {
		return Window{Count: count, ExpiresAt: fromMillis(expiresMs), Allowed: false}, nil
	}

	count++
	if count == 1 || expiresMs == 0 {
		expiresMs = toMillis(now.Add(window))
	}
	if _, err := tx.ExecContext(ctx, `
INSERT INTO kv(key, value, expires_at_ms) VALUES(?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at_ms = excluded.expires_at_ms;`,
		key, strconv.FormatInt(count, 10), expiresMs,
	); err != nil {
		return Window{}, fmt.Errorf("rate window %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return Window{}, fmt.Errorf("commit rate window %s: %w", key, err)
	}

	return Window{Count: count, ExpiresAt: fromMillis(expiresMs), Allowed: true}, nil
}

func (s *SQLiteStore) Advance(ctx context.Context, key string, t time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
INSERT INTO kv(key, value, expires_at_ms) VALUES(?, ?, 0)
ON CONFLICT(key) DO UPDATE SET value = excluded.value
WHERE CAST(kv.value AS INTEGER) < CAST(excluded.value AS INTEGER);`,
		key, strconv.FormatInt(toMillis(t), 10),
	)
	if err != nil {
		return false, fmt.Errorf("advancing %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("advancing %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Checkpoint(ctx context.Context, key string) (time.Time, error) {
	var ms int64
	err := s.db.QueryRowContext(ctx,
		"SELECT CAST(value AS INTEGER) FROM kv WHERE key = ?;", key,
	).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("fetching %s: %w", key, err)
	}
	return fromMillis(ms), nil
}

func (s *SQLiteStore) TryLock(ctx context.Context, key, token string, ttl time.Duration) (bool, error) {
	now := s.now()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO kv(key, value, expires_at_ms) VALUES(?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at_ms = excluded.expires_at_ms
WHERE kv.expires_at_ms != 0 AND kv.expires_at_ms <= ?;`,
		key, token, toMillis(now.Add(ttl)), toMillis(now),
	)
	if err != nil {
		return false, fmt.Errorf("locking %s: %w", key, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("locking %s: %w", key, err)
	}
	return n > 0, nil
}

func (s *SQLiteStore) Unlock(ctx context.Context, key, token string) error {
	if _, err := s.db.ExecContext(ctx,
		"DELETE FROM kv WHERE key = ? AND CAST(value AS TEXT) = ?;", key, token,
	); err != nil {
		return fmt.Errorf("unlocking %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteExpired(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM kv WHERE expires_at_ms != 0 AND expires_at_ms <= ?;", toMillis(s.now()),
	)
	if err != nil {
		return 0, fmt.Errorf("deleting expired keys: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type migration struct {
	version int
	name    string
	sql     string
}

func migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at_ms INTEGER NOT NULL
);`); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("read migrations dir: %w", err)
	}

	var ms []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		version, err := strconv.Atoi(strings.TrimLeft(strings.SplitN(e.Name(), "_", 2)[0], "0"))
		if err != nil {
			return fmt.Errorf("bad migration filename %s: %w", e.Name(), err)
		}
		b, err := migrationsFS.ReadFile("migrations/" + e.Name())
		if err != nil {
			return fmt.Errorf("read migration %s: %w", e.Name(), err)
		}
		ms = append(ms, migration{version: version, name: e.Name(), sql: string(b)})
	}
	sort.Slice(ms, func(i, j int) bool { return ms[i].version < ms[j].version })

	for _, m := range ms {
		var v int
		err := db.QueryRowContext(ctx, "SELECT version FROM schema_migrations WHERE version = ?;", m.version).Scan(&v)
		if err == nil {
			continue
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("check migration %d: %w", m.version, err)
		}

		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		if _, err := tx.ExecContext(ctx, m.sql); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("apply migration %s: %w", m.name, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations(version, applied_at_ms) VALUES(?, ?);",
			m.version, time.Now().UTC().UnixMilli(),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("record migration %s: %w", m.name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %s: %w", m.name, err)
		}
	}
	return nil
}
