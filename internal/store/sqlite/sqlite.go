// Package sqlite is a store.Store kept in a SQLite file through the pure Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/denoland/kv-utils/internal/kv"
	"github.com/denoland/kv-utils/internal/store"
	_ "modernc.org/sqlite"
)

func init() {
	store.Register("sqlite", func(ctx context.Context, cfg store.Config) (store.Store, error) {
		if cfg.Path == "" {
			return nil, errors.New("sqlite store requires a path")
		}
		return Open(ctx, cfg.Path)
	})
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS kv_entries (
		key          BLOB PRIMARY KEY,
		value        BLOB NOT NULL,
		versionstamp INTEGER NOT NULL
	) WITHOUT ROWID`,
	`CREATE TABLE IF NOT EXISTS kv_meta (
		name  TEXT PRIMARY KEY,
		value INTEGER NOT NULL
	)`,
	`INSERT OR IGNORE INTO kv_meta (name, value) VALUES ('versionstamp', 0)`,
}

// Store is a SQLite backed store.Store.
type Store struct {
	conn   *sql.DB
	closed atomic.Bool
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(ctx context.Context, path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; a second connection would also get its own
	// database when path is ":memory:".
	conn.SetMaxOpenConns(1)

	s := &Store{conn: conn}
	if err := s.migrate(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, m := range migrations {
		if _, err := s.conn.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}

// Get implements store.Store.
func (s *Store) Get(ctx context.Context, key kv.Key) (kv.Entry, error) {
	if err := key.Validate(); err != nil {
		return kv.Entry{}, err
	}
	if s.closed.Load() {
		return kv.Entry{}, store.ErrClosed
	}
	packed := key.Pack()
	var value []byte
	var seq int64
	err := s.conn.QueryRowContext(ctx,
		`SELECT value, versionstamp FROM kv_entries WHERE key = ?`, packed,
	).Scan(&value, &seq)
	if errors.Is(err, sql.ErrNoRows) {
		return store.Missing(key), nil
	}
	if err != nil {
		return kv.Entry{}, fmt.Errorf("get %s: %w", key, err)
	}
	return store.Row{Key: packed, Value: value, Seq: uint64(seq)}.Entry()
}

// Set implements store.Store.
func (s *Store) Set(ctx context.Context, key kv.Key, value kv.Value) (store.Commit, error) {
	if err := key.Validate(); err != nil {
		return store.Commit{}, err
	}
	if s.closed.Load() {
		return store.Commit{}, store.ErrClosed
	}
	data, err := store.EncodeValue(value)
	if err != nil {
		return store.Commit{}, err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return store.Commit{}, fmt.Errorf("set %s: %w", key, err)
	}
	defer tx.Rollback()

	var seq int64
	err = tx.QueryRowContext(ctx,
		`UPDATE kv_meta SET value = value + 1 WHERE name = 'versionstamp' RETURNING value`,
	).Scan(&seq)
	if err != nil {
		return store.Commit{}, fmt.Errorf("set %s: next versionstamp: %w", key, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, versionstamp) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, versionstamp = excluded.versionstamp`,
		key.Pack(), data, seq)
	if err != nil {
		return store.Commit{}, fmt.Errorf("set %s: %w", key, err)
	}
	if err := tx.Commit(); err != nil {
		return store.Commit{}, fmt.Errorf("set %s: commit: %w", key, err)
	}
	return store.Commit{Versionstamp: store.FormatVersionstamp(uint64(seq))}, nil
}

// List implements store.Store.
func (s *Store) List(ctx context.Context, sel store.Selector, opts store.ListOptions) iter.Seq2[kv.Entry, error] {
	return store.Paginate(ctx, sel, opts, s.fetch)
}

func (s *Store) fetch(ctx context.Context, lo, hi []byte, reverse bool, limit int) ([]store.Row, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	order := "ASC"
	if reverse {
		order = "DESC"
	}
	rows, err := s.conn.QueryContext(ctx,
		`SELECT key, value, versionstamp FROM kv_entries
		WHERE key >= ? AND key < ? ORDER BY key `+order+` LIMIT ?`,
		lo, hi, limit)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer rows.Close()

	var out []store.Row
	for rows.Next() {
		var r store.Row
		var seq int64
		if err := rows.Scan(&r.Key, &r.Value, &seq); err != nil {
			return nil, fmt.Errorf("list: %w", err)
		}
		r.Seq = uint64(seq)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close implements store.Store.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	return s.conn.Close()
}
