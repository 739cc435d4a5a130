// Package postgres is a store.Store kept in a PostgreSQL table. Keys are
// stored packed in a bytea primary key, whose byte-wise ordering matches
// key order, and versionstamps come from a sequence.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/url"
	"strings"
	"sync/atomic"

	"github.com/denoland/kv-utils/internal/kv"
	"github.com/denoland/kv-utils/internal/store"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

func init() {
	store.Register("postgres", func(ctx context.Context, cfg store.Config) (store.Store, error) {
		return Open(ctx, cfg)
	})
}

// Value bytes are the JSON text of the value. jsonb is not used because it
// rejects strings containing U+0000.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS kv_entries (
		key          bytea PRIMARY KEY,
		value        bytea NOT NULL,
		versionstamp bigint NOT NULL
	)`,
	`CREATE SEQUENCE IF NOT EXISTS kv_versionstamp_seq`,
}

const (
	getQuery = `SELECT value, versionstamp FROM kv_entries WHERE key = $1`

	setQuery = `
		INSERT INTO kv_entries (key, value, versionstamp)
		VALUES ($1, $2, nextval('kv_versionstamp_seq'))
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, versionstamp = EXCLUDED.versionstamp
		RETURNING versionstamp`

	listAscQuery = `
		SELECT key, value, versionstamp FROM kv_entries
		WHERE key >= $1 AND key < $2
		ORDER BY key ASC LIMIT $3`

	listDescQuery = `
		SELECT key, value, versionstamp FROM kv_entries
		WHERE key >= $1 AND key < $2
		ORDER BY key DESC LIMIT $3`
)

// DBTX is the subset of pgx used by the store.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Store is a PostgreSQL backed store.Store.
type Store struct {
	pool   *pgxpool.Pool
	db     DBTX
	closed atomic.Bool
}

// Open connects to cfg.URL, applies the pool settings in cfg and creates
// the schema if needed.
func Open(ctx context.Context, cfg store.Config) (*Store, error) {
	if cfg.URL == "" {
		return nil, errors.New("postgres store requires a URL")
	}
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolConfig.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolConfig.MaxConnIdleTime = cfg.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}

	s := New(pool)
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("connected to postgres store", "database", databaseName(cfg.URL))
	return s, nil
}

// New wraps an existing pool. Close closes the pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool, db: pool}
}

// Migrate creates the table and sequence if they do not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
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
	err := s.db.QueryRow(ctx, getQuery, packed).Scan(&value, &seq)
	if errors.Is(err, pgx.ErrNoRows) {
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
	var seq int64
	if err := s.db.QueryRow(ctx, setQuery, key.Pack(), data).Scan(&seq); err != nil {
		return store.Commit{}, fmt.Errorf("set %s: %w", key, err)
	}
	return store.Commit{Versionstamp: store.FormatVersionstamp(uint64(seq))}, nil
}

// List implements store.Store. Each page is one keyset query.
func (s *Store) List(ctx context.Context, sel store.Selector, opts store.ListOptions) iter.Seq2[kv.Entry, error] {
	return store.Paginate(ctx, sel, opts, s.fetch)
}

func (s *Store) fetch(ctx context.Context, lo, hi []byte, reverse bool, limit int) ([]store.Row, error) {
	if s.closed.Load() {
		return nil, store.ErrClosed
	}
	query := listAscQuery
	if reverse {
		query = listDescQuery
	}
	rows, err := s.db.Query(ctx, query, lo, hi, limit)
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
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	return out, nil
}

// Close implements store.Store.
func (s *Store) Close() error {
	if s.closed.Swap(true) {
		return nil
	}
	s.pool.Close()
	return nil
}

func databaseName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(u.Path, "/")
}
