// Package bolt is a store.Store kept in a single bbolt file. Entries live in
// one bucket keyed by packed key, so bbolt's byte ordering is key order.
package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/denoland/kv-utils/internal/kv"
	"github.com/denoland/kv-utils/internal/store"
	bolt "go.etcd.io/bbolt"
)

var bucketName = []byte("entries")

// seqLen is the size of the sequence number stored ahead of each value.
const seqLen = 8

func init() {
	store.Register("bolt", func(_ context.Context, cfg store.Config) (store.Store, error) {
		if cfg.Path == "" {
			return nil, errors.New("bolt store requires a path")
		}
		return Open(cfg.Path)
	})
}

// Store is a bbolt backed store.Store.
type Store struct {
	db *bolt.DB
}

// Open opens or creates the database file at path.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Path returns the database file path.
func (s *Store) Path() string { return s.db.Path() }

// Get implements store.Store.
func (s *Store) Get(_ context.Context, key kv.Key) (kv.Entry, error) {
	if err := key.Validate(); err != nil {
		return kv.Entry{}, err
	}
	var row store.Row
	var found bool
	err := s.view(func(b *bolt.Bucket) error {
		packed := key.Pack()
		if v := b.Get(packed); v != nil {
			row, found = decodeRow(packed, v), true
		}
		return nil
	})
	if err != nil {
		return kv.Entry{}, err
	}
	if !found {
		return store.Missing(key), nil
	}
	return row.Entry()
}

// Set implements store.Store.
func (s *Store) Set(_ context.Context, key kv.Key, value kv.Value) (store.Commit, error) {
	if err := key.Validate(); err != nil {
		return store.Commit{}, err
	}
	data, err := store.EncodeValue(value)
	if err != nil {
		return store.Commit{}, err
	}
	var seq uint64
	err = s.update(func(b *bolt.Bucket) error {
		next, err := b.NextSequence()
		if err != nil {
			return err
		}
		seq = next
		buf := make([]byte, seqLen+len(data))
		binary.BigEndian.PutUint64(buf, next)
		copy(buf[seqLen:], data)
		return b.Put(key.Pack(), buf)
	})
	if err != nil {
		return store.Commit{}, err
	}
	return store.Commit{Versionstamp: store.FormatVersionstamp(seq)}, nil
}

// List implements store.Store.
func (s *Store) List(ctx context.Context, sel store.Selector, opts store.ListOptions) iter.Seq2[kv.Entry, error] {
	return store.Paginate(ctx, sel, opts, s.fetch)
}

func (s *Store) fetch(_ context.Context, lo, hi []byte, reverse bool, limit int) ([]store.Row, error) {
	var rows []store.Row
	err := s.view(func(b *bolt.Bucket) error {
		c := b.Cursor()
		if !reverse {
			for k, v := c.Seek(lo); k != nil && bytes.Compare(k, hi) < 0 && len(rows) < limit; k, v = c.Next() {
				rows = append(rows, decodeRow(k, v))
			}
			return nil
		}
		k, v := c.Seek(hi)
		if k == nil {
			k, v = c.Last()
		} else {
			k, v = c.Prev()
		}
		for ; k != nil && bytes.Compare(k, lo) >= 0 && len(rows) < limit; k, v = c.Prev() {
			if bytes.Compare(k, hi) < 0 {
				rows = append(rows, decodeRow(k, v))
			}
		}
		return nil
	})
	return rows, err
}

// decodeRow copies a bucket pair out of the transaction.
func decodeRow(k, v []byte) store.Row {
	return store.Row{
		Key:   bytes.Clone(k),
		Value: bytes.Clone(v[seqLen:]),
		Seq:   binary.BigEndian.Uint64(v[:seqLen]),
	}
}

func (s *Store) view(fn func(*bolt.Bucket) error) error {
	err := s.db.View(func(tx *bolt.Tx) error { return fn(tx.Bucket(bucketName)) })
	return mapErr(err)
}

func (s *Store) update(fn func(*bolt.Bucket) error) error {
	err := s.db.Update(func(tx *bolt.Tx) error { return fn(tx.Bucket(bucketName)) })
	return mapErr(err)
}

func mapErr(err error) error {
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return store.ErrClosed
	}
	return err
}

// Close implements store.Store.
func (s *Store) Close() error {
	err := s.db.Close()
	if errors.Is(err, bolt.ErrDatabaseNotOpen) {
		return nil
	}
	return err
}
