// Package memory is an in-process Store kept in a sorted slice. It backs
// tests and one-off CLI runs that do not need persistence.
package memory

import (
	"bytes"
	"context"
	"iter"
	"slices"
	"sync"

	"github.com/denoland/kv-utils/internal/kv"
	"github.com/denoland/kv-utils/internal/store"
)

func init() {
	store.Register("memory", func(context.Context, store.Config) (store.Store, error) {
		return New(), nil
	})
}

// Store is an in-memory store.Store. It is safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	rows   []store.Row // sorted by packed key
	seq    uint64
	closed bool
}

// New returns an empty store.
func New() *Store {
	return &Store{}
}

func (s *Store) find(packed []byte) (int, bool) {
	return slices.BinarySearchFunc(s.rows, packed, func(r store.Row, k []byte) int {
		return bytes.Compare(r.Key, k)
	})
}

// Get implements store.Store.
func (s *Store) Get(_ context.Context, key kv.Key) (kv.Entry, error) {
	if err := key.Validate(); err != nil {
		return kv.Entry{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return kv.Entry{}, store.ErrClosed
	}
	i, ok := s.find(key.Pack())
	if !ok {
		return store.Missing(key), nil
	}
	return s.rows[i].Entry()
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
	packed := key.Pack()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return store.Commit{}, store.ErrClosed
	}
	s.seq++
	row := store.Row{Key: packed, Value: data, Seq: s.seq}
	if i, ok := s.find(packed); ok {
		s.rows[i] = row
	} else {
		s.rows = slices.Insert(s.rows, i, row)
	}
	return store.Commit{Versionstamp: store.FormatVersionstamp(s.seq)}, nil
}

// List implements store.Store.
func (s *Store) List(ctx context.Context, sel store.Selector, opts store.ListOptions) iter.Seq2[kv.Entry, error] {
	return store.Paginate(ctx, sel, opts, s.fetch)
}

func (s *Store) fetch(_ context.Context, lo, hi []byte, reverse bool, limit int) ([]store.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	start, _ := s.find(lo)
	end, _ := s.find(hi)
	page := s.rows[start:end]
	if len(page) > limit {
		if reverse {
			page = page[len(page)-limit:]
		} else {
			page = page[:limit]
		}
	}
	out := slices.Clone(page)
	if reverse {
		slices.Reverse(out)
	}
	return out, nil
}

// Len returns the number of stored entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rows)
}

// Close implements store.Store.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.rows = nil
	return nil
}

// Closed reports whether Close has been called.
func (s *Store) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}
