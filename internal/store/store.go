// Package store defines the key-value store the import and export pipelines
// run against, plus the pieces shared by every backend: selectors, packed
// key ranges, cursors, versionstamps and value size limits.
//
// Backends live in subpackages and register themselves with Register from
// an init function, so callers select one by driver name:
//
//	import _ "github.com/denoland/kv-utils/internal/store/bolt"
//
//	st, err := store.Open(ctx, store.Config{Driver: "bolt", Path: "data.db"})
package store

import (
	"context"
	"errors"
	"iter"

	"github.com/denoland/kv-utils/internal/kv"
)

// MaxValueSize is the largest encoded value Set accepts, in bytes.
const MaxValueSize = 64 * 1024

// DefaultBatchSize is the page size List uses when ListOptions.BatchSize
// is zero.
const DefaultBatchSize = 500

var (
	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("store is closed")

	// ErrValueTooLarge is returned by Set for values over MaxValueSize.
	ErrValueTooLarge = errors.New("value too large")

	// ErrInvalidSelector is returned by List for a selector that does not
	// describe a key range.
	ErrInvalidSelector = errors.New("invalid selector")

	// ErrInvalidCursor is returned by List for a cursor that cannot be
	// decoded or lies outside the selector.
	ErrInvalidCursor = errors.New("invalid cursor")
)

// Store is an ordered key-value store.
type Store interface {
	// Get returns the entry at key. A missing key is not an error: the
	// returned entry has an empty Versionstamp.
	Get(ctx context.Context, key kv.Key) (kv.Entry, error)

	// Set writes value at key, replacing any existing value.
	Set(ctx context.Context, key kv.Key, value kv.Value) (Commit, error)

	// List returns the entries selected by sel in key order. Entries are
	// fetched as the sequence is consumed. A failure ends the sequence
	// with a single non-nil error.
	List(ctx context.Context, sel Selector, opts ListOptions) iter.Seq2[kv.Entry, error]

	// Close releases the store. It is safe to call more than once.
	Close() error
}

// Commit describes a successful write.
type Commit struct {
	Versionstamp string
}

// ListOptions controls a List call.
type ListOptions struct {
	Limit     int    // maximum entries returned, 0 for no limit
	Reverse   bool   // descending key order
	Cursor    string // resume after the entry this cursor names
	BatchSize int    // entries fetched per backend round trip
}

func (o ListOptions) batchSize() int {
	if o.BatchSize <= 0 {
		return DefaultBatchSize
	}
	return o.BatchSize
}
