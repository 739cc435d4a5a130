package store

import (
	"bytes"
	"context"
	"fmt"
	"iter"

	"github.com/denoland/kv-utils/internal/kv"
)

// Row is an entry in the form backends persist it.
type Row struct {
	Key   []byte // packed key
	Value []byte // JSON encoded value
	Seq   uint64 // commit sequence
}

// Entry decodes the row.
func (r Row) Entry() (kv.Entry, error) {
	key, err := kv.Unpack(r.Key)
	if err != nil {
		return kv.Entry{}, fmt.Errorf("stored key %x: %w", r.Key, err)
	}
	value, err := DecodeValue(r.Value)
	if err != nil {
		return kv.Entry{}, fmt.Errorf("stored value at %s: %w", key, err)
	}
	return kv.Entry{Key: key, Value: value, Versionstamp: FormatVersionstamp(r.Seq)}, nil
}

// Missing returns the entry Get reports for an absent key.
func Missing(key kv.Key) kv.Entry {
	return kv.Entry{Key: key, Value: kv.NullValue()}
}

// EncodeValue returns the stored form of v, enforcing MaxValueSize.
func EncodeValue(v kv.Value) ([]byte, error) {
	data, err := v.MarshalJSON()
	if err != nil {
		return nil, err
	}
	if len(data) > MaxValueSize {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", ErrValueTooLarge, len(data), MaxValueSize)
	}
	return data, nil
}

// DecodeValue parses a value produced by EncodeValue.
func DecodeValue(data []byte) (kv.Value, error) {
	var v kv.Value
	if err := v.UnmarshalJSON(data); err != nil {
		return kv.Value{}, err
	}
	return v, nil
}

// FetchFunc reads up to limit rows with keys in [lo, hi), ascending or
// descending by key.
type FetchFunc func(ctx context.Context, lo, hi []byte, reverse bool, limit int) ([]Row, error)

// Paginate implements Store.List on top of a page fetcher. A page is only
// fetched once every entry of the previous one has been consumed.
func Paginate(ctx context.Context, sel Selector, opts ListOptions, fetch FetchFunc) iter.Seq2[kv.Entry, error] {
	return func(yield func(kv.Entry, error) bool) {
		lo, hi, err := Bounds(sel, opts)
		if err != nil {
			yield(kv.Entry{}, err)
			return
		}
		remaining := opts.Limit
		batch := opts.batchSize()
		for bytes.Compare(lo, hi) < 0 {
			if err := ctx.Err(); err != nil {
				yield(kv.Entry{}, err)
				return
			}
			n := batch
			if opts.Limit > 0 {
				n = min(n, remaining)
			}
			rows, err := fetch(ctx, lo, hi, opts.Reverse, n)
			if err != nil {
				yield(kv.Entry{}, err)
				return
			}
			for _, row := range rows {
				entry, err := row.Entry()
				if !yield(entry, err) || err != nil {
					return
				}
			}
			if opts.Limit > 0 {
				remaining -= len(rows)
				if remaining <= 0 {
					return
				}
			}
			if len(rows) < n {
				return
			}
			last := rows[len(rows)-1].Key
			if opts.Reverse {
				hi = last
			} else {
				lo = after(last)
			}
		}
	}
}
