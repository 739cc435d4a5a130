package store

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/denoland/kv-utils/internal/kv"
)

// Selector chooses a range of keys for List.
//
// With only Prefix set (or nothing at all) it selects every key that
// strictly extends Prefix. Start or End narrow a prefix selection; Start is
// inclusive and End exclusive. Start and End together without a Prefix
// select that half-open range directly.
type Selector struct {
	Prefix kv.Key
	Start  kv.Key
	End    kv.Key
}

// PrefixSelector selects the keys under prefix.
func PrefixSelector(prefix kv.Key) Selector { return Selector{Prefix: prefix} }

// Range returns the packed byte range [lo, hi) covered by the selector.
func (s Selector) Range() (lo, hi []byte, err error) {
	if s.Start != nil && s.End != nil && len(s.Prefix) > 0 {
		return nil, nil, fmt.Errorf("%w: prefix, start and end cannot all be set", ErrInvalidSelector)
	}
	for _, k := range []kv.Key{s.Prefix, s.Start, s.End} {
		if err := k.Validate(); err != nil {
			return nil, nil, fmt.Errorf("%w: %v", ErrInvalidSelector, err)
		}
	}
	for _, bound := range []kv.Key{s.Start, s.End} {
		if bound != nil && !bound.HasPrefix(s.Prefix) {
			return nil, nil, fmt.Errorf("%w: %s is outside prefix %s", ErrInvalidSelector, bound, s.Prefix)
		}
	}

	prefix := s.Prefix.Pack()
	if s.Start != nil {
		lo = s.Start.Pack()
	} else {
		lo = append(prefix, 0x00)
	}
	if s.End != nil {
		hi = s.End.Pack()
	} else {
		hi = append(bytes.Clone(prefix), 0xff)
	}
	if bytes.Compare(lo, hi) > 0 {
		return nil, nil, fmt.Errorf("%w: start %x is after end %x", ErrInvalidSelector, lo, hi)
	}
	return lo, hi, nil
}

// EncodeCursor returns the cursor naming the entry with key.
func EncodeCursor(key kv.Key) string {
	return base64.RawURLEncoding.EncodeToString(key.Pack())
}

// DecodeCursor returns the packed key named by a cursor.
func DecodeCursor(cursor string) ([]byte, error) {
	packed, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	if _, err := kv.Unpack(packed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCursor, err)
	}
	return packed, nil
}

// Bounds resolves a selector and the cursor in opts to the packed range a
// backend should scan.
func Bounds(sel Selector, opts ListOptions) (lo, hi []byte, err error) {
	lo, hi, err = sel.Range()
	if err != nil || opts.Cursor == "" {
		return lo, hi, err
	}
	cur, err := DecodeCursor(opts.Cursor)
	if err != nil {
		return nil, nil, err
	}
	if bytes.Compare(cur, lo) < 0 || bytes.Compare(cur, hi) >= 0 {
		return nil, nil, fmt.Errorf("%w: cursor is outside the selected range", ErrInvalidCursor)
	}
	if opts.Reverse {
		return lo, cur, nil
	}
	return after(cur), hi, nil
}

// after returns the smallest packed key greater than k.
func after(k []byte) []byte {
	return append(bytes.Clone(k), 0x00)
}
