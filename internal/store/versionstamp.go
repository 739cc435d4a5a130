package store

import (
	"fmt"
	"strconv"
)

// VersionstampLen is the length of a versionstamp string.
const VersionstampLen = 20

// FormatVersionstamp renders a commit sequence number as 20 hex digits: the
// 8-byte sequence followed by a 2-byte batch index that is always zero.
func FormatVersionstamp(seq uint64) string {
	return fmt.Sprintf("%016x0000", seq)
}

// ParseVersionstamp returns the sequence number of a versionstamp.
func ParseVersionstamp(vs string) (uint64, error) {
	if len(vs) != VersionstampLen {
		return 0, fmt.Errorf("versionstamp %q: want %d hex digits", vs, VersionstampLen)
	}
	seq, err := strconv.ParseUint(vs[:16], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("versionstamp %q: %w", vs, err)
	}
	if _, err := strconv.ParseUint(vs[16:], 16, 16); err != nil {
		return 0, fmt.Errorf("versionstamp %q: %w", vs, err)
	}
	return seq, nil
}
