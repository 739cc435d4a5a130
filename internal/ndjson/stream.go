package ndjson

// stream.go holds io.Reader adapters applied before framing:
//
//   - BOMReader drops a leading UTF-8 byte order mark
//   - CountingReader tracks bytes read for progress reporting

import (
	"bytes"
	"io"
	"sync/atomic"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// BOMReader wraps an io.Reader and skips a UTF-8 BOM at the start of the
// stream. Files saved by some Windows editors begin with one.
type BOMReader struct {
	r       io.Reader
	checked bool
	head    []byte
	err     error
}

// NewBOMReader returns a BOMReader reading from r.
func NewBOMReader(r io.Reader) *BOMReader {
	return &BOMReader{r: r}
}

// Read implements io.Reader.
func (b *BOMReader) Read(p []byte) (int, error) {
	if !b.checked {
		b.checked = true
		var head [3]byte
		n, err := io.ReadFull(b.r, head[:])
		if !bytes.Equal(head[:n], utf8BOM) {
			b.head = append([]byte(nil), head[:n]...)
		}
		if err == io.ErrUnexpectedEOF {
			err = io.EOF
		}
		b.err = err
	}
	if len(b.head) > 0 {
		n := copy(p, b.head)
		b.head = b.head[n:]
		return n, nil
	}
	if b.err != nil {
		return 0, b.err
	}
	return b.r.Read(p)
}

// CountingReader wraps an io.Reader to track bytes read. The count may be
// read from another goroutine while the stream is consumed.
type CountingReader struct {
	r     io.Reader
	n     atomic.Int64
	total int64
}

// NewCountingReader returns a counting reader. total is the expected size,
// or 0 when unknown.
func NewCountingReader(r io.Reader, total int64) *CountingReader {
	return &CountingReader{r: r, total: total}
}

// Read implements io.Reader.
func (c *CountingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n.Add(int64(n))
	return n, err
}

// BytesRead returns the number of bytes read so far.
func (c *CountingReader) BytesRead() int64 { return c.n.Load() }

// Total returns the expected size, 0 if unknown.
func (c *CountingReader) Total() int64 { return c.total }

// Progress returns the read progress as a percentage (0-100).
// Returns 0 if total is unknown.
func (c *CountingReader) Progress() int {
	if c.total <= 0 {
		return 0
	}
	return int(min(c.n.Load()*100/c.total, 100))
}
