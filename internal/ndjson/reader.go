package ndjson

import (
	"bytes"
	"fmt"
	"io"
	"unicode/utf8"
)

// DefaultBufferSize is the read size used by NewReader.
const DefaultBufferSize = 64 * 1024

// EncodingError reports a line that is not valid UTF-8. It only affects
// that line; the Reader can keep going.
type EncodingError struct {
	Line   int    // 1-based line number among non-empty lines
	Offset int    // byte offset of the first invalid sequence
	Raw    []byte // the undecoded line
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("line %d: invalid UTF-8 at byte %d", e.Line, e.Offset)
}

type lineResult struct {
	text string
	err  error
}

// Reader reads UTF-8 lines from a byte stream.
type Reader struct {
	src   io.Reader
	split Splitter
	buf   []byte
	queue []lineResult
	head  int
	lines int
	eof   bool
	err   error
}

// NewReader returns a Reader over r with the default buffer size. A leading
// UTF-8 byte order mark is dropped.
func NewReader(r io.Reader) *Reader {
	return NewReaderSize(r, DefaultBufferSize)
}

// NewReaderSize is like NewReader but reads size bytes at a time.
func NewReaderSize(r io.Reader, size int) *Reader {
	if size <= 0 {
		size = DefaultBufferSize
	}
	return &Reader{
		src: NewBOMReader(r),
		buf: make([]byte, size),
	}
}

// ReadLine returns the next non-empty line without its terminator.
//
// It returns io.EOF once the input is exhausted and an *EncodingError for a
// line that is not valid UTF-8. Any other error comes from the underlying
// reader, after every line completed before the failure has been returned.
func (r *Reader) ReadLine() (string, error) {
	for {
		if r.head < len(r.queue) {
			next := r.queue[r.head]
			r.queue[r.head] = lineResult{}
			r.head++
			return next.text, next.err
		}
		r.queue, r.head = r.queue[:0], 0

		switch {
		case r.eof:
			return "", io.EOF
		case r.err != nil:
			return "", r.err
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			for line := range r.split.Submit(r.buf[:n]) {
				r.push(line)
			}
		}
		switch {
		case err == io.EOF:
			r.eof = true
			for line := range r.split.Finish() {
				r.push(line)
			}
		case err != nil:
			r.err = err
		}
	}
}

// Lines returns how many lines have been framed so far, including lines
// that failed UTF-8 validation.
func (r *Reader) Lines() int { return r.lines }

func (r *Reader) push(line []byte) {
	r.lines++
	if utf8.Valid(line) {
		r.queue = append(r.queue, lineResult{text: string(line)})
		return
	}
	r.queue = append(r.queue, lineResult{err: &EncodingError{
		Line:   r.lines,
		Offset: invalidOffset(line),
		Raw:    bytes.Clone(line),
	}})
}

func invalidOffset(b []byte) int {
	for i := 0; i < len(b); {
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return len(b)
}
