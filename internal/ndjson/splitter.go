package ndjson

import (
	"bytes"
	"iter"
)

// Splitter reassembles lines from chunks of a byte stream.
//
// A line ends at "\n" or "\r\n". A lone "\r" is ordinary data. Empty lines
// are dropped. The zero value is ready to use.
type Splitter struct {
	buf  []byte
	pos  int
	done bool
}

// Submit appends chunk to the carry buffer and returns the complete lines
// it now holds, without terminators. Lines are produced as the sequence is
// ranged over; lines not consumed stay buffered for the next Submit or
// Finish.
//
// Yielded slices alias the carry buffer and are only valid until the next
// call to Submit or Finish.
func (s *Splitter) Submit(chunk []byte) iter.Seq[[]byte] {
	if !s.done {
		s.buf = append(s.buf, chunk...)
	}
	return func(yield func([]byte) bool) {
		defer s.compact()
		for !s.done {
			i := bytes.IndexByte(s.buf[s.pos:], '\n')
			if i < 0 {
				return
			}
			line := trimCR(s.buf[s.pos : s.pos+i])
			s.pos += i + 1
			if len(line) == 0 {
				continue
			}
			if !yield(line) {
				return
			}
		}
	}
}

// Finish returns the lines still held by the splitter: first any complete
// lines a Submit consumer stopped short of, then the unterminated remainder
// as a final line. No yielded line contains a terminator. Once the sequence
// has been ranged to the end the splitter produces no more lines; stopping
// early leaves the rest for another Finish.
func (s *Splitter) Finish() iter.Seq[[]byte] {
	return func(yield func([]byte) bool) {
		for line := range s.Submit(nil) {
			if !yield(line) {
				return
			}
		}
		if s.done {
			return
		}
		s.done = true
		rest := trimCR(s.buf[s.pos:])
		s.buf, s.pos = nil, 0
		if len(rest) > 0 {
			yield(rest)
		}
	}
}

// Buffered returns the number of bytes held but not yet produced as lines.
func (s *Splitter) Buffered() int { return len(s.buf) - s.pos }

// compact drops consumed bytes. A leftover partial line moves to a fresh
// slice so lines already handed out are not overwritten.
func (s *Splitter) compact() {
	if s.pos == 0 {
		return
	}
	rest := s.buf[s.pos:]
	if len(rest) == 0 {
		s.buf = s.buf[:0]
	} else {
		s.buf = append(make([]byte, 0, max(len(rest)*2, 512)), rest...)
	}
	s.pos = 0
}

func trimCR(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\r' {
		return b[:n-1]
	}
	return b
}
