package core

import (
	"errors"
	"fmt"
)

// ImportError reports a single line that could not be imported, together
// with the counters at the time it failed. It does not stop an import
// unless ImportOptions.ThrowOnError is set.
type ImportError struct {
	Cause   error
	Count   int    // lines read, including this one
	Skipped int    // lines skipped so far
	Errors  int    // failed lines so far, including this one
	JSON    string // the raw line, if it could be read
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("import line %d: %v", e.Count, e.Cause)
}

func (e *ImportError) Unwrap() error { return e.Cause }

// StreamError reports a failure of the byte source. It always ends the
// import.
type StreamError struct {
	Err   error
	Count int // lines read before the failure
}

func (e *StreamError) Error() string {
	return fmt.Sprintf("read import source after %d lines: %v", e.Count, e.Err)
}

func (e *StreamError) Unwrap() error { return e.Err }

// IsFatal reports whether err ends an import rather than a single line.
func IsFatal(err error) bool {
	var streamErr *StreamError
	return errors.As(err, &streamErr)
}

// ErrEntryNotFound reports a lookup of a key that holds no entry.
var ErrEntryNotFound = errors.New("entry not found")
