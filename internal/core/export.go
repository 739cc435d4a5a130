package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"strings"

	"github.com/denoland/kv-utils/internal/kv"
	"github.com/denoland/kv-utils/internal/ndjson"
	"github.com/denoland/kv-utils/internal/store"
)

// ExportEntries returns the entries selected by sel as NDJSON lines, each
// ending in "\n", in store order.
//
// The sequence pulls from the store only as lines are consumed. A store or
// encoding failure ends it with a single error element; lines already
// yielded are complete. When the listing is exhausted and opts.Close is
// set, the store is closed.
func ExportEntries(ctx context.Context, st store.Store, sel store.Selector, opts ExportOptions) iter.Seq2[[]byte, error] {
	return func(yield func([]byte, error) bool) {
		for entry, err := range st.List(ctx, sel, opts.ListOptions) {
			if err != nil {
				yield(nil, fmt.Errorf("export: %w", err))
				return
			}
			line, err := kv.EncodeEntry(entry)
			if err != nil {
				yield(nil, fmt.Errorf("export: %w", err))
				return
			}
			if !yield(append(line, '\n'), nil) {
				return
			}
		}
		if opts.Close {
			if err := st.Close(); err != nil {
				yield(nil, fmt.Errorf("export: close store: %w", err))
			}
		}
	}
}

// ExportStrings is ExportEntries with text lines.
func ExportStrings(ctx context.Context, st store.Store, sel store.Selector, opts ExportOptions) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for line, err := range ExportEntries(ctx, st, sel, opts) {
			if !yield(string(line), err) {
				return
			}
		}
	}
}

// WriteEntries writes the export to w and returns the number of lines
// written.
func WriteEntries(ctx context.Context, w io.Writer, st store.Store, sel store.Selector, opts ExportOptions) (int, error) {
	var n int
	for line, err := range ExportEntries(ctx, st, sel, opts) {
		if err != nil {
			return n, err
		}
		if _, err := w.Write(line); err != nil {
			return n, fmt.Errorf("export: write: %w", err)
		}
		n++
	}
	return n, nil
}

// ServeExport streams the export as an NDJSON HTTP response, flushing after
// every line. Headers are sent with the first line, so an error before any
// line is returned with nothing written and the caller can still respond
// with an error status. A later error truncates the body.
func ServeExport(w http.ResponseWriter, r *http.Request, st store.Store, sel store.Selector, opts ExportOptions) (int, error) {
	rc := http.NewResponseController(w)
	started := false
	start := func() {
		started = true
		h := w.Header()
		h.Set("Content-Type", ndjson.MediaType)
		h.Set("X-Content-Type-Options", "nosniff")
		if opts.Filename != "" {
			h.Set("Content-Disposition", ContentDisposition(opts.Filename))
		}
		w.WriteHeader(http.StatusOK)
	}

	var n int
	for line, err := range ExportEntries(r.Context(), st, sel, opts) {
		if err != nil {
			return n, err
		}
		if !started {
			start()
		}
		if _, err := w.Write(line); err != nil {
			return n, fmt.Errorf("export: write response: %w", err)
		}
		n++
		if err := rc.Flush(); err != nil && !errors.Is(err, http.ErrNotSupported) {
			return n, fmt.Errorf("export: flush response: %w", err)
		}
	}
	if !started {
		start()
	}
	return n, nil
}

// ContentDisposition returns the attachment header suggesting
// "<name>.ndjson" as the download name.
func ContentDisposition(name string) string {
	name = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f || r == '"' || r == '\\' || r == '/' {
			return '_'
		}
		return r
	}, name)
	return `attachment; filename="` + name + ndjson.FileExtension + `"`
}
