package core

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"github.com/denoland/kv-utils/internal/kv"
	"github.com/denoland/kv-utils/internal/ndjson"
	"github.com/denoland/kv-utils/internal/store"
)

// ImportEntries reads NDJSON entries from r and writes them to st.
//
// Lines are processed one at a time. The context is checked before each
// line is read; once it is done the import stops with Aborted set and a nil
// error. Store calls for a line already in progress are not cancelled, so a
// line is never half applied.
//
// The returned error is non-nil only for a *StreamError, or for the
// *ImportError of the first bad line when opts.ThrowOnError is set. The
// result always holds the counters reached.
func ImportEntries(ctx context.Context, st store.Store, r io.Reader, opts ImportOptions) (ImportResult, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lines := ndjson.NewReaderSize(r, opts.BufferSize)
	storeCtx := context.WithoutCancel(ctx)

	var res ImportResult
	for {
		if ctx.Err() != nil {
			res.Aborted = true
			logger.Debug("import aborted", "count", res.Count, "error", context.Cause(ctx))
			return res, nil
		}

		line, err := lines.ReadLine()
		if err == io.EOF {
			return res, nil
		}
		var encErr *ndjson.EncodingError
		if err != nil && !errors.As(err, &encErr) {
			return res, &StreamError{Err: err, Count: res.Count}
		}
		res.Count++

		var raw string
		if encErr != nil {
			raw = string(encErr.Raw)
		} else {
			raw = line
			err = importLine(storeCtx, st, line, opts, &res)
		}

		if err != nil {
			res.Errors++
			importErr := &ImportError{
				Cause:   err,
				Count:   res.Count,
				Skipped: res.Skipped,
				Errors:  res.Errors,
				JSON:    raw,
			}
			logger.Debug("import line failed", "line", res.Count, "error", err)
			if opts.OnError != nil {
				opts.OnError(importErr)
			}
			if opts.ThrowOnError {
				return res, importErr
			}
		}

		if opts.OnProgress != nil {
			opts.OnProgress(res.Count, res.Skipped, res.Errors)
		}
	}
}

// importLine decodes and stores a single line. Skips are counted in res;
// failures are returned.
func importLine(ctx context.Context, st store.Store, line string, opts ImportOptions, res *ImportResult) error {
	entry, err := kv.DecodeEntry([]byte(line))
	if err != nil {
		return err
	}
	key := entry.Key
	if len(opts.Prefix) > 0 {
		key = key.WithPrefix(opts.Prefix)
	}

	if !opts.Overwrite {
		existing, err := st.Get(ctx, key)
		if err != nil {
			return err
		}
		if existing.Exists() {
			res.Skipped++
			return nil
		}
	}

	_, err = st.Set(ctx, key, entry.Value)
	return err
}

// ImportBytes imports entries from an in-memory buffer.
func ImportBytes(ctx context.Context, st store.Store, data []byte, opts ImportOptions) (ImportResult, error) {
	return ImportEntries(ctx, st, bytes.NewReader(data), opts)
}

// ImportString imports entries from text.
func ImportString(ctx context.Context, st store.Store, text string, opts ImportOptions) (ImportResult, error) {
	return ImportEntries(ctx, st, strings.NewReader(text), opts)
}
