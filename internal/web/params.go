package web

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/denoland/kv-utils/internal/kv"
	"github.com/denoland/kv-utils/internal/store"
)

var (
	errBadParameter         = errors.New("invalid parameter")
	errNoFile               = errors.New("no file provided")
	errUnsupportedMediaType = errors.New("unsupported media type")
)

// parseKeyParam reads a key given as its JSON wire form, e.g.
// [{"type":"string","value":"users"}]. A missing parameter is a nil key.
func parseKeyParam(r *http.Request, name string) (kv.Key, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	key, err := kv.ParseKey([]byte(raw))
	if err != nil {
		return nil, fmt.Errorf("%w %s: %v", errBadParameter, name, err)
	}
	return key, nil
}

func parseIntParam(r *http.Request, name string, defaultVal int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return defaultVal, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w %s: %q is not a non-negative integer", errBadParameter, name, raw)
	}
	return v, nil
}

func parseBoolParam(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w %s: %q is not a boolean", errBadParameter, name, raw)
	}
	return v, nil
}

// parseSelector reads prefix, start and end. Range checks are left to the
// store so the HTTP and CLI paths reject the same selectors.
func parseSelector(r *http.Request) (store.Selector, error) {
	var sel store.Selector
	var err error
	if sel.Prefix, err = parseKeyParam(r, "prefix"); err != nil {
		return sel, err
	}
	if sel.Start, err = parseKeyParam(r, "start"); err != nil {
		return sel, err
	}
	if sel.End, err = parseKeyParam(r, "end"); err != nil {
		return sel, err
	}
	return sel, nil
}

// parseListOptions reads limit, reverse, cursor and batch, capping limit at
// maxLimit when it is positive.
func parseListOptions(r *http.Request, defaultBatch, maxLimit int) (store.ListOptions, error) {
	var opts store.ListOptions
	var err error
	if opts.Limit, err = parseIntParam(r, "limit", 0); err != nil {
		return opts, err
	}
	if maxLimit > 0 && (opts.Limit == 0 || opts.Limit > maxLimit) {
		opts.Limit = maxLimit
	}
	if opts.Reverse, err = parseBoolParam(r, "reverse"); err != nil {
		return opts, err
	}
	if opts.BatchSize, err = parseIntParam(r, "batch", defaultBatch); err != nil {
		return opts, err
	}
	opts.Cursor = r.URL.Query().Get("cursor")
	return opts, nil
}
