package web

import (
	"fmt"
	"net/http"

	"github.com/denoland/kv-utils/internal/core"
	"github.com/denoland/kv-utils/internal/kv"
	"github.com/denoland/kv-utils/internal/logging"
)

// handleHealth reports liveness and import slot usage.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]any{
		"status":  "ok",
		"imports": s.service.LimiterStatus(),
	})
}

// handleExport streams the selected entries as NDJSON.
//
// Query: prefix, start, end (JSON keys), limit, reverse, cursor, batch,
// filename.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	sel, err := parseSelector(r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	listOpts, err := parseListOptions(r, s.cfg.Export.BatchSize, s.cfg.Export.MaxLimit)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	opts := core.ExportOptions{
		ListOptions: listOpts,
		Format:      core.FormatResponse,
		Filename:    r.URL.Query().Get("filename"),
	}

	tw := &trackingWriter{ResponseWriter: w}
	n, err := core.ServeExport(tw, r, s.store, sel, opts)
	if err != nil {
		if !tw.wrote {
			s.respondError(w, r, err, 0)
			return
		}
		// The status is already sent; the client sees a truncated body.
		logging.FromContext(r.Context()).Error("export interrupted", "lines", n, "error", err)
		return
	}
	logging.FromContext(r.Context()).Debug("export complete", "lines", n)
}

// handleGetEntry returns the entry at ?key= as one JSON line.
func (s *Server) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	key, err := parseKeyParam(r, "key")
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if key == nil {
		s.respondError(w, r, fmt.Errorf("%w key: required", errBadParameter), 0)
		return
	}

	entry, err := s.store.Get(r.Context(), key)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if !entry.Exists() {
		s.respondError(w, r, core.ErrEntryNotFound, 0)
		return
	}

	line, err := kv.EncodeEntry(entry)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(append(line, '\n')); err != nil {
		logging.FromContext(r.Context()).Warn("write entry response", "error", err)
	}
}

// trackingWriter records whether anything was sent to the client.
type trackingWriter struct {
	http.ResponseWriter
	wrote bool
}

func (w *trackingWriter) WriteHeader(status int) {
	w.wrote = true
	w.ResponseWriter.WriteHeader(status)
}

func (w *trackingWriter) Write(b []byte) (int, error) {
	w.wrote = true
	return w.ResponseWriter.Write(b)
}

func (w *trackingWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
