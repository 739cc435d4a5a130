package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"strconv"

	"github.com/denoland/kv-utils/internal/core"
	"github.com/denoland/kv-utils/internal/logging"
	"github.com/denoland/kv-utils/internal/ndjson"
	"github.com/denoland/kv-utils/internal/web/middleware"
	"github.com/go-chi/chi/v5"
)

// importResponse is returned by a synchronous import.
type importResponse struct {
	Result core.ImportResult `json:"result"`
	Error  *ErrorResponse    `json:"error,omitempty"`
}

// handleImport imports an NDJSON body or the "file" field of a multipart
// form.
//
// Query: overwrite, throw, prefix (JSON key), wait. By default the upload is
// buffered to disk and imported in the background; the response carries the
// import ID for the progress and result endpoints. With wait=true the body
// is imported while it is read and the counters are returned directly.
func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Import.MaxBodySize)

	var req core.ImportRequest
	var err error
	if req.Overwrite, err = parseBoolParam(r, "overwrite"); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if req.ThrowOnError, err = parseBoolParam(r, "throw"); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	if req.Prefix, err = parseKeyParam(r, "prefix"); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	wait, err := parseBoolParam(r, "wait")
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	src, name, err := importSource(r)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	req.Source = name

	if wait {
		s.importNow(w, r, src, req)
		return
	}

	body, size, err := s.spool(src)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	req.Size = size

	ctx := core.ContextWithClientIP(r.Context(), middleware.ClientIP(r))
	id, err := s.service.StartImport(ctx, body, req)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	writeJSON(w, r, http.StatusAccepted, map[string]any{
		"import_id": id,
		"bytes":     size,
	})
}

// importNow runs the import within the request.
func (s *Server) importNow(w http.ResponseWriter, r *http.Request, src io.Reader, req core.ImportRequest) {
	logger := logging.WithFields(r.Context(), "source", req.Source, "ip", middleware.ClientIP(r))
	res, err := core.ImportEntries(r.Context(), s.store, src, core.ImportOptions{
		Overwrite:    req.Overwrite,
		Prefix:       req.Prefix,
		ThrowOnError: req.ThrowOnError,
		BufferSize:   s.cfg.Import.ReadBufferSize,
		Logger:       logger,
	})

	var importErr *core.ImportError
	switch {
	case errors.As(err, &importErr):
		msg := core.MapError(importErr)
		writeJSON(w, r, http.StatusUnprocessableEntity, importResponse{
			Result: res,
			Error:  &ErrorResponse{Error: err.Error(), Message: msg.Message, Action: msg.Action, Code: msg.Code},
		})
	case err != nil:
		s.respondError(w, r, err, 0)
	default:
		logger.Info("import complete", "count", res.Count, "skipped", res.Skipped, "errors", res.Errors)
		writeJSON(w, r, http.StatusOK, importResponse{Result: res})
	}
}

// importSource returns the NDJSON stream of the request and its file name,
// if the client sent one.
func importSource(r *http.Request) (io.Reader, string, error) {
	ct := r.Header.Get("Content-Type")
	if ct == "" || ndjson.IsMediaType(ct) {
		return r.Body, r.URL.Query().Get("filename"), nil
	}

	mediaType, _, err := mime.ParseMediaType(ct)
	if err != nil || mediaType != "multipart/form-data" {
		return nil, "", fmt.Errorf("%w: %s", errUnsupportedMediaType, ct)
	}
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", errBadParameter, err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, "", errNoFile
		}
		if err != nil {
			return nil, "", fmt.Errorf("read multipart form: %w", err)
		}
		if part.FormName() == "file" {
			return part, part.FileName(), nil
		}
		part.Close()
	}
}

// spoolFile is an upload buffered on disk. Close removes it.
type spoolFile struct {
	*os.File
}

func (f *spoolFile) Close() error {
	err := f.File.Close()
	if rmErr := os.Remove(f.Name()); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
		err = rmErr
	}
	return err
}

// spool copies src to a temporary file so the import can outlive the
// request.
func (s *Server) spool(src io.Reader) (*spoolFile, int64, error) {
	f, err := os.CreateTemp(s.cfg.Import.SpoolDir, "kv-import-*"+ndjson.FileExtension)
	if err != nil {
		return nil, 0, fmt.Errorf("spool upload: %w", err)
	}
	sf := &spoolFile{File: f}
	n, err := io.Copy(f, src)
	if err == nil {
		_, err = f.Seek(0, io.SeekStart)
	}
	if err != nil {
		sf.Close()
		return nil, 0, fmt.Errorf("spool upload: %w", err)
	}
	return sf, n, nil
}

// handleImportProgress streams import progress via Server-Sent Events.
// Event IDs are line counts; a reconnecting client passes the last one as
// lastEventId (or the Last-Event-ID header) to skip updates it has seen.
func (s *Server) handleImportProgress(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	lastEventID := -1
	raw := r.URL.Query().Get("lastEventId")
	if raw == "" {
		raw = r.Header.Get("Last-Event-ID")
	}
	if raw != "" {
		if v, err := strconv.Atoi(raw); err == nil {
			lastEventID = v
		}
	}

	progressCh, err := s.service.SubscribeProgress(importID)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)

	var last core.ImportProgress
	for {
		select {
		case progress, ok := <-progressCh:
			if !ok {
				data, _ := json.Marshal(last)
				fmt.Fprintf(w, "event: complete\ndata: %s\n\n", data)
				rc.Flush()
				return
			}
			last = progress

			if !progress.Done() && progress.Count <= lastEventID {
				continue
			}
			data, _ := json.Marshal(progress)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", progress.Count, data)
			rc.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

// handleCancelImport cancels a running import.
func (s *Server) handleCancelImport(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")
	if err := s.service.CancelImport(importID); err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "cancelling"})
}

// handleImportResult returns the final result of an import. It waits for
// the import to finish unless wait=false, in which case a running import
// answers 202 with its current progress.
func (s *Server) handleImportResult(w http.ResponseWriter, r *http.Request) {
	importID := chi.URLParam(r, "importID")

	if r.URL.Query().Get("wait") == "false" {
		p, err := s.service.GetImportProgress(importID)
		if err != nil {
			s.respondError(w, r, err, 0)
			return
		}
		if !p.Done() {
			writeJSON(w, r, http.StatusAccepted, p)
			return
		}
	}

	result, err := s.service.GetImportResult(r.Context(), importID)
	if err != nil {
		s.respondError(w, r, err, 0)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}
