package core

import (
	"log/slog"
	"time"

	"github.com/denoland/kv-utils/internal/kv"
	"github.com/denoland/kv-utils/internal/store"
)

// ImportOptions controls ImportEntries. The zero value skips existing keys
// and continues past bad lines.
type ImportOptions struct {
	// Overwrite writes every entry, even when the key already holds a value.
	Overwrite bool

	// Prefix is prepended to every imported key.
	Prefix kv.Key

	// ThrowOnError stops at the first bad line and returns its *ImportError.
	ThrowOnError bool

	// OnError is called for every line that fails to decode or write.
	OnError func(*ImportError)

	// OnProgress is called after every line with the running counters.
	OnProgress func(count, skipped, errors int)

	// BufferSize is the read size used on the source. Zero means
	// ndjson.DefaultBufferSize.
	BufferSize int

	// Logger receives debug output. Nil means slog.Default().
	Logger *slog.Logger
}

// ImportResult holds the counters of a finished import.
//
// Count is the number of lines read. Every line is either written, skipped
// or counted in Errors, so Count - Skipped - Errors entries were written.
type ImportResult struct {
	Count   int  `json:"count"`
	Skipped int  `json:"skipped"`
	Errors  int  `json:"errors"`
	Aborted bool `json:"aborted,omitempty"`
}

// Written returns the number of entries stored by the import.
func (r ImportResult) Written() int { return r.Count - r.Skipped - r.Errors }

// ExportFormat names how an export is delivered.
type ExportFormat string

const (
	FormatBytes    ExportFormat = "bytes"
	FormatString   ExportFormat = "string"
	FormatResponse ExportFormat = "response"
)

// ParseExportFormat validates a format name. An empty name means FormatBytes.
func ParseExportFormat(s string) (ExportFormat, bool) {
	switch ExportFormat(s) {
	case "", FormatBytes:
		return FormatBytes, true
	case FormatString, FormatResponse:
		return ExportFormat(s), true
	}
	return "", false
}

// ExportOptions controls an export. ListOptions are passed to the store
// unchanged.
type ExportOptions struct {
	store.ListOptions

	// Close closes the store once every entry has been exported.
	Close bool

	// Format is informational for callers that pick a delivery mode.
	Format ExportFormat

	// Filename, when set, makes ServeExport suggest "<Filename>.ndjson" as
	// the download name.
	Filename string
}

// ImportPhase indicates the current stage of an async import.
type ImportPhase string

const (
	PhaseStarting  ImportPhase = "starting"
	PhaseImporting ImportPhase = "importing"
	PhaseComplete  ImportPhase = "complete"
	PhaseFailed    ImportPhase = "failed"
	PhaseCancelled ImportPhase = "cancelled"
)

// ImportProgress represents the current state of an async import.
type ImportProgress struct {
	ImportID   string      `json:"import_id"`
	Source     string      `json:"source,omitempty"`
	Phase      ImportPhase `json:"phase"`
	Count      int         `json:"count"`
	Skipped    int         `json:"skipped"`
	Errors     int         `json:"errors"`
	BytesRead  int64       `json:"bytes_read"`
	BytesTotal int64       `json:"bytes_total"`
	Error      string      `json:"error,omitempty"` // Non-empty if Phase is PhaseFailed
}

// Percent returns the byte progress as a percentage (0-100). It is 0 while
// the total size is unknown and 100 once the import is complete.
func (p ImportProgress) Percent() int {
	if p.Phase == PhaseComplete {
		return 100
	}
	if p.BytesTotal <= 0 {
		return 0
	}
	return int(min(p.BytesRead*100/p.BytesTotal, 100))
}

// Done reports whether the import has stopped.
func (p ImportProgress) Done() bool {
	switch p.Phase {
	case PhaseComplete, PhaseFailed, PhaseCancelled:
		return true
	}
	return false
}

// FailedLine describes one line an async import could not apply.
type FailedLine struct {
	LineNumber int    `json:"line"`
	JSON       string `json:"json,omitempty"`
	Reason     string `json:"reason"`
	Code       string `json:"code"`
}

// ImportJobResult contains the final result of an async import.
type ImportJobResult struct {
	ImportID    string        `json:"import_id"`
	Source      string        `json:"source,omitempty"`
	Result      ImportResult  `json:"result"`
	FailedLines []FailedLine  `json:"failed_lines,omitempty"`
	Truncated   bool          `json:"failed_lines_truncated,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
	Error       string        `json:"error,omitempty"` // Non-empty if the import failed
}
