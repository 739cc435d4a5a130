package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/denoland/kv-utils/internal/kv"
	"github.com/denoland/kv-utils/internal/ndjson"
	"github.com/denoland/kv-utils/internal/store"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error returns empty",
			err:         nil,
			wantCode:    "",
			wantMessage: "",
		},
		{
			name:        "unknown type tag maps correctly",
			err:         fmt.Errorf("decode entry: %w: \"Symbol\"", kv.ErrUnknownType),
			wantCode:    "DEC001",
			wantMessage: "The line uses a type that is not supported",
		},
		{
			name:        "malformed payload maps correctly",
			err:         &kv.DecodeError{Err: fmt.Errorf("%w: bigint \"12x\"", kv.ErrMalformedPayload)},
			wantCode:    "DEC002",
			wantMessage: "A value does not match its declared type",
		},
		{
			name:        "encoding error maps correctly",
			err:         &ndjson.EncodingError{Line: 3, Offset: 7},
			wantCode:    "DEC003",
			wantMessage: "The line is not valid UTF-8",
		},
		{
			name:        "invalid json maps to decode entry",
			err:         errors.New("decode entry: unexpected end of JSON input"),
			wantCode:    "DEC004",
			wantMessage: "The line is not a valid entry",
		},
		{
			name:        "oversized bigint key part",
			err:         &kv.DecodeError{Err: fmt.Errorf("key part 0: %w: bigint of 300 bytes exceeds 255", kv.ErrKeyTooLarge)},
			wantCode:    "DEC005",
			wantMessage: "A key part is too large to store",
		},
		{
			name:        "closed store wrapped in import error",
			err:         &ImportError{Cause: store.ErrClosed, Count: 4},
			wantCode:    "STO001",
			wantMessage: "The store is no longer available",
		},
		{
			name:        "value too large maps correctly",
			err:         fmt.Errorf("%w: 70000 bytes exceeds 65536", store.ErrValueTooLarge),
			wantCode:    "STO002",
			wantMessage: "A value exceeds the store limit (64 KiB)",
		},
		{
			name:        "connection refused maps correctly",
			err:         errors.New("dial tcp: connection refused"),
			wantCode:    "STO005",
			wantMessage: "Unable to connect to the store",
		},
		{
			name:        "stream error maps correctly",
			err:         &StreamError{Err: io.ErrUnexpectedEOF, Count: 10},
			wantCode:    "IMP001",
			wantMessage: "The import source could not be read to the end",
		},
		{
			name:        "limiter error maps correctly",
			err:         ErrTooManyImports,
			wantCode:    "IMP002",
			wantMessage: "System is busy processing other imports",
		},
		{
			name:        "unknown import maps correctly",
			err:         fmt.Errorf("%w: abc", ErrImportNotFound),
			wantCode:    "IMP003",
			wantMessage: "Import not found",
		},
		{
			name:        "cancellation maps correctly",
			err:         context.Canceled,
			wantCode:    "IMP004",
			wantMessage: "The import was cancelled",
		},
		{
			name:        "rate limit maps correctly",
			err:         errors.New("rate limit exceeded"),
			wantCode:    "RATE001",
			wantMessage: "Too many requests",
		},
		{
			name:        "unknown error returns default",
			err:         errors.New("some random internal error"),
			wantCode:    "ERR000",
			wantMessage: "An unexpected error occurred",
		},
		{
			name:        "case insensitive matching",
			err:         errors.New("STORE IS CLOSED"),
			wantCode:    "STO001",
			wantMessage: "The store is no longer available",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapError(tt.err)
			if got.Code != tt.wantCode {
				t.Errorf("MapError() code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Message != tt.wantMessage {
				t.Errorf("MapError() message = %q, want %q", got.Message, tt.wantMessage)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	err := fmt.Errorf("%w: abc", ErrImportNotFound)
	result := FormatUserError(err)

	expected := "Import not found (Code: IMP003). Results are kept for a few minutes. Start a new import"
	if result != expected {
		t.Errorf("FormatUserError() = %q, want %q", result, expected)
	}
}

func TestIsUserFacing(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "nil error is not user facing",
			err:  nil,
			want: false,
		},
		{
			name: "known error is user facing",
			err:  store.ErrInvalidCursor,
			want: true,
		},
		{
			name: "unknown error is not user facing",
			err:  errors.New("random internal error xyz"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsUserFacing(tt.err)
			if got != tt.want {
				t.Errorf("IsUserFacing() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewUserError(t *testing.T) {
	t.Run("nil error returns nil", func(t *testing.T) {
		if got := NewUserError(nil); got != nil {
			t.Errorf("NewUserError(nil) = %v, want nil", got)
		}
	})

	t.Run("wraps technical error with user message", func(t *testing.T) {
		techErr := fmt.Errorf("%w: start is after end", store.ErrInvalidSelector)
		userErr := NewUserError(techErr)

		if userErr.Error() != "The requested key range is not valid" {
			t.Errorf("Error() = %q, want user message", userErr.Error())
		}

		if !errors.Is(userErr, techErr) {
			t.Error("Unwrap() should return original error")
		}
	})
}
