package ndjson

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/google/go-cmp/cmp"
)

func readAll(t *testing.T, r *Reader) ([]string, []*EncodingError) {
	t.Helper()
	var lines []string
	var encErrs []*EncodingError
	for {
		line, err := r.ReadLine()
		if err == io.EOF {
			return lines, encErrs
		}
		var encErr *EncodingError
		if errors.As(err, &encErr) {
			encErrs = append(encErrs, encErr)
			continue
		}
		if err != nil {
			t.Fatalf("ReadLine() error = %v", err)
		}
		lines = append(lines, line)
	}
}

func TestReader(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  []string
	}{
		{"empty", "", nil},
		{"lines", "a\nb\n", []string{"a", "b"}},
		{"crlf and tail", "a\r\n\r\nb", []string{"a", "b"}},
		{"bom stripped", "\xef\xbb\xbfa\nb", []string{"a", "b"}},
		{"bom only", "\xef\xbb\xbf", nil},
		{"bom then blank line", "\xef\xbb\xbf\na", []string{"a"}},
		{"bom only at start", "a\n\xef\xbb\xbfb", []string{"a", "\ufeffb"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReaderSize(iotest.OneByteReader(strings.NewReader(tt.input)), 4)
			got, encErrs := readAll(t, r)
			if len(encErrs) != 0 {
				t.Errorf("unexpected encoding errors: %v", encErrs)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("lines mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReader_InvalidUTF8(t *testing.T) {
	input := "good\nba\xffd\nalso good\n"
	r := NewReaderSize(strings.NewReader(input), 5)

	lines, encErrs := readAll(t, r)
	if diff := cmp.Diff([]string{"good", "also good"}, lines); diff != "" {
		t.Errorf("lines mismatch (-want +got):\n%s", diff)
	}
	if len(encErrs) != 1 {
		t.Fatalf("got %d encoding errors, want 1", len(encErrs))
	}
	e := encErrs[0]
	if e.Line != 2 || e.Offset != 2 || string(e.Raw) != "ba\xffd" {
		t.Errorf("EncodingError = {Line:%d Offset:%d Raw:%q}, want {2 2 \"ba\\xffd\"}", e.Line, e.Offset, e.Raw)
	}
	if r.Lines() != 3 {
		t.Errorf("Lines() = %d, want 3", r.Lines())
	}
}

func TestReader_ReadError(t *testing.T) {
	boom := errors.New("connection reset")
	src := io.MultiReader(strings.NewReader("a\nb\npart"), iotest.ErrReader(boom))
	r := NewReader(src)

	for _, want := range []string{"a", "b"} {
		line, err := r.ReadLine()
		if err != nil || line != want {
			t.Fatalf("ReadLine() = %q, %v; want %q, nil", line, err, want)
		}
	}
	for range 2 {
		if _, err := r.ReadLine(); !errors.Is(err, boom) {
			t.Fatalf("ReadLine() error = %v, want %v", err, boom)
		}
	}
}
