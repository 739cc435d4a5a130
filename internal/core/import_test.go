package core

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/big"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/denoland/kv-utils/internal/kv"
	"github.com/denoland/kv-utils/internal/ndjson"
	"github.com/denoland/kv-utils/internal/store"
	"github.com/denoland/kv-utils/internal/store/memory"
)

// entryLine returns an NDJSON line storing number n under ["k", name].
func entryLine(name string, n int) string {
	return fmt.Sprintf(`{"key":[{"type":"string","value":"k"},{"type":"string","value":%q}],"value":{"type":"number","value":%d}}`, name, n)
}

func entryLines(n, value int) string {
	var b strings.Builder
	for i := range n {
		b.WriteString(entryLine(fmt.Sprintf("e%02d", i), value))
		b.WriteByte('\n')
	}
	return b.String()
}

func mustGet(t *testing.T, st store.Store, key kv.Key) kv.Entry {
	t.Helper()
	e, err := st.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", key, err)
	}
	return e
}

func TestImportEntries_SkipsExisting(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	input := entryLines(5, 1)

	res, err := ImportString(ctx, st, input, ImportOptions{})
	if err != nil {
		t.Fatalf("first import error = %v", err)
	}
	if res != (ImportResult{Count: 5}) {
		t.Errorf("first import = %+v, want 5 written", res)
	}

	res, err = ImportString(ctx, st, entryLines(5, 2), ImportOptions{})
	if err != nil {
		t.Fatalf("second import error = %v", err)
	}
	if res.Count != 5 || res.Skipped != 5 || res.Errors != 0 {
		t.Errorf("second import = %+v, want count 5, skipped 5", res)
	}
	if got := mustGet(t, st, kv.Key{kv.String("k"), kv.String("e00")}); !got.Value.Equal(kv.NumberValue(1)) {
		t.Errorf("value after skip = %+v, want original 1", got.Value)
	}
}

func TestImportEntries_Overwrite(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	if _, err := ImportString(ctx, st, entryLines(3, 1), ImportOptions{}); err != nil {
		t.Fatal(err)
	}

	res, err := ImportString(ctx, st, entryLines(3, 2), ImportOptions{Overwrite: true})
	if err != nil {
		t.Fatalf("ImportString() error = %v", err)
	}
	if res.Skipped != 0 || res.Written() != 3 {
		t.Errorf("overwrite import = %+v, want 3 written, 0 skipped", res)
	}
	if got := mustGet(t, st, kv.Key{kv.String("k"), kv.String("e02")}); !got.Value.Equal(kv.NumberValue(2)) {
		t.Errorf("value after overwrite = %+v, want 2", got.Value)
	}
}

func TestImportEntries_ErrorIsolation(t *testing.T) {
	input := strings.Join([]string{
		entryLine("a", 1),
		`{"key":`,
		entryLine("b", 2),
		`{"key":[],"value":{"type":"Symbol","value":"x"}}`,
		entryLine("c", 3),
	}, "\n")

	var failed []*ImportError
	st := memory.New()
	res, err := ImportString(context.Background(), st, input, ImportOptions{
		OnError: func(e *ImportError) { failed = append(failed, e) },
	})
	if err != nil {
		t.Fatalf("ImportString() error = %v", err)
	}
	if res.Count != 5 || res.Errors != 2 || res.Written() != 3 {
		t.Errorf("result = %+v, want count 5, errors 2, written 3", res)
	}
	if st.Len() != 3 {
		t.Errorf("store has %d entries, want 3", st.Len())
	}

	if len(failed) != 2 {
		t.Fatalf("OnError called %d times, want 2", len(failed))
	}
	if failed[0].Count != 2 || failed[0].Errors != 1 || failed[0].JSON != `{"key":` {
		t.Errorf("first failure = %+v", failed[0])
	}
	if failed[1].Count != 4 || failed[1].Errors != 2 || !errors.Is(failed[1], kv.ErrUnknownType) {
		t.Errorf("second failure = %+v, want line 4 wrapping ErrUnknownType", failed[1])
	}
}

func TestImportEntries_ThrowOnError(t *testing.T) {
	input := entryLine("a", 1) + "\n" + entryLine("b", 2) + "\nnot json\n" + entryLine("c", 3) + "\n"
	st := memory.New()

	res, err := ImportString(context.Background(), st, input, ImportOptions{ThrowOnError: true})

	var importErr *ImportError
	if !errors.As(err, &importErr) {
		t.Fatalf("error = %v, want *ImportError", err)
	}
	if importErr.Count != 3 || importErr.JSON != "not json" {
		t.Errorf("ImportError = %+v, want line 3", importErr)
	}
	if IsFatal(err) {
		t.Error("IsFatal(ImportError) = true, want false")
	}
	if res.Count != 3 || res.Errors != 1 {
		t.Errorf("result = %+v, want count 3, errors 1", res)
	}
	if st.Len() != 2 {
		t.Errorf("store has %d entries, want 2 (lines after the failure must not run)", st.Len())
	}
}

func TestImportEntries_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := memory.New()
	res, err := ImportString(ctx, st, entryLines(10, 1), ImportOptions{
		OnProgress: func(count, _, _ int) {
			if count == 4 {
				cancel()
			}
		},
	})
	if err != nil {
		t.Fatalf("cancelled import error = %v, want nil", err)
	}
	if !res.Aborted || res.Count != 4 {
		t.Errorf("result = %+v, want aborted after 4", res)
	}
	if st.Len() != 4 {
		t.Errorf("store has %d entries, want 4", st.Len())
	}
}

func TestImportEntries_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	st := memory.New()
	res, err := ImportString(ctx, st, entryLines(3, 1), ImportOptions{})
	if err != nil {
		t.Fatalf("error = %v, want nil", err)
	}
	if !res.Aborted || res.Count != 0 || st.Len() != 0 {
		t.Errorf("result = %+v with %d stored, want aborted with nothing read", res, st.Len())
	}
}

func TestImportEntries_StreamError(t *testing.T) {
	boom := errors.New("connection lost")
	src := io.MultiReader(strings.NewReader(entryLine("a", 1)+"\n"), iotest.ErrReader(boom))

	st := memory.New()
	res, err := ImportEntries(context.Background(), st, src, ImportOptions{})

	var streamErr *StreamError
	if !errors.As(err, &streamErr) {
		t.Fatalf("error = %v, want *StreamError", err)
	}
	if !errors.Is(err, boom) || !IsFatal(err) {
		t.Errorf("error = %v, want fatal wrapping %v", err, boom)
	}
	if streamErr.Count != 1 || res.Count != 1 || st.Len() != 1 {
		t.Errorf("stream error after %d lines, result %+v, stored %d; want 1 each", streamErr.Count, res, st.Len())
	}
}

func TestImportEntries_Prefix(t *testing.T) {
	st := memory.New()
	prefix := kv.Key{kv.String("restore"), kv.Int(7)}

	if _, err := ImportString(context.Background(), st, entryLine("a", 1), ImportOptions{Prefix: prefix}); err != nil {
		t.Fatal(err)
	}

	want := kv.Key{kv.String("restore"), kv.Int(7), kv.String("k"), kv.String("a")}
	if got := mustGet(t, st, want); !got.Exists() {
		t.Errorf("entry not stored under %s", want)
	}
	if got := mustGet(t, st, kv.Key{kv.String("k"), kv.String("a")}); got.Exists() {
		t.Error("entry also stored without prefix")
	}
}

func TestImportEntries_EncodingError(t *testing.T) {
	input := entryLine("a", 1) + "\n" + `{"key":"` + "\xff" + `"}` + "\n" + entryLine("b", 2)

	var failed *ImportError
	st := memory.New()
	res, err := ImportString(context.Background(), st, input, ImportOptions{
		OnError: func(e *ImportError) { failed = e },
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 3 || res.Errors != 1 || st.Len() != 2 {
		t.Errorf("result = %+v, stored %d; want count 3, errors 1, stored 2", res, st.Len())
	}
	var encErr *ndjson.EncodingError
	if failed == nil || !errors.As(failed, &encErr) {
		t.Fatalf("failure = %v, want *ndjson.EncodingError", failed)
	}
	if encErr.Line != 2 {
		t.Errorf("EncodingError.Line = %d, want 2", encErr.Line)
	}
}

func TestImportEntries_BigIntRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	line := `{"key":[{"type":"string","value":"a"}],"value":{"type":"bigint","value":"100"},"versionstamp":"00000000000000060000"}`

	if _, err := ImportString(ctx, st, line, ImportOptions{}); err != nil {
		t.Fatal(err)
	}

	got := mustGet(t, st, kv.Key{kv.String("a")})
	if !got.Value.Equal(kv.BigIntValue(big.NewInt(100))) {
		t.Errorf("stored value = %+v, want bigint 100", got.Value)
	}

	var lines []string
	for l, err := range ExportStrings(ctx, st, store.PrefixSelector(nil), ExportOptions{}) {
		if err != nil {
			t.Fatal(err)
		}
		lines = append(lines, l)
	}
	want := `{"key":[{"type":"string","value":"a"}],"value":{"type":"bigint","value":"100"},"versionstamp":"` + got.Versionstamp + "\"}\n"
	if len(lines) != 1 || lines[0] != want {
		t.Errorf("export = %q, want %q", lines, want)
	}
}

func TestImportBytes_CRLF(t *testing.T) {
	input := []byte(entryLine("a", 1) + "\r\n" + entryLine("b", 2) + "\r\n")
	st := memory.New()
	res, err := ImportBytes(context.Background(), st, input, ImportOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if res.Count != 2 || res.Errors != 0 {
		t.Errorf("result = %+v, want 2 clean lines", res)
	}
}

// failingGetStore fails Get for keys whose last part is failName.
type failingGetStore struct {
	*memory.Store
	failName string
	err      error
}

func (s *failingGetStore) Get(ctx context.Context, key kv.Key) (kv.Entry, error) {
	if len(key) > 0 && key[len(key)-1].Str == s.failName {
		return kv.Entry{}, s.err
	}
	return s.Store.Get(ctx, key)
}

func TestImportEntries_StoreErrors(t *testing.T) {
	boom := errors.New("connection reset by peer")
	bigValue := fmt.Sprintf(`{"key":[{"type":"string","value":"k"},{"type":"string","value":"b"}],"value":{"type":"string","value":%q}}`,
		strings.Repeat("x", store.MaxValueSize))
	input := entryLine("a", 1) + "\n" + bigValue + "\n" + entryLine("c", 3) + "\n"

	tests := []struct {
		name    string
		wrap    func(*memory.Store) store.Store
		input   string
		wantErr error
	}{
		{
			name:    "read failure",
			wrap:    func(m *memory.Store) store.Store { return &failingGetStore{Store: m, failName: "b", err: boom} },
			input:   entryLines(1, 1) + entryLine("b", 2) + "\n" + entryLine("c", 3) + "\n",
			wantErr: boom,
		},
		{
			name:    "write failure",
			wrap:    func(m *memory.Store) store.Store { return m },
			input:   input,
			wantErr: store.ErrValueTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mem := memory.New()
			var causes []error
			res, err := ImportString(context.Background(), tt.wrap(mem), tt.input, ImportOptions{
				OnError: func(e *ImportError) { causes = append(causes, e.Cause) },
			})
			if err != nil {
				t.Fatalf("ImportString() error = %v, want nil", err)
			}
			if res.Count != 3 || res.Errors != 1 || res.Skipped != 0 {
				t.Errorf("result = %+v, want count 3, errors 1", res)
			}
			if res.Count != res.Skipped+res.Errors+mem.Len() {
				t.Errorf("count %d != skipped %d + errors %d + stored %d", res.Count, res.Skipped, res.Errors, mem.Len())
			}
			if len(causes) != 1 || !errors.Is(causes[0], tt.wantErr) {
				t.Errorf("OnError causes = %v, want one wrapping %v", causes, tt.wantErr)
			}
		})

		t.Run(tt.name+" throw", func(t *testing.T) {
			mem := memory.New()
			var calls int
			res, err := ImportString(context.Background(), tt.wrap(mem), tt.input, ImportOptions{
				ThrowOnError: true,
				OnError:      func(*ImportError) { calls++ },
			})
			var importErr *ImportError
			if !errors.As(err, &importErr) || !errors.Is(err, tt.wantErr) {
				t.Fatalf("ImportString() error = %v, want *ImportError wrapping %v", err, tt.wantErr)
			}
			if importErr.Count != 2 || res.Count != 2 || res.Errors != 1 || calls != 1 {
				t.Errorf("stopped at %+v (error line %d, %d OnError calls), want line 2", res, importErr.Count, calls)
			}
			if res.Count != res.Skipped+res.Errors+mem.Len() {
				t.Errorf("count %d != skipped %d + errors %d + stored %d", res.Count, res.Skipped, res.Errors, mem.Len())
			}
		})
	}
}

func TestImportEntries_OversizedBigIntKey(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	huge := new(big.Int).Lsh(big.NewInt(1), 2400)
	input := entryLine("a", 1) + "\n" +
		`{"key":[{"type":"bigint","value":"` + huge.String() + `"}],"value":{"type":"null"}}` + "\n" +
		entryLine("b", 2) + "\n"

	var cause error
	res, err := ImportString(ctx, st, input, ImportOptions{OnError: func(e *ImportError) { cause = e.Cause }})
	if err != nil {
		t.Fatalf("ImportString() error = %v", err)
	}
	if res != (ImportResult{Count: 3, Errors: 1}) {
		t.Errorf("result = %+v, want count 3, errors 1", res)
	}
	var decErr *kv.DecodeError
	if !errors.As(cause, &decErr) || !errors.Is(cause, kv.ErrKeyTooLarge) {
		t.Errorf("cause = %v, want *kv.DecodeError wrapping ErrKeyTooLarge", cause)
	}
	if code := MapError(cause).Code; code != "DEC005" {
		t.Errorf("MapError code = %s, want DEC005", code)
	}

	lines := collect(t, ExportStrings(ctx, st, store.Selector{}, ExportOptions{}))
	if len(lines) != 2 {
		t.Errorf("export after import = %d lines, want 2", len(lines))
	}
}
