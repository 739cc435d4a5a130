// Package storetest checks that a store.Store implementation behaves the way
// the import and export pipelines expect.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/denoland/kv-utils/internal/kv"
	"github.com/denoland/kv-utils/internal/store"
	"github.com/google/go-cmp/cmp"
)

// OpenFunc returns a new, empty store for one subtest.
type OpenFunc func(t *testing.T) store.Store

// Run exercises st against the store contract.
func Run(t *testing.T, open OpenFunc) {
	tests := []struct {
		name string
		fn   func(t *testing.T, st store.Store)
	}{
		{"GetMissing", testGetMissing},
		{"SetGet", testSetGet},
		{"Overwrite", testOverwrite},
		{"ValueTooLarge", testValueTooLarge},
		{"KeyTooLarge", testKeyTooLarge},
		{"ListPrefix", testListPrefix},
		{"ListRange", testListRange},
		{"ListReverseLimit", testListReverseLimit},
		{"ListPaging", testListPaging},
		{"ListCursor", testListCursor},
		{"ListInvalidSelector", testListInvalidSelector},
		{"Closed", testClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := open(t)
			t.Cleanup(func() { _ = st.Close() })
			tt.fn(t, st)
		})
	}
}

func key(parts ...any) kv.Key {
	k := make(kv.Key, len(parts))
	for i, p := range parts {
		switch p := p.(type) {
		case string:
			k[i] = kv.String(p)
		case int:
			k[i] = kv.Int(int64(p))
		case bool:
			k[i] = kv.Bool(p)
		default:
			panic(fmt.Sprintf("storetest: unsupported key part %T", p))
		}
	}
	return k
}

func mustSet(t *testing.T, st store.Store, k kv.Key, v kv.Value) store.Commit {
	t.Helper()
	c, err := st.Set(context.Background(), k, v)
	if err != nil {
		t.Fatalf("Set(%s) error = %v", k, err)
	}
	return c
}

func collect(t *testing.T, st store.Store, sel store.Selector, opts store.ListOptions) []kv.Entry {
	t.Helper()
	var out []kv.Entry
	for e, err := range st.List(context.Background(), sel, opts) {
		if err != nil {
			t.Fatalf("List() error = %v", err)
		}
		out = append(out, e)
	}
	return out
}

func keysOf(entries []kv.Entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Key.String()
	}
	return out
}

func strs(keys ...kv.Key) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = k.String()
	}
	return out
}

func seed(t *testing.T, st store.Store) {
	t.Helper()
	for _, k := range []kv.Key{
		key("a"),
		key("users", "carol"),
		key("users", "alice"),
		key("users", "bob"),
		key("users", "bob", "settings"),
		key("z"),
	} {
		mustSet(t, st, k, kv.StringValue(k.String()))
	}
}

func testGetMissing(t *testing.T, st store.Store) {
	e, err := st.Get(context.Background(), key("nope"))
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if e.Exists() {
		t.Errorf("Get() of missing key has versionstamp %q", e.Versionstamp)
	}
	if !e.Key.Equal(key("nope")) {
		t.Errorf("Get() key = %s, want [\"nope\"]", e.Key)
	}
}

func testSetGet(t *testing.T, st store.Store) {
	values := []kv.Value{
		kv.StringValue("hello\x00world"),
		kv.NumberValue(1.5),
		kv.ObjectValue(map[string]kv.Value{"n": kv.U64Value(7), "tags": kv.SetValue(kv.StringValue("x"))}),
		kv.BytesValue([]byte{0, 1, 2}),
	}
	for i, v := range values {
		k := key("v", i)
		c := mustSet(t, st, k, v)
		if len(c.Versionstamp) != store.VersionstampLen {
			t.Errorf("Set() versionstamp = %q, want %d hex digits", c.Versionstamp, store.VersionstampLen)
		}
		e, err := st.Get(context.Background(), k)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		if !e.Value.Equal(v) {
			t.Errorf("Get(%s) value = %+v, want %+v", k, e.Value, v)
		}
		if e.Versionstamp != c.Versionstamp {
			t.Errorf("Get(%s) versionstamp = %q, want %q", k, e.Versionstamp, c.Versionstamp)
		}
	}
}

func testOverwrite(t *testing.T, st store.Store) {
	k := key("counter")
	first := mustSet(t, st, k, kv.NumberValue(1))
	second := mustSet(t, st, k, kv.NumberValue(2))
	if second.Versionstamp <= first.Versionstamp {
		t.Errorf("versionstamps not increasing: %q then %q", first.Versionstamp, second.Versionstamp)
	}
	e, err := st.Get(context.Background(), k)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !e.Value.Equal(kv.NumberValue(2)) {
		t.Errorf("Get() value = %+v, want 2", e.Value)
	}
	if n := len(collect(t, st, store.Selector{}, store.ListOptions{})); n != 1 {
		t.Errorf("List() returned %d entries, want 1", n)
	}
}

func testValueTooLarge(t *testing.T, st store.Store) {
	big := kv.StringValue(strings.Repeat("x", store.MaxValueSize))
	_, err := st.Set(context.Background(), key("big"), big)
	if !errors.Is(err, store.ErrValueTooLarge) {
		t.Fatalf("Set() error = %v, want ErrValueTooLarge", err)
	}
	e, err := st.Get(context.Background(), key("big"))
	if err != nil || e.Exists() {
		t.Errorf("rejected value was stored: %+v, %v", e, err)
	}
}

func testKeyTooLarge(t *testing.T, st store.Store) {
	mustSet(t, st, key("a"), kv.NullValue())
	huge := kv.Key{kv.BigInt(new(big.Int).Lsh(big.NewInt(1), 8*kv.MaxBigIntBytes)), kv.String("x")}

	if _, err := st.Set(context.Background(), huge, kv.NullValue()); !errors.Is(err, kv.ErrKeyTooLarge) {
		t.Fatalf("Set() error = %v, want ErrKeyTooLarge", err)
	}
	if _, err := st.Get(context.Background(), huge); !errors.Is(err, kv.ErrKeyTooLarge) {
		t.Errorf("Get() error = %v, want ErrKeyTooLarge", err)
	}
	if n := len(collect(t, st, store.Selector{}, store.ListOptions{})); n != 1 {
		t.Errorf("List() returned %d entries, want 1", n)
	}

	for _, err := range st.List(context.Background(), store.PrefixSelector(huge), store.ListOptions{}) {
		if !errors.Is(err, store.ErrInvalidSelector) {
			t.Errorf("List(huge prefix) error = %v, want ErrInvalidSelector", err)
		}
	}
}

func testListPrefix(t *testing.T, st store.Store) {
	seed(t, st)
	got := keysOf(collect(t, st, store.PrefixSelector(key("users")), store.ListOptions{}))
	want := strs(key("users", "alice"), key("users", "bob"), key("users", "bob", "settings"), key("users", "carol"))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("List(prefix) mismatch (-want +got):\n%s", diff)
	}

	all := keysOf(collect(t, st, store.Selector{}, store.ListOptions{}))
	if len(all) != 6 || all[0] != key("a").String() || all[5] != key("z").String() {
		t.Errorf("List(all) = %v", all)
	}
}

func testListRange(t *testing.T, st store.Store) {
	seed(t, st)
	tests := []struct {
		name string
		sel  store.Selector
		want []string
	}{
		{"prefix and start", store.Selector{Prefix: key("users"), Start: key("users", "bob")},
			strs(key("users", "bob"), key("users", "bob", "settings"), key("users", "carol"))},
		{"prefix and end", store.Selector{Prefix: key("users"), End: key("users", "bob")},
			strs(key("users", "alice"))},
		{"start and end", store.Selector{Start: key("a"), End: key("users", "bob")},
			strs(key("a"), key("users", "alice"))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := keysOf(collect(t, st, tt.sel, store.ListOptions{}))
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("List() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func testListReverseLimit(t *testing.T, st store.Store) {
	seed(t, st)
	got := keysOf(collect(t, st, store.PrefixSelector(key("users")), store.ListOptions{Reverse: true, Limit: 2}))
	want := strs(key("users", "carol"), key("users", "bob", "settings"))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("List(reverse, limit 2) mismatch (-want +got):\n%s", diff)
	}
}

func testListPaging(t *testing.T, st store.Store) {
	for i := range 25 {
		mustSet(t, st, key("n", i), kv.NumberValue(float64(i)))
	}
	for _, reverse := range []bool{false, true} {
		entries := collect(t, st, store.PrefixSelector(key("n")), store.ListOptions{BatchSize: 4, Reverse: reverse})
		if len(entries) != 25 {
			t.Fatalf("reverse=%v: got %d entries, want 25", reverse, len(entries))
		}
		for i, e := range entries {
			want := i
			if reverse {
				want = 24 - i
			}
			if !e.Value.Equal(kv.NumberValue(float64(want))) {
				t.Errorf("reverse=%v: entry %d = %+v, want %d", reverse, i, e.Value, want)
			}
		}
	}

	limited := collect(t, st, store.PrefixSelector(key("n")), store.ListOptions{BatchSize: 4, Limit: 10})
	if len(limited) != 10 {
		t.Errorf("List(limit 10, batch 4) returned %d entries", len(limited))
	}
}

func testListCursor(t *testing.T, st store.Store) {
	seed(t, st)
	sel := store.PrefixSelector(key("users"))
	cursor := store.EncodeCursor(key("users", "bob"))

	got := keysOf(collect(t, st, sel, store.ListOptions{Cursor: cursor}))
	want := strs(key("users", "bob", "settings"), key("users", "carol"))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("List(cursor) mismatch (-want +got):\n%s", diff)
	}

	got = keysOf(collect(t, st, sel, store.ListOptions{Cursor: cursor, Reverse: true}))
	want = strs(key("users", "alice"))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("List(cursor, reverse) mismatch (-want +got):\n%s", diff)
	}
}

func testListInvalidSelector(t *testing.T, st store.Store) {
	sel := store.Selector{Prefix: key("users"), Start: key("a")}
	var errs int
	for _, err := range st.List(context.Background(), sel, store.ListOptions{}) {
		if !errors.Is(err, store.ErrInvalidSelector) {
			t.Errorf("List() error = %v, want ErrInvalidSelector", err)
		}
		errs++
	}
	if errs != 1 {
		t.Errorf("List() yielded %d elements, want a single error", errs)
	}
}

func testClosed(t *testing.T, st store.Store) {
	mustSet(t, st, key("a"), kv.NullValue())
	if err := st.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := st.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := st.Get(context.Background(), key("a")); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Get() after Close error = %v, want ErrClosed", err)
	}
	if _, err := st.Set(context.Background(), key("a"), kv.NullValue()); !errors.Is(err, store.ErrClosed) {
		t.Errorf("Set() after Close error = %v, want ErrClosed", err)
	}
	for _, err := range st.List(context.Background(), store.Selector{}, store.ListOptions{}) {
		if !errors.Is(err, store.ErrClosed) {
			t.Errorf("List() after Close error = %v, want ErrClosed", err)
		}
	}
}
