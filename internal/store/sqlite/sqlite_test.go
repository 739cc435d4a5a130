package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/denoland/kv-utils/internal/kv"
	"github.com/denoland/kv-utils/internal/store"
	"github.com/denoland/kv-utils/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		st, err := Open(context.Background(), ":memory:")
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		return st
	})
}

func TestFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "kv.sqlite")
	ctx := context.Background()

	st, err := store.Open(ctx, store.Config{Driver: "sqlite", Path: path})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	key := kv.Key{kv.String("k")}
	if _, err := st.Set(ctx, key, kv.StringValue("v")); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	reopened, err := Open(ctx, path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer reopened.Close()
	e, err := reopened.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if e.Versionstamp != store.FormatVersionstamp(1) || !e.Value.Equal(kv.StringValue("v")) {
		t.Errorf("Get() = %+v, want \"v\" at versionstamp 1", e)
	}
}
