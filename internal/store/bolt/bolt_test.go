package bolt

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
		st, err := Open(filepath.Join(t.TempDir(), "kv.db"))
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		return st
	})
}

func TestReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")
	ctx := context.Background()
	key := kv.Key{kv.String("persisted")}

	st, err := store.Open(ctx, store.Config{Driver: "bolt", Path: path})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	first, err := st.Set(ctx, key, kv.BoolValue(true))
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := st.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	st, err = Open(path)
	if err != nil {
		t.Fatalf("reopen error = %v", err)
	}
	defer st.Close()

	e, err := st.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if !e.Value.Equal(kv.BoolValue(true)) || e.Versionstamp != first.Versionstamp {
		t.Errorf("Get() after reopen = %+v, want true at %s", e, first.Versionstamp)
	}
	second, err := st.Set(ctx, key, kv.BoolValue(false))
	if err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if second.Versionstamp <= first.Versionstamp {
		t.Errorf("versionstamp went from %s to %s across reopen", first.Versionstamp, second.Versionstamp)
	}
}

func TestOpen_RequiresPath(t *testing.T) {
	if _, err := store.Open(context.Background(), store.Config{Driver: "bolt"}); err == nil {
		t.Error("Open() without a path succeeded")
	}
}
