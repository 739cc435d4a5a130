package postgres

import (
	"context"
	"os"
	"testing"

	"github.com/denoland/kv-utils/internal/store"
	"github.com/denoland/kv-utils/internal/store/storetest"
)

// Set KV_TEST_POSTGRES_URL to a disposable database to run these tests.
// The kv_entries table is truncated before each subtest.
func testURL(t *testing.T) string {
	t.Helper()
	url := os.Getenv("KV_TEST_POSTGRES_URL")
	if url == "" {
		t.Skip("KV_TEST_POSTGRES_URL not set")
	}
	return url
}

func TestStore(t *testing.T) {
	url := testURL(t)
	storetest.Run(t, func(t *testing.T) store.Store {
		ctx := context.Background()
		st, err := Open(ctx, store.Config{URL: url, MaxConns: 4})
		if err != nil {
			t.Fatalf("Open() error = %v", err)
		}
		if _, err := st.db.Exec(ctx, "TRUNCATE kv_entries"); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		return st
	})
}

func TestDatabaseName(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"postgres://user:pw@localhost:5432/kv?sslmode=disable", "kv"},
		{"postgres://localhost", ""},
	}
	for _, tt := range tests {
		if got := databaseName(tt.url); got != tt.want {
			t.Errorf("databaseName(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}

func TestOpen_RequiresURL(t *testing.T) {
	if _, err := Open(context.Background(), store.Config{}); err == nil {
		t.Error("Open() without a URL succeeded")
	}
}
