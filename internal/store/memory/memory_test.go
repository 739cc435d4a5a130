package memory

import (
	"context"
	"testing"

	"github.com/denoland/kv-utils/internal/store"
	"github.com/denoland/kv-utils/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestOpenRegistered(t *testing.T) {
	st, err := store.Open(context.Background(), store.Config{Driver: "memory"})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer st.Close()
	if _, ok := st.(*Store); !ok {
		t.Errorf("Open() returned %T, want *memory.Store", st)
	}
}
