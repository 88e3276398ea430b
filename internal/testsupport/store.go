package testsupport

import (
	"context"
	"testing"

	"pickline/internal/config"
	"pickline/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// SeedPicker registers a picker for tests.
func SeedPicker(t testing.TB, st *store.Store, id, name string) {
	t.Helper()

	if err := st.UpsertPicker(context.Background(), id, name); err != nil {
		t.Fatalf("store.UpsertPicker: %v", err)
	}
}
