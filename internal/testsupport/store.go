package testsupport

import (
	"context"
	"testing"
	"time"

	"vigil/internal/config"
	"vigil/internal/store"
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

// SeedIdentity upserts a test identity and returns it.
func SeedIdentity(t testing.TB, st *store.Store, id, address, name string) store.Identity {
	t.Helper()

	identity := store.Identity{ID: id, ContactAddress: address, DisplayName: name}
	if err := st.UpsertIdentity(context.Background(), identity); err != nil {
		t.Fatalf("store.UpsertIdentity: %v", err)
	}
	return identity
}

// StartSession creates a session starting at the given time.
func StartSession(t testing.TB, st *store.Store, start time.Time) *store.Session {
	t.Helper()

	session, err := st.StartSession(context.Background(), start)
	if err != nil {
		t.Fatalf("store.StartSession: %v", err)
	}
	return session
}
