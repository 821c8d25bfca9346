package testsupport

import (
	"testing"

	"boorubot/internal/config"
	"boorubot/internal/hub"
	"boorubot/internal/schema"
)

// MustOpenStore opens a hub.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *hub.Store {
	t.Helper()

	store, err := hub.Open(cfg, schema.DefaultRegistry())
	if err != nil {
		t.Fatalf("hub.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
