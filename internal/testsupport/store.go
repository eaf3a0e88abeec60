package testsupport

import (
	"testing"

	"imagemill/internal/config"
	"imagemill/internal/queue"
)

// MustOpenStore opens a queue store for the config and closes it when the
// test finishes.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()
	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open queue store: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
