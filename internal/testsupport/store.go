package testsupport

import (
	"testing"

	"platewatch/internal/config"
	"platewatch/internal/queue"
)

// MustOpenStore opens the queue database for the given config and registers
// cleanup with the test.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("open queue store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close queue store: %v", err)
		}
	})
	return store
}
