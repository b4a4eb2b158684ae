package testsupport

import (
	"context"
	"testing"

	"scribe/internal/config"
	"scribe/internal/queue"
)

// MustOpenStore opens a queue.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *queue.Store {
	t.Helper()

	store, err := queue.Open(cfg)
	if err != nil {
		t.Fatalf("queue.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// NewRun creates a new pending run for tests using the provided store. The
// source URL doubles as the normalized URL; tests that care about
// normalization insert runs directly.
func NewRun(t testing.TB, store *queue.Store, sourceURL string) *queue.Run {
	t.Helper()

	run, err := store.NewRun(context.Background(), sourceURL, sourceURL)
	if err != nil {
		t.Fatalf("store.NewRun: %v", err)
	}
	return run
}
