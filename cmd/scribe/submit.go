package main

import (
	"context"
	"fmt"

	"scribe/internal/config"
	"scribe/internal/queue"
	"scribe/internal/resolving"
)

// submitSource validates a raw URL and enqueues a pending run for it.
// A prior run for the same normalized URL blocks resubmission unless force
// is set; failed runs never block, so resubmitting after a failure starts a
// fresh attempt.
func submitSource(ctx context.Context, cfg *config.Config, store *queue.Store, raw string, force bool) (*queue.Run, error) {
	normalized, err := resolving.ValidateSource(cfg, raw)
	if err != nil {
		return nil, err
	}

	existing, err := store.FindBySourceURL(ctx, normalized)
	if err != nil {
		return nil, err
	}
	if existing != nil && !force {
		switch {
		case existing.Status == queue.StatusCompleted:
			return nil, fmt.Errorf("%s was already transcribed as run #%d (use --force to transcribe again)", normalized, existing.ID)
		case existing.Status != queue.StatusFailed:
			return nil, fmt.Errorf("%s is already queued as run #%d (%s)", normalized, existing.ID, formatStatusLabel(string(existing.Status)))
		}
	}

	return store.NewRun(ctx, raw, normalized)
}
