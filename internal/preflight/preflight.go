package preflight

import (
	"context"

	"scribe/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all preflight checks for the given config: every
// configured directory plus resolver reachability.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Workspace directory", cfg.Paths.WorkspaceDir),
		CheckDirectoryAccess("Transcripts directory", cfg.Paths.TranscriptsDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
	}

	return append(results, CheckResolver(ctx, cfg))
}
