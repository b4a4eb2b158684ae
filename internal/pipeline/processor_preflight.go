package pipeline

import (
	"context"
	"fmt"
	"strings"

	"scribe/internal/logging"
	"scribe/internal/preflight"
)

// runPreflightChecks validates directory access and resolver readiness
// before any queued run is started. Returns nil when all checks pass, or an
// error describing all failures.
func (p *Processor) runPreflightChecks(ctx context.Context) error {
	results := preflight.RunAll(ctx, p.cfg)
	if len(results) == 0 {
		return nil
	}

	var failures []string
	for _, r := range results {
		if r.Passed {
			p.logger.Info("preflight check passed",
				logging.String("check", r.Name),
				logging.String("detail", r.Detail),
				logging.String(logging.FieldEventType, "preflight_passed"),
			)
			continue
		}
		p.logger.Error("preflight check failed",
			logging.String("check", r.Name),
			logging.String("detail", r.Detail),
			logging.String(logging.FieldEventType, "preflight_failed"),
			logging.String(logging.FieldErrorHint, "fix the reported issue and rerun"),
		)
		failures = append(failures, fmt.Sprintf("%s: %s", r.Name, r.Detail))
	}

	if len(failures) > 0 {
		return fmt.Errorf("preflight checks failed: %s", strings.Join(failures, "; "))
	}
	return nil
}
