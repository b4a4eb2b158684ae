package fetching

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"log/slog"

	"github.com/dustin/go-humanize"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/retry"
	"scribe/internal/services"
	"scribe/internal/stage"
	"scribe/internal/workspace"
)

const (
	progressStageFetching   = "Fetching"
	progressPercentDownload = 10.0
)

// Fetcher downloads the resolved media URL into the run workspace.
type Fetcher struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
	client *http.Client
	policy retry.Policy
}

// NewFetcher constructs the fetch stage handler with a timeout-bound HTTP client.
func NewFetcher(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Fetcher {
	timeout := time.Duration(cfg.Fetcher.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Minute
	}
	return NewFetcherWithClient(cfg, store, logger, &http.Client{Timeout: timeout})
}

// NewFetcherWithClient allows injecting the HTTP client (used in tests).
func NewFetcherWithClient(cfg *config.Config, store *queue.Store, logger *slog.Logger, client *http.Client) *Fetcher {
	return &Fetcher{
		store:  store,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "fetcher"),
		client: client,
		policy: retry.Policy{MaxAttempts: cfg.Fetcher.RetryAttempts},
	}
}

// SetLogger routes stage logs into the run-scoped log.
func (f *Fetcher) SetLogger(logger *slog.Logger) {
	if f == nil {
		return
	}
	f.logger = logging.NewComponentLogger(logger, "fetcher")
}

// Prepare primes queue progress fields before the download starts.
func (f *Fetcher) Prepare(ctx context.Context, run *queue.Run) error {
	if f == nil || f.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "fetching", "prepare", "Fetch stage is not configured", nil)
	}
	run.InitProgress(progressStageFetching, "Starting media download")
	return nil
}

// Execute streams the resolved media URL into the run workspace.
func (f *Fetcher) Execute(ctx context.Context, run *queue.Run) error {
	if f == nil || f.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "fetching", "execute", "Fetch stage is not configured", nil)
	}
	if run == nil {
		return services.Wrap(services.ErrValidation, "fetching", "execute", "Queue run is nil", nil)
	}
	logger := logging.WithContext(ctx, f.logger)

	mediaURL := strings.TrimSpace(run.MediaURL)
	if mediaURL == "" {
		return services.Wrap(
			services.ErrValidation,
			"fetching",
			"validate inputs",
			"No media URL recorded for this run; resolve it first",
			nil,
		)
	}
	ws, err := workspace.Attach(run.WorkspacePath)
	if err != nil {
		return services.Wrap(services.ErrStorage, "fetching", "attach workspace", "Run workspace unavailable", err)
	}

	dest := ws.MediaFile(filepath.Ext(run.MediaFilename))
	if err := f.updateProgress(ctx, run, "Downloading media", progressPercentDownload); err != nil {
		return err
	}
	logger.Info(
		"starting media download",
		logging.String("media_url", mediaURL),
		logging.String("destination", dest),
	)

	var written int64
	err = retry.Do(ctx, f.policy, func() error {
		n, downloadErr := Download(ctx, f.client, mediaURL, dest)
		if downloadErr != nil {
			return classifyFetchError(downloadErr)
		}
		written = n
		return nil
	})
	if err != nil {
		return err
	}

	run.MediaFile = dest
	run.SetProgressComplete(progressStageFetching, fmt.Sprintf("Fetched %s", humanize.Bytes(uint64(written))))
	logger.Info(
		"media download complete",
		logging.String("media_file", dest),
		logging.Int64("bytes", written),
	)
	return nil
}

// HealthCheck reports whether the fetch stage can run.
func (f *Fetcher) HealthCheck(ctx context.Context) stage.Health {
	const name = "fetcher"
	if f == nil || f.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(f.cfg.Paths.WorkspaceDir) == "" {
		return stage.Unhealthy(name, "workspace directory not configured")
	}
	if f.client == nil {
		return stage.Unhealthy(name, "http client unavailable")
	}
	return stage.Healthy(name)
}

func (f *Fetcher) updateProgress(ctx context.Context, run *queue.Run, message string, percent float64) error {
	run.SetProgress(progressStageFetching, message, percent)
	if f.store == nil {
		return nil
	}
	if err := f.store.UpdateProgress(ctx, run); err != nil {
		return services.Wrap(services.ErrTransient, "fetching", "persist progress",
			"Failed to persist fetch progress", err)
	}
	return nil
}

func classifyFetchError(err error) error {
	switch {
	case errors.Is(err, ErrEmptyMedia):
		return services.Wrap(services.ErrExternalTool, "fetching", "download media", "Resolved URL served an empty file", err)
	case errors.Is(err, ErrTransport):
		return services.Wrap(services.ErrTransient, "fetching", "download media", "Media download failed", err)
	default:
		return services.Wrap(services.ErrStorage, "fetching", "write media", "Could not write media artifact", err)
	}
}
