package resolving

import (
	"context"
	"errors"
	"os"
	"strings"
	"time"

	"log/slog"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/retry"
	"scribe/internal/services"
	"scribe/internal/services/cobalt"
	"scribe/internal/stage"
	"scribe/internal/workspace"
)

const (
	progressStageResolving = "Resolving"
	progressPercentResolve = 10.0

	// resolverBodyName is the diagnostic artifact holding the raw resolver
	// response when it could not be used; kept in the run workspace so
	// failed runs can be inspected.
	resolverBodyName = "resolver-response.raw"
)

// Resolver turns a source URL into a direct media URL via the download proxy.
type Resolver struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
	client *cobalt.Client
	policy retry.Policy
}

// NewResolver constructs the resolve stage handler with a proxy client built
// from configuration.
func NewResolver(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Resolver {
	return NewResolverWithClient(cfg, store, logger, cobalt.NewClient(cfg))
}

// NewResolverWithClient allows injecting the proxy client (used in tests).
func NewResolverWithClient(cfg *config.Config, store *queue.Store, logger *slog.Logger, client *cobalt.Client) *Resolver {
	return &Resolver{
		store:  store,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "resolver"),
		client: client,
		policy: retry.Policy{
			MaxAttempts:     cfg.Resolver.RetryAttempts,
			InitialInterval: time.Duration(cfg.Resolver.RetryInitialSeconds) * time.Second,
		},
	}
}

// SetLogger routes stage logs into the run-scoped log.
func (r *Resolver) SetLogger(logger *slog.Logger) {
	if r == nil {
		return
	}
	r.logger = logging.NewComponentLogger(logger, "resolver")
}

// Prepare primes queue progress fields before resolution starts.
func (r *Resolver) Prepare(ctx context.Context, run *queue.Run) error {
	if r == nil || r.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "resolving", "prepare", "Resolve stage is not configured", nil)
	}
	run.InitProgress(progressStageResolving, "Resolving direct media URL")
	return nil
}

// Execute asks the download proxy for a direct media URL and records it,
// deriving a display title from the suggested filename.
func (r *Resolver) Execute(ctx context.Context, run *queue.Run) error {
	if r == nil || r.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "resolving", "execute", "Resolve stage is not configured", nil)
	}
	if strings.TrimSpace(r.cfg.Resolver.Endpoint) == "" {
		return services.Wrap(services.ErrConfiguration, "resolving", "execute", "Resolver endpoint is not configured", nil)
	}
	if run == nil {
		return services.Wrap(services.ErrValidation, "resolving", "execute", "Queue run is nil", nil)
	}
	logger := logging.WithContext(ctx, r.logger)

	sourceURL := strings.TrimSpace(run.SourceURL)
	if sourceURL == "" {
		return services.Wrap(services.ErrValidation, "resolving", "validate inputs", "Run has no source URL", nil)
	}
	if _, err := ValidateSource(r.cfg, sourceURL); err != nil {
		return err
	}

	if err := r.updateProgress(ctx, run, "Contacting download proxy", progressPercentResolve); err != nil {
		return err
	}

	var resolution cobalt.Resolution
	err := retry.Do(ctx, r.policy, func() error {
		res, resolveErr := r.client.Resolve(ctx, sourceURL)
		if resolveErr != nil {
			return classifyResolveError(resolveErr)
		}
		resolution = res
		return nil
	})
	if err != nil {
		r.saveResolverBody(ctx, run, err)
		return err
	}

	run.MediaURL = resolution.MediaURL
	run.MediaFilename = resolution.Filename
	if strings.TrimSpace(run.Title) == "" {
		run.Title = deriveTitle(resolution.Filename, sourceURL)
	}
	run.SetProgressComplete(progressStageResolving, "Resolved direct media URL")
	logger.Info(
		"resolution complete",
		logging.String("media_filename", resolution.Filename),
		logging.String("title", run.Title),
	)
	return nil
}

// HealthCheck reports whether the resolve stage can run.
func (r *Resolver) HealthCheck(ctx context.Context) stage.Health {
	const name = "resolver"
	if r == nil || r.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(r.cfg.Resolver.Endpoint) == "" {
		return stage.Unhealthy(name, "resolver endpoint not configured")
	}
	if r.client == nil {
		return stage.Unhealthy(name, "resolver client unavailable")
	}
	return stage.Healthy(name)
}

func (r *Resolver) updateProgress(ctx context.Context, run *queue.Run, message string, percent float64) error {
	run.SetProgress(progressStageResolving, message, percent)
	if r.store == nil {
		return nil
	}
	if err := r.store.UpdateProgress(ctx, run); err != nil {
		return services.Wrap(services.ErrTransient, "resolving", "persist progress",
			"Failed to persist resolve progress", err)
	}
	return nil
}

// saveResolverBody writes the raw proxy response into the run workspace so a
// terminally failed resolution can be inspected. Best effort only.
func (r *Resolver) saveResolverBody(ctx context.Context, run *queue.Run, resolveErr error) {
	body, ok := cobalt.ResponseBody(resolveErr)
	if !ok || len(body) == 0 {
		return
	}
	logger := logging.WithContext(ctx, r.logger)
	ws, err := workspace.Attach(run.WorkspacePath)
	if err != nil {
		logger.Warn("cannot save resolver response body", logging.Error(err))
		return
	}
	target := ws.Path(resolverBodyName)
	if err := os.WriteFile(target, body, 0o644); err != nil {
		logger.Warn("cannot save resolver response body", logging.Error(err))
		return
	}
	logger.Info("saved raw resolver response", logging.String("path", target))
}

func classifyResolveError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, cobalt.ErrTransport):
		return services.Wrap(services.ErrTransient, "resolving", "resolve media", "Download proxy is unreachable", err)
	case errors.Is(err, cobalt.ErrUpstreamStatus):
		return services.Wrap(services.ErrExternalTool, "resolving", "resolve media", "Download proxy rejected the request", err)
	case errors.Is(err, cobalt.ErrMalformedResponse):
		return services.Wrap(services.ErrExternalTool, "resolving", "resolve media", "Download proxy returned an unusable response", err)
	default:
		return services.Wrap(services.ErrExternalTool, "resolving", "resolve media", "Resolution failed", err)
	}
}
