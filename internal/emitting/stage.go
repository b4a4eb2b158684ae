package emitting

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"log/slog"

	"scribe/internal/config"
	"scribe/internal/fileutil"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/services/ffmpeg"
	"scribe/internal/stage"
	"scribe/internal/textutil"
	"scribe/internal/workspace"
)

const (
	progressStageEmitting  = "Emitting"
	progressPercentPublish = 10.0

	fallbackSlug = "transcript"
)

// Emitter publishes the transcript into the configured transcripts directory
// and optionally captures a thumbnail next to it.
type Emitter struct {
	store  *queue.Store
	cfg    *config.Config
	logger *slog.Logger
	ffmpeg *ffmpeg.Service
}

// NewEmitter constructs the emit stage handler.
func NewEmitter(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Emitter {
	return NewEmitterWithService(cfg, store, logger, ffmpeg.NewService(cfg))
}

// NewEmitterWithService allows injecting the ffmpeg service (used in tests).
func NewEmitterWithService(cfg *config.Config, store *queue.Store, logger *slog.Logger, service *ffmpeg.Service) *Emitter {
	return &Emitter{
		store:  store,
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "emitter"),
		ffmpeg: service,
	}
}

// SetLogger routes stage logs into the run-scoped log.
func (e *Emitter) SetLogger(logger *slog.Logger) {
	if e == nil {
		return
	}
	e.logger = logging.NewComponentLogger(logger, "emitter")
}

// Prepare primes queue progress fields before publication starts.
func (e *Emitter) Prepare(ctx context.Context, run *queue.Run) error {
	if e == nil || e.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "emitting", "prepare", "Emit stage is not configured", nil)
	}
	run.InitProgress(progressStageEmitting, "Publishing transcript")
	return nil
}

// Execute copies the transcript into the transcripts directory under a
// slug derived from the run title, then captures an optional thumbnail.
// Thumbnail failures never fail the run.
func (e *Emitter) Execute(ctx context.Context, run *queue.Run) error {
	if e == nil || e.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "emitting", "execute", "Emit stage is not configured", nil)
	}
	if run == nil {
		return services.Wrap(services.ErrValidation, "emitting", "execute", "Queue run is nil", nil)
	}
	logger := logging.WithContext(ctx, e.logger)

	transcript, err := requireInputArtifact(run.TranscriptFile)
	if err != nil {
		return err
	}
	transcriptsDir := strings.TrimSpace(e.cfg.Paths.TranscriptsDir)
	if transcriptsDir == "" {
		return services.Wrap(
			services.ErrConfiguration,
			"emitting",
			"resolve transcripts dir",
			"Transcripts directory not configured; set transcripts_dir in your scribe config.toml",
			nil,
		)
	}
	if err := os.MkdirAll(transcriptsDir, 0o755); err != nil {
		return services.Wrap(services.ErrStorage, "emitting", "ensure transcripts dir", "Failed to create transcripts directory", err)
	}

	target, err := nextPublishPath(transcriptsDir, transcriptSlug(run.Title), ".txt")
	if err != nil {
		return services.Wrap(services.ErrStorage, "emitting", "allocate transcript filename", "Unable to allocate transcript filename", err)
	}
	if err := e.updateProgress(ctx, run, "Publishing transcript", progressPercentPublish); err != nil {
		return err
	}
	if err := fileutil.CopyFileVerified(transcript, target); err != nil {
		return services.Wrap(services.ErrStorage, "emitting", "publish transcript", "Failed to copy transcript into transcripts directory", err)
	}
	run.FinalFile = target

	e.captureThumbnail(ctx, run, target)

	run.SetProgressComplete(progressStageEmitting, "Transcript published")
	logger.Info(
		"transcript published",
		logging.String("final_file", target),
		logging.String("title", run.DisplayTitle()),
	)
	return nil
}

// HealthCheck verifies the publication target is configured.
func (e *Emitter) HealthCheck(ctx context.Context) stage.Health {
	const name = "emitter"
	if e == nil || e.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if strings.TrimSpace(e.cfg.Paths.TranscriptsDir) == "" {
		return stage.Unhealthy(name, "transcripts directory not configured")
	}
	if e.cfg.Transcoder.Thumbnail && e.ffmpeg == nil {
		return stage.Unhealthy(name, "ffmpeg service unavailable for thumbnails")
	}
	return stage.Healthy(name)
}

// captureThumbnail grabs a frame into the workspace and copies it next to
// the published transcript. Best effort: any failure logs a warning and the
// run continues without a thumbnail.
func (e *Emitter) captureThumbnail(ctx context.Context, run *queue.Run, transcriptTarget string) {
	if !e.cfg.Transcoder.Thumbnail || e.ffmpeg == nil {
		return
	}
	logger := logging.WithContext(ctx, e.logger)

	mediaFile := strings.TrimSpace(run.MediaFile)
	if mediaFile == "" {
		logger.Debug("skipping thumbnail; no media artifact recorded")
		return
	}
	if _, err := os.Stat(mediaFile); err != nil {
		logger.Debug("skipping thumbnail; media artifact unavailable", logging.Error(err))
		return
	}
	ws, err := workspace.Attach(run.WorkspacePath)
	if err != nil {
		logging.WarnWithContext(logger, "thumbnail capture skipped; workspace unavailable", "thumbnail_capture_failed",
			logging.Error(err))
		return
	}

	staging := ws.ThumbnailFile()
	offset := e.cfg.Transcoder.ThumbnailOffsetSeconds
	width := e.cfg.Transcoder.ThumbnailWidth
	if err := e.ffmpeg.ExtractThumbnail(ctx, mediaFile, staging, offset, width); err != nil {
		logging.WarnWithContext(logger, "thumbnail capture failed; continuing without thumbnail", "thumbnail_capture_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check the ffmpeg installation and the fetched media"))
		return
	}

	published := strings.TrimSuffix(transcriptTarget, filepath.Ext(transcriptTarget)) + ".jpg"
	if err := fileutil.CopyFile(staging, published); err != nil {
		logging.WarnWithContext(logger, "thumbnail publish failed; continuing without thumbnail", "thumbnail_publish_failed",
			logging.Error(err))
		return
	}
	run.ThumbnailFile = published
	logger.Info("thumbnail published", logging.String("thumbnail_file", published))
}

func (e *Emitter) updateProgress(ctx context.Context, run *queue.Run, message string, percent float64) error {
	run.SetProgress(progressStageEmitting, message, percent)
	if e.store == nil {
		return nil
	}
	if err := e.store.UpdateProgress(ctx, run); err != nil {
		return services.Wrap(services.ErrTransient, "emitting", "persist progress",
			"Failed to persist emit progress", err)
	}
	return nil
}

func requireInputArtifact(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", services.Wrap(services.ErrValidation, "emitting", "validate inputs",
			"No transcript artifact recorded for this run; transcribe it first", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "emitting", "validate inputs",
			fmt.Sprintf("Transcript artifact %s is missing", path), err)
	}
	if info.Size() == 0 {
		return "", services.Wrap(services.ErrValidation, "emitting", "validate inputs",
			fmt.Sprintf("Transcript artifact %s is empty", path), nil)
	}
	return path, nil
}

// transcriptSlug derives the published filename stem from a run title.
func transcriptSlug(title string) string {
	if slug := textutil.Slug(title); slug != "" {
		return slug
	}
	return fallbackSlug
}

// nextPublishPath finds an unused filename for the slug: the bare name first,
// then numbered variants.
func nextPublishPath(dir, slug, ext string) (string, error) {
	const maxAttempts = 10000
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		name := slug + ext
		if attempt > 1 {
			name = fmt.Sprintf("%s-%d%s", slug, attempt, ext)
		}
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return candidate, nil
			}
			return "", err
		}
	}
	return "", fmt.Errorf("exhausted transcript filename slots in %s", dir)
}
