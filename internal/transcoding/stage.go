package transcoding

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"log/slog"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/services/ffmpeg"
	"scribe/internal/stage"
	"scribe/internal/workspace"
)

const (
	progressStageTranscoding = "Transcoding"
	progressPercentExtract   = 10.0
)

// Transcoder converts fetched media into the PCM WAV the transcriber expects.
type Transcoder struct {
	store   *queue.Store
	cfg     *config.Config
	logger  *slog.Logger
	service *ffmpeg.Service
}

// NewTranscoder constructs the transcode stage handler around ffmpeg.
func NewTranscoder(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Transcoder {
	return NewTranscoderWithService(cfg, store, logger, ffmpeg.NewService(cfg))
}

// NewTranscoderWithService allows injecting the ffmpeg service (used in tests).
func NewTranscoderWithService(cfg *config.Config, store *queue.Store, logger *slog.Logger, service *ffmpeg.Service) *Transcoder {
	return &Transcoder{
		store:   store,
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "transcoder"),
		service: service,
	}
}

// SetLogger routes stage logs into the run-scoped log.
func (t *Transcoder) SetLogger(logger *slog.Logger) {
	if t == nil {
		return
	}
	t.logger = logging.NewComponentLogger(logger, "transcoder")
}

// Prepare primes queue progress fields before extraction starts.
func (t *Transcoder) Prepare(ctx context.Context, run *queue.Run) error {
	if t == nil || t.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "transcoding", "prepare", "Transcode stage is not configured", nil)
	}
	run.InitProgress(progressStageTranscoding, "Preparing audio extraction")
	return nil
}

// Execute runs ffmpeg to extract mono 16 kHz 16-bit PCM audio from the
// fetched media artifact.
func (t *Transcoder) Execute(ctx context.Context, run *queue.Run) error {
	if t == nil || t.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "transcoding", "execute", "Transcode stage is not configured", nil)
	}
	if run == nil {
		return services.Wrap(services.ErrValidation, "transcoding", "execute", "Queue run is nil", nil)
	}
	if t.service == nil {
		return services.Wrap(services.ErrConfiguration, "transcoding", "execute", "ffmpeg service unavailable", nil)
	}
	logger := logging.WithContext(ctx, t.logger)

	mediaFile, err := requireInputArtifact(run.MediaFile)
	if err != nil {
		return err
	}
	ws, err := workspace.Attach(run.WorkspacePath)
	if err != nil {
		return services.Wrap(services.ErrStorage, "transcoding", "attach workspace", "Run workspace unavailable", err)
	}
	audioPath := ws.AudioFile()

	if err := t.updateProgress(ctx, run, "Extracting mono 16 kHz audio", progressPercentExtract); err != nil {
		return err
	}
	logger.Info(
		"starting audio extraction",
		logging.String("media_file", mediaFile),
		logging.String("audio_file", audioPath),
	)

	if err := t.service.ExtractAudio(ctx, mediaFile, audioPath); err != nil {
		return classifyExecError("transcoding", "extract audio", "Audio extraction failed", err)
	}

	run.AudioFile = audioPath
	run.SetProgressComplete(progressStageTranscoding, "Audio extracted")
	logger.Info("audio extraction complete", logging.String("audio_file", audioPath))
	return nil
}

// HealthCheck verifies the ffmpeg dependency.
func (t *Transcoder) HealthCheck(ctx context.Context) stage.Health {
	const name = "transcoder"
	if t == nil || t.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if t.service == nil {
		return stage.Unhealthy(name, "ffmpeg service unavailable")
	}
	binary := strings.TrimSpace(t.service.Binary())
	if binary == "" {
		return stage.Unhealthy(name, "ffmpeg binary not configured")
	}
	if _, err := exec.LookPath(binary); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("ffmpeg binary %q not found", binary))
	}
	return stage.Healthy(name)
}

func (t *Transcoder) updateProgress(ctx context.Context, run *queue.Run, message string, percent float64) error {
	run.SetProgress(progressStageTranscoding, message, percent)
	if t.store == nil {
		return nil
	}
	if err := t.store.UpdateProgress(ctx, run); err != nil {
		return services.Wrap(services.ErrTransient, "transcoding", "persist progress",
			"Failed to persist transcode progress", err)
	}
	return nil
}

// requireInputArtifact enforces the artifact chain: the stage refuses to run
// when its input is unrecorded, missing, or empty.
func requireInputArtifact(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", services.Wrap(services.ErrValidation, "transcoding", "validate inputs",
			"No media artifact recorded for this run; fetch it first", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "transcoding", "validate inputs",
			fmt.Sprintf("Media artifact %s is missing", path), err)
	}
	if info.Size() == 0 {
		return "", services.Wrap(services.ErrValidation, "transcoding", "validate inputs",
			fmt.Sprintf("Media artifact %s is empty", path), nil)
	}
	return path, nil
}

// classifyExecError tags subprocess failures as external tool errors while
// letting context expiry pass through for timeout mapping.
func classifyExecError(stageName, operation, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return services.Wrap(services.ErrExternalTool, stageName, operation, message, err)
}
