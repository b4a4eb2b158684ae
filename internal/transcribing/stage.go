package transcribing

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
	"scribe/internal/services/whisper"
	"scribe/internal/stage"
)

const (
	progressStageTranscribing = "Transcribing"
	progressPercentRecognize  = 10.0
)

// Transcriber turns the PCM audio artifact into a plain-text transcript.
type Transcriber struct {
	store   *queue.Store
	cfg     *config.Config
	logger  *slog.Logger
	service *whisper.Service
}

// NewTranscriber constructs the transcribe stage handler around the
// configured speech-to-text engine.
func NewTranscriber(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Transcriber {
	return NewTranscriberWithService(cfg, store, logger, whisper.NewService(cfg))
}

// NewTranscriberWithService allows injecting the engine service (used in tests).
func NewTranscriberWithService(cfg *config.Config, store *queue.Store, logger *slog.Logger, service *whisper.Service) *Transcriber {
	return &Transcriber{
		store:   store,
		cfg:     cfg,
		logger:  logging.NewComponentLogger(logger, "transcriber"),
		service: service,
	}
}

// SetLogger routes stage logs into the run-scoped log.
func (t *Transcriber) SetLogger(logger *slog.Logger) {
	if t == nil {
		return
	}
	t.logger = logging.NewComponentLogger(logger, "transcriber")
}

// Prepare primes queue progress fields before recognition starts.
func (t *Transcriber) Prepare(ctx context.Context, run *queue.Run) error {
	if t == nil || t.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "transcribing", "prepare", "Transcribe stage is not configured", nil)
	}
	run.InitProgress(progressStageTranscribing, "Preparing transcription")
	return nil
}

// Execute runs the speech-to-text engine over the audio artifact. The engine
// writes the transcript next to its input; the recorded path is verified by
// the stage runner's output guard.
func (t *Transcriber) Execute(ctx context.Context, run *queue.Run) error {
	if t == nil || t.cfg == nil {
		return services.Wrap(services.ErrConfiguration, "transcribing", "execute", "Transcribe stage is not configured", nil)
	}
	if run == nil {
		return services.Wrap(services.ErrValidation, "transcribing", "execute", "Queue run is nil", nil)
	}
	if t.service == nil {
		return services.Wrap(services.ErrConfiguration, "transcribing", "execute", "Transcription service unavailable", nil)
	}
	logger := logging.WithContext(ctx, t.logger)

	audioFile, err := requireInputArtifact(run.AudioFile)
	if err != nil {
		return err
	}
	if err := t.updateProgress(ctx, run, "Running speech recognition", progressPercentRecognize); err != nil {
		return err
	}
	logger.Info(
		"starting transcription",
		logging.String("audio_file", audioFile),
		logging.String("model", t.service.ModelPath()),
	)

	transcriptPath, err := t.service.Transcribe(ctx, audioFile)
	if err != nil {
		return classifyExecError("transcribing", "transcribe audio", "Transcription failed", err)
	}

	run.TranscriptFile = transcriptPath
	run.SetProgressComplete(progressStageTranscribing, "Transcript generated")
	logger.Info("transcription complete", logging.String("transcript_file", transcriptPath))
	return nil
}

// HealthCheck verifies the speech-to-text dependencies.
func (t *Transcriber) HealthCheck(ctx context.Context) stage.Health {
	const name = "transcriber"
	if t == nil || t.cfg == nil {
		return stage.Unhealthy(name, "configuration unavailable")
	}
	if t.service == nil {
		return stage.Unhealthy(name, "transcription service unavailable")
	}
	binary := strings.TrimSpace(t.service.Binary())
	if binary == "" {
		return stage.Unhealthy(name, "transcriber binary not configured")
	}
	if _, err := exec.LookPath(binary); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("transcriber binary %q not found", binary))
	}
	modelPath := strings.TrimSpace(t.service.ModelPath())
	if modelPath == "" {
		return stage.Unhealthy(name, "whisper model not configured")
	}
	if _, err := os.Stat(modelPath); err != nil {
		return stage.Unhealthy(name, fmt.Sprintf("whisper model %q not found", modelPath))
	}
	return stage.Healthy(name)
}

func (t *Transcriber) updateProgress(ctx context.Context, run *queue.Run, message string, percent float64) error {
	run.SetProgress(progressStageTranscribing, message, percent)
	if t.store == nil {
		return nil
	}
	if err := t.store.UpdateProgress(ctx, run); err != nil {
		return services.Wrap(services.ErrTransient, "transcribing", "persist progress",
			"Failed to persist transcription progress", err)
	}
	return nil
}

func requireInputArtifact(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", services.Wrap(services.ErrValidation, "transcribing", "validate inputs",
			"No audio artifact recorded for this run; transcode it first", nil)
	}
	info, err := os.Stat(path)
	if err != nil {
		return "", services.Wrap(services.ErrValidation, "transcribing", "validate inputs",
			fmt.Sprintf("Audio artifact %s is missing", path), err)
	}
	if info.Size() == 0 {
		return "", services.Wrap(services.ErrValidation, "transcribing", "validate inputs",
			fmt.Sprintf("Audio artifact %s is empty", path), nil)
	}
	return path, nil
}

func classifyExecError(stageName, operation, message string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return services.Wrap(services.ErrExternalTool, stageName, operation, message, err)
}
