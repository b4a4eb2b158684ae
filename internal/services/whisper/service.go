package whisper

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"scribe/internal/config"
	"scribe/internal/language"
)

// Service wraps a whisper.cpp-style transcription binary.
type Service struct {
	binary        string
	modelPath     string
	language      string
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates a transcription service from configuration.
func NewService(cfg *config.Config) *Service {
	binary := strings.TrimSpace(cfg.Transcriber.Binary)
	if binary == "" {
		binary = "whisper-cli"
	}
	return &Service{
		binary:    binary,
		modelPath: strings.TrimSpace(cfg.Transcriber.ModelPath),
		language:  engineLanguage(cfg.Transcriber.Language),
	}
}

// engineLanguage maps the configured language to the engine's -l value.
// Names and 3-letter codes normalize to ISO 639-1; unrecognized values pass
// through so the engine reports them with its own diagnostics.
func engineLanguage(configured string) string {
	lang := strings.TrimSpace(configured)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return "auto"
	}
	if code := language.ToISO2(lang); code != "" {
		return code
	}
	return lang
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Binary returns the configured transcriber binary name for lookups and
// logging.
func (s *Service) Binary() string {
	return s.binary
}

// ModelPath returns the configured model file path.
func (s *Service) ModelPath() string {
	return s.modelPath
}

// Transcribe runs the speech-to-text engine over a WAV file. On success the
// engine leaves a plain-text transcript at TranscriptPath(audioPath); that
// path is returned without verifying the engine honored the contract.
func (s *Service) Transcribe(ctx context.Context, audioPath string) (string, error) {
	if strings.TrimSpace(audioPath) == "" {
		return "", fmt.Errorf("transcribe: audio path required")
	}
	if s.modelPath == "" {
		return "", fmt.Errorf("transcribe: model path required")
	}
	if err := s.run(ctx, s.buildArgs(audioPath)...); err != nil {
		return "", err
	}
	return TranscriptPath(audioPath), nil
}

// TranscriptPath returns where the engine writes its plain-text output for
// the given audio file.
func TranscriptPath(audioPath string) string {
	return audioPath + ".txt"
}

func (s *Service) buildArgs(audioPath string) []string {
	return []string{
		"-m", s.modelPath,
		"-f", audioPath,
		"-l", s.language,
		"--no-timestamps",
		"-otxt",
	}
}

// run executes the transcriber, using the custom runner if set. Context
// expiry is surfaced as the context error for timeout classification.
func (s *Service) run(ctx context.Context, args ...string) error {
	if s.commandRunner != nil {
		return s.commandRunner(ctx, s.binary, args...)
	}
	cmd := exec.CommandContext(ctx, s.binary, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%s: %w", s.binary, ctxErr)
		}
		return fmt.Errorf("%s: %w: %s", s.binary, err, strings.TrimSpace(string(output)))
	}
	return nil
}
