package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"scribe/internal/config"
)

const (
	defaultThumbnailOffset = 3
	defaultThumbnailWidth  = 800
)

// Service wraps the ffmpeg binary for audio extraction and thumbnail capture.
type Service struct {
	binary        string
	commandRunner func(ctx context.Context, name string, args ...string) error
}

// NewService creates an ffmpeg service from configuration.
func NewService(cfg *config.Config) *Service {
	binary := strings.TrimSpace(cfg.Transcoder.FFmpegBinary)
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Service{binary: binary}
}

// WithCommandRunner sets a custom command runner (for testing).
func (s *Service) WithCommandRunner(runner func(ctx context.Context, name string, args ...string) error) {
	s.commandRunner = runner
}

// Binary returns the configured ffmpeg binary name for lookups and logging.
func (s *Service) Binary() string {
	return s.binary
}

// ExtractAudio converts the media file into a mono 16kHz 16-bit PCM WAV,
// the input format the transcriber expects. Existing destinations are
// overwritten.
func (s *Service) ExtractAudio(ctx context.Context, source, dest string) error {
	if strings.TrimSpace(source) == "" {
		return fmt.Errorf("extract audio: source path required")
	}
	if strings.TrimSpace(dest) == "" {
		return fmt.Errorf("extract audio: destination path required")
	}
	return s.run(ctx, buildExtractArgs(source, dest)...)
}

// ExtractThumbnail grabs a single frame from the media file, scaled to the
// requested width with preserved aspect ratio.
func (s *Service) ExtractThumbnail(ctx context.Context, source, dest string, offsetSeconds, width int) error {
	if strings.TrimSpace(source) == "" {
		return fmt.Errorf("extract thumbnail: source path required")
	}
	if strings.TrimSpace(dest) == "" {
		return fmt.Errorf("extract thumbnail: destination path required")
	}
	return s.run(ctx, buildThumbnailArgs(source, dest, offsetSeconds, width)...)
}

func buildExtractArgs(source, dest string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		dest,
	}
}

func buildThumbnailArgs(source, dest string, offsetSeconds, width int) []string {
	if offsetSeconds < 0 {
		offsetSeconds = defaultThumbnailOffset
	}
	if width <= 0 {
		width = defaultThumbnailWidth
	}
	return []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-ss", strconv.Itoa(offsetSeconds),
		"-i", source,
		"-vframes", "1",
		"-q:v", "2",
		"-vf", fmt.Sprintf("scale=%d:-1", width),
		dest,
	}
}

// run executes ffmpeg, using the custom runner if set. Context expiry is
// surfaced as the context error so callers can classify it as a timeout; a
// killed subprocess otherwise reports only "signal: killed".
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
