package transcoding_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/services/ffmpeg"
	"scribe/internal/testsupport"
	"scribe/internal/transcoding"
	"scribe/internal/workspace"
)

func newTranscodeRun(t *testing.T) (*config.Config, *queue.Store, *queue.Run) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.NewRun(t, store, "https://example.com/watch?v=abc123")

	ws, err := workspace.NewManager(cfg).CreateRun(context.Background())
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	run.WorkspacePath = ws.Root
	run.MediaFile = ws.MediaFile(".mp4")
	testsupport.WriteFile(t, run.MediaFile, 4096)
	return cfg, store, run
}

func TestTranscoderExtractsAudio(t *testing.T) {
	cfg, store, run := newTranscodeRun(t)

	var gotName string
	var gotArgs []string
	service := ffmpeg.NewService(cfg)
	service.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		gotName = name
		gotArgs = args
		return os.WriteFile(args[len(args)-1], []byte("RIFF fake wav"), 0o644)
	})

	transcoder := transcoding.NewTranscoderWithService(cfg, store, logging.NewNop(), service)
	if err := transcoder.Prepare(context.Background(), run); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if run.ProgressStage != "Transcoding" {
		t.Fatalf("ProgressStage = %q, want Transcoding", run.ProgressStage)
	}
	if err := transcoder.Execute(context.Background(), run); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if gotName != "ffmpeg" {
		t.Fatalf("binary = %q, want ffmpeg", gotName)
	}
	joined := strings.Join(gotArgs, " ")
	for _, fragment := range []string{"-ac 1", "-ar 16000", "-c:a pcm_s16le", run.MediaFile} {
		if !strings.Contains(joined, fragment) {
			t.Fatalf("args %q missing %q", joined, fragment)
		}
	}
	if !strings.HasSuffix(run.AudioFile, "audio.wav") {
		t.Fatalf("AudioFile = %q, want audio.wav artifact", run.AudioFile)
	}
	if filepath.Dir(run.AudioFile) != run.WorkspacePath {
		t.Fatalf("AudioFile = %q, want inside workspace %q", run.AudioFile, run.WorkspacePath)
	}
	if run.ProgressPercent != 100 {
		t.Fatalf("ProgressPercent = %v, want 100", run.ProgressPercent)
	}
}

func TestTranscoderRerunProducesIdenticalAudio(t *testing.T) {
	cfg, store, run := newTranscodeRun(t)

	calls := 0
	service := ffmpeg.NewService(cfg)
	service.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		calls++
		return os.WriteFile(args[len(args)-1], []byte("RIFF fake wav"), 0o644)
	})

	transcoder := transcoding.NewTranscoderWithService(cfg, store, logging.NewNop(), service)
	if err := transcoder.Execute(context.Background(), run); err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	first, err := os.ReadFile(run.AudioFile)
	if err != nil {
		t.Fatalf("read audio: %v", err)
	}

	if err := transcoder.Execute(context.Background(), run); err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	second, err := os.ReadFile(run.AudioFile)
	if err != nil {
		t.Fatalf("read audio after rerun: %v", err)
	}

	if calls != 2 {
		t.Fatalf("runner calls = %d, want 2", calls)
	}
	if !bytes.Equal(first, second) {
		t.Fatalf("rerun audio differs: %q vs %q", first, second)
	}
}

func TestTranscoderRequiresMediaArtifact(t *testing.T) {
	t.Run("unrecorded", func(t *testing.T) {
		cfg, store, run := newTranscodeRun(t)
		run.MediaFile = ""
		transcoder := transcoding.NewTranscoderWithService(cfg, store, logging.NewNop(), ffmpeg.NewService(cfg))
		err := transcoder.Execute(context.Background(), run)
		if !errors.Is(err, services.ErrValidation) {
			t.Fatalf("err = %v, want validation error", err)
		}
		if !strings.Contains(err.Error(), "fetch it first") {
			t.Fatalf("err = %v, want fetch hint", err)
		}
	})

	t.Run("missing", func(t *testing.T) {
		cfg, store, run := newTranscodeRun(t)
		run.MediaFile = filepath.Join(run.WorkspacePath, "nope.mp4")
		transcoder := transcoding.NewTranscoderWithService(cfg, store, logging.NewNop(), ffmpeg.NewService(cfg))
		err := transcoder.Execute(context.Background(), run)
		if !errors.Is(err, services.ErrValidation) || !strings.Contains(err.Error(), "missing") {
			t.Fatalf("err = %v, want missing-artifact validation", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		cfg, store, run := newTranscodeRun(t)
		if err := os.Truncate(run.MediaFile, 0); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		transcoder := transcoding.NewTranscoderWithService(cfg, store, logging.NewNop(), ffmpeg.NewService(cfg))
		err := transcoder.Execute(context.Background(), run)
		if !errors.Is(err, services.ErrValidation) || !strings.Contains(err.Error(), "empty") {
			t.Fatalf("err = %v, want empty-artifact validation", err)
		}
	})
}

func TestTranscoderSurfacesToolFailure(t *testing.T) {
	cfg, store, run := newTranscodeRun(t)

	service := ffmpeg.NewService(cfg)
	service.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		return errors.New("ffmpeg: exit status 1: Invalid data found when processing input")
	})

	transcoder := transcoding.NewTranscoderWithService(cfg, store, logging.NewNop(), service)
	err := transcoder.Execute(context.Background(), run)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("err = %v, want external tool error", err)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("err = %v, want captured tool output", err)
	}
}

func TestTranscoderPassesThroughContextExpiry(t *testing.T) {
	cfg, store, run := newTranscodeRun(t)

	service := ffmpeg.NewService(cfg)
	service.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		return context.DeadlineExceeded
	})

	transcoder := transcoding.NewTranscoderWithService(cfg, store, logging.NewNop(), service)
	err := transcoder.Execute(context.Background(), run)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline to pass through", err)
	}
	if errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("err = %v, deadline should not be tagged as tool failure", err)
	}
}

func TestTranscoderHealthCheck(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("ffmpeg"))
	store := testsupport.MustOpenStore(t, cfg)

	transcoder := transcoding.NewTranscoder(cfg, store, logging.NewNop())
	if health := transcoder.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("health = %+v, want ready", health)
	}

	cfg.Transcoder.FFmpegBinary = "definitely-missing-transcoder"
	missing := transcoding.NewTranscoder(cfg, store, logging.NewNop())
	if health := missing.HealthCheck(context.Background()); health.Ready || !strings.Contains(health.Detail, "not found") {
		t.Fatalf("health = %+v, want missing-binary detail", health)
	}
}
