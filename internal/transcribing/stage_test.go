package transcribing_test

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/services/whisper"
	"scribe/internal/testsupport"
	"scribe/internal/transcribing"
	"scribe/internal/workspace"
)

func newTranscribeRun(t *testing.T) (*config.Config, *queue.Store, *queue.Run) {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.NewRun(t, store, "https://example.com/watch?v=abc123")

	ws, err := workspace.NewManager(cfg).CreateRun(context.Background())
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	run.WorkspacePath = ws.Root
	run.AudioFile = ws.AudioFile()
	testsupport.WriteFile(t, run.AudioFile, 2048)
	return cfg, store, run
}

// audioPathFromArgs extracts the -f value the engine was invoked with.
func audioPathFromArgs(args []string) string {
	for i, arg := range args {
		if arg == "-f" && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func TestTranscriberGeneratesTranscript(t *testing.T) {
	cfg, store, run := newTranscribeRun(t)

	var gotName string
	var gotArgs []string
	service := whisper.NewService(cfg)
	service.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		gotName = name
		gotArgs = args
		return os.WriteFile(audioPathFromArgs(args)+".txt", []byte("Add two cups of flour.\n"), 0o644)
	})

	transcriber := transcribing.NewTranscriberWithService(cfg, store, logging.NewNop(), service)
	if err := transcriber.Prepare(context.Background(), run); err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if run.ProgressStage != "Transcribing" {
		t.Fatalf("ProgressStage = %q, want Transcribing", run.ProgressStage)
	}
	if err := transcriber.Execute(context.Background(), run); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	if gotName != "whisper-cli" {
		t.Fatalf("binary = %q, want whisper-cli", gotName)
	}
	joined := strings.Join(gotArgs, " ")
	for _, fragment := range []string{"-m " + cfg.Transcriber.ModelPath, "-f " + run.AudioFile, "-l auto", "--no-timestamps", "-otxt"} {
		if !strings.Contains(joined, fragment) {
			t.Fatalf("args %q missing %q", joined, fragment)
		}
	}
	if run.TranscriptFile != run.AudioFile+".txt" {
		t.Fatalf("TranscriptFile = %q, want %q", run.TranscriptFile, run.AudioFile+".txt")
	}
	text, err := os.ReadFile(run.TranscriptFile)
	if err != nil {
		t.Fatalf("read transcript: %v", err)
	}
	if string(text) != "Add two cups of flour.\n" {
		t.Fatalf("transcript = %q", text)
	}
	if run.ProgressPercent != 100 {
		t.Fatalf("ProgressPercent = %v, want 100", run.ProgressPercent)
	}
}

func TestTranscriberRequiresAudioArtifact(t *testing.T) {
	t.Run("unrecorded", func(t *testing.T) {
		cfg, store, run := newTranscribeRun(t)
		run.AudioFile = ""
		transcriber := transcribing.NewTranscriberWithService(cfg, store, logging.NewNop(), whisper.NewService(cfg))
		err := transcriber.Execute(context.Background(), run)
		if !errors.Is(err, services.ErrValidation) || !strings.Contains(err.Error(), "transcode it first") {
			t.Fatalf("err = %v, want transcode hint", err)
		}
	})

	t.Run("empty", func(t *testing.T) {
		cfg, store, run := newTranscribeRun(t)
		if err := os.Truncate(run.AudioFile, 0); err != nil {
			t.Fatalf("truncate: %v", err)
		}
		transcriber := transcribing.NewTranscriberWithService(cfg, store, logging.NewNop(), whisper.NewService(cfg))
		err := transcriber.Execute(context.Background(), run)
		if !errors.Is(err, services.ErrValidation) || !strings.Contains(err.Error(), "empty") {
			t.Fatalf("err = %v, want empty-artifact validation", err)
		}
	})
}

func TestTranscriberSurfacesToolFailure(t *testing.T) {
	cfg, store, run := newTranscribeRun(t)

	service := whisper.NewService(cfg)
	service.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		return errors.New("whisper-cli: exit status 3: failed to load model")
	})

	transcriber := transcribing.NewTranscriberWithService(cfg, store, logging.NewNop(), service)
	err := transcriber.Execute(context.Background(), run)
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("err = %v, want external tool error", err)
	}
	if !strings.Contains(err.Error(), "failed to load model") {
		t.Fatalf("err = %v, want captured tool output", err)
	}
	if run.TranscriptFile != "" {
		t.Fatalf("TranscriptFile = %q, want unset on failure", run.TranscriptFile)
	}
}

func TestTranscriberPassesThroughContextExpiry(t *testing.T) {
	cfg, store, run := newTranscribeRun(t)

	service := whisper.NewService(cfg)
	service.WithCommandRunner(func(ctx context.Context, name string, args ...string) error {
		return context.DeadlineExceeded
	})

	transcriber := transcribing.NewTranscriberWithService(cfg, store, logging.NewNop(), service)
	err := transcriber.Execute(context.Background(), run)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline to pass through", err)
	}
	if errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("err = %v, deadline should not be tagged as tool failure", err)
	}
}

func TestTranscriberHealthCheck(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries("whisper-cli"))
	store := testsupport.MustOpenStore(t, cfg)
	testsupport.WriteFile(t, cfg.Transcriber.ModelPath, 16)

	transcriber := transcribing.NewTranscriber(cfg, store, logging.NewNop())
	if health := transcriber.HealthCheck(context.Background()); !health.Ready {
		t.Fatalf("health = %+v, want ready", health)
	}

	if err := os.Remove(cfg.Transcriber.ModelPath); err != nil {
		t.Fatalf("remove model: %v", err)
	}
	if health := transcriber.HealthCheck(context.Background()); health.Ready || !strings.Contains(health.Detail, "model") {
		t.Fatalf("health = %+v, want model detail", health)
	}
}
