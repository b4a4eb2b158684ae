package pipeline_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"scribe/internal/logging"
	"scribe/internal/pipeline"
	"scribe/internal/queue"
	"scribe/internal/services"
	"scribe/internal/testsupport"
	"scribe/internal/workspace"
)

// Shell stubs for the external tools. The ffmpeg stub writes its last
// argument, covering both audio extraction and thumbnail capture; the
// whisper stub writes the transcript next to its -f argument.
const (
	ffmpegWritesOutput = "#!/bin/sh\nfor arg; do out=\"$arg\"; done\nprintf 'RIFFdataWAVE' > \"$out\"\n"

	whisperWritesTranscript = `#!/bin/sh
prev=""
audio=""
for arg; do
  if [ "$prev" = "-f" ]; then audio="$arg"; fi
  prev="$arg"
done
printf 'Add two cups of flour.\n' > "${audio}.txt"
`
)

type stubNotifier struct {
	mu        sync.Mutex
	completed []string
	failed    []string
	starts    []int
	drains    [][2]int
}

func (s *stubNotifier) NotifyRunCompleted(_ context.Context, title, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed = append(s.completed, title)
	return nil
}

func (s *stubNotifier) NotifyRunFailed(_ context.Context, title string, _ error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, title)
	return nil
}

func (s *stubNotifier) NotifyQueueStarted(_ context.Context, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.starts = append(s.starts, count)
	return nil
}

func (s *stubNotifier) NotifyQueueDrained(_ context.Context, processed, failed int, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drains = append(s.drains, [2]int{processed, failed})
	return nil
}

func (s *stubNotifier) TestNotification(context.Context) error { return nil }

func (s *stubNotifier) snapshot() (completed, failed []string, starts []int, drains [][2]int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.completed...),
		append([]string(nil), s.failed...),
		append([]int(nil), s.starts...),
		append([][2]int(nil), s.drains...)
}

func newMediaServer(t *testing.T, payloadSize int) *httptest.Server {
	t.Helper()
	payload := bytes.Repeat([]byte{0x42}, payloadSize)
	mux := http.NewServeMux()
	mux.HandleFunc("/media/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "video/mp4")
		_, _ = w.Write(payload)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newResolverServer(t *testing.T, mediaURL, filename string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"status":"tunnel","url":%q,"filename":%q}`, mediaURL, filename)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestPipelineExecutesAllStages(t *testing.T) {
	media := newMediaServer(t, 5<<20)
	resolver := newResolverServer(t, media.URL+"/media/clip.mp4", "Spring Recital.mp4")

	cfg := testsupport.NewConfig(t,
		testsupport.WithResolverEndpoint(resolver.URL),
		testsupport.WithBinaryScript("ffmpeg", ffmpegWritesOutput),
		testsupport.WithBinaryScript("whisper-cli", whisperWritesTranscript),
	)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.NewRun(t, store, "https://example.com/watch?v=abc123")

	notifier := &stubNotifier{}
	pipe := pipeline.NewWithNotifier(cfg, store, logging.NewNop(), notifier)

	result, err := pipe.Execute(context.Background(), run)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got, want := strings.TrimSpace(result.Text), "Add two cups of flour."; got != want {
		t.Fatalf("transcript text = %q, want %q", got, want)
	}
	wantPath := filepath.Join(cfg.Paths.TranscriptsDir, "spring-recital.txt")
	if result.TranscriptPath != wantPath {
		t.Fatalf("transcript path = %q, want %q", result.TranscriptPath, wantPath)
	}

	stored, err := store.GetByID(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != queue.StatusCompleted {
		t.Fatalf("status = %s, want %s", stored.Status, queue.StatusCompleted)
	}
	if stored.FinalFile != wantPath {
		t.Fatalf("final file = %q, want %q", stored.FinalFile, wantPath)
	}
	if stored.ProgressPercent != 100 {
		t.Fatalf("progress percent = %v, want 100", stored.ProgressPercent)
	}
	if stored.Title != "Spring Recital" {
		t.Fatalf("title = %q, want %q", stored.Title, "Spring Recital")
	}
	wantThumb := filepath.Join(cfg.Paths.TranscriptsDir, "spring-recital.jpg")
	if stored.ThumbnailFile != wantThumb {
		t.Fatalf("thumbnail = %q, want %q", stored.ThumbnailFile, wantThumb)
	}
	if _, err := os.Stat(wantThumb); err != nil {
		t.Fatalf("expected published thumbnail: %v", err)
	}
	if _, err := os.Stat(stored.WorkspacePath); !os.IsNotExist(err) {
		t.Fatalf("expected workspace removed, stat err = %v", err)
	}

	completed, failed, _, _ := notifier.snapshot()
	if len(completed) != 1 || completed[0] != "Spring Recital" {
		t.Fatalf("completion notifications = %v", completed)
	}
	if len(failed) != 0 {
		t.Fatalf("unexpected failure notifications: %v", failed)
	}
}

func TestPipelineKeepsWorkspaceWhenConfigured(t *testing.T) {
	media := newMediaServer(t, 4096)
	resolver := newResolverServer(t, media.URL+"/media/clip.mp4", "clip.mp4")

	cfg := testsupport.NewConfig(t,
		testsupport.WithResolverEndpoint(resolver.URL),
		testsupport.WithBinaryScript("ffmpeg", ffmpegWritesOutput),
		testsupport.WithBinaryScript("whisper-cli", whisperWritesTranscript),
	)
	cfg.Workflow.KeepWorkspaces = true
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.NewRun(t, store, "https://example.com/watch?v=keep")

	pipe := pipeline.NewWithNotifier(cfg, store, logging.NewNop(), &stubNotifier{})
	if _, err := pipe.Execute(context.Background(), run); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if _, err := os.Stat(run.WorkspacePath); err != nil {
		t.Fatalf("expected workspace retained: %v", err)
	}
}

func TestPipelineResumesFromTranscribedRun(t *testing.T) {
	// The resolver endpoint is unreachable on purpose: resuming from
	// transcribed must not touch the earlier stages.
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.NewRun(t, store, "https://example.com/watch?v=resume")

	ws, err := workspace.NewManager(cfg).CreateRun(context.Background())
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	transcript := ws.TranscriptFile()
	if err := os.WriteFile(transcript, []byte("resumed text\n"), 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}
	run.Status = queue.StatusTranscribed
	run.WorkspacePath = ws.Root
	run.TranscriptFile = transcript
	run.Title = "Resume Demo"
	if err := store.Update(context.Background(), run); err != nil {
		t.Fatalf("Update: %v", err)
	}

	pipe := pipeline.NewWithNotifier(cfg, store, logging.NewNop(), &stubNotifier{})
	result, err := pipe.Execute(context.Background(), run)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Text != "resumed text\n" {
		t.Fatalf("text = %q", result.Text)
	}
	wantPath := filepath.Join(cfg.Paths.TranscriptsDir, "resume-demo.txt")
	if result.TranscriptPath != wantPath {
		t.Fatalf("transcript path = %q, want %q", result.TranscriptPath, wantPath)
	}
	if run.Status != queue.StatusCompleted {
		t.Fatalf("status = %s, want %s", run.Status, queue.StatusCompleted)
	}
}

func TestPipelineFailsAtResolvingOnTimeout(t *testing.T) {
	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(1500 * time.Millisecond):
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"status":"tunnel","url":"http://127.0.0.1:9/media/clip.mp4"}`)
	}))
	t.Cleanup(slow.Close)

	cfg := testsupport.NewConfig(t, testsupport.WithResolverEndpoint(slow.URL))
	cfg.Resolver.TimeoutSeconds = 1
	cfg.Resolver.RetryAttempts = 1
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.NewRun(t, store, "https://example.com/watch?v=slow")

	notifier := &stubNotifier{}
	pipe := pipeline.NewWithNotifier(cfg, store, logging.NewNop(), notifier)

	_, err := pipe.Execute(context.Background(), run)
	var perr *pipeline.Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected pipeline.Error, got %v", err)
	}
	if perr.Stage != "resolving" {
		t.Fatalf("failing stage = %q, want resolving", perr.Stage)
	}
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient classification, got %v", err)
	}

	stored, err := store.GetByID(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != queue.StatusFailed {
		t.Fatalf("status = %s, want %s", stored.Status, queue.StatusFailed)
	}
	if _, err := os.Stat(stored.WorkspacePath); err != nil {
		t.Fatalf("expected failed workspace retained: %v", err)
	}
	_, failed, _, _ := notifier.snapshot()
	if len(failed) != 1 {
		t.Fatalf("failure notifications = %v", failed)
	}
}

func TestPipelineFailsTranscodingOnToolError(t *testing.T) {
	media := newMediaServer(t, 4096)
	resolver := newResolverServer(t, media.URL+"/media/clip.mp4", "clip.mp4")

	cfg := testsupport.NewConfig(t,
		testsupport.WithResolverEndpoint(resolver.URL),
		testsupport.WithBinaryScript("ffmpeg", "#!/bin/sh\necho 'Invalid data found when processing input' >&2\nexit 1\n"),
		testsupport.WithBinaryScript("whisper-cli", whisperWritesTranscript),
	)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.NewRun(t, store, "https://example.com/watch?v=garbled")

	pipe := pipeline.NewWithNotifier(cfg, store, logging.NewNop(), &stubNotifier{})

	_, err := pipe.Execute(context.Background(), run)
	var perr *pipeline.Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected pipeline.Error, got %v", err)
	}
	if perr.Stage != "transcoding" {
		t.Fatalf("failing stage = %q, want transcoding", perr.Stage)
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected external tool classification, got %v", err)
	}
	if !strings.Contains(err.Error(), "Invalid data found") {
		t.Fatalf("expected captured tool output in error, got %v", err)
	}

	entries, readErr := os.ReadDir(cfg.Paths.TranscriptsDir)
	if readErr == nil && len(entries) > 0 {
		t.Fatalf("expected no published transcript, found %d entries", len(entries))
	}
	if readErr != nil && !os.IsNotExist(readErr) {
		t.Fatalf("ReadDir: %v", readErr)
	}
}

func TestPipelineFailsTranscribingWhenTranscriptMissing(t *testing.T) {
	media := newMediaServer(t, 4096)
	resolver := newResolverServer(t, media.URL+"/media/clip.mp4", "clip.mp4")

	cfg := testsupport.NewConfig(t,
		testsupport.WithResolverEndpoint(resolver.URL),
		testsupport.WithBinaryScript("ffmpeg", ffmpegWritesOutput),
		testsupport.WithBinaryScript("whisper-cli", "#!/bin/sh\nexit 0\n"),
	)
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.NewRun(t, store, "https://example.com/watch?v=silent")

	pipe := pipeline.NewWithNotifier(cfg, store, logging.NewNop(), &stubNotifier{})

	_, err := pipe.Execute(context.Background(), run)
	var perr *pipeline.Error
	if !errors.As(err, &perr) {
		t.Fatalf("expected pipeline.Error, got %v", err)
	}
	if perr.Stage != "transcribing" {
		t.Fatalf("failing stage = %q, want transcribing", perr.Stage)
	}
	if !errors.Is(err, services.ErrMissingOutput) {
		t.Fatalf("expected missing output classification, got %v", err)
	}
}

func TestPipelineRejectsTerminalAndMidStageRuns(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	pipe := pipeline.NewWithNotifier(cfg, store, logging.NewNop(), &stubNotifier{})

	failedRun := testsupport.NewRun(t, store, "https://example.com/watch?v=failed")
	failedRun.SetFailed("boom")
	if err := store.Update(context.Background(), failedRun); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if _, err := pipe.Execute(context.Background(), failedRun); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for failed run, got %v", err)
	}

	midRun := testsupport.NewRun(t, store, "https://example.com/watch?v=mid")
	midRun.Status = queue.StatusFetching
	if err := store.Update(context.Background(), midRun); err != nil {
		t.Fatalf("Update: %v", err)
	}
	_, err := pipe.Execute(context.Background(), midRun)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for mid-stage run, got %v", err)
	}
	if !strings.Contains(err.Error(), "mid-stage") {
		t.Fatalf("expected mid-stage message, got %v", err)
	}
}

func TestPipelineReturnsPublishedResultForCompletedRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)

	if err := os.MkdirAll(cfg.Paths.TranscriptsDir, 0o755); err != nil {
		t.Fatalf("mkdir transcripts dir: %v", err)
	}
	final := filepath.Join(cfg.Paths.TranscriptsDir, "done.txt")
	if err := os.WriteFile(final, []byte("already published\n"), 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}

	run := testsupport.NewRun(t, store, "https://example.com/watch?v=done")
	run.Status = queue.StatusCompleted
	run.FinalFile = final
	if err := store.Update(context.Background(), run); err != nil {
		t.Fatalf("Update: %v", err)
	}

	pipe := pipeline.NewWithNotifier(cfg, store, logging.NewNop(), &stubNotifier{})
	result, err := pipe.Execute(context.Background(), run)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if result.Text != "already published\n" {
		t.Fatalf("text = %q", result.Text)
	}
	if result.TranscriptPath != final {
		t.Fatalf("path = %q, want %q", result.TranscriptPath, final)
	}
}

func TestPipelineMarksInterruptedRunOnCancel(t *testing.T) {
	var once sync.Once
	blocked := make(chan struct{})
	mux := http.NewServeMux()
	mux.HandleFunc("/media/", func(_ http.ResponseWriter, r *http.Request) {
		once.Do(func() { close(blocked) })
		<-r.Context().Done()
	})
	media := httptest.NewServer(mux)
	t.Cleanup(media.Close)
	resolver := newResolverServer(t, media.URL+"/media/clip.mp4", "clip.mp4")

	cfg := testsupport.NewConfig(t, testsupport.WithResolverEndpoint(resolver.URL))
	store := testsupport.MustOpenStore(t, cfg)
	run := testsupport.NewRun(t, store, "https://example.com/watch?v=blocked")

	pipe := pipeline.NewWithNotifier(cfg, store, logging.NewNop(), &stubNotifier{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		_, err := pipe.Execute(ctx, run)
		done <- err
	}()

	select {
	case <-blocked:
	case <-time.After(10 * time.Second):
		t.Fatal("media download never started")
	}
	cancel()

	var execErr error
	select {
	case execErr = <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("Execute did not return after cancellation")
	}
	if !errors.Is(execErr, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", execErr)
	}

	stored, err := store.GetByID(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if stored.Status != queue.StatusFailed {
		t.Fatalf("status = %s, want %s", stored.Status, queue.StatusFailed)
	}
	if stored.ErrorMessage != queue.InterruptedReason {
		t.Fatalf("error message = %q, want %q", stored.ErrorMessage, queue.InterruptedReason)
	}
}

func TestPipelineHealthReportsAllStages(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	testsupport.WriteFile(t, cfg.Transcriber.ModelPath, 64)
	store := testsupport.MustOpenStore(t, cfg)

	pipe := pipeline.New(cfg, store, logging.NewNop())
	checks := pipe.Health(context.Background())

	wantOrder := []string{"resolver", "fetcher", "transcoder", "transcriber", "emitter"}
	if len(checks) != len(wantOrder) {
		t.Fatalf("health checks = %d, want %d", len(checks), len(wantOrder))
	}
	for i, check := range checks {
		if check.Name != wantOrder[i] {
			t.Fatalf("check %d name = %q, want %q", i, check.Name, wantOrder[i])
		}
		if !check.Ready {
			t.Fatalf("stage %s not ready: %s", check.Name, check.Detail)
		}
	}
}
