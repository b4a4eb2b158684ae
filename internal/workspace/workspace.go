package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"scribe/internal/config"
	"scribe/internal/logging"
	"scribe/internal/services"
)

// Artifact names inside a run directory. Each artifact is written exactly
// once by the stage that owns it and read by at most the next stage.
const (
	MediaBaseName  = "video"
	AudioName      = "audio.wav"
	TranscriptName = "audio.wav.txt"
	ThumbnailName  = "thumbnail.jpg"
)

// Run is a scoped working directory for one pipeline execution.
type Run struct {
	// ID is the directory base name: UTC timestamp plus a short random suffix.
	ID string
	// Root is the absolute path of the run directory.
	Root string
}

// Manager creates run directories under the configured workspace base.
type Manager struct {
	baseDir string
}

// NewManager returns a Manager rooted at the configured workspace directory.
func NewManager(cfg *config.Config) *Manager {
	return &Manager{baseDir: cfg.Paths.WorkspaceDir}
}

// BaseDir returns the workspace base directory.
func (m *Manager) BaseDir() string {
	return m.baseDir
}

// CreateRun makes a fresh uniquely-named run directory. Collisions retry
// with a new suffix; any filesystem failure surfaces as a storage error.
func (m *Manager) CreateRun(ctx context.Context) (*Run, error) {
	if strings.TrimSpace(m.baseDir) == "" {
		return nil, services.Wrap(services.ErrConfiguration, "workspace", "create run", "workspace directory is not configured", nil)
	}
	if err := os.MkdirAll(m.baseDir, 0o755); err != nil {
		return nil, services.Wrap(services.ErrStorage, "workspace", "create run", "create workspace base", err)
	}

	const attempts = 4
	var lastErr error
	for i := 0; i < attempts; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		id := newRunID()
		root := filepath.Join(m.baseDir, id)
		err := os.Mkdir(root, 0o755)
		if err == nil {
			return &Run{ID: id, Root: root}, nil
		}
		lastErr = err
		if !os.IsExist(err) {
			break
		}
	}
	return nil, services.Wrap(services.ErrStorage, "workspace", "create run", "create run directory", lastErr)
}

// Attach reconstructs a Run for an existing directory, for resumed runs
// whose workspace path was persisted with the queue record.
func Attach(root string) (*Run, error) {
	root = strings.TrimSpace(root)
	if root == "" {
		return nil, services.Wrap(services.ErrValidation, "workspace", "attach", "workspace path is empty", nil)
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, services.Wrap(services.ErrStorage, "workspace", "attach", "stat run directory", err)
	}
	if !info.IsDir() {
		return nil, services.Wrap(services.ErrStorage, "workspace", "attach", fmt.Sprintf("%s is not a directory", root), nil)
	}
	return &Run{ID: filepath.Base(root), Root: root}, nil
}

func newRunID() string {
	timestamp := time.Now().UTC().Format("20060102-150405")
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return timestamp + "-" + suffix
}

// Path joins an artifact name onto the run directory. Pure.
func (r *Run) Path(name string) string {
	return filepath.Join(r.Root, name)
}

// MediaFile returns the path for the fetched media artifact, carrying the
// source extension (defaults to .mp4 when the resolver suggests none).
func (r *Run) MediaFile(ext string) string {
	ext = strings.TrimSpace(strings.ToLower(ext))
	if ext == "" {
		ext = ".mp4"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return r.Path(MediaBaseName + ext)
}

// AudioFile returns the path for the transcoded PCM WAV artifact.
func (r *Run) AudioFile() string {
	return r.Path(AudioName)
}

// TranscriptFile returns the path the transcriber writes next to the audio
// artifact.
func (r *Run) TranscriptFile() string {
	return r.Path(TranscriptName)
}

// ThumbnailFile returns the path for the optional thumbnail artifact.
func (r *Run) ThumbnailFile() string {
	return r.Path(ThumbnailName)
}

// Cleanup removes the run directory unless keep is set. Removal failures
// are logged as warnings and never escalate; a leftover directory is
// reclaimed later by the stale janitor.
func (r *Run) Cleanup(keep bool, logger *slog.Logger) {
	if r == nil || r.Root == "" {
		return
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if keep {
		logger.Info("retaining run workspace",
			logging.String("path", r.Root),
			logging.String(logging.FieldEventType, "workspace_retained"),
		)
		return
	}
	if err := os.RemoveAll(r.Root); err != nil {
		logger.Warn("failed to remove run workspace",
			logging.String("path", r.Root),
			logging.Error(err),
			logging.String(logging.FieldEventType, "workspace_cleanup_failed"),
			logging.String(logging.FieldErrorHint, "remove the directory manually or run 'scribe clean'"),
		)
		return
	}
	logger.Info("removed run workspace",
		logging.String("path", r.Root),
		logging.String(logging.FieldEventType, "workspace_cleanup"),
	)
}
