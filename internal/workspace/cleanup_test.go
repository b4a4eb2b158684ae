package workspace

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"scribe/internal/logging"
)

func TestCleanStaleInvalidPaths(t *testing.T) {
	for _, dir := range []string{"", "   ", "/nonexistent/path/12345"} {
		result := CleanStale(context.Background(), dir, time.Hour, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanStaleRemovesOldDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	oldDir := filepath.Join(tmpDir, "20240101-000000-deadbeef")
	if err := os.Mkdir(oldDir, 0o755); err != nil {
		t.Fatalf("create old dir: %v", err)
	}
	oldTime := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldDir, oldTime, oldTime); err != nil {
		t.Fatalf("set old time: %v", err)
	}

	recentDir := filepath.Join(tmpDir, "20990101-000000-cafebabe")
	if err := os.Mkdir(recentDir, 0o755); err != nil {
		t.Fatalf("create recent dir: %v", err)
	}

	result := CleanStale(context.Background(), tmpDir, time.Hour, logging.NewNop())

	if len(result.Removed) != 1 {
		t.Fatalf("expected 1 removed, got %d", len(result.Removed))
	}
	if result.Removed[0] != oldDir {
		t.Errorf("expected %s to be removed, got %s", oldDir, result.Removed[0])
	}

	if _, err := os.Stat(oldDir); !os.IsNotExist(err) {
		t.Error("old directory should have been removed")
	}
	if _, err := os.Stat(recentDir); err != nil {
		t.Error("recent directory should still exist")
	}
}

func TestCleanStaleIgnoresFiles(t *testing.T) {
	tmpDir := t.TempDir()

	oldFile := filepath.Join(tmpDir, "old-file.txt")
	if err := os.WriteFile(oldFile, []byte("test"), 0o644); err != nil {
		t.Fatalf("create file: %v", err)
	}
	oldTime := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(oldFile, oldTime, oldTime); err != nil {
		t.Fatalf("set old time: %v", err)
	}

	result := CleanStale(context.Background(), tmpDir, time.Hour, logging.NewNop())

	if len(result.Removed) != 0 {
		t.Errorf("expected no removals for files, got %d", len(result.Removed))
	}
	if _, err := os.Stat(oldFile); err != nil {
		t.Error("file should not have been removed")
	}
}

func TestCleanOrphanedEmptyDir(t *testing.T) {
	for _, dir := range []string{"", "   "} {
		result := CleanOrphaned(context.Background(), dir, nil, logging.NewNop())
		if len(result.Removed) != 0 || len(result.Errors) != 0 {
			t.Errorf("expected empty result for path %q", dir)
		}
	}
}

func TestCleanOrphanedRemovesUnreferencedDirs(t *testing.T) {
	tmpDir := t.TempDir()

	liveDir := filepath.Join(tmpDir, "20260825-101500-aa11bb22")
	if err := os.Mkdir(liveDir, 0o755); err != nil {
		t.Fatalf("create live dir: %v", err)
	}

	orphanDir := filepath.Join(tmpDir, "20260825-093000-cc33dd44")
	if err := os.Mkdir(orphanDir, 0o755); err != nil {
		t.Fatalf("create orphan dir: %v", err)
	}

	active := map[string]struct{}{
		"20260825-101500-aa11bb22": {},
	}

	result := CleanOrphaned(context.Background(), tmpDir, active, logging.NewNop())

	if len(result.Removed) != 1 {
		t.Fatalf("expected 1 removed, got %d", len(result.Removed))
	}
	if result.Removed[0] != orphanDir {
		t.Errorf("expected %s to be removed, got %s", orphanDir, result.Removed[0])
	}

	if _, err := os.Stat(orphanDir); !os.IsNotExist(err) {
		t.Error("orphan directory should have been removed")
	}
	if _, err := os.Stat(liveDir); err != nil {
		t.Error("live directory should still exist")
	}
}

func TestListDirectoriesInvalidPaths(t *testing.T) {
	for _, path := range []string{"", "/nonexistent/path/12345"} {
		dirs, err := ListDirectories(path)
		if err != nil {
			t.Fatalf("unexpected error for %q: %v", path, err)
		}
		if dirs != nil {
			t.Errorf("expected nil for path %q, got %v", path, dirs)
		}
	}
}

func TestListDirectories(t *testing.T) {
	tmpDir := t.TempDir()

	dir1 := filepath.Join(tmpDir, "run-1")
	if err := os.Mkdir(dir1, 0o755); err != nil {
		t.Fatalf("create dir1: %v", err)
	}

	dir2 := filepath.Join(tmpDir, "run-2")
	if err := os.Mkdir(dir2, 0o755); err != nil {
		t.Fatalf("create dir2: %v", err)
	}

	file := filepath.Join(tmpDir, "not-a-dir.txt")
	if err := os.WriteFile(file, []byte("test"), 0o644); err != nil {
		t.Fatalf("create file: %v", err)
	}

	innerFile := filepath.Join(dir1, "audio.wav")
	if err := os.WriteFile(innerFile, []byte("12345"), 0o644); err != nil {
		t.Fatalf("create inner file: %v", err)
	}

	dirs, err := ListDirectories(tmpDir)
	if err != nil {
		t.Fatalf("ListDirectories: %v", err)
	}

	if len(dirs) != 2 {
		t.Fatalf("expected 2 directories, got %d", len(dirs))
	}

	var foundDir1 bool
	for _, d := range dirs {
		if d.Name == "run-1" {
			foundDir1 = true
			if d.Size != 5 {
				t.Errorf("run-1 size = %d, want 5", d.Size)
			}
			if d.ModTime.IsZero() {
				t.Error("ModTime should not be zero")
			}
		}
	}
	if !foundDir1 {
		t.Error("did not find run-1 in results")
	}
}
