package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"scribe/internal/config"
)

func TestLoadDefaultsUseEnvKeyAndExpandPaths(t *testing.T) {
	t.Setenv("SCRIBE_RESOLVER_ENDPOINT", "https://proxy.example.org/")
	t.Setenv("SCRIBE_API_KEY", "test-key")
	t.Setenv("SCRIBE_WHISPER_MODEL", "~/models/ggml-base.bin")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantWorkspace := filepath.Join(tempHome, ".local", "share", "scribe", "workspaces")
	if cfg.Paths.WorkspaceDir != wantWorkspace {
		t.Fatalf("unexpected workspace dir: got %q want %q", cfg.Paths.WorkspaceDir, wantWorkspace)
	}
	if cfg.Paths.TranscriptsDir != filepath.Join(tempHome, "transcripts") {
		t.Fatalf("unexpected transcripts dir: %q", cfg.Paths.TranscriptsDir)
	}
	if cfg.Resolver.APIKey != "test-key" {
		t.Fatalf("expected resolver key from env, got %q", cfg.Resolver.APIKey)
	}
	if cfg.Transcriber.ModelPath != filepath.Join(tempHome, "models", "ggml-base.bin") {
		t.Fatalf("expected model path from env, expanded, got %q", cfg.Transcriber.ModelPath)
	}
	if cfg.Transcriber.Language != "auto" {
		t.Fatalf("expected default language auto, got %q", cfg.Transcriber.Language)
	}
	if cfg.Transcoder.FFmpegBinary != "ffmpeg" {
		t.Fatalf("unexpected ffmpeg binary: %q", cfg.Transcoder.FFmpegBinary)
	}
	if !cfg.Transcoder.Thumbnail {
		t.Fatal("expected thumbnail capture enabled by default")
	}
	if cfg.Workflow.KeepWorkspaces {
		t.Fatal("expected keep_workspaces disabled by default")
	}
	if !cfg.Workflow.RetainFailedWorkspaces {
		t.Fatal("expected retain_failed_workspaces enabled by default")
	}
	if cfg.Resolver.RetryAttempts != 3 {
		t.Fatalf("unexpected retry attempts: %d", cfg.Resolver.RetryAttempts)
	}
	if cfg.Logging.Format != "auto" {
		t.Fatalf("unexpected log format: %q", cfg.Logging.Format)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.Paths.WorkspaceDir, cfg.Paths.TranscriptsDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "scribe.toml")

	type payload struct {
		Resolver struct {
			Endpoint      string `toml:"endpoint"`
			APIKey        string `toml:"api_key"`
			RetryAttempts int    `toml:"retry_attempts"`
		} `toml:"resolver"`
		Transcriber struct {
			ModelPath string `toml:"model_path"`
			Language  string `toml:"language"`
		} `toml:"transcriber"`
		Workflow struct {
			KeepWorkspaces bool `toml:"keep_workspaces"`
		} `toml:"workflow"`
	}
	custom := payload{}
	custom.Resolver.Endpoint = "https://proxy.example.org/"
	custom.Resolver.APIKey = "abc123"
	custom.Resolver.RetryAttempts = 5
	custom.Transcriber.ModelPath = filepath.Join(tempDir, "model.bin")
	custom.Transcriber.Language = "EN"
	custom.Workflow.KeepWorkspaces = true
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Resolver.Endpoint != "https://proxy.example.org/" {
		t.Fatalf("unexpected endpoint: %q", cfg.Resolver.Endpoint)
	}
	if cfg.Resolver.RetryAttempts != 5 {
		t.Fatalf("expected retry attempts 5, got %d", cfg.Resolver.RetryAttempts)
	}
	if cfg.Transcriber.Language != "en" {
		t.Fatalf("expected language lowercased, got %q", cfg.Transcriber.Language)
	}
	if !cfg.Workflow.KeepWorkspaces {
		t.Fatal("expected keep_workspaces from file")
	}
}

func TestEnvVarOverridesConfigFileAPIKey(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "scribe.toml")

	type payload struct {
		Resolver struct {
			Endpoint string `toml:"endpoint"`
			APIKey   string `toml:"api_key"`
		} `toml:"resolver"`
		Transcriber struct {
			ModelPath string `toml:"model_path"`
		} `toml:"transcriber"`
	}
	custom := payload{}
	custom.Resolver.Endpoint = "https://proxy.example.org/"
	custom.Resolver.APIKey = "file-key"
	custom.Transcriber.ModelPath = filepath.Join(tempDir, "model.bin")

	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	t.Setenv("SCRIBE_API_KEY", "env-key")

	cfg, _, _, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Resolver.APIKey != "env-key" {
		t.Errorf("expected resolver key from env, got %q", cfg.Resolver.APIKey)
	}
}

func TestAllowedHostsNormalized(t *testing.T) {
	cfg := config.Default()
	cfg.Resolver.Endpoint = "https://proxy.example.org/"
	cfg.Resolver.APIKey = "k"
	cfg.Transcriber.ModelPath = "/models/ggml.bin"
	cfg.Resolver.AllowedHosts = []string{" WWW.YouTube.com ", "youtu.be", "youtube.com", ""}

	writeAndReload := func(t *testing.T, cfg config.Config) *config.Config {
		t.Helper()
		data, err := toml.Marshal(cfg)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		path := filepath.Join(t.TempDir(), "scribe.toml")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		loaded, _, _, err := config.Load(path)
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		return loaded
	}

	loaded := writeAndReload(t, cfg)
	want := []string{"youtube.com", "youtu.be"}
	if len(loaded.Resolver.AllowedHosts) != len(want) {
		t.Fatalf("unexpected hosts: %v", loaded.Resolver.AllowedHosts)
	}
	for i, host := range want {
		if loaded.Resolver.AllowedHosts[i] != host {
			t.Fatalf("host %d = %q, want %q (all: %v)", i, loaded.Resolver.AllowedHosts[i], host, loaded.Resolver.AllowedHosts)
		}
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "your_api_key_here") {
		t.Fatalf("sample config missing placeholder API key: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
	if !strings.Contains(cfg.Paths.WorkspaceDir, "scribe") {
		t.Fatalf("expected workspace dir to contain scribe, got %q", cfg.Paths.WorkspaceDir)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	valid := func() config.Config {
		cfg := config.Default()
		cfg.Resolver.Endpoint = "https://proxy.example.org/"
		cfg.Resolver.APIKey = "k"
		cfg.Transcriber.ModelPath = "/models/ggml.bin"
		return cfg
	}

	cfg := valid()
	cfg.Resolver.Endpoint = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing endpoint")
	}

	cfg = valid()
	cfg.Resolver.Endpoint = "not a url"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for relative endpoint")
	}

	cfg = valid()
	cfg.Resolver.APIKey = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing api key")
	}

	cfg = valid()
	cfg.Transcriber.ModelPath = ""
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for missing model path")
	}

	cfg = valid()
	cfg.Transcriber.Language = "english"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for malformed language code")
	}

	cfg = valid()
	cfg.Transcoder.TimeoutSeconds = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-positive timeout")
	}

	cfg = valid()
	cfg.Workflow.QueuePollInterval = -1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for negative poll interval")
	}
}
