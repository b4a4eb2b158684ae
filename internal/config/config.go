package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	WorkspaceDir   string `toml:"workspace_dir"`
	TranscriptsDir string `toml:"transcripts_dir"`
	LogDir         string `toml:"log_dir"`
}

// Resolver contains configuration for the download-proxy resolution API.
type Resolver struct {
	Endpoint            string   `toml:"endpoint"`
	APIKey              string   `toml:"api_key"`
	TimeoutSeconds      int      `toml:"timeout_seconds"`
	RetryAttempts       int      `toml:"retry_attempts"`
	RetryInitialSeconds int      `toml:"retry_initial_seconds"`
	AllowedHosts        []string `toml:"allowed_hosts"`
}

// Fetcher contains configuration for the media download.
type Fetcher struct {
	TimeoutSeconds int `toml:"timeout_seconds"`
	RetryAttempts  int `toml:"retry_attempts"`
}

// Transcoder contains configuration for ffmpeg audio extraction.
type Transcoder struct {
	FFmpegBinary           string `toml:"ffmpeg_binary"`
	TimeoutSeconds         int    `toml:"timeout_seconds"`
	Thumbnail              bool   `toml:"thumbnail"`
	ThumbnailOffsetSeconds int    `toml:"thumbnail_offset_seconds"`
	ThumbnailWidth         int    `toml:"thumbnail_width"`
}

// Transcriber contains configuration for the speech-to-text engine.
type Transcriber struct {
	Binary         string `toml:"binary"`
	ModelPath      string `toml:"model_path"`
	Language       string `toml:"language"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Workflow contains configuration for run lifecycle behaviour.
type Workflow struct {
	QueuePollInterval      int  `toml:"queue_poll_interval"`
	KeepWorkspaces         bool `toml:"keep_workspaces"`
	RetainFailedWorkspaces bool `toml:"retain_failed_workspaces"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Completion     bool   `toml:"completion"`
	Errors         bool   `toml:"errors"`
	Queue          bool   `toml:"queue"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for scribe.
//
// Configuration sections by subsystem:
//   - Paths: workspace, transcript output, and log directories
//   - Resolver: download-proxy endpoint, API key, retry policy
//   - Fetcher: media download timeout and retry policy
//   - Transcoder: ffmpeg binary and thumbnail capture settings
//   - Transcriber: speech-to-text binary, model, and language
//   - Workflow: queue polling and workspace retention
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Resolver      Resolver      `toml:"resolver"`
	Fetcher       Fetcher       `toml:"fetcher"`
	Transcoder    Transcoder    `toml:"transcoder"`
	Transcriber   Transcriber   `toml:"transcriber"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/scribe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath("~/.config/scribe/config.toml")
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("scribe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories runs depend on.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.WorkspaceDir, c.Paths.LogDir, c.Paths.TranscriptsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// ResolverRetries returns the bounded attempt count for resolution calls.
func (c *Config) ResolverRetries() int {
	if c.Resolver.RetryAttempts < 1 {
		return 1
	}
	return c.Resolver.RetryAttempts
}

// FetcherRetries returns the bounded attempt count for media downloads.
func (c *Config) FetcherRetries() int {
	if c.Fetcher.RetryAttempts < 1 {
		return 1
	}
	return c.Fetcher.RetryAttempts
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	sample := sampleConfig

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sample), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
