package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizeResolver(); err != nil {
		return err
	}
	c.normalizeFetcher()
	c.normalizeTranscoder()
	if err := c.normalizeTranscriber(); err != nil {
		return err
	}
	c.normalizeWorkflow()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.WorkspaceDir) == "" {
		c.Paths.WorkspaceDir = defaultWorkspaceDir
	}
	if c.Paths.WorkspaceDir, err = expandPath(c.Paths.WorkspaceDir); err != nil {
		return fmt.Errorf("paths.workspace_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.TranscriptsDir) == "" {
		c.Paths.TranscriptsDir = defaultTranscriptsDir
	}
	if c.Paths.TranscriptsDir, err = expandPath(c.Paths.TranscriptsDir); err != nil {
		return fmt.Errorf("paths.transcripts_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeResolver() error {
	c.Resolver.Endpoint = strings.TrimSpace(c.Resolver.Endpoint)
	if value, ok := os.LookupEnv("SCRIBE_RESOLVER_ENDPOINT"); ok && strings.TrimSpace(value) != "" {
		c.Resolver.Endpoint = strings.TrimSpace(value)
	}
	c.Resolver.APIKey = strings.TrimSpace(c.Resolver.APIKey)
	if value, ok := os.LookupEnv("SCRIBE_API_KEY"); ok && strings.TrimSpace(value) != "" {
		c.Resolver.APIKey = strings.TrimSpace(value)
	}
	if c.Resolver.TimeoutSeconds <= 0 {
		c.Resolver.TimeoutSeconds = defaultResolverTimeout
	}
	if c.Resolver.RetryAttempts <= 0 {
		c.Resolver.RetryAttempts = defaultResolverRetryAttempts
	}
	if c.Resolver.RetryInitialSeconds <= 0 {
		c.Resolver.RetryInitialSeconds = defaultResolverRetryInitial
	}
	if len(c.Resolver.AllowedHosts) > 0 {
		hosts := make([]string, 0, len(c.Resolver.AllowedHosts))
		seen := make(map[string]struct{}, len(c.Resolver.AllowedHosts))
		for _, host := range c.Resolver.AllowedHosts {
			normalized := strings.ToLower(strings.TrimSpace(host))
			normalized = strings.TrimPrefix(normalized, "www.")
			if normalized == "" {
				continue
			}
			if _, exists := seen[normalized]; exists {
				continue
			}
			seen[normalized] = struct{}{}
			hosts = append(hosts, normalized)
		}
		c.Resolver.AllowedHosts = hosts
	}
	return nil
}

func (c *Config) normalizeFetcher() {
	if c.Fetcher.TimeoutSeconds <= 0 {
		c.Fetcher.TimeoutSeconds = defaultFetcherTimeout
	}
	if c.Fetcher.RetryAttempts <= 0 {
		c.Fetcher.RetryAttempts = defaultFetcherRetryAttempts
	}
}

func (c *Config) normalizeTranscoder() {
	c.Transcoder.FFmpegBinary = strings.TrimSpace(c.Transcoder.FFmpegBinary)
	if c.Transcoder.FFmpegBinary == "" {
		c.Transcoder.FFmpegBinary = defaultFFmpegBinary
	}
	if c.Transcoder.TimeoutSeconds <= 0 {
		c.Transcoder.TimeoutSeconds = defaultTranscoderTimeout
	}
	if c.Transcoder.ThumbnailOffsetSeconds < 0 {
		c.Transcoder.ThumbnailOffsetSeconds = defaultThumbnailOffsetSeconds
	}
	if c.Transcoder.ThumbnailWidth <= 0 {
		c.Transcoder.ThumbnailWidth = defaultThumbnailWidth
	}
}

func (c *Config) normalizeTranscriber() error {
	c.Transcriber.Binary = strings.TrimSpace(c.Transcriber.Binary)
	if c.Transcriber.Binary == "" {
		c.Transcriber.Binary = defaultTranscriberBinary
	}
	c.Transcriber.ModelPath = strings.TrimSpace(c.Transcriber.ModelPath)
	if value, ok := os.LookupEnv("SCRIBE_WHISPER_MODEL"); ok && strings.TrimSpace(value) != "" {
		c.Transcriber.ModelPath = strings.TrimSpace(value)
	}
	if c.Transcriber.ModelPath != "" {
		expanded, err := expandPath(c.Transcriber.ModelPath)
		if err != nil {
			return fmt.Errorf("transcriber.model_path: %w", err)
		}
		c.Transcriber.ModelPath = expanded
	}
	c.Transcriber.Language = strings.ToLower(strings.TrimSpace(c.Transcriber.Language))
	if c.Transcriber.Language == "" {
		c.Transcriber.Language = defaultTranscriberLanguage
	}
	if c.Transcriber.TimeoutSeconds <= 0 {
		c.Transcriber.TimeoutSeconds = defaultTranscriberTimeout
	}
	return nil
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "console", "json", "auto":
	case "":
		c.Logging.Format = defaultLogFormat
	default:
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
