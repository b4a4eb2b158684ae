package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateResolver(); err != nil {
		return err
	}
	if err := c.validateTranscriber(); err != nil {
		return err
	}
	if err := c.validateTimeouts(); err != nil {
		return err
	}
	if err := c.validateTranscoder(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateResolver() error {
	if c.Resolver.Endpoint == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/scribe/config.toml"
		}
		return fmt.Errorf("resolver.endpoint is required. Set SCRIBE_RESOLVER_ENDPOINT env var or edit %s (create with 'scribe config init')", defaultPath)
	}
	parsed, err := url.Parse(c.Resolver.Endpoint)
	if err != nil || !parsed.IsAbs() || parsed.Host == "" {
		return fmt.Errorf("resolver.endpoint must be an absolute http(s) URL, got %q", c.Resolver.Endpoint)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("resolver.endpoint must use http or https, got %q", parsed.Scheme)
	}
	if c.Resolver.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/scribe/config.toml"
		}
		return fmt.Errorf("resolver.api_key is required. Set SCRIBE_API_KEY env var or edit %s", defaultPath)
	}
	return nil
}

func (c *Config) validateTranscriber() error {
	if c.Transcriber.ModelPath == "" {
		return errors.New("transcriber.model_path is required. Set SCRIBE_WHISPER_MODEL env var or point it at a whisper.cpp model file")
	}
	if c.Transcriber.Binary == "" {
		return errors.New("transcriber.binary must be set")
	}
	lang := strings.TrimSpace(c.Transcriber.Language)
	if lang != "auto" && (len(lang) < 2 || len(lang) > 3) {
		return fmt.Errorf("transcriber.language must be \"auto\" or an ISO language code, got %q", lang)
	}
	return nil
}

func (c *Config) validateTimeouts() error {
	return ensurePositiveMap(map[string]int{
		"resolver.timeout_seconds":       c.Resolver.TimeoutSeconds,
		"resolver.retry_attempts":        c.Resolver.RetryAttempts,
		"resolver.retry_initial_seconds": c.Resolver.RetryInitialSeconds,
		"fetcher.timeout_seconds":        c.Fetcher.TimeoutSeconds,
		"fetcher.retry_attempts":         c.Fetcher.RetryAttempts,
		"transcoder.timeout_seconds":     c.Transcoder.TimeoutSeconds,
		"transcriber.timeout_seconds":    c.Transcriber.TimeoutSeconds,
		"notifications.request_timeout":  c.Notifications.RequestTimeout,
		"workflow.queue_poll_interval":   c.Workflow.QueuePollInterval,
	})
}

func (c *Config) validateTranscoder() error {
	if c.Transcoder.FFmpegBinary == "" {
		return errors.New("transcoder.ffmpeg_binary must be set")
	}
	if c.Transcoder.Thumbnail {
		if c.Transcoder.ThumbnailOffsetSeconds < 0 {
			return errors.New("transcoder.thumbnail_offset_seconds must be >= 0")
		}
		if c.Transcoder.ThumbnailWidth <= 0 {
			return errors.New("transcoder.thumbnail_width must be positive")
		}
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
