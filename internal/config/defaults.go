package config

const (
	defaultWorkspaceDir           = "~/.local/share/scribe/workspaces"
	defaultTranscriptsDir         = "~/transcripts"
	defaultLogDir                 = "~/.local/share/scribe/logs"
	defaultResolverTimeout        = 30
	defaultResolverRetryAttempts  = 3
	defaultResolverRetryInitial   = 5
	defaultFetcherTimeout         = 900
	defaultFetcherRetryAttempts   = 3
	defaultFFmpegBinary           = "ffmpeg"
	defaultTranscoderTimeout      = 600
	defaultThumbnailOffsetSeconds = 3
	defaultThumbnailWidth         = 800
	defaultTranscriberBinary      = "whisper-cli"
	defaultTranscriberLanguage    = "auto"
	defaultTranscriberTimeout     = 1800
	defaultQueuePollInterval      = 5
	defaultNotifyRequestTimeout   = 10
	defaultLogFormat              = "auto"
	defaultLogLevel               = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			WorkspaceDir:   defaultWorkspaceDir,
			TranscriptsDir: defaultTranscriptsDir,
			LogDir:         defaultLogDir,
		},
		Resolver: Resolver{
			TimeoutSeconds:      defaultResolverTimeout,
			RetryAttempts:       defaultResolverRetryAttempts,
			RetryInitialSeconds: defaultResolverRetryInitial,
		},
		Fetcher: Fetcher{
			TimeoutSeconds: defaultFetcherTimeout,
			RetryAttempts:  defaultFetcherRetryAttempts,
		},
		Transcoder: Transcoder{
			FFmpegBinary:           defaultFFmpegBinary,
			TimeoutSeconds:         defaultTranscoderTimeout,
			Thumbnail:              true,
			ThumbnailOffsetSeconds: defaultThumbnailOffsetSeconds,
			ThumbnailWidth:         defaultThumbnailWidth,
		},
		Transcriber: Transcriber{
			Binary:         defaultTranscriberBinary,
			Language:       defaultTranscriberLanguage,
			TimeoutSeconds: defaultTranscriberTimeout,
		},
		Workflow: Workflow{
			QueuePollInterval:      defaultQueuePollInterval,
			RetainFailedWorkspaces: true,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			Completion:     true,
			Errors:         true,
			Queue:          true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
