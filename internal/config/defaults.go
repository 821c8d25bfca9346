package config

const (
	defaultDataDir  = "~/.local/share/boorubot"
	defaultMediaDir = "~/.local/share/boorubot/media"
	defaultLogDir   = "~/.local/share/boorubot/logs"

	defaultBooruBaseURL        = "https://www.sakugabooru.com"
	defaultBooruPageSize       = 100
	defaultBooruRequestTimeout = 15

	defaultSourcesUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/67.0.3396.99 Safari/537.36"
	defaultSourcesRequestTimeout = 10
	defaultSourcesRetryAttempts  = 3
	defaultSourcesRetryDelayMS   = 1000

	defaultSnapshotDebounceSeconds = 300

	defaultWeiboCredentialsPath = "~/.config/boorubot/weibo_credentials.json"
	defaultWeiboMaxFailures     = 3
	defaultWeiboBootstrapBatch  = 20

	defaultMediaMaxCacheMiB  = 2048
	defaultMediaMaxUploadMiB = 10
	defaultMediaGifWidth     = 600
	defaultMediaGifFPS       = 12

	defaultSyncInterval   = 300
	defaultPostInterval   = 600
	defaultCleanInterval  = 3600
	defaultTaskTimeLimit  = 600
	defaultEnrichParallel = 1

	defaultLogFormat = "console"
	defaultLogLevel  = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:  defaultDataDir,
			MediaDir: defaultMediaDir,
			LogDir:   defaultLogDir,
		},
		Booru: Booru{
			BaseURL:        defaultBooruBaseURL,
			PageSize:       defaultBooruPageSize,
			RequestTimeout: defaultBooruRequestTimeout,
		},
		Sources: Sources{
			UserAgent:      defaultSourcesUserAgent,
			RequestTimeout: defaultSourcesRequestTimeout,
			RetryAttempts:  defaultSourcesRetryAttempts,
			RetryDelayMS:   defaultSourcesRetryDelayMS,
		},
		Hub: Hub{
			SnapshotDebounceSeconds: defaultSnapshotDebounceSeconds,
		},
		Weibo: Weibo{
			Enabled:                false,
			CredentialsPath:        defaultWeiboCredentialsPath,
			MaxConsecutiveFailures: defaultWeiboMaxFailures,
			BootstrapBatch:         defaultWeiboBootstrapBatch,
		},
		Media: Media{
			MaxCacheMiB:  defaultMediaMaxCacheMiB,
			MaxUploadMiB: defaultMediaMaxUploadMiB,
			GifWidth:     defaultMediaGifWidth,
			GifFPS:       defaultMediaGifFPS,
		},
		Workflow: Workflow{
			SyncInterval:   defaultSyncInterval,
			PostInterval:   defaultPostInterval,
			CleanInterval:  defaultCleanInterval,
			TaskTimeLimit:  defaultTaskTimeLimit,
			EnrichParallel: defaultEnrichParallel,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
