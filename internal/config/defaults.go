package config

const (
	defaultMediaRoot          = "~/.local/share/lapse/media"
	defaultMusicDir           = "~/.local/share/lapse/music"
	defaultStateDir           = "~/.local/share/lapse"
	defaultLogDir             = "~/.local/share/lapse/logs"
	defaultAPIBind            = "127.0.0.1:7490"
	defaultBatchSize          = 200
	defaultFPS                = 25
	defaultCRF                = 23
	defaultPreset             = "slow"
	defaultStageTimeout       = 3600
	defaultFFmpegBinary       = "ffmpeg"
	defaultFFprobeBinary      = "ffprobe"
	defaultCompressionLevel   = 9
	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 10
	defaultHeartbeatInterval  = 15
	defaultHeartbeatTimeout   = 120
	defaultJobTimeout         = 6 * 3600
	defaultNtfyTimeout        = 10
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			MediaRoot: defaultMediaRoot,
			MusicDir:  defaultMusicDir,
			StateDir:  defaultStateDir,
			LogDir:    defaultLogDir,
			APIBind:   defaultAPIBind,
		},
		Render: Render{
			BatchSize:     defaultBatchSize,
			DefaultFPS:    defaultFPS,
			CRF:           defaultCRF,
			Preset:        defaultPreset,
			StageTimeout:  defaultStageTimeout,
			FFmpegBinary:  defaultFFmpegBinary,
			FFprobeBinary: defaultFFprobeBinary,
		},
		Archive: Archive{
			CompressionLevel: defaultCompressionLevel,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			HeartbeatInterval:  defaultHeartbeatInterval,
			HeartbeatTimeout:   defaultHeartbeatTimeout,
			JobTimeout:         defaultJobTimeout,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNtfyTimeout,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
