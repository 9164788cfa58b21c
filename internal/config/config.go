// Package config provides configuration loading and validation for the
// transcription service. Values come from a YAML file, TRANSCRIPTION_*
// environment variables, and the flat variable names used by existing
// deployments (AUDIOS_DIR, MAX_CONCURRENT_TASKS, ...).
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
)

const (
	defaultServerPort      = 8000
	defaultReadTimeout     = "60s"
	defaultWriteTimeout    = "120s"
	defaultShutdownTimeout = "10s"

	defaultAudiosDir         = "./public/audios"
	defaultTranscriptionsDir = "./public/transcriptions"
	defaultMaxAudioBytes     = "100MB"
	defaultMaxVideoBytes     = "500MB"

	defaultMaxConcurrentTasks = 3
	defaultTaskTimeout        = "600"
	defaultExtractorTimeout   = "600"

	defaultTranscriberBinary = "whisperx"
	defaultModel             = "base"
	defaultBatchSize         = 16

	defaultHistoryRetention = "30d"
	defaultPruneSchedule    = "0 0 3 * * *"
)

// Config is the root configuration for the service.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Extractor   ExtractorConfig   `mapstructure:"extractor"`
	Transcriber TranscriberConfig `mapstructure:"transcriber"`
	History     HistoryConfig     `mapstructure:"history"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host            string   `mapstructure:"host"`
	Port            int      `mapstructure:"port"`
	ReadTimeout     Duration `mapstructure:"read_timeout"`
	WriteTimeout    Duration `mapstructure:"write_timeout"`
	ShutdownTimeout Duration `mapstructure:"shutdown_timeout"`
	CORSOrigins     []string `mapstructure:"cors_origins"`
}

// Address returns the host:port address for the HTTP listener.
func (c ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// StorageConfig contains upload and output directory settings.
type StorageConfig struct {
	AudiosDir         string   `mapstructure:"audios_dir"`
	TranscriptionsDir string   `mapstructure:"transcriptions_dir"`
	MaxAudioBytes     ByteSize `mapstructure:"max_audio_bytes"`
	MaxVideoBytes     ByteSize `mapstructure:"max_video_bytes"`
}

// TasksFile returns the path of the persisted task document.
func (c StorageConfig) TasksFile() string {
	return filepath.Join(c.TranscriptionsDir, "tasks.json")
}

// SchedulerConfig bounds background task execution.
type SchedulerConfig struct {
	MaxConcurrentTasks int      `mapstructure:"max_concurrent_tasks"`
	QueueDepth         int      `mapstructure:"queue_depth"`
	TaskTimeout        Duration `mapstructure:"task_timeout"`
}

// EffectiveQueueDepth returns the admission queue capacity. A zero
// queue_depth derives the depth from the concurrency ceiling.
func (c SchedulerConfig) EffectiveQueueDepth() int {
	if c.QueueDepth > 0 {
		return c.QueueDepth
	}
	return c.MaxConcurrentTasks * 16
}

// ExtractorConfig contains decoder subprocess settings.
type ExtractorConfig struct {
	FFmpegPath  string   `mapstructure:"ffmpeg_path"`
	FFprobePath string   `mapstructure:"ffprobe_path"`
	Timeout     Duration `mapstructure:"timeout"`
}

// TranscriberConfig contains speech-to-text engine settings. The engine is
// opaque to the orchestrator; these values are handed through unchanged.
type TranscriberConfig struct {
	Binary    string `mapstructure:"binary"`
	Model     string `mapstructure:"model"`
	ForceCPU  bool   `mapstructure:"force_cpu"`
	Language  string `mapstructure:"language"`
	BatchSize int    `mapstructure:"batch_size"`
	HFToken   string `mapstructure:"hf_token" masq:"secret"`
}

// HistoryConfig controls the task event audit trail.
type HistoryConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Driver        string   `mapstructure:"driver"`
	DSN           string   `mapstructure:"dsn"`
	Retention     Duration `mapstructure:"retention"`
	PruneSchedule string   `mapstructure:"prune_schedule"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// HistoryDSN resolves the history database DSN, defaulting to a sqlite
// file next to the task document.
func (c *Config) HistoryDSN() string {
	if c.History.DSN != "" {
		return c.History.DSN
	}
	return filepath.Join(c.Storage.TranscriptionsDir, "history.db")
}

// Load reads configuration from the given file path (or the default search
// locations when empty), applies environment overrides and validates the
// result.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	SetDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/transcription")
		v.AddConfigPath("$HOME/.transcription")
	}

	v.SetEnvPrefix("TRANSCRIPTION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindCompatEnv(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// No config file is fine; defaults and env vars apply.
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
		mapstructure.TextUnmarshallerHookFunc(),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all options. Call before
// reading the config file so file and env values override them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", defaultServerPort)
	v.SetDefault("server.read_timeout", defaultReadTimeout)
	v.SetDefault("server.write_timeout", defaultWriteTimeout)
	v.SetDefault("server.shutdown_timeout", defaultShutdownTimeout)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("storage.audios_dir", defaultAudiosDir)
	v.SetDefault("storage.transcriptions_dir", defaultTranscriptionsDir)
	v.SetDefault("storage.max_audio_bytes", defaultMaxAudioBytes)
	v.SetDefault("storage.max_video_bytes", defaultMaxVideoBytes)

	v.SetDefault("scheduler.max_concurrent_tasks", defaultMaxConcurrentTasks)
	v.SetDefault("scheduler.queue_depth", 0)
	v.SetDefault("scheduler.task_timeout", defaultTaskTimeout)

	v.SetDefault("extractor.ffmpeg_path", "ffmpeg")
	v.SetDefault("extractor.ffprobe_path", "ffprobe")
	v.SetDefault("extractor.timeout", defaultExtractorTimeout)

	v.SetDefault("transcriber.binary", defaultTranscriberBinary)
	v.SetDefault("transcriber.model", defaultModel)
	v.SetDefault("transcriber.force_cpu", false)
	v.SetDefault("transcriber.language", "")
	v.SetDefault("transcriber.batch_size", defaultBatchSize)
	v.SetDefault("transcriber.hf_token", "")

	v.SetDefault("history.enabled", true)
	v.SetDefault("history.driver", "sqlite")
	v.SetDefault("history.dsn", "")
	v.SetDefault("history.retention", defaultHistoryRetention)
	v.SetDefault("history.prune_schedule", defaultPruneSchedule)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")
}

// bindCompatEnv maps the flat environment variable names of the original
// deployment onto their nested keys. TRANSCRIPTION_* names keep working
// through AutomaticEnv; these are checked as fallbacks.
func bindCompatEnv(v *viper.Viper) {
	compat := map[string][]string{
		"storage.audios_dir":             {"AUDIOS_DIR"},
		"storage.transcriptions_dir":     {"TRANSCRIPTIONS_DIR"},
		"storage.max_audio_bytes":        {"MAX_AUDIO_BYTES"},
		"storage.max_video_bytes":        {"MAX_VIDEO_BYTES"},
		"scheduler.max_concurrent_tasks": {"MAX_CONCURRENT_TASKS"},
		"scheduler.task_timeout":         {"TASK_TIMEOUT_SECONDS"},
		"extractor.timeout":              {"EXTRACTOR_TIMEOUT_SECONDS"},
		"transcriber.model":              {"VERSION_MODEL"},
		"transcriber.force_cpu":          {"FORCE_CPU"},
		"transcriber.hf_token":           {"HUGGING_FACE_HUB_TOKEN", "HF_TOKEN"},
		"logging.file":                   {"LOG_FILE"},
	}
	for key, names := range compat {
		args := append([]string{key}, names...)
		_ = v.BindEnv(args...)
	}
}

// Validate checks the configuration for values that cannot work.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Storage.AudiosDir == "" {
		return fmt.Errorf("storage.audios_dir is required")
	}
	if c.Storage.TranscriptionsDir == "" {
		return fmt.Errorf("storage.transcriptions_dir is required")
	}
	if c.Storage.MaxAudioBytes <= 0 {
		return fmt.Errorf("storage.max_audio_bytes must be positive")
	}
	if c.Storage.MaxVideoBytes <= 0 {
		return fmt.Errorf("storage.max_video_bytes must be positive")
	}
	if c.Scheduler.MaxConcurrentTasks < 1 {
		return fmt.Errorf("scheduler.max_concurrent_tasks must be at least 1, got %d", c.Scheduler.MaxConcurrentTasks)
	}
	if c.Scheduler.QueueDepth < 0 {
		return fmt.Errorf("scheduler.queue_depth must not be negative")
	}
	if time.Duration(c.Extractor.Timeout) <= 0 {
		return fmt.Errorf("extractor.timeout must be positive")
	}
	if c.Extractor.FFmpegPath == "" {
		return fmt.Errorf("extractor.ffmpeg_path is required")
	}
	if c.Transcriber.Binary == "" {
		return fmt.Errorf("transcriber.binary is required")
	}
	if c.Transcriber.Model == "" {
		return fmt.Errorf("transcriber.model is required")
	}
	switch c.History.Driver {
	case "sqlite", "postgres", "mysql":
	default:
		return fmt.Errorf("history.driver must be sqlite, postgres or mysql, got %q", c.History.Driver)
	}
	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn or error, got %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}
