package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_ExplicitFileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	assert.Error(t, err)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadWithoutFile(t)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8000", cfg.Server.Address())
	assert.Equal(t, "./public/audios", cfg.Storage.AudiosDir)
	assert.Equal(t, "./public/transcriptions", cfg.Storage.TranscriptionsDir)
	assert.Equal(t, int64(104857600), cfg.Storage.MaxAudioBytes.Int64())
	assert.Equal(t, int64(524288000), cfg.Storage.MaxVideoBytes.Int64())
	assert.Equal(t, 3, cfg.Scheduler.MaxConcurrentTasks)
	assert.Equal(t, 48, cfg.Scheduler.EffectiveQueueDepth())
	assert.Equal(t, 10*time.Minute, cfg.Scheduler.TaskTimeout.Std())
	assert.Equal(t, 10*time.Minute, cfg.Extractor.Timeout.Std())
	assert.Equal(t, "whisperx", cfg.Transcriber.Binary)
	assert.Equal(t, "base", cfg.Transcriber.Model)
	assert.True(t, cfg.History.Enabled)
	assert.Equal(t, "json", cfg.Logging.Format)
}

// loadWithoutFile runs Load from an empty directory so no config file is
// picked up from the repository root.
func loadWithoutFile(t *testing.T) (*Config, error) {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return Load("")
}

func TestLoad_FromFile(t *testing.T) {
	dir := t.TempDir()
	content := []byte(`
server:
  port: 9010
storage:
  audios_dir: /data/audios
  max_audio_bytes: 10MB
scheduler:
  max_concurrent_tasks: 5
  task_timeout: 30m
transcriber:
  model: large
`)
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9010, cfg.Server.Port)
	assert.Equal(t, "/data/audios", cfg.Storage.AudiosDir)
	assert.Equal(t, int64(10*1024*1024), cfg.Storage.MaxAudioBytes.Int64())
	assert.Equal(t, 5, cfg.Scheduler.MaxConcurrentTasks)
	assert.Equal(t, 80, cfg.Scheduler.EffectiveQueueDepth())
	assert.Equal(t, 30*time.Minute, cfg.Scheduler.TaskTimeout.Std())
	assert.Equal(t, "large", cfg.Transcriber.Model)
	// Untouched values keep their defaults.
	assert.Equal(t, "./public/transcriptions", cfg.Storage.TranscriptionsDir)
}

func TestLoad_CompatEnv(t *testing.T) {
	t.Setenv("AUDIOS_DIR", "/srv/audios")
	t.Setenv("MAX_CONCURRENT_TASKS", "7")
	t.Setenv("TASK_TIMEOUT_SECONDS", "120")
	t.Setenv("MAX_AUDIO_BYTES", "2097152")
	t.Setenv("VERSION_MODEL", "turbo")
	t.Setenv("FORCE_CPU", "true")

	cfg, err := loadWithoutFile(t)
	require.NoError(t, err)

	assert.Equal(t, "/srv/audios", cfg.Storage.AudiosDir)
	assert.Equal(t, 7, cfg.Scheduler.MaxConcurrentTasks)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.TaskTimeout.Std())
	assert.Equal(t, int64(2097152), cfg.Storage.MaxAudioBytes.Int64())
	assert.Equal(t, "turbo", cfg.Transcriber.Model)
	assert.True(t, cfg.Transcriber.ForceCPU)
}

func TestLoad_PrefixedEnv(t *testing.T) {
	t.Setenv("TRANSCRIPTION_SERVER_PORT", "8081")
	t.Setenv("TRANSCRIPTION_LOGGING_LEVEL", "debug")

	cfg, err := loadWithoutFile(t)
	require.NoError(t, err)

	assert.Equal(t, 8081, cfg.Server.Port)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	base := func(t *testing.T) *Config {
		cfg, err := loadWithoutFile(t)
		require.NoError(t, err)
		return cfg
	}

	t.Run("bad port", func(t *testing.T) {
		cfg := base(t)
		cfg.Server.Port = 0
		assert.ErrorContains(t, cfg.Validate(), "server.port")
	})

	t.Run("missing audios dir", func(t *testing.T) {
		cfg := base(t)
		cfg.Storage.AudiosDir = ""
		assert.ErrorContains(t, cfg.Validate(), "audios_dir")
	})

	t.Run("zero concurrency", func(t *testing.T) {
		cfg := base(t)
		cfg.Scheduler.MaxConcurrentTasks = 0
		assert.ErrorContains(t, cfg.Validate(), "max_concurrent_tasks")
	})

	t.Run("bad history driver", func(t *testing.T) {
		cfg := base(t)
		cfg.History.Driver = "oracle"
		assert.ErrorContains(t, cfg.Validate(), "history.driver")
	})

	t.Run("bad log format", func(t *testing.T) {
		cfg := base(t)
		cfg.Logging.Format = "xml"
		assert.ErrorContains(t, cfg.Validate(), "logging.format")
	})
}

func TestHistoryDSN(t *testing.T) {
	cfg, err := loadWithoutFile(t)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("./public/transcriptions", "history.db"), cfg.HistoryDSN())

	cfg.History.DSN = "file:custom.db"
	assert.Equal(t, "file:custom.db", cfg.HistoryDSN())
}
