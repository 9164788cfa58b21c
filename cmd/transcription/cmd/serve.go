package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/juniormartinxo/transcription/internal/config"
	"github.com/juniormartinxo/transcription/internal/database"
	"github.com/juniormartinxo/transcription/internal/extractor"
	"github.com/juniormartinxo/transcription/internal/ffmpeg"
	internalhttp "github.com/juniormartinxo/transcription/internal/http"
	"github.com/juniormartinxo/transcription/internal/http/handlers"
	"github.com/juniormartinxo/transcription/internal/ingest"
	"github.com/juniormartinxo/transcription/internal/observability"
	"github.com/juniormartinxo/transcription/internal/repository"
	"github.com/juniormartinxo/transcription/internal/scheduler"
	"github.com/juniormartinxo/transcription/internal/service"
	"github.com/juniormartinxo/transcription/internal/startup"
	"github.com/juniormartinxo/transcription/internal/storage"
	"github.com/juniormartinxo/transcription/internal/store"
	"github.com/juniormartinxo/transcription/internal/transcriber"
	"github.com/juniormartinxo/transcription/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the transcription server",
	Long: `Start the transcription HTTP server and API.

The server provides:
- REST API for uploading media and managing transcription tasks
- Transcript download and task history endpoints
- Health and readiness probes, Prometheus metrics at /metrics
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8000, "Port to listen on")
	serveCmd.Flags().String("audios-dir", "", "Directory for staged audio files")
	serveCmd.Flags().String("transcriptions-dir", "", "Directory for transcripts and task state")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	applyFlagOverrides(rootCmd.PersistentFlags(), cmd.Flags(), cfg)

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	slog.SetDefault(logger)

	// Storage sandboxes. Every file the service touches stays inside one
	// of these two roots.
	audios, err := storage.NewSandbox(cfg.Storage.AudiosDir)
	if err != nil {
		return fmt.Errorf("initializing audio storage: %w", err)
	}
	transcriptions, err := storage.NewSandbox(cfg.Storage.TranscriptionsDir)
	if err != nil {
		return fmt.Errorf("initializing transcription storage: %w", err)
	}

	// Sweep staging files abandoned by a previous run.
	removed, err := startup.CleanStaleUploads(logger, audios, startup.DefaultMaxAge)
	if err != nil {
		logger.Warn("failed to clean stale upload staging files",
			slog.String("error", err.Error()),
		)
	} else if removed > 0 {
		logger.Info("cleaned stale upload staging files on startup",
			slog.Int("removed_count", removed),
		)
	}

	st, err := store.New(cfg.Storage.TranscriptionsDir, logger)
	if err != nil {
		return fmt.Errorf("opening task store: %w", err)
	}

	// Task history is optional; when disabled the API serves everything
	// except /history.
	var db *database.DB
	var history *service.HistoryService
	if cfg.History.Enabled {
		db, err = database.New(cfg.History.Driver, cfg.HistoryDSN(), logger)
		if err != nil {
			return fmt.Errorf("opening history database: %w", err)
		}
		if err := db.Migrate(context.Background()); err != nil {
			return fmt.Errorf("migrating history database: %w", err)
		}

		history = service.NewHistoryService(repository.NewTaskEventRepository(db.DB), cfg.History).
			WithLogger(observability.WithComponent(logger, "history"))
		if err := history.StartPruning(); err != nil {
			return fmt.Errorf("starting history pruning: %w", err)
		}
	}

	// Video ingestion needs FFmpeg; audio uploads work without it, so a
	// missing decoder is a warning, not a startup failure.
	detector := ffmpeg.NewBinaryDetector(cfg.Extractor.FFmpegPath, cfg.Extractor.FFprobePath)
	if info, err := detector.Detect(context.Background()); err != nil {
		logger.Warn("ffmpeg not available, video endpoints will fail",
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("decoder detected",
			slog.String("version", info.Version),
			slog.String("ffmpeg", info.FFmpegPath),
			slog.String("ffprobe", info.FFprobePath),
		)
	}

	ex := extractor.New(cfg.Extractor, observability.WithComponent(logger, "extractor"))
	provider := transcriber.NewProvider(cfg.Transcriber, observability.WithComponent(logger, "transcriber"))

	runner := scheduler.NewJobRunner(st, provider, cfg.Storage.TranscriptionsDir).
		WithLogger(observability.WithComponent(logger, "runner"))
	sched := scheduler.New(st, runner, cfg.Scheduler).
		WithLogger(observability.WithComponent(logger, "scheduler"))
	if history != nil {
		runner.WithHistory(history)
		sched.WithHistory(history)
	}

	// Reconcile the store with reality before accepting work: tasks left
	// in processing by a dead process fail, pending ones re-queue.
	if _, err := sched.Recover(context.Background()); err != nil {
		return fmt.Errorf("recovering tasks: %w", err)
	}

	if err := sched.Start(context.Background()); err != nil {
		return fmt.Errorf("starting scheduler: %w", err)
	}

	ing := ingest.New(st, sched, ex, audios, cfg.Storage).
		WithLogger(observability.WithComponent(logger, "ingest"))

	serverConfig := internalhttp.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = cfg.Server.ReadTimeout.Std()
	serverConfig.WriteTimeout = cfg.Server.WriteTimeout.Std()
	serverConfig.ShutdownTimeout = cfg.Server.ShutdownTimeout.Std()
	serverConfig.CORSOrigins = cfg.Server.CORSOrigins
	server := internalhttp.NewServer(serverConfig, logger, version.Version)

	// Register handlers. The raw download route registers after the
	// documented operations so its chi entry wins the shared pattern.
	transcribeHandler := handlers.NewTranscribeHandler(ing, st, sched, ex, audios, transcriptions).
		WithLogger(logger)
	if history != nil {
		transcribeHandler.WithHistory(history)
	}
	transcribeHandler.Register(server.API())
	transcribeHandler.RegisterChiRoutes(server.Router())

	healthHandler := handlers.NewHealthHandler(version.Version).
		WithScheduler(sched).
		WithDecoder(detector)
	if db != nil {
		healthHandler.WithDB(db)
	}
	healthHandler.Register(server.API())

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting transcription server",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.String("version", version.Version),
		slog.Bool("history", cfg.History.Enabled),
	)

	serveErr := server.ListenAndServe(ctx)

	// Drain background work within the shutdown window.
	stopCtx, stopCancel := context.WithTimeout(context.Background(), serverConfig.ShutdownTimeout)
	defer stopCancel()
	if err := sched.Stop(stopCtx); err != nil {
		logger.Warn("scheduler shutdown incomplete", slog.String("error", err.Error()))
	}
	if history != nil {
		history.StopPruning()
	}
	if db != nil {
		if err := db.Close(); err != nil {
			logger.Warn("closing history database", slog.String("error", err.Error()))
		}
	}

	return serveErr
}

// applyFlagOverrides layers explicitly set CLI flags over the loaded
// configuration. Flags are not bound to viper so that an unset flag's
// default never shadows an env var or config file value.
func applyFlagOverrides(global, local *pflag.FlagSet, cfg *config.Config) {
	if global.Changed("log-level") {
		cfg.Logging.Level, _ = global.GetString("log-level")
	}
	if global.Changed("log-format") {
		cfg.Logging.Format, _ = global.GetString("log-format")
	}

	if local.Changed("host") {
		cfg.Server.Host, _ = local.GetString("host")
	}
	if local.Changed("port") {
		cfg.Server.Port, _ = local.GetInt("port")
	}
	if local.Changed("audios-dir") {
		cfg.Storage.AudiosDir, _ = local.GetString("audios-dir")
	}
	if local.Changed("transcriptions-dir") {
		cfg.Storage.TranscriptionsDir, _ = local.GetString("transcriptions-dir")
	}
}
