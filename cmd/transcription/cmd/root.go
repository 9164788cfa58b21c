// Package cmd implements the CLI commands for the transcription service.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/juniormartinxo/transcription/internal/version"
)

// cfgFile holds the config file path from the CLI flag.
var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "transcription",
	Short:   "Media transcription job orchestration service",
	Version: version.Short(),
	Long: `transcription is a service that accepts audio and video uploads over
HTTP and orchestrates their transcription: uploads are staged to disk,
video audio tracks are extracted with ffmpeg, and a bounded worker pool
runs the speech-to-text engine over the queued tasks.

Video uploads fan out into four transcription variants (limpa,
timestamps, diarization, completa) that share one extracted audio track.
Task state survives restarts and every task exposes its lifecycle,
artifacts, and transcript over the REST API.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("executing root command: %w", err)
	}
	return nil
}

func init() {
	// Global flags. These are NOT bound to viper: serve applies them on
	// top of the loaded config only when explicitly set, preserving the
	// priority CLI flag > env var > config file > default.
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default searches ., ./configs, /etc/transcription, $HOME/.transcription)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "log format (text, json)")
}
