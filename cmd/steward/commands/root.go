// Package commands implements the steward CLI using cobra.
package commands

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jholhewres/steward/pkg/steward/config"
)

// maxLogFileSize is the size at which the log file is rotated on open.
const maxLogFileSize = 10 << 20

// NewRootCmd creates the root command with all subcommands registered.
func NewRootCmd(version string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "steward",
		Short: "Steward - a stateful personal agent",
		Long: `Steward is a stateful conversational agent with persistent memory,
cron jobs, an autonomous heartbeat, and Discord/Telegram channels.

Examples:
  steward serve
  steward heartbeat
  steward instructions ./instructions.md`,
		Version: version,
	}

	rootCmd.AddCommand(
		newServeCmd(),
		newHeartbeatCmd(),
		newInstructionsCmd(),
	)

	rootCmd.PersistentFlags().StringP("config", "c", "", "path to the YAML configuration file")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")

	return rootCmd
}

// loadConfig resolves configuration for a command invocation.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Root().PersistentFlags().GetString("config")
	return config.Load(path)
}

// setupLogger builds the process logger from config plus the verbose flag.
func setupLogger(cmd *cobra.Command, cfg *config.Config) *slog.Logger {
	verbose, _ := cmd.Root().PersistentFlags().GetBool("verbose")
	level := slog.LevelInfo
	if verbose || cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	} else if cfg.Logging.Level == "warn" {
		level = slog.LevelWarn
	} else if cfg.Logging.Level == "error" {
		level = slog.LevelError
	}

	var out io.Writer = os.Stdout
	if cfg.Logging.File != "" {
		if f, err := openLogFile(cfg.Logging.File); err != nil {
			fmt.Fprintf(os.Stderr, "warning: cannot open log file %s: %v\n", cfg.Logging.File, err)
		} else {
			out = io.MultiWriter(os.Stdout, f)
		}
	}

	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	}
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// openLogFile opens the log file for appending, rotating the previous
// file aside once when it exceeds the size cap.
func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	if info, err := os.Stat(path); err == nil && info.Size() > maxLogFileSize {
		_ = os.Rename(path, path+".old")
	}
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}
