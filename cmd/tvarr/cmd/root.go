// Package cmd implements the CLI commands for the recorder.
package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/nekorec/blivec/internal/version"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:     "blivec",
	Short:   "Bilibili live room recorder",
	Version: version.Short(),
	Long: `blivec watches Bilibili live rooms and records their streams to disk,
downloading danmaku alongside the video and remuxing to MP4 once a session
ends. It exposes an HTTP admin surface for starting, stopping, and
reconfiguring rooms while they run.`,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		initLogging()
		return nil
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.toml, /etc/blivec, $HOME/.blivec)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
}

// initLogging configures the default slog logger from the --log-level and
// --log-format flags, ahead of config.Load.
func initLogging() {
	level := slog.LevelInfo
	switch strings.ToLower(logLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.ToLower(logFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
