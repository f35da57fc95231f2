package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hicap-oss/claude-code-router/internal/config"
)

const (
	AppName = "claude-code-router"
	Version = "0.3.0"
)

var (
	logger  *slog.Logger
	homeDir string
	baseDir string
	cfgMgr  *config.Manager
)

func init() {
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))

	var err error
	homeDir, err = os.UserHomeDir()
	if err != nil {
		logger.Error("Failed to get home directory", "error", err)
		os.Exit(1)
	}

	baseDir = filepath.Join(homeDir, "."+AppName)
	if dir := os.Getenv("CCR_HOME"); dir != "" {
		baseDir = dir
	}
	cfgMgr = config.NewManager(baseDir)
}

var rootCmd = &cobra.Command{
	Use:     "ccr",
	Short:   "Claude Code Router - LLM gateway",
	Long:    `A gateway that routes chat requests to configured upstream providers, adapting each request through the provider's transformer chain.`,
	Version: Version,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolP("log-file", "l", false, "also write logs to the router directory")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(codeCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(transformersCmd)
}

// setupLogging replaces the package logger. The returned func releases the
// log file, if any.
func setupLogging(verbose, logFile bool) (func(), error) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}

	opts := &slog.HandlerOptions{Level: level}

	var (
		out     io.Writer = os.Stdout
		release           = func() {}
	)

	if logFile {
		if err := os.MkdirAll(baseDir, 0750); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}

		f, err := os.OpenFile(filepath.Join(baseDir, AppName+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}

		out = io.MultiWriter(os.Stdout, f)
		release = func() { _ = f.Close() }
	}

	logger = slog.New(slog.NewTextHandler(out, opts))
	return release, nil
}

func ensureConfigExists() error {
	if !cfgMgr.Exists() {
		color.Yellow("Configuration not found at %s", cfgMgr.GetPath())
		fmt.Println("Please run 'ccr config init' to set up your configuration")
		return fmt.Errorf("configuration required")
	}
	return nil
}
