package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hicap-oss/claude-code-router/internal/process"
	"github.com/hicap-oss/claude-code-router/internal/server"
	"github.com/hicap-oss/claude-code-router/internal/transformer"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the router service",
	Long:  `Start the LLM gateway in the foreground.`,
	RunE:  runStart,
}

func runStart(cmd *cobra.Command, _ []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	logFile, _ := cmd.Flags().GetBool("log-file")

	release, err := setupLogging(verbose, logFile)
	if err != nil {
		return err
	}
	defer release()

	if err := ensureConfigExists(); err != nil {
		return err
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	color.Green("Starting %s v%s...", AppName, Version)
	logger.Info("Starting server",
		"host", cfg.Host,
		"port", cfg.Port,
		"providers", len(cfg.Providers),
		"timeout", cfg.Timeout(),
	)

	srv, err := server.New(cfgMgr, transformer.DefaultRegistry(), logger, AppName+"/"+Version)
	if err != nil {
		return err
	}

	procMgr := process.NewManager(baseDir)
	if err := procMgr.WritePID(); err != nil {
		return err
	}
	defer procMgr.CleanupPID()

	return srv.Start()
}
