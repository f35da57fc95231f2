package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hicap-oss/claude-code-router/internal/process"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the router service",
	Long:  `Stop the running gateway and reset its session count.`,
	RunE:  runStop,
}

func runStop(cmd *cobra.Command, _ []string) error {
	procMgr := process.NewManager(baseDir)

	if !procMgr.IsRunning() {
		color.Yellow("%s is not running", AppName)
		procMgr.CleanupRef()
		return nil
	}

	color.Yellow("Stopping %s (pid %d)...", AppName, procMgr.ReadPID())
	if err := procMgr.Stop(); err != nil {
		return err
	}

	procMgr.CleanupRef()

	color.Green("Service stopped successfully")
	return nil
}
