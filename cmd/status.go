package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hicap-oss/claude-code-router/internal/process"
	"github.com/hicap-oss/claude-code-router/internal/providers"
	"github.com/hicap-oss/claude-code-router/internal/transformer"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show router service status",
	Long:  `Display whether the gateway is running and the transformer chain of every provider.`,
	Run:   runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) {
	procMgr := process.NewManager(baseDir)

	running := procMgr.IsRunning()

	color.Blue("Status for %s:", AppName)
	if running {
		fmt.Printf("  %-15s: %s\n", "Running", color.GreenString("yes"))
	} else {
		fmt.Printf("  %-15s: %s\n", "Running", color.RedString("no"))
	}
	fmt.Printf("  %-15s: %d\n", "PID", procMgr.ReadPID())
	fmt.Printf("  %-15s: %d\n", "Sessions", procMgr.ReadRef())
	fmt.Printf("  %-15s: %s\n", "Config Path", cfgMgr.GetPath())
	fmt.Printf("  %-15s: v%s\n", "Version", Version)

	if !cfgMgr.Exists() {
		return
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		color.Red("  Configuration error: %v", err)
		return
	}

	fmt.Printf("  %-15s: http://%s:%d\n", "Endpoint", cfg.Host, cfg.Port)
	fmt.Printf("  %-15s: %s\n", "Timeout", cfg.Timeout())

	registry, err := providers.NewFromConfig(cfg, transformer.DefaultRegistry())
	if err != nil {
		color.Red("  Provider error: %v", err)
		return
	}

	fmt.Println("\nProviders:")
	for _, name := range registry.List() {
		entry, _ := registry.Get(name)
		fmt.Printf("  %-15s: %s\n", name, strings.Join(entry.Chain.Names(), " -> "))
	}
}
