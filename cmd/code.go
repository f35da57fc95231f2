package cmd

import (
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hicap-oss/claude-code-router/internal/config"
	"github.com/hicap-oss/claude-code-router/internal/process"
)

var codeCmd = &cobra.Command{
	Use:   "code [args...]",
	Short: "Run Claude Code against the router",
	Long:  `Start the router service if needed and run Claude Code with the router as its API endpoint.`,
	Args:  cobra.ArbitraryArgs,
	RunE:  runCode,
}

func runCode(cmd *cobra.Command, args []string) error {
	procMgr := process.NewManager(baseDir)
	cfg := cfgMgr.Get()

	startedByUs, err := procMgr.StartServiceIfNeeded()
	if err != nil {
		return err
	}

	procMgr.IncrementRef()
	defer func() {
		procMgr.DecrementRef()
		if startedByUs && procMgr.ReadRef() == 0 {
			color.Yellow("No more active sessions, stopping auto-started service...")
			if err := procMgr.Stop(); err != nil {
				logger.Warn("Failed to stop service", "error", err)
			}
		}
	}()

	claudeCmd := exec.Command("claude", args...)
	claudeCmd.Env = clientEnv(os.Environ(), cfg)
	claudeCmd.Stdin = os.Stdin
	claudeCmd.Stdout = os.Stdout
	claudeCmd.Stderr = os.Stderr

	return claudeCmd.Run()
}

// clientEnv points an Anthropic client at the router. Any upstream credential
// in the environment is replaced by the gateway key.
func clientEnv(env []string, cfg *config.Config) []string {
	env = filterEnv(env, "ANTHROPIC_AUTH_TOKEN", "ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL", "API_TIMEOUT_MS")

	if cfg.APIKey != "" {
		env = append(env, "ANTHROPIC_API_KEY="+cfg.APIKey)
	} else {
		env = append(env, "ANTHROPIC_AUTH_TOKEN=proxy")
	}

	return append(env,
		"ANTHROPIC_BASE_URL=http://"+cfg.Host+":"+strconv.Itoa(cfg.Port),
		"API_TIMEOUT_MS="+strconv.FormatInt(cfg.Timeout().Milliseconds(), 10),
	)
}

func filterEnv(env []string, keys ...string) []string {
	var filtered []string

	for _, e := range env {
		drop := false
		for _, key := range keys {
			if strings.HasPrefix(e, key+"=") {
				drop = true
				break
			}
		}
		if !drop {
			filtered = append(filtered, e)
		}
	}

	return filtered
}
