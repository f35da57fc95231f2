package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hicap-oss/claude-code-router/internal/config"
	"github.com/hicap-oss/claude-code-router/internal/providers"
	"github.com/hicap-oss/claude-code-router/internal/transformer"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage the LLM gateway configuration.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration interactively",
	Long:  `Initialize configuration by prompting for provider details.`,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration.`,
	RunE:  runConfigShow,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration",
	Long:  `Validate the current configuration and build every provider's transformer chain.`,
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configValidateCmd)
}

func prompt(reader *bufio.Reader, label string) string {
	fmt.Print(label)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

func runConfigInit(cmd *cobra.Command, _ []string) error {
	color.Blue("Claude Code Router Configuration Setup")
	color.Yellow("Follow the prompts to configure your upstream provider.")

	reader := bufio.NewReader(os.Stdin)

	providerName := prompt(reader, "\nProvider Name (e.g., hicap, openrouter, openai): ")
	apiKey := prompt(reader, "API Key: ")
	baseURL := prompt(reader, "API Base URL (empty for the provider default): ")
	model := prompt(reader, "Default Model: ")
	chain := prompt(reader, "Transformers, comma separated (e.g., cleancache,hicap): ")
	auth := prompt(reader, "Auth transformer (empty to pick from the URL): ")
	routerAPIKey := prompt(reader, "Router API Key (optional, for authentication): ")

	provider := config.Provider{
		Name:    providerName,
		APIBase: baseURL,
		APIKey:  apiKey,
		Models:  []string{model},
	}

	for _, name := range strings.Split(chain, ",") {
		if name = strings.TrimSpace(name); name != "" {
			provider.Transformers = append(provider.Transformers, config.TransformerSpec{Name: name})
		}
	}
	if auth != "" {
		provider.Auth = &config.TransformerSpec{Name: auth}
	}

	cfg := &config.Config{
		Host:      config.DefaultHost,
		Port:      config.DefaultPort,
		APIKey:    routerAPIKey,
		TimeoutMS: config.DefaultTimeoutMS,
		Providers: []config.Provider{provider},
		Router: config.RouterConfig{
			Default: fmt.Sprintf("%s,%s", providerName, model),
		},
	}

	if _, err := providers.NewFromConfig(cfg, transformer.DefaultRegistry()); err != nil {
		return fmt.Errorf("invalid transformer chain: %w", err)
	}

	if err := cfgMgr.Save(cfg); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	color.Green("Configuration saved successfully to: %s", cfgMgr.GetPath())
	color.Cyan("You can now start the router with: ccr start")

	return nil
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		color.Yellow("No configuration found. Run 'ccr config init' to create one.")
		return nil
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	color.Blue("Current Configuration:")
	fmt.Printf("  %-15s: %s\n", "Host", cfg.Host)
	fmt.Printf("  %-15s: %d\n", "Port", cfg.Port)
	fmt.Printf("  %-15s: %s\n", "API Key", maskString(cfg.APIKey))
	fmt.Printf("  %-15s: %s\n", "Timeout", cfg.Timeout())
	fmt.Printf("  %-15s: %s\n", "Config Path", cfgMgr.GetPath())

	fmt.Println("\nProviders:")
	for _, provider := range cfg.Providers {
		fmt.Printf("  - Name: %s\n", provider.Name)
		fmt.Printf("    API Base: %s\n", provider.APIBase)
		fmt.Printf("    API Key: %s\n", maskString(provider.APIKey))
		fmt.Printf("    Models: %v\n", provider.Models)

		names := make([]string, 0, len(provider.Transformers))
		for _, t := range provider.Transformers {
			names = append(names, t.Name)
		}
		if len(names) > 0 {
			fmt.Printf("    Transformers: %s\n", strings.Join(names, ", "))
		}
		if provider.Auth != nil {
			fmt.Printf("    Auth: %s\n", provider.Auth.Name)
		}
		if provider.ResponseOrder != "" {
			fmt.Printf("    Response Order: %s\n", provider.ResponseOrder)
		}
		fmt.Println()
	}

	fmt.Println("Router Configuration:")
	fmt.Printf("  %-15s: %s\n", "Default", cfg.Router.Default)
	if cfg.Router.Think != "" {
		fmt.Printf("  %-15s: %s\n", "Think", cfg.Router.Think)
	}
	if cfg.Router.Background != "" {
		fmt.Printf("  %-15s: %s\n", "Background", cfg.Router.Background)
	}
	if cfg.Router.LongContext != "" {
		fmt.Printf("  %-15s: %s\n", "Long Context", cfg.Router.LongContext)
	}
	if cfg.Router.WebSearch != "" {
		fmt.Printf("  %-15s: %s\n", "Web Search", cfg.Router.WebSearch)
	}

	return nil
}

func runConfigValidate(cmd *cobra.Command, _ []string) error {
	if !cfgMgr.Exists() {
		return fmt.Errorf("no configuration found")
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	problems := configProblems(cfg)
	if len(problems) > 0 {
		color.Red("Configuration validation failed:")
		for _, p := range problems {
			fmt.Printf("  - %s\n", p)
		}
		return fmt.Errorf("configuration validation failed")
	}

	color.Green("Configuration is valid!")
	return nil
}

// configProblems collects field errors and chain build errors.
func configProblems(cfg *config.Config) []string {
	var problems []string

	if err := cfg.Validate(); err != nil {
		var verr *config.ValidationError
		if errors.As(err, &verr) {
			problems = append(problems, verr.Errors...)
		} else {
			problems = append(problems, err.Error())
		}
	}

	if _, err := providers.NewFromConfig(cfg, transformer.DefaultRegistry()); err != nil {
		problems = append(problems, err.Error())
	}

	return problems
}

func maskString(s string) string {
	if s == "" {
		return "(not set)"
	}
	if len(s) <= 8 {
		return strings.Repeat("*", len(s))
	}
	return s[:4] + strings.Repeat("*", len(s)-8) + s[len(s)-4:]
}
