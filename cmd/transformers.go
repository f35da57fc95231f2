package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/hicap-oss/claude-code-router/internal/providers"
	"github.com/hicap-oss/claude-code-router/internal/transformer"
)

var transformersCmd = &cobra.Command{
	Use:   "transformers",
	Short: "List available transformers",
	Long:  `List the built-in transformers and, when a configuration exists, the chain of every provider.`,
	RunE:  runTransformers,
}

func runTransformers(cmd *cobra.Command, _ []string) error {
	transformers := transformer.DefaultRegistry()

	color.Blue("Available transformers:")
	for _, name := range transformers.List() {
		fmt.Printf("  - %s\n", name)
	}

	if !cfgMgr.Exists() {
		return nil
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	registry, err := providers.NewFromConfig(cfg, transformers)
	if err != nil {
		return err
	}

	color.Blue("\nProvider chains:")
	for _, name := range registry.List() {
		entry, _ := registry.Get(name)
		fmt.Printf("  %-15s: %s (response order: %s)\n", name, strings.Join(entry.Chain.Names(), " -> "), responseOrder(entry.Chain))
	}

	return nil
}

func responseOrder(chain transformer.Chain) transformer.Order {
	if chain.ResponseOrder == "" {
		return transformer.OrderReverse
	}
	return chain.ResponseOrder
}
