// Package commands defines all Cobra CLI commands for the nutria binary.
package commands

import (
	"github.com/spf13/cobra"

	"github.com/nutria-ai/nutria-go/internal/audit"
	"github.com/nutria-ai/nutria-go/internal/config"
	"github.com/nutria-ai/nutria-go/internal/logging"
)

// configPath holds the --config flag value for YAML config file override.
var configPath string

// loadedConfigPath stores the resolved config file path for audit logging.
var loadedConfigPath string

// NewRootCmd constructs the root Cobra command that all subcommands attach to.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "nutria",
		Short: "Nutria — RAG-assisted nutrition plan generation",
		Long: `Nutria generates personalised three-day nutrition plans for dietitians.

It retrieves candidate recipes from a curated corpus, drives an LLM to draft
each plan, and validates every draft against calorie, macro, restriction, and
unit rules before accepting it. Three flows are supported: a first full plan
for a new patient, a control-visit adjustment, and a single-meal replacement.

Model provider is selected via the MODEL_PROVIDER environment variable
or a YAML config file (~/.nutria/config.yaml).
See 'nutria --help' for available commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			log := logging.New()

			// Load YAML config (env vars always override YAML values).
			path, err := config.Load(configPath, log)
			if err != nil {
				return err
			}
			loadedConfigPath = path

			// Emit structured audit log for every command invocation.
			audit.LogCommandStart(log, cmd.Name(), loadedConfigPath)

			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (default: ~/.nutria/config.yaml)")

	root.AddCommand(
		NewServeCmd(),
		NewIngestCmd(),
		NewPlanCmd(),
		NewVersionCmd(),
	)

	return root
}
