package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	api "github.com/felixgeelhaar/offline-agent/interfaces/api"
)

// validateOptions holds options for the validate command.
type validateOptions struct {
	configPath string
	strict     bool
	showSchema bool
}

// newValidateCmd creates the validate command.
func (a *App) newValidateCmd() *cobra.Command {
	opts := &validateOptions{}

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a configuration file",
		Long: `Validate an offline-agent configuration file for correctness.

This command checks:
  - File format (YAML or JSON)
  - Required fields (name, version, origin)
  - Manifest entries, classifier patterns and the storage backend
  - Environment variable references (in strict mode)

Examples:
  # Validate a configuration file
  offline-agent validate -c offline-agent.yaml

  # Strict validation (fail on missing env vars)
  offline-agent validate -c offline-agent.yaml --strict

  # Show the JSON schema for configuration
  offline-agent validate --schema`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.showSchema {
				return a.showConfigSchema()
			}
			return a.validateConfig(opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file")
	cmd.Flags().BoolVar(&opts.strict, "strict", false, "Enable strict validation (fail on missing env vars)")
	cmd.Flags().BoolVar(&opts.showSchema, "schema", false, "Show JSON schema for configuration")

	return cmd
}

// validateConfig validates the configuration file.
func (a *App) validateConfig(opts *validateOptions) error {
	if opts.configPath == "" {
		return fmt.Errorf("configuration file path is required (-c flag)")
	}

	config, err := loadConfig(opts.configPath, opts.strict)
	if err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	fmt.Fprintf(a.stdout, "✓ Configuration is valid\n")
	fmt.Fprintf(a.stdout, "  Name: %s\n", config.Name)
	fmt.Fprintf(a.stdout, "  Version: %s\n", config.Version)
	fmt.Fprintf(a.stdout, "  Origin: %s\n", config.Origin)
	if config.Description != "" {
		fmt.Fprintf(a.stdout, "  Description: %s\n", config.Description)
	}

	fmt.Fprintf(a.stdout, "\nConfiguration summary:\n")
	fmt.Fprintf(a.stdout, "  Manifest entries: %d\n", len(config.Manifest))
	fmt.Fprintf(a.stdout, "  Static patterns: %d\n", len(config.Classifier.StaticPatterns))
	fmt.Fprintf(a.stdout, "  API prefixes: %d\n", len(config.Classifier.APIPrefixes))
	fmt.Fprintf(a.stdout, "  Storage: %s\n", config.Storage.Backend)

	if config.Replay.Rate > 0 {
		fmt.Fprintf(a.stdout, "  Replay pacing: rate=%d, burst=%d\n", config.Replay.Rate, config.Replay.Burst)
	}
	if config.Notification.Enabled {
		fmt.Fprintf(a.stdout, "  Push webhook: %s\n", config.Notification.Endpoint.URL)
	}
	if config.Telemetry.Enabled {
		fmt.Fprintf(a.stdout, "  Telemetry: traces=%s, metrics=%s\n", config.Telemetry.Traces, config.Telemetry.Metrics)
	}

	return nil
}

// showConfigSchema displays the JSON schema for configuration.
func (a *App) showConfigSchema() error {
	schemaJSON, err := api.ConfigSchemaJSON()
	if err != nil {
		return fmt.Errorf("failed to generate schema: %w", err)
	}

	fmt.Fprintln(a.stdout, schemaJSON)
	return nil
}

// loadConfig loads and validates a configuration file.
func loadConfig(path string, strict bool) (*api.AgentConfig, error) {
	loaderOpts := []api.ConfigLoaderOption{
		api.ConfigWithValidation(true),
	}
	if strict {
		loaderOpts = append(loaderOpts, api.ConfigWithStrictEnv(true))
	}
	return api.NewConfigLoaderWithOptions(loaderOpts...).LoadFile(path)
}
