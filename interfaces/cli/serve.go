package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/offline-agent/infrastructure/logging"
	api "github.com/felixgeelhaar/offline-agent/interfaces/api"
)

// serveOptions holds options for the serve command.
type serveOptions struct {
	configPath string
	listen     string
	noInstall  bool
}

// newServeCmd creates the serve command.
func (a *App) newServeCmd() *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the agent",
		Long: `Run the agent's event loop and HTTP surface.

Every request path outside /_agent/ is intercepted and served for the
configured origin. Control endpoints:

  POST /_agent/install    {"version": "v2", "manifest": ["/index.html"]}
  POST /_agent/activate   {"version": "v2"}
  POST /_agent/online     replay the deferred queue
  POST /_agent/push       hand a push payload to the presenter
  GET  /_agent/queue      list deferred operations
  POST /_agent/queue      defer a request without trying the network
  GET  /_agent/healthz    status summary
  GET  /_agent/metrics    prometheus scrape (metrics exporter "prometheus")

Unless --no-install is set or install.on_start is false, the configured
version is installed and activated at startup. A failed install is logged
and the agent keeps serving the previous version.

Examples:
  offline-agent serve -c offline-agent.yaml
  offline-agent serve -c offline-agent.yaml --listen 127.0.0.1:9090`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.serve(cmd.Context(), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Path to configuration file (required)")
	cmd.Flags().StringVar(&opts.listen, "listen", "", "Listen address (overrides config)")
	cmd.Flags().BoolVar(&opts.noInstall, "no-install", false, "Skip installing the configured version at startup")

	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func (a *App) serve(ctx context.Context, opts *serveOptions) error {
	config, err := loadConfig(opts.configPath, false)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if opts.listen != "" {
		config.Server.Listen = opts.listen
	}

	rt, err := api.NewRuntime(ctx, config, api.WithServiceVersion(Version))
	if err != nil {
		return fmt.Errorf("failed to start agent: %w", err)
	}
	defer func() {
		if cerr := rt.Close(context.WithoutCancel(ctx)); cerr != nil {
			logging.Error().Add(logging.ErrorField(cerr)).Msg("shutdown failed")
		}
	}()

	if config.Install.OnStart && !opts.noInstall {
		if err := rt.Bootstrap(ctx); err != nil {
			logging.Warn().
				Add(logging.Str("configured_version", config.Version)).
				Add(logging.ErrorField(err)).
				Msg("startup install failed, serving previous version")
		}
	}

	if err := rt.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
