package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/offline-agent/domain/cache"
	"github.com/felixgeelhaar/offline-agent/domain/event"
	"github.com/felixgeelhaar/offline-agent/domain/request"
	api "github.com/felixgeelhaar/offline-agent/interfaces/api"
)

// storeOptions are shared by commands that open the agent's storage.
type storeOptions struct {
	configPath string
	jsonOutput bool
}

func (o *storeOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.configPath, "config", "c", "", "Path to configuration file (required)")
	cmd.Flags().BoolVar(&o.jsonOutput, "json", false, "Output results as JSON")
	_ = cmd.MarkFlagRequired("config")
}

// withRuntime opens the configured storage, runs fn, and closes everything.
func (a *App) withRuntime(ctx context.Context, opts *storeOptions, fn func(*api.Runtime) error) (err error) {
	config, err := loadConfig(opts.configPath, false)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	rt, err := api.NewRuntime(ctx, config, api.WithServiceVersion(Version))
	if err != nil {
		return fmt.Errorf("failed to open agent: %w", err)
	}
	defer func() {
		err = errors.Join(err, rt.Close(context.WithoutCancel(ctx)))
	}()
	return fn(rt)
}

func (a *App) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// newInstallCmd creates the install command.
func (a *App) newInstallCmd() *cobra.Command {
	opts := &storeOptions{}
	var manifest []string

	cmd := &cobra.Command{
		Use:   "install [version]",
		Short: "Install a version's static assets",
		Long: `Fetch every manifest entry into the version's static store.

The version defaults to the configured one, and so does the manifest when
the version is the configured one. The install is all-or-nothing: a single
failed fetch leaves no partial store behind.

Examples:
  offline-agent install -c offline-agent.yaml
  offline-agent install -c offline-agent.yaml v2 -m /index.html -m /app.css`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd.Context(), opts, func(rt *api.Runtime) error {
				tag := cache.VersionTag(rt.Config.Version)
				if len(args) > 0 {
					tag = cache.VersionTag(args[0])
				}
				res := rt.Agent.Handle(cmd.Context(), event.NewInstall(tag, manifest))
				if res.Err != nil {
					return fmt.Errorf("install %s: %w", tag, res.Err)
				}
				fmt.Fprintf(a.stdout, "Installed %s\n", tag)
				return nil
			})
		},
	}

	opts.bind(cmd)
	cmd.Flags().StringArrayVarP(&manifest, "manifest", "m", nil, "Manifest entry (repeatable)")
	return cmd
}

// newActivateCmd creates the activate command.
func (a *App) newActivateCmd() *cobra.Command {
	opts := &storeOptions{}

	cmd := &cobra.Command{
		Use:   "activate [version]",
		Short: "Activate an installed version",
		Long: `Make an installed version the current cache generation and purge
every store that belongs to another version.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd.Context(), opts, func(rt *api.Runtime) error {
				tag := cache.VersionTag(rt.Config.Version)
				if len(args) > 0 {
					tag = cache.VersionTag(args[0])
				}
				res := rt.Agent.Handle(cmd.Context(), event.NewActivate(tag))
				if res.Err != nil {
					return fmt.Errorf("activate %s: %w", tag, res.Err)
				}
				if opts.jsonOutput {
					return a.printJSON(map[string]any{"version": tag, "purged": res.Purged})
				}
				fmt.Fprintf(a.stdout, "Activated %s\n", tag)
				for _, name := range res.Purged {
					fmt.Fprintf(a.stdout, "  purged %s\n", name)
				}
				return nil
			})
		},
	}

	opts.bind(cmd)
	return cmd
}

// newDrainCmd creates the drain command.
func (a *App) newDrainCmd() *cobra.Command {
	opts := &storeOptions{}

	cmd := &cobra.Command{
		Use:   "drain",
		Short: "Replay deferred operations",
		Long: `Replay the deferred queue in order. The pass stops at the first
operation that is not confirmed; it and everything behind it stay queued.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd.Context(), opts, func(rt *api.Runtime) error {
				report, err := rt.Agent.Drain(cmd.Context())
				if err != nil {
					return fmt.Errorf("drain: %w", err)
				}
				if opts.jsonOutput {
					return a.printJSON(report)
				}
				fmt.Fprintf(a.stdout, "Replayed %d, remaining %d\n", report.Replayed, report.Remaining)
				if report.Stopped {
					fmt.Fprintf(a.stdout, "  stopped: %s\n", report.Error)
				}
				return nil
			})
		},
	}

	opts.bind(cmd)
	return cmd
}

// newQueueCmd creates the queue command group.
func (a *App) newQueueCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect or extend the deferred queue",
	}
	cmd.AddCommand(a.newQueueListCmd(), a.newQueueAppendCmd())
	return cmd
}

func (a *App) newQueueListCmd() *cobra.Command {
	opts := &storeOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deferred operations in replay order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd.Context(), opts, func(rt *api.Runtime) error {
				ops, err := rt.Agent.Queue(cmd.Context())
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return a.printJSON(ops)
				}
				tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "SEQ\tMETHOD\tURL\tENQUEUED\tKEY")
				for _, op := range ops {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n",
						op.Sequence, op.Payload.NormalizedMethod(), op.Payload.URL,
						op.EnqueuedAt.Format("2006-01-02T15:04:05Z07:00"), op.IdempotencyKey)
				}
				return tw.Flush()
			})
		},
	}

	opts.bind(cmd)
	return cmd
}

func (a *App) newQueueAppendCmd() *cobra.Command {
	opts := &storeOptions{}
	var (
		method   string
		headers  []string
		data     string
		dataFile string
	)

	cmd := &cobra.Command{
		Use:   "append URL",
		Short: "Defer a request for later replay",
		Long: `Record a request at the tail of the deferred queue without trying
the network. Relative URLs are resolved against the configured origin.

Examples:
  offline-agent queue append -c offline-agent.yaml -X POST -d '{"sku":"A1"}' /api/orders
  offline-agent queue append -c offline-agent.yaml -X PUT -H 'Content-Type: application/json' --data-file body.json /api/profile`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := []byte(data)
			if dataFile != "" {
				b, err := os.ReadFile(dataFile)
				if err != nil {
					return fmt.Errorf("read body: %w", err)
				}
				body = b
			}

			return a.withRuntime(cmd.Context(), opts, func(rt *api.Runtime) error {
				target, err := resolveURL(rt.Config.Origin, args[0])
				if err != nil {
					return err
				}
				req := request.New(method, target)
				for _, h := range headers {
					k, v, ok := strings.Cut(h, ":")
					if !ok {
						return fmt.Errorf("invalid header %q (want Name: value)", h)
					}
					req.Header.Add(strings.TrimSpace(k), strings.TrimSpace(v))
				}
				if len(body) > 0 {
					req.Body = body
				}

				res := rt.Agent.Handle(cmd.Context(), event.NewEnqueue(req))
				if res.Err != nil {
					return fmt.Errorf("append: %w", res.Err)
				}
				if opts.jsonOutput {
					return a.printJSON(res.Operation)
				}
				fmt.Fprintf(a.stdout, "Queued #%d (idempotency key %s)\n", res.Operation.Sequence, res.Operation.IdempotencyKey)
				return nil
			})
		},
	}

	opts.bind(cmd)
	cmd.Flags().StringVarP(&method, "request", "X", http.MethodPost, "HTTP method")
	cmd.Flags().StringArrayVarP(&headers, "header", "H", nil, "Request header (repeatable)")
	cmd.Flags().StringVarP(&data, "data", "d", "", "Request body")
	cmd.Flags().StringVar(&dataFile, "data-file", "", "Read the request body from a file")
	return cmd
}

// newStatusCmd creates the status command.
func (a *App) newStatusCmd() *cobra.Command {
	opts := &storeOptions{}

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show versions, stores and queue length",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withRuntime(cmd.Context(), opts, func(rt *api.Runtime) error {
				status, err := rt.Agent.Status(cmd.Context())
				if err != nil {
					return err
				}
				if opts.jsonOutput {
					return a.printJSON(status)
				}
				active := string(status.Active)
				if active == "" {
					active = "(none)"
				}
				fmt.Fprintf(a.stdout, "Configured version: %s\n", status.Configured)
				fmt.Fprintf(a.stdout, "Active version: %s\n", active)
				fmt.Fprintf(a.stdout, "Queued operations: %d\n", status.Queued)
				for _, v := range status.Versions {
					fmt.Fprintf(a.stdout, "  %s: %s\n", v.Tag, v.Phase)
				}
				return nil
			})
		},
	}

	opts.bind(cmd)
	return cmd
}

func resolveURL(origin, raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("invalid url %q: %w", raw, err)
	}
	if u.IsAbs() {
		return u.String(), nil
	}
	base, err := url.Parse(origin)
	if err != nil {
		return "", fmt.Errorf("invalid origin %q: %w", origin, err)
	}
	return base.ResolveReference(u).String(), nil
}
