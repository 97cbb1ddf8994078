package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/BDNK1/nodeflow/telemetry"
)

type rootOptions struct {
	configPath   string
	logLevel     string
	otelEndpoint string

	providers *telemetry.Providers
}

// NewRootCmd builds the nodeflow command tree.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "nodeflow",
		Short: "Nodeflow - node graph workflow engine",
		Long: `Nodeflow executes workflows described as graphs of typed nodes joined by edges.

Flows are JSON or YAML documents. Run one from the terminal, validate it, or
serve a directory of flows over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var level slog.Level
			if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
				return fmt.Errorf("invalid --log-level %q: %w", opts.logLevel, err)
			}
			p, err := telemetry.Setup(cmd.Context(), telemetry.Config{
				Endpoint: opts.otelEndpoint,
				Level:    level,
			})
			if err != nil {
				return fmt.Errorf("telemetry setup failed: %w", err)
			}
			opts.providers = p
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if opts.providers == nil {
				return nil
			}
			return opts.providers.Shutdown(context.WithoutCancel(cmd.Context()))
		},
	}

	flags := root.PersistentFlags()
	flags.StringVarP(&opts.configPath, "config", "c", "", "Path to nodeflow.yaml")
	flags.StringVar(&opts.logLevel, "log-level", "info", "Operator log level (debug, info, warn, error)")
	flags.StringVar(&opts.otelEndpoint, "otel-endpoint", "", "OTLP gRPC endpoint (defaults to "+telemetry.EndpointEnv+")")

	root.AddCommand(newRunCmd(opts), newValidateCmd(), newServeCmd(opts))
	return root
}

// Execute runs the root command
func Execute(ctx context.Context) error {
	return NewRootCmd().ExecuteContext(ctx)
}

func (o *rootOptions) logger() *slog.Logger {
	if o.providers == nil {
		return slog.Default()
	}
	return o.providers.Logger
}
