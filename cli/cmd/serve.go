package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/BDNK1/nodeflow/history"
	"github.com/BDNK1/nodeflow/runtime"
	"github.com/BDNK1/nodeflow/server"
)

type serveOptions struct {
	addr      string
	dbPath    string
	flowsDir  string
	nodesPath string
	shellRoot string
	debug     bool
}

func newServeCmd(root *rootOptions) *cobra.Command {
	opts := &serveOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve flows, executions and approvals over HTTP",
		Long: `Serve exposes the engine over HTTP. Flows can be posted directly or run by id
from --flows. Execution records are kept in SQLite or PostgreSQL and manual
approvals wait for POST /approvals/:id.

Example:
  nodeflow serve --addr :8080 --db nodeflow.db --flows ./flows
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			l := root.logger()

			if !opts.debug {
				gin.SetMode(gin.ReleaseMode)
			}

			flows := map[string]*runtime.Flow{}
			if opts.flowsDir != "" {
				loaded, err := runtime.LoadFlows(opts.flowsDir)
				if err != nil {
					return err
				}
				flows = loaded
				l.InfoContext(ctx, fmt.Sprintf("Loaded %d flows from %s", len(flows), opts.flowsDir))
			}

			store, err := history.Connect(ctx, opts.dbPath)
			if err != nil {
				return err
			}
			defer store.Close()

			eng, err := newEngine(ctx, root, engineOptions{
				nodesPath: opts.nodesPath,
				shellRoot: opts.shellRoot,
				notifier:  logNotifier{l: l},
			})
			if err != nil {
				return err
			}
			defer eng.close(ctx, l)

			srv := server.New(eng.registry, store,
				server.WithFlows(flows),
				server.WithConfig(eng.cfg),
				server.WithSettings(eng.settings),
				server.WithAPI(eng.api),
				server.WithLogger(l),
				server.WithExecutorOptions(eng.options...),
			)
			return srv.Run(ctx, opts.addr)
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", ":8080", "Listen address")
	cmd.Flags().StringVar(&opts.dbPath, "db", "nodeflow.db", "Execution history: a SQLite file or a postgres:// URL")
	cmd.Flags().StringVar(&opts.flowsDir, "flows", "", "Directory of flow documents runnable by id")
	cmd.Flags().StringVar(&opts.nodesPath, "nodes", "", "Custom node definitions file (JSON or YAML)")
	cmd.Flags().StringVar(&opts.shellRoot, "shell-root", "", "Confine shell working directories to this directory")
	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Run gin in debug mode")
	return cmd
}
