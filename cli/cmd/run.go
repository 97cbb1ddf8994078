package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/BDNK1/nodeflow/runtime"
)

type runOptions struct {
	autoApprove bool
	nodesPath   string
	shellRoot   string
	jsonOutput  bool
	vars        []string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run <flow-file>",
		Short: "Execute a flow from the terminal",
		Long: `Run loads a flow document, executes it once and prints node progress and
log lines as they happen. Manual approvals are asked on stdin unless
--auto-approve is set.

Example:
  nodeflow run flows/deploy.yaml
  nodeflow run flows/deploy.yaml --auto-approve --var env=staging
`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFlow(cmd, root, opts, args[0])
		},
	}

	cmd.Flags().BoolVarP(&opts.autoApprove, "auto-approve", "y", false, "Approve every manual approval without asking")
	cmd.Flags().StringVar(&opts.nodesPath, "nodes", "", "Custom node definitions file (JSON or YAML)")
	cmd.Flags().StringVar(&opts.shellRoot, "shell-root", "", "Confine shell working directories to this directory")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print the execution record as JSON when done")
	cmd.Flags().StringArrayVar(&opts.vars, "var", nil, "Initial variable as key=value (repeatable)")
	return cmd
}

func runFlow(cmd *cobra.Command, root *rootOptions, opts *runOptions, path string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	l := root.logger()
	flow, err := runtime.LoadFlow(path)
	if err != nil {
		return err
	}
	vars, err := parseVars(opts.vars)
	if err != nil {
		return err
	}

	eng, err := newEngine(ctx, root, engineOptions{
		nodesPath: opts.nodesPath,
		shellRoot: opts.shellRoot,
		notifier:  logNotifier{l: l},
	})
	if err != nil {
		return err
	}
	defer eng.close(ctx, l)

	out := cmd.OutOrStdout()
	p := &printer{out: out, seen: map[string]runtime.ResultStatus{}}

	var approver runtime.Approver = autoApprover{}
	if !opts.autoApprove {
		approver = &promptApprover{in: bufio.NewReader(cmd.InOrStdin()), out: out, mu: &p.mu}
	}

	execOpts := append([]runtime.Option{
		runtime.WithRegistry(eng.registry),
		runtime.WithConfig(eng.cfg),
		runtime.WithSettings(eng.settings),
		runtime.WithAPI(eng.api),
		runtime.WithApprover(approver),
		runtime.WithExecutionID(uuid.NewString()),
		runtime.WithLogger(l),
	}, eng.options...)
	e := runtime.NewExecutor(flow.Nodes, flow.Edges, p.progress, p.log, execOpts...)
	for k, v := range vars {
		e.Variables().Set(k, v)
	}

	rec, runErr := e.Run(ctx, flow.ID, flow.Name)

	if opts.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "Execution %s: %s in %s\n", rec.ID, rec.Status, rec.Duration().Round(time.Millisecond))
	}
	if runErr != nil {
		return fmt.Errorf("flow %s failed: %w", flow.Name, runErr)
	}
	return nil
}

// parseVars turns key=value pairs into variables. Values that parse as JSON
// keep their JSON type.
func parseVars(pairs []string) (map[string]any, error) {
	vars := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		k, v, ok := strings.Cut(pair, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --var %q, expected key=value", pair)
		}
		var decoded any
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			vars[k] = decoded
		} else {
			vars[k] = v
		}
	}
	return vars, nil
}

// printer writes node status transitions and log lines to the terminal.
type printer struct {
	mu   sync.Mutex
	out  io.Writer
	seen map[string]runtime.ResultStatus
}

func (p *printer) progress(results []runtime.NodeResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, r := range results {
		if p.seen[r.NodeID] == r.Status {
			continue
		}
		p.seen[r.NodeID] = r.Status
		switch r.Status {
		case runtime.StatusSuccess, runtime.StatusError:
			fmt.Fprintf(p.out, "  %-8s %s (%s)\n", r.Status, r.NodeID, r.Duration().Round(time.Millisecond))
		case runtime.StatusRunning:
			fmt.Fprintf(p.out, "  %-8s %s\n", r.Status, r.NodeID)
		}
	}
}

func (p *printer) log(level runtime.LogLevel, message, nodeID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if nodeID == "" {
		fmt.Fprintf(p.out, "[%s] %s\n", level, message)
		return
	}
	fmt.Fprintf(p.out, "[%s] %s: %s\n", level, nodeID, message)
}

type autoApprover struct{}

func (autoApprover) Confirm(context.Context, string, string) (bool, error) {
	return true, nil
}

// promptApprover asks on the terminal. Only "y" and "yes" approve.
type promptApprover struct {
	in  *bufio.Reader
	out io.Writer
	mu  *sync.Mutex
}

func (a *promptApprover) Confirm(ctx context.Context, title, message string) (bool, error) {
	a.mu.Lock()
	fmt.Fprintf(a.out, "%s\n%s\nApprove? [y/N]: ", title, message)
	a.mu.Unlock()

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := a.in.ReadString('\n')
		ch <- answer{line, err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case ans := <-ch:
		if ans.err != nil && ans.line == "" {
			return false, fmt.Errorf("read approval: %w", ans.err)
		}
		switch strings.ToLower(strings.TrimSpace(ans.line)) {
		case "y", "yes":
			return true, nil
		}
		return false, nil
	}
}
