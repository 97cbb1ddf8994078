package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/BDNK1/nodeflow/plugins/builtin"
	"github.com/BDNK1/nodeflow/plugins/custom"
	"github.com/BDNK1/nodeflow/plugins/http"
	"github.com/BDNK1/nodeflow/plugins/shell"
	"github.com/BDNK1/nodeflow/runtime"
)

// engine is everything a command needs to build executors.
type engine struct {
	cfg      runtime.Config
	settings *runtime.Settings
	registry *runtime.Registry
	api      runtime.API
	options  []runtime.Option
}

type engineOptions struct {
	nodesPath string
	shellRoot string
	notifier  runtime.Notifier
}

// newEngine loads the config, registers built-in and custom node types, and
// initializes the managed clients. Callers must call close.
func newEngine(ctx context.Context, root *rootOptions, eo engineOptions) (*engine, error) {
	cfg, err := runtime.LoadConfig(root.configPath)
	if err != nil {
		return nil, err
	}
	settings, err := cfg.BuildSettings()
	if err != nil {
		return nil, err
	}

	reg := runtime.NewRegistry()
	if err := builtin.Register(reg); err != nil {
		return nil, fmt.Errorf("register builtins: %w", err)
	}
	if eo.nodesPath != "" {
		defs, err := custom.LoadDefinitions(eo.nodesPath)
		if err != nil {
			return nil, err
		}
		if err := custom.Register(reg, defs...); err != nil {
			return nil, err
		}
	}

	var httpRaw map[string]any
	if v, ok := runtime.AsMap(cfg.Settings["http"]); ok {
		httpRaw = v
	}
	client, err := http.New(httpRaw)
	if err != nil {
		return nil, fmt.Errorf("http client: %w", err)
	}
	reg.Manage(client)

	if err := reg.Initialize(ctx); err != nil {
		return nil, err
	}

	e := &engine{
		cfg:      cfg,
		settings: settings,
		registry: reg,
		api: runtime.API{
			HTTP:     client,
			Shell:    &shell.Runner{Root: eo.shellRoot},
			Notifier: eo.notifier,
		},
	}
	if p := root.providers; p != nil && p.Enabled() {
		e.options = append(e.options,
			runtime.WithTracerProvider(p.TracerProvider),
			runtime.WithMeterProvider(p.MeterProvider),
		)
	}
	return e, nil
}

func (e *engine) close(ctx context.Context, l *slog.Logger) {
	if err := e.registry.Shutdown(context.WithoutCancel(ctx)); err != nil {
		l.WarnContext(ctx, "Shutdown failed", "error", err)
	}
}

// logNotifier delivers notifications as operator log lines.
type logNotifier struct {
	l *slog.Logger
}

func (n logNotifier) Notify(ctx context.Context, title, message string) error {
	n.l.InfoContext(ctx, fmt.Sprintf("Notification: %s", title), "message", message)
	return nil
}
