package custom

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"

	"github.com/BDNK1/nodeflow/runtime/plugin"
)

var (
	errNoHTTPClient = errors.New("no HTTP client configured")
	errNoShell      = errors.New("no shell runner configured")
)

var _ plugin.Handler = (*Node)(nil)

// Node is the handler bound to one Definition.
type Node struct {
	Definition Definition

	vm scriptVM
}

func (n *Node) Execute(nc *plugin.NodeContext) (any, error) {
	input := maps.Clone(nc.Data)
	if input == nil {
		input = map[string]any{}
	}
	input["_previousOutput"], _ = nc.Variables.Get("output")

	nc.Logf(plugin.LevelInfo, "Custom Node: %s", n.Definition.Name)

	var (
		out any
		err error
	)
	switch n.Definition.ActionType {
	case ActionShell:
		out, err = n.shell(nc, input)
	case ActionHTTP:
		out, err = n.http(nc, input)
	case ActionScript:
		out, err = n.script(nc, input)
	default:
		err = fmt.Errorf("unknown action type: %s", n.Definition.ActionType)
	}
	if err != nil {
		nc.Logf(plugin.LevelError, "Custom node failed: %s", err)
		return nil, err
	}
	return out, nil
}

func (n *Node) shell(nc *plugin.NodeContext, input map[string]any) (any, error) {
	cfg := n.Definition.ActionConfig
	command := expand(cfg.Command, input)
	if command == "" {
		return nil, errors.New("no command specified")
	}
	if nc.API.Shell == nil {
		return nil, errNoShell
	}
	args := strings.Fields(expand(cfg.Args, input))
	workDir := expand(cfg.WorkDir, input)

	nc.Logf(plugin.LevelInfo, "Running: %s %s", command, strings.Join(args, " "))
	if workDir != "" {
		nc.Logf(plugin.LevelInfo, "Dir: %s", workDir)
	}

	result, err := nc.API.Shell.Run(nc, command, args, workDir)
	if err != nil {
		return nil, err
	}
	if result.ExitCode != 0 {
		nc.Logf(plugin.LevelWarn, "Exit code: %d", result.ExitCode)
		if result.Stderr != "" {
			nc.Log(plugin.LevelWarn, limit(result.Stderr, 200))
		}
	} else {
		nc.Log(plugin.LevelSuccess, "Command completed")
	}

	return map[string]any{
		"stdout":   result.Stdout,
		"stderr":   result.Stderr,
		"exitCode": result.ExitCode,
		"success":  result.ExitCode == 0,
	}, nil
}

func (n *Node) http(nc *plugin.NodeContext, input map[string]any) (any, error) {
	cfg := n.Definition.ActionConfig
	method := strings.ToUpper(cfg.Method)
	if method == "" {
		method = "GET"
	}
	url := expand(cfg.URL, input)
	if url == "" {
		return nil, errors.New("no URL specified")
	}
	if nc.API.HTTP == nil {
		return nil, errNoHTTPClient
	}

	headers := map[string]string{}
	if raw := expand(cfg.Headers, input); raw != "" {
		if err := json.Unmarshal([]byte(raw), &headers); err != nil {
			nc.Log(plugin.LevelWarn, "Invalid headers JSON, using empty headers")
			headers = map[string]string{}
		}
	}

	nc.Logf(plugin.LevelInfo, "%s %s", method, url)
	resp, err := nc.API.HTTP.Do(nc, method, url, headers, expand(cfg.Body, input))
	if err != nil {
		return nil, err
	}
	nc.Logf(plugin.LevelSuccess, "Status: %d", resp.StatusCode)
	return resp.Value(), nil
}

func (n *Node) script(nc *plugin.NodeContext, input map[string]any) (any, error) {
	code := n.Definition.ActionConfig.Script
	if strings.TrimSpace(code) == "" {
		code = "input"
	}
	nc.Log(plugin.LevelInfo, "Executing script...")

	out, err := n.vm.eval(nc, code, map[string]any{
		"input": input,
		"log": func(message string) {
			nc.Log(plugin.LevelInfo, message)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("script: %w", err)
	}
	nc.Log(plugin.LevelSuccess, "Script completed")
	return out, nil
}

func limit(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
