package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strings"
	"time"

	"github.com/BDNK1/nodeflow/runtime"
	"github.com/BDNK1/nodeflow/runtime/plugin"
)

var (
	errNoHTTPClient = errors.New("no HTTP client configured")
	errNoShell      = errors.New("no shell runner configured")
	errNoNotifier   = errors.New("no notifier configured")
)

// Actions implements the action_* node types.
type Actions struct{}

func (a *Actions) Log(nc *plugin.NodeContext) (any, error) {
	message, level := nc.String("message"), nc.String("level")
	switch level {
	case "warn":
		nc.Log(plugin.LevelWarn, message)
	case "error":
		nc.Log(plugin.LevelError, message)
	default:
		nc.Log(plugin.LevelInfo, message)
	}
	return map[string]any{"logged": true, "message": message, "level": level}, nil
}

func (a *Actions) SetVariable(nc *plugin.NodeContext) (any, error) {
	name := nc.String("name")
	if name == "" {
		return nil, fmt.Errorf("variable name is required")
	}
	value := nc.Data["value"]
	nc.Variables.Set(name, value)
	nc.Logf(plugin.LevelSuccess, "Variable set: %s", name)
	return map[string]any{"name": name, "value": value}, nil
}

// Delay sleeps config.duration milliseconds, 1000 when unset or zero.
func (a *Actions) Delay(nc *plugin.NodeContext) (any, error) {
	duration := runtime.ToInt(nc.Data["duration"])
	if duration == 0 {
		duration = 1000
	}
	nc.Logf(plugin.LevelInfo, "Waiting %dms", duration)
	if err := sleep(nc, time.Duration(duration)*time.Millisecond); err != nil {
		return nil, err
	}
	return map[string]any{"delayed": duration}, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// HTTP sends a request through the host's HTTP client and returns the
// decoded JSON body, or the raw body when it is not JSON.
func (a *Actions) HTTP(nc *plugin.NodeContext) (any, error) {
	if nc.API.HTTP == nil {
		return nil, errNoHTTPClient
	}
	method := strings.ToUpper(stringOr(nc.String("method"), "GET"))
	url := nc.String("url")
	if url == "" {
		return nil, fmt.Errorf("url is required")
	}

	headers, err := runtime.ToStringMap(nc.Data["headers"])
	if err != nil {
		nc.Logf(plugin.LevelWarn, "Failed to parse headers: %s", err)
		headers = map[string]string{}
	}

	var body any
	if raw, ok := nc.Data["body"]; ok && raw != "" {
		body = raw
	}

	nc.Logf(plugin.LevelInfo, "HTTP %s %s", method, url)
	resp, err := nc.API.HTTP.Do(nc, method, url, headers, body)
	if err != nil {
		nc.Logf(plugin.LevelError, "Request failed: %s", err)
		return nil, err
	}
	nc.Logf(plugin.LevelSuccess, "Status: %s", resp.Status)
	return resp.Value(), nil
}

// Script runs config.command with space separated config.args.
func (a *Actions) Script(nc *plugin.NodeContext) (any, error) {
	if nc.API.Shell == nil {
		return nil, errNoShell
	}
	command := nc.String("command")
	if command == "" {
		return nil, fmt.Errorf("command is required")
	}
	args := strings.Fields(nc.String("args"))

	nc.Logf(plugin.LevelInfo, "Command: %s %s", command, strings.Join(args, " "))
	result, err := nc.API.Shell.Run(nc, command, args, nc.String("workDir"))
	if err != nil {
		nc.Logf(plugin.LevelError, "Command failed: %s", err)
		return nil, err
	}
	nc.Logf(plugin.LevelSuccess, "Exit code: %d", result.ExitCode)
	if result.Stderr != "" {
		nc.Logf(plugin.LevelWarn, "Stderr: %s", truncate(result.Stderr, 100))
	}
	return map[string]any{"output": result.Stdout, "exitCode": result.ExitCode}, nil
}

func (a *Actions) JSONParse(nc *plugin.NodeContext) (any, error) {
	var parsed any
	if err := json.Unmarshal([]byte(nc.String("json")), &parsed); err != nil {
		nc.Logf(plugin.LevelError, "Invalid JSON: %s", err)
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}
	nc.Log(plugin.LevelSuccess, "JSON parsed successfully")
	return parsed, nil
}

// JSONStringify renders config.object as indented JSON. A string object is
// parsed first so already serialized input is re-indented.
func (a *Actions) JSONStringify(nc *plugin.NodeContext) (any, error) {
	obj := nc.Data["object"]
	if s, ok := obj.(string); ok {
		if err := json.Unmarshal([]byte(s), &obj); err != nil {
			return nil, fmt.Errorf("failed to stringify: %w", err)
		}
	}

	var result string
	if s, ok := obj.(string); ok {
		b, _ := json.Marshal(s)
		result = string(b)
	} else {
		result = runtime.Stringify(obj)
	}
	nc.Logf(plugin.LevelSuccess, "Object stringified (%d chars)", len(result))
	return result, nil
}

// Template returns config.template, which the executor has already
// interpolated.
func (a *Actions) Template(nc *plugin.NodeContext) (any, error) {
	result := nc.String("template")
	nc.Logf(plugin.LevelSuccess, "Template rendered (%d chars)", len(result))
	return result, nil
}

func (a *Actions) Regex(nc *plugin.NodeContext) (any, error) {
	text, pattern, mode := nc.String("text"), nc.String("pattern"), nc.String("mode")
	re, err := regexp.Compile(pattern)
	if err != nil {
		nc.Logf(plugin.LevelError, "Regex error: %s", err)
		return nil, fmt.Errorf("invalid pattern: %w", err)
	}

	switch mode {
	case "match":
		loc := re.FindStringIndex(text)
		if loc == nil {
			return nil, nil
		}
		return text[loc[0]:loc[1]], nil
	case "matchAll":
		matches := re.FindAllString(text, -1)
		out := make([]any, len(matches))
		for i, m := range matches {
			out[i] = m
		}
		nc.Logf(plugin.LevelSuccess, "Found %d matches", len(out))
		return out, nil
	case "replace":
		return re.ReplaceAllString(text, nc.String("replacement")), nil
	case "test":
		return re.MatchString(text), nil
	}
	return nil, nil
}

// Math applies config.operation to config.a and config.b. Results that are
// not finite numbers are errors.
func (a *Actions) Math(nc *plugin.NodeContext) (any, error) {
	operation := nc.String("operation")
	x := number(nc.Data["a"])
	y := number(nc.Data["b"])

	var result float64
	switch operation {
	case "add":
		result = x + y
	case "subtract":
		result = x - y
	case "multiply":
		result = x * y
	case "divide":
		result = x / y
	case "modulo":
		result = math.Mod(x, y)
	case "power":
		result = math.Pow(x, y)
	case "round":
		result = math.Floor(x + 0.5)
	case "floor":
		result = math.Floor(x)
	case "ceil":
		result = math.Ceil(x)
	case "abs":
		result = math.Abs(x)
	default:
		result = x
	}

	if math.IsNaN(result) || math.IsInf(result, 0) {
		return nil, fmt.Errorf("math %s: result is not a finite number", operation)
	}
	nc.Logf(plugin.LevelSuccess, "Result: %s", runtime.Stringify(result))
	return result, nil
}

func number(v any) float64 {
	f, ok := runtime.ToFloat(v)
	if !ok {
		return math.NaN()
	}
	return f
}

func (a *Actions) Notification(nc *plugin.NodeContext) (any, error) {
	if nc.API.Notifier == nil {
		return nil, errNoNotifier
	}
	title, message := nc.String("title"), nc.String("message")
	nc.Logf(plugin.LevelInfo, "Notification: %q", title)
	if err := nc.API.Notifier.Notify(nc, title, message); err != nil {
		return nil, fmt.Errorf("failed to send notification: %w", err)
	}
	nc.Log(plugin.LevelSuccess, "Notification sent")
	return map[string]any{"notified": true}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
