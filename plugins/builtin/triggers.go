package builtin

import (
	"fmt"
	"strings"
	"time"

	"github.com/BDNK1/nodeflow/runtime"
	"github.com/BDNK1/nodeflow/runtime/plugin"
)

// Triggers implements the trigger_* node types. Triggers only describe how
// a flow was started; scheduling and listening belong to the host.
type Triggers struct {
	// WebhookBaseURL prefixes webhook paths in trigger_webhook output.
	WebhookBaseURL string

	now func() time.Time
}

func NewTriggers() *Triggers {
	return &Triggers{WebhookBaseURL: "http://localhost:8080", now: time.Now}
}

func (t *Triggers) timestamp() int64 {
	if t.now == nil {
		return time.Now().UnixMilli()
	}
	return t.now().UnixMilli()
}

func (t *Triggers) Manual(nc *plugin.NodeContext) (any, error) {
	nc.Log(plugin.LevelInfo, "Manual trigger activated")
	return map[string]any{"triggered": true, "timestamp": t.timestamp()}, nil
}

// Schedule validates the cron expression loosely: five or six fields.
func (t *Triggers) Schedule(nc *plugin.NodeContext) (any, error) {
	cron := strings.TrimSpace(nc.String("cron"))
	if cron == "" {
		return nil, fmt.Errorf("cron expression is required")
	}
	nc.Logf(plugin.LevelInfo, "Schedule: %s", cron)

	if parts := len(strings.Fields(cron)); parts < 5 || parts > 6 {
		nc.Logf(plugin.LevelWarn, "Cron might be invalid: %q (expected 5 or 6 parts)", cron)
	} else {
		nc.Log(plugin.LevelSuccess, "Schedule configured")
	}

	return map[string]any{
		"triggered": true,
		"cron":      cron,
		"enabled":   !isFalse(nc.Data["enabled"]),
		"timestamp": t.timestamp(),
	}, nil
}

func (t *Triggers) Webhook(nc *plugin.NodeContext) (any, error) {
	method := strings.ToUpper(nc.String("method"))
	if method == "" {
		method = "POST"
	}
	path := nc.String("path")
	if path == "" {
		path = "/webhook"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	url := strings.TrimSuffix(t.WebhookBaseURL, "/") + path

	nc.Logf(plugin.LevelInfo, "Webhook listener: %s %s", method, path)
	return map[string]any{
		"triggered": true,
		"method":    method,
		"path":      path,
		"url":       url,
		"timestamp": t.timestamp(),
	}, nil
}

// Startup waits config.delay milliseconds before the flow continues.
func (t *Triggers) Startup(nc *plugin.NodeContext) (any, error) {
	delay := max(runtime.ToInt(nc.Data["delay"]), 0)
	if delay > 0 {
		nc.Logf(plugin.LevelInfo, "Waiting %dms before continuing", delay)
		if err := sleep(nc, time.Duration(delay)*time.Millisecond); err != nil {
			return nil, err
		}
	}
	nc.Log(plugin.LevelSuccess, "Startup trigger executed")
	return map[string]any{"triggered": true, "delay": delay, "timestamp": t.timestamp()}, nil
}

// isFalse reports whether v is the literal boolean false.
func isFalse(v any) bool {
	b, ok := v.(bool)
	return ok && !b
}
