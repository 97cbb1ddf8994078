package builtin

import (
	"encoding/json"

	"github.com/BDNK1/nodeflow/runtime"
	"github.com/BDNK1/nodeflow/runtime/plugin"
)

// Loops implements the loop_* node types. The handlers only normalize the
// loop settings; iteration itself is driven by the executor from the
// returned fields.
type Loops struct{}

func (l *Loops) Foreach(nc *plugin.NodeContext) (any, error) {
	items := listInput(nc, "items")
	nc.Logf(plugin.LevelInfo, "Looping over %d item(s)", len(items))
	return map[string]any{
		"items":    items,
		"itemVar":  stringOr(nc.String("itemVar"), "item"),
		"indexVar": stringOr(nc.String("indexVar"), "index"),
	}, nil
}

func (l *Loops) Repeat(nc *plugin.NodeContext) (any, error) {
	count := max(runtime.ToInt(nc.Data["count"]), 0)
	nc.Logf(plugin.LevelInfo, "Repeating %d time(s)", count)
	return map[string]any{
		"count":    count,
		"indexVar": stringOr(nc.String("indexVar"), "i"),
	}, nil
}

// While reports maxIterations as 0 when unset so the engine default applies.
func (l *Loops) While(nc *plugin.NodeContext) (any, error) {
	return map[string]any{
		"condition":     nc.String("condition"),
		"maxIterations": max(runtime.ToInt(nc.Data["maxIterations"]), 0),
	}, nil
}

func (l *Loops) ParallelForeach(nc *plugin.NodeContext) (any, error) {
	items := listInput(nc, "items")
	return map[string]any{
		"items":       items,
		"itemVar":     stringOr(nc.String("itemVar"), "item"),
		"indexVar":    stringOr(nc.String("indexVar"), "index"),
		"concurrency": max(runtime.ToInt(nc.Data["concurrency"]), 0),
	}, nil
}

// listInput reads Data[key] as a list. JSON array strings are parsed; any
// other value yields an empty list and a warning.
func listInput(nc *plugin.NodeContext, key string) []any {
	v := nc.Data[key]
	if s, ok := v.(string); ok {
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err == nil {
			v = parsed
		}
	}
	if v == nil {
		return []any{}
	}
	items, ok := runtime.AsSlice(v)
	if !ok {
		nc.Logf(plugin.LevelWarn, "%s is not an array (%s)", key, runtime.TypeName(v))
		return []any{}
	}
	return items
}

func stringOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
