package runtime

import (
	"context"
	"fmt"
	"log/slog"
)

var _ context.Context = &NodeContext{}

// NodeContext is what a handler sees for one node visit. It carries the
// context passed to Execute, so handlers can hand it to blocking calls.
type NodeContext struct {
	context.Context

	NodeID   string
	NodeType string
	// Data is the node's config after interpolation.
	Data      map[string]any
	Variables Variables
	Settings  *Settings
	API       API
	// Evaluator is the executor's expression evaluator.
	Evaluator ExpressionEvaluator
	Logger    *slog.Logger

	onLog LogFunc
}

// NewNodeContext builds a context for calling a handler outside an
// executor, as handler tests do. A nil vars gets a fresh scope and a nil
// onLog drops log lines.
func NewNodeContext(ctx context.Context, nodeID string, data map[string]any, vars Variables, onLog LogFunc) *NodeContext {
	if vars == nil {
		vars = NewScope()
	}
	if data == nil {
		data = map[string]any{}
	}
	return &NodeContext{
		Context:   ctx,
		NodeID:    nodeID,
		Data:      data,
		Variables: vars,
		Evaluator: NewExprEvaluator(),
		Logger:    slog.Default(),
		onLog:     onLog,
	}
}

// Log emits a line attributed to this node.
func (nc *NodeContext) Log(level LogLevel, message string) {
	if nc.onLog != nil {
		nc.onLog(level, message, nc.NodeID)
	}
}

func (nc *NodeContext) Logf(level LogLevel, format string, args ...any) {
	nc.Log(level, fmt.Sprintf(format, args...))
}

// String returns Data[key] as a string, or "" when absent.
func (nc *NodeContext) String(key string) string {
	v, ok := nc.Data[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return Stringify(v)
}

// Decode copies Data into target using json tags and weak typing, so "5"
// decodes into an int field.
func (nc *NodeContext) Decode(target any) error {
	return Decode(nc.Data, target)
}
