package plugin

import (
	"context"

	"github.com/BDNK1/nodeflow/runtime"
)

// NodeContext is the per-visit context handed to a handler.
type NodeContext = runtime.NodeContext

// Handler is the behaviour bound to a node type.
type Handler = runtime.Handler

// HandlerFunc adapts a function to Handler.
type HandlerFunc = runtime.HandlerFunc

// Variables is the live variable environment of a branch.
type Variables = runtime.Variables

type Settings = runtime.Settings

type LogLevel = runtime.LogLevel

const (
	LevelInfo    = runtime.LevelInfo
	LevelSuccess = runtime.LevelSuccess
	LevelWarn    = runtime.LevelWarn
	LevelError   = runtime.LevelError
)

// API groups the side-effect collaborators a host provides.
type API = runtime.API

type HTTPClient = runtime.HTTPClient

type HTTPResponse = runtime.HTTPResponse

type ShellRunner = runtime.ShellRunner

type CommandResult = runtime.CommandResult

type Notifier = runtime.Notifier

type ExpressionEvaluator = runtime.ExpressionEvaluator

type LogFunc = runtime.LogFunc

// NewNodeContext builds a NodeContext for calling a handler directly, for
// example from a handler's tests.
func NewNodeContext(ctx context.Context, nodeID string, data map[string]any, vars Variables, onLog LogFunc) *NodeContext {
	return runtime.NewNodeContext(ctx, nodeID, data, vars, onLog)
}
