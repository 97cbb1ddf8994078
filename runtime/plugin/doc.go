// Package plugin provides the minimal surface for nodeflow handler development.
//
// This package contains ONLY the types that handler authors need. Plugin
// packages should import it instead of the parent "runtime" package, which
// also carries the executor internals.
//
//	import "github.com/BDNK1/nodeflow/runtime/plugin"
//
// # Plugin Structure
//
// A plugin is a struct whose exported methods have the handler signature:
//
//	type GreetPlugin struct{}
//
//	func (p *GreetPlugin) Hello(nc *plugin.NodeContext) (any, error) {
//	    name := nc.String("name")
//	    nc.Logf(plugin.LevelInfo, "Greeting %s", name)
//	    return map[string]any{"message": "Hello, " + name}, nil
//	}
//
// Registering it under a prefix turns every such method into a node type,
// with the method name converted to snake case:
//
//	registry.RegisterPlugin("greet", &GreetPlugin{}) // node type "greet_hello"
//
// Single handlers can be registered directly with Registry.Register or
// Registry.RegisterFunc.
//
// # Node Context
//
// The NodeContext passed to every handler provides:
//   - Data: the node config with every {{path}} placeholder already resolved
//   - Variables: the live variables of the branch the node runs in
//   - Settings: read-only host settings and environment variables
//   - API: HTTP, shell and notification collaborators supplied by the host
//   - Log / Logf: log lines attributed to the node
//
// NodeContext implements context.Context, so it can be passed to any call
// that blocks:
//
//	resp, err := nc.API.HTTP.Get(nc, nc.String("url"), nil)
//
// # Outputs
//
// Whatever a handler returns is stored as node_<id> and as lastOutput,
// result, response and output for the nodes that follow. Returning an error
// marks the node failed and stops the branch unless an enclosing try/catch
// node catches it.
//
// # Configuration
//
// Plugins can define a Config struct with declarative tags:
//
//	type Config struct {
//	    Timeout time.Duration `yaml:"timeout" default:"30s" validate:"gte=1s"`
//	}
//
// runtime.InitializeConfig applies defaults, merges raw values and validates.
//
// # Lifecycle Management
//
// Plugins can optionally implement Initializer and Shutdowner. The registry
// calls Initialize in registration order and Shutdown in reverse order.
package plugin
