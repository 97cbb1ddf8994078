package runtime

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// Registry maps node types to handlers. Handlers are registered one by one
// or discovered from a plugin's methods.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
	plugins  []any // Plugin instances in registration order
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register binds nodeType to h, replacing any previous binding.
func (r *Registry) Register(nodeType string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[nodeType] = h
}

func (r *Registry) RegisterFunc(nodeType string, fn func(nc *NodeContext) (any, error)) {
	r.Register(nodeType, HandlerFunc(fn))
}

func (r *Registry) Lookup(nodeType string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[nodeType]
	return h, ok
}

// Types returns the registered node types sorted by name.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for t := range r.handlers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// RegisterPlugin registers a plugin instance and auto-discovers its handlers.
// Every exported method with the signature
//
//	func (p *Plugin) Name(nc *NodeContext) (any, error)
//
// becomes the node type prefix_name, with the method name in snake case
// (SetVariable on prefix "action" is action_set_variable).
func (r *Registry) RegisterPlugin(prefix string, plugin any) error {
	if plugin == nil {
		return fmt.Errorf("plugin cannot be nil")
	}

	pluginType := reflect.TypeOf(plugin)
	pluginValue := reflect.ValueOf(plugin)

	found := 0
	for i := 0; i < pluginType.NumMethod(); i++ {
		method := pluginType.Method(i)

		// Skip unexported methods
		if !method.IsExported() {
			continue
		}

		if !isValidHandlerSignature(method.Type) {
			continue
		}

		nodeType := prefix + "_" + toSnakeCase(method.Name)
		r.Register(nodeType, &pluginHandler{plugin: pluginValue, method: method})
		found++
	}

	if found == 0 {
		return fmt.Errorf("plugin %T has no handler methods", plugin)
	}

	r.mu.Lock()
	r.plugins = append(r.plugins, plugin)
	r.mu.Unlock()
	return nil
}

// Manage adds a component, such as an API client, whose lifecycle the
// registry drives without it contributing handlers.
func (r *Registry) Manage(component any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plugins = append(r.plugins, component)
}

// Initialize calls Initialize on every registered plugin implementing
// Initializer, in registration order, and stops at the first failure.
func (r *Registry) Initialize(ctx context.Context) error {
	r.mu.RLock()
	plugins := append([]any(nil), r.plugins...)
	r.mu.RUnlock()

	for _, plugin := range plugins {
		initializer, ok := plugin.(Initializer)
		if !ok {
			continue
		}
		if err := initializer.Initialize(ctx); err != nil {
			return fmt.Errorf("plugin %T initialization failed: %w", plugin, err)
		}
	}
	return nil
}

// Shutdown calls Shutdown on all plugins implementing Shutdowner.
// Plugins are shut down in reverse order of registration.
func (r *Registry) Shutdown(ctx context.Context) error {
	r.mu.RLock()
	plugins := append([]any(nil), r.plugins...)
	r.mu.RUnlock()

	var errs []error
	for i := len(plugins) - 1; i >= 0; i-- {
		s, ok := plugins[i].(Shutdowner)
		if !ok {
			continue
		}
		if err := s.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("plugin %T shutdown failed: %w", plugins[i], err))
		}
	}
	return errors.Join(errs...)
}

var (
	nodeContextPtrType = reflect.TypeOf((*NodeContext)(nil))
	anyType            = reflect.TypeOf((*any)(nil)).Elem()
	errorType          = reflect.TypeOf((*error)(nil)).Elem()
)

// isValidHandlerSignature checks for func(receiver, *NodeContext) (any, error).
func isValidHandlerSignature(methodType reflect.Type) bool {
	if methodType.NumIn() != 2 || methodType.NumOut() != 2 {
		return false
	}
	return methodType.In(1) == nodeContextPtrType &&
		methodType.Out(0) == anyType &&
		methodType.Out(1) == errorType
}

// toSnakeCase converts a Go method name to snake case, keeping acronyms
// together: JSONParse becomes json_parse.
func toSnakeCase(s string) string {
	runes := []rune(s)
	var b strings.Builder
	for i, r := range runes {
		if unicode.IsUpper(r) && i > 0 {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteByte('_')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// pluginHandler wraps a plugin method to implement Handler
type pluginHandler struct {
	plugin reflect.Value
	method reflect.Method
}

func (h *pluginHandler) Execute(nc *NodeContext) (any, error) {
	results := h.method.Func.Call([]reflect.Value{h.plugin, reflect.ValueOf(nc)})

	var err error
	if !results[1].IsNil() {
		err = results[1].Interface().(error)
	}
	return results[0].Interface(), err
}
