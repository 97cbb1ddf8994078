// Package builtin holds the node types every nodeflow host ships with.
package builtin

import (
	"fmt"

	"github.com/BDNK1/nodeflow/runtime"
)

// Register adds the built-in triggers, conditions, loops and actions to reg.
func Register(reg *runtime.Registry) error {
	plugins := []struct {
		prefix string
		plugin any
	}{
		{"trigger", NewTriggers()},
		{"condition", &Conditions{}},
		{"loop", &Loops{}},
		{"action", &Actions{}},
	}
	for _, p := range plugins {
		if err := reg.RegisterPlugin(p.prefix, p.plugin); err != nil {
			return fmt.Errorf("failed to register %s handlers: %w", p.prefix, err)
		}
	}
	return nil
}
