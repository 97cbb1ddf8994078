// Package custom turns user-defined node definitions into handlers. A
// definition runs one of three actions: an HTTP request through API.HTTP,
// a shell command through API.Shell, or a sandboxed Risor script.
package custom

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/BDNK1/nodeflow/runtime"
)

type ActionType string

const (
	ActionHTTP   ActionType = "http"
	ActionScript ActionType = "script"
	ActionShell  ActionType = "shell"
)

// ActionConfig holds the settings for every action type; each action reads
// only its own fields. String fields may contain {{name}} placeholders
// resolved against the node's input.
type ActionConfig struct {
	Method  string `json:"method,omitempty" yaml:"method,omitempty"`
	URL     string `json:"url,omitempty" yaml:"url,omitempty"`
	Headers string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body    string `json:"body,omitempty" yaml:"body,omitempty"`

	Command string `json:"command,omitempty" yaml:"command,omitempty"`
	Args    string `json:"args,omitempty" yaml:"args,omitempty"`
	WorkDir string `json:"workDir,omitempty" yaml:"workDir,omitempty"`

	Script string `json:"script,omitempty" yaml:"script,omitempty"`
}

type Definition struct {
	ID           string       `json:"id" yaml:"id"`
	Name         string       `json:"name" yaml:"name"`
	Description  string       `json:"description,omitempty" yaml:"description,omitempty"`
	NodeType     string       `json:"nodeType" yaml:"nodeType"`
	ActionType   ActionType   `json:"actionType" yaml:"actionType"`
	ActionConfig ActionConfig `json:"actionConfig" yaml:"actionConfig"`
}

func (d Definition) Validate() error {
	if d.NodeType == "" {
		return fmt.Errorf("custom node %q: nodeType is required", d.ID)
	}
	switch d.ActionType {
	case ActionHTTP, ActionScript, ActionShell:
		return nil
	}
	return fmt.Errorf("custom node %q: unknown action type %q", d.NodeType, d.ActionType)
}

// Register validates every definition and binds it to its node type.
// Nothing is registered when any definition is invalid.
func Register(reg *runtime.Registry, defs ...Definition) error {
	seen := make(map[string]bool, len(defs))
	for _, d := range defs {
		if err := d.Validate(); err != nil {
			return err
		}
		if seen[d.NodeType] {
			return fmt.Errorf("custom node type %q defined twice", d.NodeType)
		}
		seen[d.NodeType] = true
	}
	for _, d := range defs {
		reg.Register(d.NodeType, &Node{Definition: d})
	}
	return nil
}

// LoadDefinitions reads a list of definitions from a .json, .yaml or .yml
// file.
func LoadDefinitions(path string) ([]Definition, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read custom nodes: %w", err)
	}

	var defs []Definition
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(content, &defs)
	default:
		err = json.Unmarshal(content, &defs)
	}
	if err != nil {
		return nil, fmt.Errorf("parse custom nodes %s: %w", path, err)
	}
	return defs, nil
}

var placeholder = regexp.MustCompile(`\{\{(\w+)\}\}`)

// expand replaces {{name}} with input[name]. Missing and nil values become
// empty text and objects are rendered as compact JSON.
func expand(template string, input map[string]any) string {
	return placeholder.ReplaceAllStringFunc(template, func(match string) string {
		switch v := input[placeholder.FindStringSubmatch(match)[1]].(type) {
		case nil:
			return ""
		case string:
			return v
		default:
			if _, ok := runtime.AsMap(v); ok {
				return runtime.JSONLiteral(v)
			}
			if _, ok := runtime.AsSlice(v); ok {
				return runtime.JSONLiteral(v)
			}
			return runtime.Stringify(v)
		}
	})
}
