package runtime

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"gopkg.in/yaml.v3"
)

// ParseFlow reads a flow document. YAML and JSON are both accepted, and
// nodes may use the editor shape, where label, nodeType, category and config
// sit under a data key, or the flat shape used by Node.
func ParseFlow(data []byte) (*Flow, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("error unmarshalling flow: %w", err)
	}
	if raw == nil {
		return nil, fmt.Errorf("flow document is empty")
	}

	if nodes, ok := raw["nodes"].([]any); ok {
		for i, n := range nodes {
			nodes[i] = flattenNode(n)
		}
	}

	var flow Flow
	if err := Decode(raw, &flow); err != nil {
		return nil, fmt.Errorf("error decoding flow: %w", err)
	}
	return &flow, nil
}

// flattenNode lifts the fields of an editor node's data block to the top.
func flattenNode(n any) any {
	node, ok := n.(map[string]any)
	if !ok {
		return n
	}
	data, ok := node["data"].(map[string]any)
	if !ok {
		return node
	}

	out := make(map[string]any, len(node)+len(data))
	for k, v := range node {
		if k != "data" {
			out[k] = v
		}
	}
	for k, v := range data {
		if _, set := out[k]; !set {
			out[k] = v
		}
	}
	// The editor keeps its component name in type; nodeType is what runs.
	if _, ok := out["nodeType"]; !ok {
		out["nodeType"] = node["type"]
	}
	return out
}

func LoadFlow(path string) (*Flow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading flow file: %w", err)
	}
	flow, err := ParseFlow(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if flow.ID == "" {
		base := filepath.Base(path)
		flow.ID = base[:len(base)-len(filepath.Ext(base))]
	}
	return flow, nil
}

// LoadFlows reads every .json, .yaml and .yml flow in dir, keyed by flow id.
func LoadFlows(dir string) (map[string]*Flow, error) {
	var files []string
	for _, pattern := range []string{"*.json", "*.yaml", "*.yml"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, fmt.Errorf("error reading directory: %w", err)
		}
		files = append(files, matches...)
	}
	sort.Strings(files)

	flows := make(map[string]*Flow, len(files))
	for _, file := range files {
		flow, err := LoadFlow(file)
		if err != nil {
			return nil, err
		}
		if _, dup := flows[flow.ID]; dup {
			return nil, fmt.Errorf("flow id %q defined more than once (%s)", flow.ID, file)
		}
		flows[flow.ID] = flow
	}
	return flows, nil
}
