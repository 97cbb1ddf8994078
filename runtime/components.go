package runtime

// Category groups node types in the palette. The engine only reports it.
type Category string

const (
	CategoryTrigger   Category = "trigger"
	CategoryCondition Category = "condition"
	CategoryAction    Category = "action"
	CategoryLoop      Category = "loop"
	CategoryUtility   Category = "utility"
	CategoryAI        Category = "ai"
	CategoryApps      Category = "apps"
)

// NodeStatus is the externally observable state of a node on the canvas.
type NodeStatus string

const (
	NodeIdle    NodeStatus = "idle"
	NodeRunning NodeStatus = "running"
	NodeSuccess NodeStatus = "success"
	NodeFailed  NodeStatus = "error"
	NodeSkipped NodeStatus = "skipped"
)

type Flow struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
	Enabled     bool   `json:"enabled" yaml:"enabled"`
	Nodes       []Node `json:"nodes" yaml:"nodes"`
	Edges       []Edge `json:"edges" yaml:"edges"`
	CreatedAt   string `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

type Node struct {
	ID       string         `json:"id" yaml:"id"`
	NodeType string         `json:"nodeType" yaml:"nodeType"`
	Category Category       `json:"category,omitempty" yaml:"category,omitempty"`
	Label    string         `json:"label,omitempty" yaml:"label,omitempty"`
	Config   map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	Status   NodeStatus     `json:"status,omitempty" yaml:"status,omitempty"`
}

// Disabled reports whether the node is switched off through config.disabled.
// Only a literal boolean true disables a node.
func (n Node) Disabled() bool {
	disabled, ok := n.Config["disabled"].(bool)
	return ok && disabled
}

// DisplayName is the label shown in log lines, falling back to the node id.
func (n Node) DisplayName() string {
	if n.Label != "" {
		return n.Label
	}
	return n.ID
}

type Edge struct {
	ID           string `json:"id,omitempty" yaml:"id,omitempty"`
	Source       string `json:"source" yaml:"source"`
	Target       string `json:"target" yaml:"target"`
	SourceHandle string `json:"sourceHandle,omitempty" yaml:"sourceHandle,omitempty"`
}

// Validate compiles the flow graph and reports the first structural problem.
func (f *Flow) Validate() error {
	_, err := NewGraph(f.Nodes, f.Edges)
	return err
}
