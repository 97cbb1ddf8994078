package runtime

import (
	"errors"
	"fmt"
)

var (
	// ErrNoTrigger is returned when every node has an incoming edge.
	ErrNoTrigger = errors.New("no trigger node found")
	// ErrCycle is returned when the graph contains a directed cycle.
	ErrCycle = errors.New("graph contains a cycle")
	// ErrInvalidPort is returned when an edge leaves a node through a handle its family does not define.
	ErrInvalidPort = errors.New("invalid edge port")
	// ErrDuplicateNode is returned when two nodes share an id.
	ErrDuplicateNode = errors.New("duplicate node id")
	// ErrNoApprover is returned by a manual approval node when the executor has no Approver.
	ErrNoApprover = errors.New("no approver configured")
)

// GraphError describes a structural problem found while compiling a graph.
type GraphError struct {
	NodeID string
	EdgeID string
	Detail string
	Err    error
}

func (e *GraphError) Error() string {
	switch {
	case e.EdgeID != "":
		return fmt.Sprintf("%v: edge %s: %s", e.Err, e.EdgeID, e.Detail)
	case e.NodeID != "":
		return fmt.Sprintf("%v: node %s: %s", e.Err, e.NodeID, e.Detail)
	default:
		return fmt.Sprintf("%v: %s", e.Err, e.Detail)
	}
}

func (e *GraphError) Unwrap() error {
	return e.Err
}

// NodeError is a handler failure travelling up the walk. Its message is the
// handler's own message so try/catch nodes expose exactly what the handler said.
type NodeError struct {
	NodeID   string
	NodeType string
	Err      error
}

func (e *NodeError) Error() string {
	return e.Err.Error()
}

func (e *NodeError) Unwrap() error {
	return e.Err
}

// FailedNode returns the id of the node whose handler produced err, if any.
func FailedNode(err error) (string, bool) {
	var nodeErr *NodeError
	if errors.As(err, &nodeErr) {
		return nodeErr.NodeID, true
	}
	return "", false
}
