package runtime

import (
	"fmt"
	"strings"
)

// link is an edge whose source handle has been mapped onto a Port.
type link struct {
	edge Edge
	port Port
}

// Graph is the compiled, read-only form of a node/edge list.
type Graph struct {
	nodes    []Node
	index    map[string]int
	outgoing map[string][]link
	triggers []string
}

// NewGraph compiles nodes and edges. It rejects duplicate node ids, handles
// that the source node's family does not define, graphs without a trigger
// node and graphs containing a directed cycle. Edges pointing at unknown
// nodes are kept; the walker treats them as no-ops.
func NewGraph(nodes []Node, edges []Edge) (*Graph, error) {
	g := &Graph{
		nodes:    nodes,
		index:    make(map[string]int, len(nodes)),
		outgoing: make(map[string][]link),
	}

	for i, n := range nodes {
		if _, dup := g.index[n.ID]; dup {
			return nil, &GraphError{NodeID: n.ID, Detail: "id used by more than one node", Err: ErrDuplicateNode}
		}
		g.index[n.ID] = i
	}

	targeted := make(map[string]bool, len(edges))
	for i, e := range edges {
		targeted[e.Target] = true

		src, ok := g.Node(e.Source)
		if !ok {
			continue
		}
		port, err := resolvePort(FamilyOf(src.NodeType), e.SourceHandle)
		if err != nil {
			return nil, &GraphError{EdgeID: edgeName(e, i), Detail: fmt.Sprintf("from %s (%s): %v", src.ID, src.NodeType, err), Err: ErrInvalidPort}
		}
		g.outgoing[e.Source] = append(g.outgoing[e.Source], link{edge: e, port: port})
	}

	for _, n := range nodes {
		if !targeted[n.ID] {
			g.triggers = append(g.triggers, n.ID)
		}
	}
	if len(g.triggers) == 0 {
		return nil, ErrNoTrigger
	}

	if cycle := g.findCycle(); cycle != nil {
		return nil, &GraphError{Detail: strings.Join(cycle, " -> "), Err: ErrCycle}
	}

	return g, nil
}

func edgeName(e Edge, i int) string {
	if e.ID != "" {
		return e.ID
	}
	return fmt.Sprintf("#%d (%s->%s)", i, e.Source, e.Target)
}

func (g *Graph) Node(id string) (Node, bool) {
	i, ok := g.index[id]
	if !ok {
		return Node{}, false
	}
	return g.nodes[i], true
}

// Triggers returns the nodes without incoming edges in node list order.
func (g *Graph) Triggers() []Node {
	out := make([]Node, 0, len(g.triggers))
	for _, id := range g.triggers {
		n, _ := g.Node(id)
		out = append(out, n)
	}
	return out
}

// targets returns, in edge list order, the target ids of the node's edges
// leaving through port. For PortCase only edges whose handle equals
// caseValue are returned. PortAny returns every outgoing edge.
func (g *Graph) targets(nodeID string, port Port, caseValue string) []string {
	var out []string
	for _, l := range g.outgoing[nodeID] {
		switch {
		case port == PortAny:
		case l.port != port:
			continue
		case port == PortCase && l.edge.SourceHandle != caseValue:
			continue
		}
		out = append(out, l.edge.Target)
	}
	return out
}

// findCycle returns the node ids along a directed cycle, or nil.
func (g *Graph) findCycle() []string {
	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(g.nodes))
	var path []string

	var visit func(id string) []string
	visit = func(id string) []string {
		color[id] = grey
		path = append(path, id)
		for _, l := range g.outgoing[id] {
			next := l.edge.Target
			if _, ok := g.index[next]; !ok {
				continue
			}
			switch color[next] {
			case grey:
				for i, p := range path {
					if p == next {
						return append(append([]string{}, path[i:]...), next)
					}
				}
			case white:
				if c := visit(next); c != nil {
					return c
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	for _, n := range g.nodes {
		if color[n.ID] == white {
			if c := visit(n.ID); c != nil {
				return c
			}
		}
	}
	return nil
}
