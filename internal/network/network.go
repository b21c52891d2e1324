// Package network holds the graph model executed by the scheduler: an ordered
// node list, an ordered edge list, and the static validator that must accept
// a network before it is scheduled.
package network

import (
	"fmt"

	"github.com/alexisbeaulieu97/opgraph/internal/operator"
	"github.com/alexisbeaulieu97/opgraph/internal/port"
)

// Node wraps one operator. Its position in Network.Nodes is its identity.
type Node struct {
	// Label is an optional human readable name used in logs.
	Label string
	Op    operator.Operator
}

// Name returns the label, falling back to the opcode.
func (n *Node) Name() string {
	if n == nil {
		return ""
	}
	if n.Label != "" {
		return n.Label
	}
	if n.Op == nil {
		return ""
	}
	return string(n.Op.Opcode())
}

// Edge feeds output SourcePort of node Source into input DestPort of node Dest.
type Edge struct {
	Source     int       `json:"source" yaml:"source"`
	SourcePort port.Slot `json:"source_port" yaml:"source_port"`
	Dest       int       `json:"dest" yaml:"dest"`
	DestPort   port.Slot `json:"dest_port" yaml:"dest_port"`
}

func (e Edge) String() string {
	return fmt.Sprintf("%d.%d -> %d.%d", e.Source, e.SourcePort, e.Dest, e.DestPort)
}

// Network is a set of operators and the edges between them.
type Network struct {
	Nodes []*Node
	Edges []Edge
}

// NodeCount returns the number of nodes.
func (n *Network) NodeCount() int {
	if n == nil {
		return 0
	}
	return len(n.Nodes)
}

// Node returns the node at index i, or nil when out of range.
func (n *Network) Node(i int) *Node {
	if n == nil || i < 0 || i >= len(n.Nodes) {
		return nil
	}
	return n.Nodes[i]
}

// InDegrees counts incoming edges per node. Edges with out of range
// endpoints are ignored.
func (n *Network) InDegrees() []int {
	deg := make([]int, n.NodeCount())
	for _, e := range n.Edges {
		if e.Dest >= 0 && e.Dest < len(deg) && e.Source >= 0 && e.Source < len(deg) {
			deg[e.Dest]++
		}
	}
	return deg
}

// Outgoing returns, per node, the edges that leave it, in edge order.
func (n *Network) Outgoing() [][]Edge {
	out := make([][]Edge, n.NodeCount())
	for _, e := range n.Edges {
		if e.Source >= 0 && e.Source < len(out) && e.Dest >= 0 && e.Dest < len(out) {
			out[e.Source] = append(out[e.Source], e)
		}
	}
	return out
}

// Incoming returns, per node, the edges that enter it, in edge order.
func (n *Network) Incoming() [][]Edge {
	in := make([][]Edge, n.NodeCount())
	for _, e := range n.Edges {
		if e.Source >= 0 && e.Source < len(in) && e.Dest >= 0 && e.Dest < len(in) {
			in[e.Dest] = append(in[e.Dest], e)
		}
	}
	return in
}

// Successors returns the distinct direct successors of node i in first-seen order.
func (n *Network) Successors(i int) []int {
	seen := make(map[int]struct{})
	var out []int
	for _, e := range n.Edges {
		if e.Source != i {
			continue
		}
		if _, ok := seen[e.Dest]; ok {
			continue
		}
		seen[e.Dest] = struct{}{}
		out = append(out, e.Dest)
	}
	return out
}
