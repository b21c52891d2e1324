package network

import (
	"github.com/alexisbeaulieu97/opgraph/internal/operator"
	"github.com/alexisbeaulieu97/opgraph/internal/port"
)

// Builder assembles a Network. Nodes are indexed in insertion order.
type Builder struct {
	nodes []*Node
	edges []Edge
}

// NewBuilder returns an empty builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// AddNode appends an unlabelled node.
func (b *Builder) AddNode(op operator.Operator) *Builder {
	return b.AddLabeled("", op)
}

// AddLabeled appends a node carrying a display label.
func (b *Builder) AddLabeled(label string, op operator.Operator) *Builder {
	b.nodes = append(b.nodes, &Node{Label: label, Op: op})
	return b
}

// Connect adds an edge from output srcPort of src to input dstPort of dst.
// Indices are not checked here; Validate reports them.
func (b *Builder) Connect(src int, srcPort port.Slot, dst int, dstPort port.Slot) *Builder {
	b.edges = append(b.edges, Edge{Source: src, SourcePort: srcPort, Dest: dst, DestPort: dstPort})
	return b
}

// Len returns the number of nodes added so far.
func (b *Builder) Len() int {
	return len(b.nodes)
}

// Build returns the network. The builder may keep being used; later
// additions do not affect networks already built.
func (b *Builder) Build() *Network {
	return &Network{
		Nodes: append([]*Node(nil), b.nodes...),
		Edges: append([]Edge(nil), b.edges...),
	}
}
