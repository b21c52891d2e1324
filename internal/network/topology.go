package network

import (
	"sort"

	opgrapherrors "github.com/alexisbeaulieu97/opgraph/pkg/errors"
)

// TopologicalLevels groups node indices into levels using Kahn's algorithm.
// Every node in a level depends only on nodes from earlier levels. Indices
// within a level are sorted. A cycle yields a ConfigurationError whose details
// start with "Cycle detected".
func (n *Network) TopologicalLevels() ([][]int, error) {
	indegree := n.InDegrees()
	outgoing := n.Outgoing()

	var queue []int
	for i, d := range indegree {
		if d == 0 {
			queue = append(queue, i)
		}
	}

	processed := 0
	var levels [][]int
	for len(queue) > 0 {
		current := queue
		sort.Ints(current)
		levels = append(levels, append([]int(nil), current...))

		var next []int
		for _, i := range current {
			processed++
			for _, e := range outgoing[i] {
				indegree[e.Dest]--
				if indegree[e.Dest] == 0 {
					next = append(next, e.Dest)
				}
			}
		}
		queue = next
	}

	if processed != len(indegree) {
		return nil, opgrapherrors.NewConfigurationError("Cycle detected: %d of %d nodes are unreachable in topological order", len(indegree)-processed, len(indegree))
	}
	return levels, nil
}
