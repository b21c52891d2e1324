package network

import (
	"errors"

	"github.com/alexisbeaulieu97/opgraph/internal/port"
	opgrapherrors "github.com/alexisbeaulieu97/opgraph/pkg/errors"
)

// Validate checks the network before it is scheduled. Checks run in order and
// stop at the first failure:
//
//  1. every node has an operator and every edge is in bounds,
//  2. no input port receives more than one edge,
//  3. edge ports exist on the operators they touch,
//  4. declared port types are compatible,
//  5. the edge relation is acyclic.
//
// All failures are *errors.ConfigurationError.
func (n *Network) Validate() error {
	if n == nil {
		return opgrapherrors.NewConfigurationError("network is nil")
	}
	checks := []func() error{
		n.checkBounds,
		n.checkFanIn,
		n.checkArity,
		n.checkTypes,
		n.checkAcyclic,
	}
	for _, check := range checks {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

func (n *Network) checkBounds() error {
	count := len(n.Nodes)
	for i, node := range n.Nodes {
		if node == nil || node.Op == nil {
			return opgrapherrors.NewConfigurationError("node %d has no operator", i)
		}
	}
	for i, e := range n.Edges {
		switch {
		case e.Source < 0 || e.Source >= count:
			return opgrapherrors.NewConfigurationError("edge %d: source index %d out of range (node count %d)", i, e.Source, count)
		case e.Dest < 0 || e.Dest >= count:
			return opgrapherrors.NewConfigurationError("edge %d: dest index %d out of range (node count %d)", i, e.Dest, count)
		case !e.SourcePort.Valid():
			return opgrapherrors.NewConfigurationError("edge %d: source port %d out of range (max %d)", i, e.SourcePort, port.MaxPorts)
		case !e.DestPort.Valid():
			return opgrapherrors.NewConfigurationError("edge %d: dest port %d out of range (max %d)", i, e.DestPort, port.MaxPorts)
		}
	}
	return nil
}

func (n *Network) checkFanIn() error {
	type target struct {
		node int
		port port.Slot
	}
	seen := make(map[target]int, len(n.Edges))
	for i, e := range n.Edges {
		t := target{node: e.Dest, port: e.DestPort}
		if prev, dup := seen[t]; dup {
			return opgrapherrors.NewConfigurationError("edge %d: input %d of node %d already fed by edge %d", i, e.DestPort, e.Dest, prev)
		}
		seen[t] = i
	}
	return nil
}

func (n *Network) checkArity() error {
	for i, e := range n.Edges {
		src, dst := n.Nodes[e.Source], n.Nodes[e.Dest]
		if int(e.SourcePort) >= src.Op.OutputCount() {
			return opgrapherrors.NewConfigurationError("edge %d: node %d (%s) has no output port %d", i, e.Source, src.Name(), e.SourcePort)
		}
		if int(e.DestPort) >= dst.Op.InputCount() {
			return opgrapherrors.NewConfigurationError("edge %d: node %d (%s) has no input port %d", i, e.Dest, dst.Name(), e.DestPort)
		}
	}
	return nil
}

func (n *Network) checkTypes() error {
	for i, e := range n.Edges {
		produced, _ := n.Nodes[e.Source].Op.OutputPortType(int(e.SourcePort))
		wanted, _ := n.Nodes[e.Dest].Op.InputPortType(int(e.DestPort))
		if !port.Compatible(wanted, produced) {
			return opgrapherrors.NewConfigurationError("edge %d: %s output %d produces %s, %s input %d wants %s",
				i, n.Nodes[e.Source].Name(), e.SourcePort, produced, n.Nodes[e.Dest].Name(), e.DestPort, wanted)
		}
	}
	return nil
}

func (n *Network) checkAcyclic() error {
	if _, err := n.TopologicalLevels(); err != nil {
		return err
	}
	return nil
}

// ValidateRequiredInputs reports required input ports with no incoming edge.
// Such nodes fail at execution time, so callers usually surface this as a
// warning. The result joins one ConfigurationError per unwired port.
func (n *Network) ValidateRequiredInputs() error {
	wired := make(map[[2]int]bool, len(n.Edges))
	for _, e := range n.Edges {
		wired[[2]int{e.Dest, int(e.DestPort)}] = true
	}

	var errs []error
	for i, node := range n.Nodes {
		if node == nil || node.Op == nil {
			continue
		}
		for p := 0; p < node.Op.InputCount(); p++ {
			if node.Op.InputPortRequired(p) && !wired[[2]int{i, p}] {
				errs = append(errs, opgrapherrors.NewConfigurationError("node %d (%s): required input %d is not connected", i, node.Name(), p))
			}
		}
	}
	return errors.Join(errs...)
}
