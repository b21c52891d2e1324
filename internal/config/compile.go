package config

import (
	"github.com/alexisbeaulieu97/opgraph/internal/network"
	"github.com/alexisbeaulieu97/opgraph/internal/operator"
	"github.com/alexisbeaulieu97/opgraph/internal/registry"
	opgrapherrors "github.com/alexisbeaulieu97/opgraph/pkg/errors"
)

// Compile builds the operators of def through reg, resolves node ids to
// indices and returns the validated network. Node i of the definition is node
// i of the network, labelled with its id.
func Compile(def *Definition, reg *registry.Registry) (*network.Network, error) {
	if err := Validate(def); err != nil {
		return nil, err
	}
	if reg == nil {
		return nil, opgrapherrors.NewConfigurationError("operator registry is nil")
	}

	b := network.NewBuilder()
	for i, n := range def.Nodes {
		op, err := reg.New(operator.Opcode(n.Op), registry.Params(n.Params))
		if err != nil {
			return nil, opgrapherrors.NewValidationError(fieldFor("nodes", i, "op"), err.Error(), err)
		}
		b.AddLabeled(n.ID, op)
	}

	index := def.NodeIndex()
	for _, e := range def.Edges {
		// Validate already checked both endpoints.
		from, fromPort, _ := splitEndpoint(e.From)
		to, toPort, _ := splitEndpoint(e.To)
		b.Connect(index[from], fromPort, index[to], toPort)
	}

	net := b.Build()
	if err := net.Validate(); err != nil {
		return nil, err
	}
	return net, nil
}
