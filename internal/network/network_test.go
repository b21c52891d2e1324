package network

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alexisbeaulieu97/opgraph/internal/operator"
	"github.com/alexisbeaulieu97/opgraph/internal/port"
	opgrapherrors "github.com/alexisbeaulieu97/opgraph/pkg/errors"
)

type stub struct {
	operator.Descriptor
}

func (stub) Execute(context.Context, operator.Inputs, *operator.Outputs) error { return nil }

// relay has one optional input and one output, both of type typ.
func relay(typ string) operator.Operator {
	return stub{operator.Descriptor{
		Op:      "relay",
		Inputs:  []operator.Port{{Name: "in", Type: typ}},
		Outputs: []operator.Port{{Name: "out", Type: typ}},
	}}
}

// wide has four optional inputs and four outputs of any type.
func wide() operator.Operator {
	ports := make([]operator.Port, port.MaxPorts)
	for i := range ports {
		ports[i] = operator.Port{Type: port.TypeAny}
	}
	return stub{operator.Descriptor{Op: "wide", Inputs: ports, Outputs: ports}}
}

func chain(n int) *Builder {
	b := NewBuilder()
	for i := 0; i < n; i++ {
		b.AddNode(relay(port.TypeAny))
	}
	for i := 0; i+1 < n; i++ {
		b.Connect(i, 0, i+1, 0)
	}
	return b
}

func requireConfigError(t *testing.T, err error, contains string) {
	t.Helper()
	require.Error(t, err)
	require.ErrorIs(t, err, opgrapherrors.ErrInvalidConfiguration)
	var cfgErr *opgrapherrors.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
	require.Contains(t, cfgErr.Details, contains)
}

func TestValidateAcceptsWellFormedNetworks(t *testing.T) {
	t.Parallel()

	disconnected := NewBuilder().AddNode(wide()).AddNode(wide()).AddNode(wide()).Build()

	cases := map[string]*Network{
		"empty":        NewBuilder().Build(),
		"single":       NewBuilder().AddNode(relay(port.TypeInt)).Build(),
		"chain":        chain(3).Build(),
		"disconnected": disconnected,
	}
	for name, net := range cases {
		net := net
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			require.NoError(t, net.Validate())
		})
	}
}

func TestValidateRejectsOutOfRangeIndices(t *testing.T) {
	t.Parallel()

	net := NewBuilder().AddNode(wide()).AddNode(wide()).Connect(0, 0, 5, 0).Build()
	requireConfigError(t, net.Validate(), "dest index 5")

	net = NewBuilder().AddNode(wide()).Connect(0, 0, 0, 1).Connect(2, 0, 0, 0).Build()
	requireConfigError(t, net.Validate(), "edge 1: source index 2")

	net = NewBuilder().AddNode(wide()).AddNode(wide()).Connect(-1, 0, 1, 0).Build()
	requireConfigError(t, net.Validate(), "source index -1")
}

func TestValidateRejectsOutOfRangePorts(t *testing.T) {
	t.Parallel()

	net := NewBuilder().AddNode(wide()).AddNode(wide()).Connect(0, 4, 1, 0).Build()
	requireConfigError(t, net.Validate(), "source port 4")

	net = NewBuilder().AddNode(wide()).AddNode(wide()).Connect(0, 0, 1, 7).Build()
	requireConfigError(t, net.Validate(), "dest port 7")
}

func TestValidateRejectsNilOperator(t *testing.T) {
	t.Parallel()

	net := NewBuilder().AddNode(nil).Build()
	requireConfigError(t, net.Validate(), "node 0 has no operator")
}

func TestValidateRejectsSharedInputPort(t *testing.T) {
	t.Parallel()

	net := NewBuilder().
		AddNode(wide()).AddNode(wide()).AddNode(wide()).
		Connect(0, 0, 2, 1).
		Connect(1, 0, 2, 1).
		Build()
	requireConfigError(t, net.Validate(), "already fed by edge 0")
}

func TestValidateAllowsFanOut(t *testing.T) {
	t.Parallel()

	net := NewBuilder().
		AddNode(wide()).AddNode(wide()).AddNode(wide()).
		Connect(0, 0, 1, 0).
		Connect(0, 0, 2, 0).
		Build()
	require.NoError(t, net.Validate())
}

func TestValidateRejectsUndeclaredPorts(t *testing.T) {
	t.Parallel()

	net := NewBuilder().AddNode(relay(port.TypeAny)).AddNode(wide()).Connect(0, 2, 1, 0).Build()
	requireConfigError(t, net.Validate(), "has no output port 2")

	net = NewBuilder().AddNode(wide()).AddNode(relay(port.TypeAny)).Connect(0, 0, 1, 3).Build()
	requireConfigError(t, net.Validate(), "has no input port 3")
}

func TestValidateRejectsIncompatibleTypes(t *testing.T) {
	t.Parallel()

	net := NewBuilder().AddNode(relay(port.TypeString)).AddNode(relay(port.TypeInt)).Connect(0, 0, 1, 0).Build()
	requireConfigError(t, net.Validate(), "produces string")

	net = NewBuilder().AddNode(relay(port.TypeInt)).AddNode(relay(port.TypeNumber)).Connect(0, 0, 1, 0).Build()
	require.NoError(t, net.Validate())
}

func TestValidateDetectsCycles(t *testing.T) {
	t.Parallel()

	net := NewBuilder().AddNode(wide()).AddNode(wide()).
		Connect(0, 0, 1, 0).
		Connect(1, 0, 0, 0).
		Build()
	requireConfigError(t, net.Validate(), "Cycle detected")

	self := NewBuilder().AddNode(wide()).Connect(0, 0, 0, 0).Build()
	requireConfigError(t, self.Validate(), "Cycle detected")
}

func TestBoundsCheckedBeforeCycles(t *testing.T) {
	t.Parallel()

	net := NewBuilder().AddNode(wide()).AddNode(wide()).
		Connect(0, 0, 1, 0).
		Connect(1, 0, 0, 0).
		Connect(1, 1, 9, 0).
		Build()
	requireConfigError(t, net.Validate(), "dest index 9")
}

func TestTopologicalLevels(t *testing.T) {
	t.Parallel()

	// 0 and 1 feed 2, 2 feeds 3, 4 is isolated.
	net := NewBuilder().
		AddNode(wide()).AddNode(wide()).AddNode(wide()).AddNode(wide()).AddNode(wide()).
		Connect(1, 0, 2, 0).
		Connect(0, 0, 2, 1).
		Connect(2, 0, 3, 0).
		Build()

	levels, err := net.TopologicalLevels()
	require.NoError(t, err)
	require.Equal(t, [][]int{{0, 1, 4}, {2}, {3}}, levels)

	empty, err := NewBuilder().Build().TopologicalLevels()
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestGraphQueries(t *testing.T) {
	t.Parallel()

	net := NewBuilder().
		AddLabeled("src", wide()).AddNode(wide()).AddNode(wide()).
		Connect(0, 0, 1, 0).
		Connect(0, 1, 1, 1).
		Connect(0, 2, 2, 0).
		Connect(1, 0, 2, 1).
		Build()

	require.Equal(t, 3, net.NodeCount())
	require.Equal(t, []int{0, 2, 2}, net.InDegrees())
	require.Equal(t, []int{1, 2}, net.Successors(0))
	require.Equal(t, []int{2}, net.Successors(1))
	require.Empty(t, net.Successors(2))
	require.Len(t, net.Outgoing()[0], 3)
	require.Len(t, net.Incoming()[2], 2)

	require.Equal(t, "src", net.Node(0).Name())
	require.Equal(t, "wide", net.Node(1).Name())
	require.Nil(t, net.Node(3))
	require.Equal(t, "0.2 -> 2.0", net.Edges[2].String())
}

func TestBuildSnapshotsBuilder(t *testing.T) {
	t.Parallel()

	b := chain(2)
	first := b.Build()
	b.AddNode(wide()).Connect(1, 0, 2, 0)

	require.Equal(t, 2, first.NodeCount())
	require.Len(t, first.Edges, 1)
	require.Equal(t, 3, b.Len())
}

func TestValidateRequiredInputs(t *testing.T) {
	t.Parallel()

	needy := stub{operator.Descriptor{
		Op:     "needy",
		Inputs: []operator.Port{{Name: "a", Type: port.TypeAny, Required: true}, {Name: "b", Type: port.TypeAny}},
	}}

	net := NewBuilder().AddNode(wide()).AddLabeled("consumer", needy).Build()
	err := net.ValidateRequiredInputs()
	requireConfigError(t, err, "node 1 (consumer): required input 0")

	net = NewBuilder().AddNode(wide()).AddNode(needy).Connect(0, 0, 1, 0).Build()
	require.NoError(t, net.ValidateRequiredInputs())
}
