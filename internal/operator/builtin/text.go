package builtin

import (
	"bytes"
	"context"
	"fmt"
	"text/template"

	"github.com/alexisbeaulieu97/opgraph/internal/operator"
	"github.com/alexisbeaulieu97/opgraph/internal/port"
	"github.com/alexisbeaulieu97/opgraph/internal/registry"
)

// Concat joins a required string with an optional second string.
type Concat struct {
	operator.Descriptor
	separator string
}

func newConcat(params registry.Params) (operator.Operator, error) {
	sep, err := stringParam(params, "separator", false)
	if err != nil {
		return nil, err
	}
	return NewConcat(sep), nil
}

// NewConcat builds a Concat joining its inputs with sep.
func NewConcat(sep string) *Concat {
	return &Concat{
		Descriptor: operator.Descriptor{
			Op: OpConcat,
			Inputs: []operator.Port{
				{Name: "head", Type: port.TypeString, Required: true},
				{Name: "tail", Type: port.TypeString},
			},
			Outputs: []operator.Port{{Name: "joined", Type: port.TypeString}},
		},
		separator: sep,
	}
}

// Execute implements operator.Operator.
func (c *Concat) Execute(_ context.Context, in operator.Inputs, out *operator.Outputs) error {
	head, err := port.Payload[string](in[0], 0)
	if err != nil {
		return err
	}
	if in[1] == nil {
		out.Set(0, port.Text{V: head})
		return nil
	}
	tail, err := port.Payload[string](in[1], 1)
	if err != nil {
		return err
	}
	out.Set(0, port.Text{V: head + c.separator + tail})
	return nil
}

// Format renders a text/template with the native payloads of its inputs
// available as .In0 through .In3.
type Format struct {
	operator.Descriptor
	tmpl *template.Template
}

func newFormat(params registry.Params) (operator.Operator, error) {
	text, err := stringParam(params, "template", true)
	if err != nil {
		return nil, err
	}
	inputs, err := intParam(params, "inputs", 1)
	if err != nil {
		return nil, err
	}
	return NewFormat(text, inputs)
}

// NewFormat parses text and builds a Format with the given number of inputs.
func NewFormat(text string, inputs int) (*Format, error) {
	if inputs < 0 || inputs > port.MaxPorts {
		return nil, fmt.Errorf("inputs must be between 0 and %d, got %d", port.MaxPorts, inputs)
	}
	tmpl, err := template.New("format").Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template: %w", err)
	}

	ports := make([]operator.Port, 0, inputs)
	for i := 0; i < inputs; i++ {
		ports = append(ports, operator.Port{Name: fmt.Sprintf("in%d", i), Type: port.TypeAny})
	}
	return &Format{
		Descriptor: operator.Descriptor{
			Op:      OpFormat,
			Inputs:  ports,
			Outputs: []operator.Port{{Name: "text", Type: port.TypeString}},
		},
		tmpl: tmpl,
	}, nil
}

// Execute implements operator.Operator.
func (f *Format) Execute(_ context.Context, in operator.Inputs, out *operator.Outputs) error {
	data := make(map[string]any, port.MaxPorts)
	for i := 0; i < f.InputCount(); i++ {
		data[fmt.Sprintf("In%d", i)] = port.Native(in[i])
	}

	var buf bytes.Buffer
	if err := f.tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render template: %w", err)
	}
	out.Set(0, port.Text{V: buf.String()})
	return nil
}
