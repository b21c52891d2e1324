// Package builtin provides the operators available to network definitions
// out of the box.
package builtin

import (
	"fmt"
	"io"
	"time"

	"github.com/alexisbeaulieu97/opgraph/internal/operator"
	"github.com/alexisbeaulieu97/opgraph/internal/registry"
)

// Opcodes of the builtin operators.
const (
	OpConst    operator.Opcode = "const"
	OpAdd      operator.Opcode = "add"
	OpMultiply operator.Opcode = "multiply"
	OpConcat   operator.Opcode = "concat"
	OpFormat   operator.Opcode = "format"
	OpSplit    operator.Opcode = "split"
	OpRecord   operator.Opcode = "record"
	OpField    operator.Opcode = "field"
	OpDelay    operator.Opcode = "delay"
	OpFail     operator.Opcode = "fail"
	OpSink     operator.Opcode = "sink"
)

// Options configures operators that talk to the outside world.
type Options struct {
	// SinkWriter receives one line per value reaching a sink. Nil discards.
	SinkWriter io.Writer
}

// Register adds every builtin operator to r.
func Register(r *registry.Registry, opts Options) error {
	factories := map[operator.Opcode]registry.Factory{
		OpConst:    newConst,
		OpAdd:      newArithmetic(OpAdd),
		OpMultiply: newArithmetic(OpMultiply),
		OpConcat:   newConcat,
		OpFormat:   newFormat,
		OpSplit:    newSplit,
		OpRecord:   newRecord,
		OpField:    newField,
		OpDelay:    newDelay,
		OpFail:     newFail,
		OpSink:     sinkFactory(opts.SinkWriter),
	}
	for op, f := range factories {
		if err := r.Register(op, f); err != nil {
			return err
		}
	}
	return nil
}

// Default returns a registry populated with the builtin operators.
func Default(opts Options) (*registry.Registry, error) {
	r := registry.New()
	if err := Register(r, opts); err != nil {
		return nil, err
	}
	return r, nil
}

func stringParam(params registry.Params, key string, required bool) (string, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		if required {
			return "", fmt.Errorf("missing required param %q", key)
		}
		return "", nil
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("param %q must be a string, got %T", key, raw)
	}
	return s, nil
}

func intParam(params registry.Params, key string, def int) (int, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return def, nil
	}
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("param %q must be an integer, got %v", key, v)
		}
		return int(v), nil
	default:
		return 0, fmt.Errorf("param %q must be an integer, got %T", key, raw)
	}
}

func durationParam(params registry.Params, key string) (time.Duration, error) {
	s, err := stringParam(params, key, true)
	if err != nil {
		return 0, err
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("param %q: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("param %q must not be negative", key)
	}
	return d, nil
}

func stringListParam(params registry.Params, key string) ([]string, error) {
	raw, ok := params[key]
	if !ok || raw == nil {
		return nil, fmt.Errorf("missing required param %q", key)
	}
	switch v := raw.(type) {
	case []string:
		return append([]string(nil), v...), nil
	case []any:
		out := make([]string, 0, len(v))
		for i, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("param %q[%d] must be a string, got %T", key, i, item)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("param %q must be a list of strings, got %T", key, raw)
	}
}
