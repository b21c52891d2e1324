// Package registry maps opcodes to operator factories so network definitions
// can name operators by string.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alexisbeaulieu97/opgraph/internal/operator"
	opgrapherrors "github.com/alexisbeaulieu97/opgraph/pkg/errors"
)

// Params carries the operator-specific settings from a definition document.
type Params map[string]any

// Factory builds a configured operator instance.
type Factory func(params Params) (operator.Operator, error)

// Registry is a concurrency-safe opcode to factory table.
type Registry struct {
	mu        sync.RWMutex
	factories map[operator.Opcode]Factory
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{factories: make(map[operator.Opcode]Factory)}
}

// Register adds a factory for the provided opcode.
func (r *Registry) Register(op operator.Opcode, f Factory) error {
	if f == nil {
		return opgrapherrors.NewOperatorError(string(op), fmt.Errorf("factory is nil"))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[op]; exists {
		return opgrapherrors.NewOperatorError(string(op), fmt.Errorf("operator already registered"))
	}

	r.factories[op] = f
	return nil
}

// New builds an operator for op with the supplied params.
func (r *Registry) New(op operator.Opcode, params Params) (operator.Operator, error) {
	r.mu.RLock()
	f, ok := r.factories[op]
	r.mu.RUnlock()
	if !ok {
		return nil, opgrapherrors.NewOperatorError(string(op), fmt.Errorf("no operator registered"))
	}

	built, err := f(params)
	if err != nil {
		return nil, opgrapherrors.NewOperatorError(string(op), err)
	}
	if built == nil {
		return nil, opgrapherrors.NewOperatorError(string(op), fmt.Errorf("factory returned nil operator"))
	}
	return built, nil
}

// Has reports whether op is registered.
func (r *Registry) Has(op operator.Opcode) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[op]
	return ok
}

// Opcodes lists the registered opcodes in sorted order.
func (r *Registry) Opcodes() []operator.Opcode {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]operator.Opcode, 0, len(r.factories))
	for op := range r.factories {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
