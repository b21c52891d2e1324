package errors

import (
	"errors"
	"fmt"
)

// ErrInvalidPinAssignment is matched by every PinAssignmentError through errors.Is.
var ErrInvalidPinAssignment = errors.New("invalid pin assignment")

// ErrInvalidConfiguration is matched by every ConfigurationError through errors.Is.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// ConfigurationError reports a network that failed static validation.
type ConfigurationError struct {
	Details string
}

// NewConfigurationError constructs a ConfigurationError.
func NewConfigurationError(format string, args ...any) error {
	return &ConfigurationError{Details: fmt.Sprintf(format, args...)}
}

func (e *ConfigurationError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("invalid configuration: %s", e.Details)
}

// Is reports whether target is ErrInvalidConfiguration.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrInvalidConfiguration
}

// PinAssignmentError is returned when a port value is read at the wrong slot
// or as the wrong concrete type.
type PinAssignmentError struct {
	Slot     int
	Active   int
	Expected string
	Actual   string
}

// NewPinAssignmentError constructs a PinAssignmentError. Active is -1 when the
// value has no active slot.
func NewPinAssignmentError(slot, active int, expected, actual string) error {
	return &PinAssignmentError{Slot: slot, Active: active, Expected: expected, Actual: actual}
}

func (e *PinAssignmentError) Error() string {
	if e == nil {
		return ""
	}
	if e.Active != e.Slot {
		if e.Active < 0 {
			return fmt.Sprintf("invalid pin assignment: wanted slot %d, value has no active slot", e.Slot)
		}
		return fmt.Sprintf("invalid pin assignment: wanted slot %d, value is bound to slot %d", e.Slot, e.Active)
	}
	return fmt.Sprintf("invalid pin assignment: slot %d holds %s, wanted %s", e.Slot, e.Actual, e.Expected)
}

// Is reports whether target is ErrInvalidPinAssignment.
func (e *PinAssignmentError) Is(target error) bool {
	return target == ErrInvalidPinAssignment
}

// ExecutionError represents a runtime failure while executing a node.
type ExecutionError struct {
	Node   int
	Opcode string
	Err    error
}

// NewExecutionError constructs an ExecutionError.
func NewExecutionError(node int, opcode string, err error) error {
	return &ExecutionError{Node: node, Opcode: opcode, Err: err}
}

func (e *ExecutionError) Error() string {
	if e == nil {
		return ""
	}
	if e.Opcode != "" {
		return fmt.Sprintf("execution error on node %d (%s): %v", e.Node, e.Opcode, e.Err)
	}
	return fmt.Sprintf("execution error on node %d: %v", e.Node, e.Err)
}

// Unwrap exposes the root error.
func (e *ExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ParseError represents a definition file parsing failure with optional line metadata.
type ParseError struct {
	Path    string
	Line    int
	Message string
	Err     error
}

// NewParseError constructs a ParseError.
func NewParseError(path string, line int, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &ParseError{Path: path, Line: line, Message: message, Err: err}
}

func (e *ParseError) Error() string {
	if e == nil {
		return ""
	}

	if e.Line > 0 {
		return fmt.Sprintf("parse error: %s:%d: %s", e.Path, e.Line, e.Message)
	}
	return fmt.Sprintf("parse error: %s: %s", e.Path, e.Message)
}

// Unwrap exposes the underlying error.
func (e *ParseError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ValidationError captures definition document validation issues.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

// NewValidationError constructs a ValidationError.
func NewValidationError(field, message string, err error) error {
	return &ValidationError{Field: field, Message: message, Err: err}
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s: %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *ValidationError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// OperatorError indicates issues with operator registration or construction.
type OperatorError struct {
	Opcode  string
	Message string
	Err     error
}

// NewOperatorError constructs an OperatorError for the given opcode.
func NewOperatorError(opcode string, err error) error {
	message := ""
	if err != nil {
		message = err.Error()
	}
	return &OperatorError{Opcode: opcode, Message: message, Err: err}
}

func (e *OperatorError) Error() string {
	if e == nil {
		return ""
	}
	if e.Opcode != "" {
		return fmt.Sprintf("operator error [%s]: %s", e.Opcode, e.Message)
	}
	return fmt.Sprintf("operator error: %s", e.Message)
}

// Unwrap exposes the underlying error.
func (e *OperatorError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// StorageError wraps checkpoint store failures.
type StorageError struct {
	Op  string
	Key string
	Err error
}

// NewStorageError constructs a StorageError.
func NewStorageError(op, key string, err error) error {
	return &StorageError{Op: op, Key: key, Err: err}
}

func (e *StorageError) Error() string {
	if e == nil {
		return ""
	}
	if e.Key != "" {
		return fmt.Sprintf("storage error: %s %s: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("storage error: %s: %v", e.Op, e.Err)
}

// Unwrap exposes the underlying error.
func (e *StorageError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}
