// Package vm - the runtime error taxonomy every exec/call path reports
// through.
package vm

import (
	"errors"
	"fmt"

	"github.com/oxvm/oxvm/pkg/bytecode"
)

// Sentinel errors every opcode handler reports through, wrapped in an
// *OpcodeError by opErr/todo so the failing instruction is always
// attached.
var (
	// ErrNullPointer is returned by ObjectField, InvokeVirtual,
	// DynamicCast and FromVariant when the receiver or boxed value
	// they operate on is Null/invalid.
	ErrNullPointer = errors.New("vm: null pointer")
	// ErrUndefinedNative is returned by InvokeStatic/InvokeVirtual
	// when the target function is native but has no implementation
	// registered in Metadata.
	ErrUndefinedNative = errors.New("vm: native function has no registered implementation")
	// ErrUnsupportedAssignmentOperand is returned by Assign when its
	// first operand does not evaluate to an l-value (Pinned value).
	ErrUnsupportedAssignmentOperand = errors.New("vm: assignment target is not an l-value")
	// ErrInvalidInteropParameters wraps an error a native's interop
	// wrapper returned - a Go-side argument count or kind mismatch.
	ErrInvalidInteropParameters = errors.New("vm: native call received invalid parameters")
	// ErrTodo marks an opcode this interpreter does not implement.
	ErrTodo = errors.New("vm: opcode not implemented")
)

// OpcodeError wraps a runtime error with the opcode that produced it.
type OpcodeError struct {
	Op  bytecode.Op
	Err error
}

func (e *OpcodeError) Error() string { return fmt.Sprintf("%s: %v", e.Op, e.Err) }
func (e *OpcodeError) Unwrap() error { return e.Err }

func opErr(op bytecode.Op, err error) error {
	return &OpcodeError{Op: op, Err: err}
}

func todo(op bytecode.Op) error {
	return opErr(op, ErrTodo)
}
