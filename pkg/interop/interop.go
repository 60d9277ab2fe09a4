// Package interop lifts statically-typed Go functions into the
// untyped VM.Function thunks the native registry stores, and converts
// VM values to and from their Go counterparts at the call boundary.
//
// A host writes ordinary Go functions:
//
//	func add(a, b int32) int32 { return a + b }
//
// and wraps them with Wrap0, Wrap1 or Wrap2 depending on arity, then
// registers the resulting Function as a native. Out-parameters -
// arguments the callee writes back through, modeled by the VM as a
// Pinned stack value - are supported only by Wrap2Out, whose first
// argument receives the result and must be pinned.
package interop

import (
	"fmt"

	"github.com/oxvm/oxvm/pkg/pool"
	"github.com/oxvm/oxvm/pkg/value"
)

// Function is the untyped shape every native callback is reduced to:
// it receives its already-evaluated arguments and the constant pool
// they were resolved against (needed to dereference interned string
// arguments) and returns a result (value.Null() for void) or an error.
type Function func(args []value.Value, p *pool.ConstantPool) (value.Value, error)

// IntoVM converts a Go value into its VM representation.
type IntoVM interface {
	IntoVM() value.Value
}

// FromVM extracts a typed Go value out of a VM value, failing if v's
// Kind does not match. p resolves values - like interned strings -
// that are stored lazily against the constant pool.
type FromVM[T any] func(v value.Value, p *pool.ConstantPool) (T, error)

func fromInt8(v value.Value, p *pool.ConstantPool) (int8, error) {
	u := v.Unpinned()
	if u.Kind != value.KindInt8 {
		return 0, errWrongKind("Int8", u.Kind)
	}
	return u.I8, nil
}

func fromInt16(v value.Value, p *pool.ConstantPool) (int16, error) {
	u := v.Unpinned()
	if u.Kind != value.KindInt16 {
		return 0, errWrongKind("Int16", u.Kind)
	}
	return u.I16, nil
}

func fromInt32(v value.Value, p *pool.ConstantPool) (int32, error) {
	u := v.Unpinned()
	if u.Kind != value.KindInt32 {
		return 0, errWrongKind("Int32", u.Kind)
	}
	return u.I32, nil
}

func fromInt64(v value.Value, p *pool.ConstantPool) (int64, error) {
	u := v.Unpinned()
	if u.Kind != value.KindInt64 {
		return 0, errWrongKind("Int64", u.Kind)
	}
	return u.I64, nil
}

func fromUint8(v value.Value, p *pool.ConstantPool) (uint8, error) {
	u := v.Unpinned()
	if u.Kind != value.KindUint8 {
		return 0, errWrongKind("Uint8", u.Kind)
	}
	return u.U8, nil
}

func fromUint16(v value.Value, p *pool.ConstantPool) (uint16, error) {
	u := v.Unpinned()
	if u.Kind != value.KindUint16 {
		return 0, errWrongKind("Uint16", u.Kind)
	}
	return u.U16, nil
}

func fromUint32(v value.Value, p *pool.ConstantPool) (uint32, error) {
	u := v.Unpinned()
	if u.Kind != value.KindUint32 {
		return 0, errWrongKind("Uint32", u.Kind)
	}
	return u.U32, nil
}

func fromUint64(v value.Value, p *pool.ConstantPool) (uint64, error) {
	u := v.Unpinned()
	if u.Kind != value.KindUint64 {
		return 0, errWrongKind("Uint64", u.Kind)
	}
	return u.U64, nil
}

func fromFloat32(v value.Value, p *pool.ConstantPool) (float32, error) {
	u := v.Unpinned()
	if u.Kind != value.KindFloat32 {
		return 0, errWrongKind("Float32", u.Kind)
	}
	return u.F32, nil
}

func fromFloat64(v value.Value, p *pool.ConstantPool) (float64, error) {
	u := v.Unpinned()
	if u.Kind != value.KindFloat64 {
		return 0, errWrongKind("Float64", u.Kind)
	}
	return u.F64, nil
}

func fromBool(v value.Value, p *pool.ConstantPool) (bool, error) {
	u := v.Unpinned()
	if u.Kind != value.KindBool {
		return false, errWrongKind("Bool", u.Kind)
	}
	return u.B, nil
}

func fromString(v value.Value, p *pool.ConstantPool) (string, error) {
	u := v.Unpinned()
	switch u.Kind {
	case value.KindString:
		return u.Str, nil
	case value.KindInternStr:
		return p.String(pool.NewIndex[pool.StringLit](u.Intern.Index))
	default:
		return "", errWrongKind("String", u.Kind)
	}
}

func errWrongKind(want string, got value.Kind) error {
	return fmt.Errorf("interop: expected %s, got value kind %d", want, got)
}

// writeBack assigns result into the cell a Pinned argument aliases,
// implementing the out-parameter half of OperatorAssignAdd and
// friends: the native computes a new value and the caller's l-value
// is updated in place rather than through the return value.
func writeBack(arg value.Value, result value.Value) error {
	if !arg.IsPinned() {
		return fmt.Errorf("interop: out-parameter argument is not pinned")
	}
	*arg.Pin = result
	return nil
}

// Wrap0 lifts a zero-argument Go function that returns a plain value.
func Wrap0(fn func() value.Value) Function {
	return func(args []value.Value, p *pool.ConstantPool) (value.Value, error) {
		if len(args) != 0 {
			return value.Value{}, fmt.Errorf("interop: expected 0 arguments, got %d", len(args))
		}
		return fn(), nil
	}
}

// Wrap1 lifts a unary Go function that returns a plain value.
func Wrap1[A any](fromA FromVM[A], fn func(A) value.Value) Function {
	return func(args []value.Value, p *pool.ConstantPool) (value.Value, error) {
		if len(args) != 1 {
			return value.Value{}, fmt.Errorf("interop: expected 1 argument, got %d", len(args))
		}
		a, err := fromA(args[0], p)
		if err != nil {
			return value.Value{}, err
		}
		return fn(a), nil
	}
}

// Wrap2 lifts a binary Go function that returns a plain value.
func Wrap2[A, B any](fromA FromVM[A], fromB FromVM[B], fn func(A, B) value.Value) Function {
	return func(args []value.Value, p *pool.ConstantPool) (value.Value, error) {
		if len(args) != 2 {
			return value.Value{}, fmt.Errorf("interop: expected 2 arguments, got %d", len(args))
		}
		a, err := fromA(args[0], p)
		if err != nil {
			return value.Value{}, err
		}
		b, err := fromB(args[1], p)
		if err != nil {
			return value.Value{}, err
		}
		return fn(a, b), nil
	}
}

// Wrap2Out lifts a binary Go function whose first argument is an
// out-parameter: args[0] must be Pinned, fn computes both the
// in-place new value for it and the call's own result.
func Wrap2Out[A, B any](fromA FromVM[A], fromB FromVM[B], fn func(A, B) (newA value.Value, result value.Value)) Function {
	return func(args []value.Value, p *pool.ConstantPool) (value.Value, error) {
		if len(args) != 2 {
			return value.Value{}, fmt.Errorf("interop: expected 2 arguments, got %d", len(args))
		}
		a, err := fromA(args[0], p)
		if err != nil {
			return value.Value{}, err
		}
		b, err := fromB(args[1], p)
		if err != nil {
			return value.Value{}, err
		}
		newA, result := fn(a, b)
		if err := writeBack(args[0], newA); err != nil {
			return value.Value{}, err
		}
		return result, nil
	}
}

// Int8, Int16, ... are the stock FromVM conversions, exported so
// pkg/native does not need to re-derive them per primitive type.
var (
	Int8    FromVM[int8]    = fromInt8
	Int16   FromVM[int16]   = fromInt16
	Int32   FromVM[int32]   = fromInt32
	Int64   FromVM[int64]   = fromInt64
	Uint8   FromVM[uint8]   = fromUint8
	Uint16  FromVM[uint16]  = fromUint16
	Uint32  FromVM[uint32]  = fromUint32
	Uint64  FromVM[uint64]  = fromUint64
	Float32 FromVM[float32] = fromFloat32
	Float64 FromVM[float64] = fromFloat64
	Bool    FromVM[bool]    = fromBool
	String  FromVM[string]  = fromString
)
