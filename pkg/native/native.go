// Package native wires the VM's built-in operator, math, string,
// logging and test-assertion natives into a Metadata registry.
//
// Every native here is declared by a root Function definition in the
// pool carrying the exact name the compiler would emit for it (e.g.
// "OperatorAdd;Int32Int32;Int32") and the IsNative flag set; RegisterAll
// looks each one up by name and binds the corresponding Go
// implementation. A pool fixture (see pkg/poolbuilder) that omits one
// of these names simply never gets that native bound - calling it
// then fails with UndefinedNative rather than a registration error.
package native

import (
	"fmt"
	"math"
	"math/rand"

	"golang.org/x/exp/constraints"

	"github.com/oxvm/oxvm/pkg/interop"
	"github.com/oxvm/oxvm/pkg/metadata"
	"github.com/oxvm/oxvm/pkg/value"
)

// Number is the set of primitive types the arithmetic and comparison
// natives are instantiated over.
type Number interface {
	constraints.Integer | constraints.Float
}

// Logger receives the message a Log or Assert-failure native prints,
// standing in for the pool's println/stdout used to print test and
// script diagnostics.
type Logger func(message string)

// RegisterAll binds every native this package knows about that has a
// matching root function in m.Pool, and returns the subset of names
// that had no matching definition (useful for CLI diagnostics, not
// treated as an error: a test fixture is free to only declare the
// natives it actually exercises).
func RegisterAll(m *metadata.Metadata, log Logger, failures *[]string) []string {
	var missing []string
	reg := func(name string, fn interop.Function) {
		idx, ok := m.Symbols.Functions[name]
		if !ok {
			missing = append(missing, name)
			return
		}
		m.RegisterNative(idx, fn)
	}

	registerArithmetic(reg, "Int8", interop.Int8, value.Int8)
	registerArithmetic(reg, "Int16", interop.Int16, value.Int16)
	registerArithmetic(reg, "Int32", interop.Int32, value.Int32)
	registerArithmetic(reg, "Int64", interop.Int64, value.Int64)
	registerArithmetic(reg, "Uint8", interop.Uint8, value.Uint8)
	registerArithmetic(reg, "Uint16", interop.Uint16, value.Uint16)
	registerArithmetic(reg, "Uint32", interop.Uint32, value.Uint32)
	registerArithmetic(reg, "Uint64", interop.Uint64, value.Uint64)
	registerArithmetic(reg, "Float", interop.Float32, value.Float32)
	registerArithmetic(reg, "Double", interop.Float64, value.Float64)

	reg("OperatorAdd;StringString;String", interop.Wrap2(interop.String, interop.String,
		func(a, b string) value.Value { return value.Str(a + b) }))

	reg("OperatorLogicAnd;BoolBool;Bool", interop.Wrap2(interop.Bool, interop.Bool,
		func(a, b bool) value.Value { return value.Bool(a && b) }))
	reg("OperatorLogicOr;BoolBool;Bool", interop.Wrap2(interop.Bool, interop.Bool,
		func(a, b bool) value.Value { return value.Bool(a || b) }))

	registerCasts(reg)
	registerExtra(reg)

	reg("RandRange;Int32Int32;Int32", interop.Wrap2(interop.Int32, interop.Int32,
		func(lo, hi int32) value.Value {
			if hi <= lo {
				return value.Int32(lo)
			}
			return value.Int32(lo + rand.Int31n(hi-lo))
		}))
	reg("RandF;;Float", interop.Wrap0(func() value.Value { return value.Float32(rand.Float32()) }))
	reg("RandRangeF;FloatFloat;Float", interop.Wrap2(interop.Float32, interop.Float32,
		func(lo, hi float32) value.Value { return value.Float32(lo + rand.Float32()*(hi-lo)) }))
	reg("SqrtF;Float;Float", interop.Wrap1(interop.Float32,
		func(a float32) value.Value { return value.Float32(float32(math.Sqrt(float64(a)))) }))
	reg("LogF;Float;Float", interop.Wrap1(interop.Float32,
		func(a float32) value.Value { return value.Float32(float32(math.Log(float64(a)))) }))
	reg("CosF;Float;Float", interop.Wrap1(interop.Float32,
		func(a float32) value.Value { return value.Float32(float32(math.Cos(float64(a)))) }))

	reg("Log;String;Void", interop.Wrap1(interop.String, func(s string) value.Value {
		if log != nil {
			log(s)
		}
		return value.Null()
	}))
	reg("Assert;Bool;Void", interop.Wrap1(interop.Bool, func(ok bool) value.Value {
		if !ok && failures != nil {
			*failures = append(*failures, "assertion failed")
		}
		return value.Null()
	}))
	reg("FailEquality;StringString;Void", interop.Wrap2(interop.String, interop.String,
		func(a, b string) value.Value {
			if failures != nil {
				*failures = append(*failures, fmt.Sprintf("expected %s to equal %s", a, b))
			}
			return value.Null()
		}))
	reg("FailInequality;StringString;Void", interop.Wrap2(interop.String, interop.String,
		func(a, b string) value.Value {
			if failures != nil {
				*failures = append(*failures, fmt.Sprintf("expected %s to not equal %s", a, b))
			}
			return value.Null()
		}))

	return missing
}

func registerArithmetic[T Number](reg func(string, interop.Function), typeName string, from interop.FromVM[T], to func(T) value.Value) {
	pair := typeName + typeName
	reg("OperatorAdd;"+pair+";"+typeName, interop.Wrap2(from, from, func(a, b T) value.Value { return to(a + b) }))
	reg("OperatorSubtract;"+pair+";"+typeName, interop.Wrap2(from, from, func(a, b T) value.Value { return to(a - b) }))
	reg("OperatorMultiply;"+pair+";"+typeName, interop.Wrap2(from, from, func(a, b T) value.Value { return to(a * b) }))
	reg("OperatorDivide;"+pair+";"+typeName, interop.Wrap2(from, from, func(a, b T) value.Value {
		if b == 0 {
			return to(0)
		}
		return to(a / b)
	}))

	reg("OperatorAssignAdd;Out"+pair+";"+typeName, interop.Wrap2Out(from, from, func(a, b T) (value.Value, value.Value) {
		r := to(a + b)
		return r, r
	}))
	reg("OperatorAssignSubtract;Out"+pair+";"+typeName, interop.Wrap2Out(from, from, func(a, b T) (value.Value, value.Value) {
		r := to(a - b)
		return r, r
	}))
	reg("OperatorAssignMultiply;Out"+pair+";"+typeName, interop.Wrap2Out(from, from, func(a, b T) (value.Value, value.Value) {
		r := to(a * b)
		return r, r
	}))
	reg("OperatorAssignDivide;Out"+pair+";"+typeName, interop.Wrap2Out(from, from, func(a, b T) (value.Value, value.Value) {
		if b == 0 {
			return to(0), to(0)
		}
		r := to(a / b)
		return r, r
	}))

	reg("OperatorEqual;"+pair+";Bool", interop.Wrap2(from, from, func(a, b T) value.Value { return value.Bool(a == b) }))
	reg("OperatorNotEqual;"+pair+";Bool", interop.Wrap2(from, from, func(a, b T) value.Value { return value.Bool(a != b) }))
	reg("OperatorLess;"+pair+";Bool", interop.Wrap2(from, from, func(a, b T) value.Value { return value.Bool(a < b) }))
	reg("OperatorLessEqual;"+pair+";Bool", interop.Wrap2(from, from, func(a, b T) value.Value { return value.Bool(a <= b) }))
	reg("OperatorGreater;"+pair+";Bool", interop.Wrap2(from, from, func(a, b T) value.Value { return value.Bool(a > b) }))
	reg("OperatorGreaterEqual;"+pair+";Bool", interop.Wrap2(from, from, func(a, b T) value.Value { return value.Bool(a >= b) }))
}

func castNative[From, To Number](reg func(string, interop.Function), fromName, toName string, from interop.FromVM[From], to func(To) value.Value) {
	reg("Cast;"+fromName+";"+toName, interop.Wrap1(from, func(v From) value.Value { return to(To(v)) }))
}

func registerCasts(reg func(string, interop.Function)) {
	castNative[int32, int64](reg, "Int32", "Int64", interop.Int32, value.Int64)
	castNative[int64, int32](reg, "Int64", "Int32", interop.Int64, value.Int32)
	castNative[int32, float32](reg, "Int32", "Float", interop.Int32, value.Float32)
	castNative[float32, int32](reg, "Float", "Int32", interop.Float32, value.Int32)
	castNative[int32, float64](reg, "Int32", "Double", interop.Int32, value.Float64)
	castNative[float64, int32](reg, "Double", "Int32", interop.Float64, value.Int32)
	castNative[float32, float64](reg, "Float", "Double", interop.Float32, value.Float64)
	castNative[float64, float32](reg, "Double", "Float", interop.Float64, value.Float32)
	castNative[int64, float64](reg, "Int64", "Double", interop.Int64, value.Float64)
	castNative[float64, int64](reg, "Double", "Int64", interop.Float64, value.Int64)
	castNative[int8, int32](reg, "Int8", "Int32", interop.Int8, value.Int32)
	castNative[int32, int8](reg, "Int32", "Int8", interop.Int32, value.Int8)
	castNative[int16, int32](reg, "Int16", "Int32", interop.Int16, value.Int32)
	castNative[int32, int16](reg, "Int32", "Int16", interop.Int32, value.Int16)
	castNative[uint8, int32](reg, "Uint8", "Int32", interop.Uint8, value.Int32)
	castNative[int32, uint8](reg, "Int32", "Uint8", interop.Int32, value.Uint8)
	castNative[uint32, int32](reg, "Uint32", "Int32", interop.Uint32, value.Int32)
	castNative[int32, uint32](reg, "Int32", "Uint32", interop.Int32, value.Uint32)
	castNative[uint64, int64](reg, "Uint64", "Int64", interop.Uint64, value.Int64)
	castNative[int64, uint64](reg, "Int64", "Uint64", interop.Int64, value.Uint64)
}
