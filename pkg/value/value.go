// Package value implements the VM's tagged-union runtime value and
// the heap-shaped types (Instance, Array, BoxedStruct) it can hold.
//
// Copy-vs-share semantics matter here: assigning or passing a Value
// around copies the Value struct itself (cheap - it is a handful of
// machine words plus, at most, one pointer), but whether that copy
// observes the same underlying data as the original depends on Kind:
//
//   - primitives, Bool, Str, EnumVal, InternStr, Null - copying the
//     Value copies the data; there is nothing to share.
//   - PackedStruct - small value-type struct, held by pointer; copies
//     of the Value share it, which is safe because nothing writes a
//     PackedStruct's fields once it is built.
//   - BoxedStruct, Array, Obj(Instance) - heap-allocated; copying the
//     Value copies the pointer, so both copies observe the same data.
//     Copied() is the one place that actually clones a BoxedStruct.
package value

import (
	"fmt"
	"strings"

	"github.com/oxvm/oxvm/pkg/pool"
)

// Kind discriminates the tagged union stored in a Value.
type Kind int

const (
	KindNull Kind = iota
	KindInt8
	KindInt16
	KindInt32
	KindInt64
	KindUint8
	KindUint16
	KindUint32
	KindUint64
	KindFloat32
	KindFloat64
	KindBool
	KindEnum
	KindPackedStruct
	KindBoxedStruct
	KindObj
	KindString
	KindInternStr
	KindArray
	KindVariant
	KindPinned
)

// StringTable identifies which of the pool's four string tables an
// InternStr indexes into.
type StringTable int

const (
	TableString StringTable = iota
	TableName
	TableTweakDbId
	TableResource
)

// EnumVal is an enum member value: the enum's definition index plus
// the member's raw backing integer.
type EnumVal struct {
	Enum  pool.PoolIndex[pool.Enum]
	Value int64
}

// InternStr is a string value resolved lazily from one of the pool's
// interned string tables, rather than copied inline like Str.
type InternStr struct {
	Table StringTable
	Index uint32
}

// Instance is a heap-allocated class object: its most-derived class,
// its field values keyed by field pool index, and a vtable (method
// name -> function pool index) shared with every other instance of
// the same class.
type Instance struct {
	Class  pool.PoolIndex[pool.Class]
	Fields map[uint32]*Value
	Vtable VTable
}

// NewInstance allocates an Instance with one addressable cell per
// field, pre-filled with defaults - ObjectField pins these cells
// directly, so a field's address must outlive any individual read.
func NewInstance(class pool.PoolIndex[pool.Class], vt VTable, fieldIdxs []uint32, defaults []Value) *Instance {
	fields := make(map[uint32]*Value, len(fieldIdxs))
	for i, idx := range fieldIdxs {
		v := defaults[i]
		fields[idx] = &v
	}
	return &Instance{Class: class, Fields: fields, Vtable: vt}
}

// VTable maps a method name's pool index to the most-derived function
// that overrides it, shared read-only across every instance of a class.
type VTable interface {
	Get(nameIdx uint32) (pool.PoolIndex[pool.Function], bool)
}

// Obj is the Null-or-Instance reference union classes are held by.
type Obj struct {
	Instance *Instance // nil means Null
}

func (o Obj) IsNull() bool { return o.Instance == nil }

// BoxedStruct is a heap-allocated value-type struct (is_struct()
// class), deep-copied on Copied() rather than shared like Instance.
type BoxedStruct struct {
	Class  pool.PoolIndex[pool.Class]
	Fields map[uint32]Value
}

// PackedStruct is a small value-type struct (the analogue of the
// original's byte-packed small-struct optimization). A Value holds it
// by pointer, since a struct whose fields are Values cannot be stored
// inline in Value itself; its fields are never written after
// construction, so sharing the pointer between copies is safe.
// It holds at most 4 fields; larger structs use BoxedStruct instead.
type PackedStruct struct {
	Class  pool.PoolIndex[pool.Class]
	Fields [4]Value
	Len    int
}

// Array is a heap-allocated, growable, shared sequence of Values.
type Array struct {
	Elem pool.PoolIndex[pool.Type]
	Elems []Value
}

// VariantBox is a dynamically-typed box: nil means "invalid variant".
type VariantBox struct {
	Inner *Value
}

// Value is the tagged union every VM stack slot, local, field and
// array element holds.
type Value struct {
	Kind Kind

	I8  int8
	I16 int16
	I32 int32
	I64 int64
	U8  uint8
	U16 uint16
	U32 uint32
	U64 uint64
	F32 float32
	F64 float64
	B   bool

	Enum   EnumVal
	Packed *PackedStruct
	Boxed  *BoxedStruct
	Obj    Obj
	Str    string
	Intern InternStr
	Arr    *Array
	Var    VariantBox

	// Pin, when Kind is KindPinned, is the address of the stack or
	// local cell this value aliases - the VM's sole mechanism for
	// out-parameters and assignable l-values.
	Pin *Value
}

func Null() Value                      { return Value{Kind: KindNull} }
func NullObj() Value                   { return Value{Kind: KindObj, Obj: Obj{}} }
func Int8(v int8) Value                { return Value{Kind: KindInt8, I8: v} }
func Int16(v int16) Value              { return Value{Kind: KindInt16, I16: v} }
func Int32(v int32) Value              { return Value{Kind: KindInt32, I32: v} }
func Int64(v int64) Value              { return Value{Kind: KindInt64, I64: v} }
func Uint8(v uint8) Value              { return Value{Kind: KindUint8, U8: v} }
func Uint16(v uint16) Value            { return Value{Kind: KindUint16, U16: v} }
func Uint32(v uint32) Value            { return Value{Kind: KindUint32, U32: v} }
func Uint64(v uint64) Value            { return Value{Kind: KindUint64, U64: v} }
func Float32(v float32) Value          { return Value{Kind: KindFloat32, F32: v} }
func Float64(v float64) Value          { return Value{Kind: KindFloat64, F64: v} }
func Bool(v bool) Value                { return Value{Kind: KindBool, B: v} }
func Str(v string) Value               { return Value{Kind: KindString, Str: v} }
func Enum(v EnumVal) Value             { return Value{Kind: KindEnum, Enum: v} }
func Intern(v InternStr) Value         { return Value{Kind: KindInternStr, Intern: v} }
func FromInstance(i *Instance) Value   { return Value{Kind: KindObj, Obj: Obj{Instance: i}} }
func FromBoxedStruct(b *BoxedStruct) Value { return Value{Kind: KindBoxedStruct, Boxed: b} }
func FromPacked(p PackedStruct) Value  { return Value{Kind: KindPackedStruct, Packed: &p} }

func NewVariant(inner *Value) Value {
	return Value{Kind: KindVariant, Var: VariantBox{Inner: inner}}
}

// NewArray wraps elems (which may be nil) into a fresh shared Array value.
func NewArray(elems []Value) Value {
	return Value{Kind: KindArray, Arr: &Array{Elems: elems}}
}

// Pin returns a Pinned value aliasing cell: writes through the
// Pinned value (via Assign) are observed at *cell.
func Pin(cell *Value) Value {
	return Value{Kind: KindPinned, Pin: cell}
}

// IsPinned reports whether v is an out-parameter/l-value indirection.
func (v Value) IsPinned() bool { return v.Kind == KindPinned }

// Unpinned follows a Pinned indirection to the value it aliases,
// returning v unchanged if it is not pinned. Pins are never nested.
func (v Value) Unpinned() Value {
	if v.Kind == KindPinned {
		return *v.Pin
	}
	return v
}

// Copied returns a value that is safe to install somewhere new
// without later mutations through the original reaching it: deep for
// BoxedStruct, shallow (aliasing) for Array and Obj, trivial for
// everything else.
func (v Value) Copied() Value {
	if v.Kind != KindBoxedStruct || v.Boxed == nil {
		return v
	}
	clone := &BoxedStruct{Class: v.Boxed.Class, Fields: make(map[uint32]Value, len(v.Boxed.Fields))}
	for k, f := range v.Boxed.Fields {
		clone.Fields[k] = f.Copied()
	}
	return Value{Kind: KindBoxedStruct, Boxed: clone}
}

// Equals implements the VM's equality comparison, used by Equals,
// NotEquals, and the array find/contains/count/remove family.
// Both operands are unpinned first, since equality never compares
// l-value cells themselves. Composite kinds (PackedStruct, BoxedStruct,
// Obj, Array) are never equal, even to themselves - they fall through
// to the default case below.
func (v Value) Equals(other Value) bool {
	a, b := v.Unpinned(), other.Unpinned()
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindNull:
		return true
	case KindInt8:
		return a.I8 == b.I8
	case KindInt16:
		return a.I16 == b.I16
	case KindInt32:
		return a.I32 == b.I32
	case KindInt64:
		return a.I64 == b.I64
	case KindUint8:
		return a.U8 == b.U8
	case KindUint16:
		return a.U16 == b.U16
	case KindUint32:
		return a.U32 == b.U32
	case KindUint64:
		return a.U64 == b.U64
	case KindFloat32:
		return a.F32 == b.F32
	case KindFloat64:
		return a.F64 == b.F64
	case KindBool:
		return a.B == b.B
	case KindEnum:
		return a.Enum == b.Enum
	case KindString:
		return a.Str == b.Str
	case KindInternStr:
		return a.Intern == b.Intern
	case KindVariant:
		if a.Var.Inner == nil || b.Var.Inner == nil {
			return a.Var.Inner == b.Var.Inner
		}
		return a.Var.Inner.Equals(*b.Var.Inner)
	default:
		return false
	}
}

// HasType reports whether v's runtime Kind is compatible with t.
func (v Value) HasType(t TypeId) bool {
	u := v.Unpinned()
	switch t.Kind {
	case TypeInt8:
		return u.Kind == KindInt8
	case TypeInt16:
		return u.Kind == KindInt16
	case TypeInt32:
		return u.Kind == KindInt32
	case TypeInt64:
		return u.Kind == KindInt64
	case TypeUint8:
		return u.Kind == KindUint8
	case TypeUint16:
		return u.Kind == KindUint16
	case TypeUint32:
		return u.Kind == KindUint32
	case TypeUint64:
		return u.Kind == KindUint64
	case TypeFloat:
		return u.Kind == KindFloat32
	case TypeDouble:
		return u.Kind == KindFloat64
	case TypeBool:
		return u.Kind == KindBool
	case TypeString, TypeCName, TypeTweakDBID, TypeResRef:
		return u.Kind == KindString || u.Kind == KindInternStr
	case TypeVariant:
		return u.Kind == KindVariant
	case TypeClass, TypeRef, TypeWeakRef, TypeScriptRef:
		return u.Kind == KindObj
	case TypeArray:
		return u.Kind == KindArray
	default:
		return u.Kind == KindNull
	}
}

// ToString renders v for the ToString opcode and for log/assert
// natives. Names and literals that live in the pool's string tables
// are resolved through p.
func (v Value) ToString(p *pool.ConstantPool) (string, error) {
	u := v.Unpinned()
	switch u.Kind {
	case KindNull:
		return "null", nil
	case KindInt8:
		return fmt.Sprintf("%d", u.I8), nil
	case KindInt16:
		return fmt.Sprintf("%d", u.I16), nil
	case KindInt32:
		return fmt.Sprintf("%d", u.I32), nil
	case KindInt64:
		return fmt.Sprintf("%d", u.I64), nil
	case KindUint8:
		return fmt.Sprintf("%d", u.U8), nil
	case KindUint16:
		return fmt.Sprintf("%d", u.U16), nil
	case KindUint32:
		return fmt.Sprintf("%d", u.U32), nil
	case KindUint64:
		return fmt.Sprintf("%d", u.U64), nil
	case KindFloat32:
		return fmt.Sprintf("%g", u.F32), nil
	case KindFloat64:
		return fmt.Sprintf("%g", u.F64), nil
	case KindBool:
		if u.B {
			return "true", nil
		}
		return "false", nil
	case KindString:
		return u.Str, nil
	case KindInternStr:
		switch u.Intern.Table {
		case TableName:
			return p.NameStr(pool.NewIndex[pool.Name](u.Intern.Index))
		case TableTweakDbId:
			return p.TweakDbIdStr(pool.NewIndex[pool.TweakDbId](u.Intern.Index))
		case TableResource:
			return p.ResourceStr(pool.NewIndex[pool.Resource](u.Intern.Index))
		default:
			return p.String(pool.NewIndex[pool.StringLit](u.Intern.Index))
		}
	case KindEnum:
		name, err := p.DefName(pool.Cast[pool.Enum, pool.Definition](u.Enum.Enum))
		if err != nil {
			return "", err
		}
		return fmt.Sprintf("%s(%d)", name, u.Enum.Value), nil
	case KindPackedStruct:
		return renderStruct(p, u.Packed.Class, func(i int, fieldIdx uint32) (Value, bool) {
			if i >= u.Packed.Len {
				return Value{}, false
			}
			return u.Packed.Fields[i], true
		})
	case KindBoxedStruct:
		return renderStruct(p, u.Boxed.Class, func(i int, fieldIdx uint32) (Value, bool) {
			val, ok := u.Boxed.Fields[fieldIdx]
			return val, ok
		})
	case KindObj:
		if u.Obj.IsNull() {
			return "null", nil
		}
		return renderStruct(p, u.Obj.Instance.Class, func(i int, fieldIdx uint32) (Value, bool) {
			cell, ok := u.Obj.Instance.Fields[fieldIdx]
			if !ok {
				return Value{}, false
			}
			return *cell, true
		})
	case KindArray:
		parts := make([]string, len(u.Arr.Elems))
		for i, e := range u.Arr.Elems {
			s, err := e.ToString(p)
			if err != nil {
				return "", err
			}
			parts[i] = s
		}
		return "[" + strings.Join(parts, ", ") + "]", nil
	case KindVariant:
		if u.Var.Inner == nil {
			return "Invalid", nil
		}
		return u.Var.Inner.ToString(p)
	default:
		return "", fmt.Errorf("value: cannot render kind %d", u.Kind)
	}
}

// renderStruct formats a struct or instance value as {name: value, ...},
// iterating classIdx's own fields in declaration order and resolving each
// value through get, which abstracts over PackedStruct's positional array,
// BoxedStruct's and Instance's field-index maps. A field get reports
// missing (ok=false) is skipped.
func renderStruct(p *pool.ConstantPool, classIdx pool.PoolIndex[pool.Class], get func(i int, fieldIdx uint32) (Value, bool)) (string, error) {
	class, err := p.Class(classIdx)
	if err != nil {
		return "", err
	}
	parts := make([]string, 0, len(class.Fields))
	for i, fIdx := range class.Fields {
		val, ok := get(i, fIdx.Value())
		if !ok {
			continue
		}
		name, err := p.DefName(pool.Cast[pool.Field, pool.Definition](fIdx))
		if err != nil {
			return "", err
		}
		s, err := val.ToString(p)
		if err != nil {
			return "", err
		}
		parts = append(parts, name+": "+s)
	}
	return "{" + strings.Join(parts, ", ") + "}", nil
}
