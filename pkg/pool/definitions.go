package pool

import "github.com/oxvm/oxvm/pkg/bytecode"

// Name, StringLit, TweakDbId and Resource are marker types identifying
// which string table a PoolIndex addresses. Definition is the marker
// for an index into the generic definition list (used before the
// concrete kind - Class, Function, ... - is known).
type (
	Name       struct{}
	StringLit  struct{}
	TweakDbId  struct{}
	Resource   struct{}
	Definition struct{}
)

// Visibility controls whether a function participates as a public
// entry point (used by the test runner to discover test methods).
type Visibility int

const (
	VisibilityPrivate Visibility = iota
	VisibilityProtected
	VisibilityPublic
)

// ClassFlags carries the boolean attributes of a Class definition.
type ClassFlags struct {
	Struct bool // is_struct(): true for value-type aggregates (BoxedStruct), false for Instance classes
}

func (f ClassFlags) IsStruct() bool { return f.Struct }

// Class is a class or struct definition: its base, its own fields and
// methods (not including inherited ones - those are reached by
// walking Base), and whether it is a value-type struct.
type Class struct {
	Base      PoolIndex[Class]
	Fields    []PoolIndex[Field]
	Functions []PoolIndex[Function]
	Flags     ClassFlags
}

// FunctionFlags carries the boolean attributes of a Function definition.
type FunctionFlags struct {
	Native bool
	Final  bool
	Static bool
}

func (f FunctionFlags) IsNative() bool { return f.Native }
func (f FunctionFlags) IsFinal() bool  { return f.Final }
func (f FunctionFlags) IsStatic() bool { return f.Static }

// Code is a function's packed bytecode stream: the byte-offset each
// instruction occupies, paired with the decoded instruction itself,
// in the order the original bytecode stream is laid out.
type Code []CodeEntry

// CodeEntry pairs a decoded instruction with the byte offset at which
// it starts in the function's packed bytecode stream.
type CodeEntry struct {
	Offset uint16
	Instr  bytecode.Instr
}

// Function is a function or method definition.
type Function struct {
	Parameters []PoolIndex[Parameter]
	Locals     []PoolIndex[Local]
	Code       Code
	Flags      FunctionFlags
	ReturnType PoolIndex[Type] // Undefined means void
	Visibility Visibility
}

// Field is a class or struct field definition.
type Field struct {
	Type PoolIndex[Type]
}

// Local is a local variable definition belonging to a Function.
type Local struct {
	Type PoolIndex[Type]
}

// ParameterFlags carries the boolean attributes of a Parameter definition.
type ParameterFlags struct {
	Out bool
}

func (f ParameterFlags) IsOut() bool { return f.Out }

// Parameter is a function parameter definition.
type Parameter struct {
	Type  PoolIndex[Type]
	Flags ParameterFlags
}

// Enum is an enum type definition; its members are resolved by name
// through the pool's definition list.
type Enum struct {
	Members []PoolIndex[EnumMember]
}

// EnumMember is a single named enum value.
type EnumMember struct {
	Value int64
}

// TypeKind discriminates the closed Type union described in spec §6.
type TypeKind int

const (
	TypeKindPrim TypeKind = iota
	TypeKindClass
	TypeKindRef
	TypeKindWeakRef
	TypeKindScriptRef
	TypeKindArray
	TypeKindStaticArray
)

// Type is a pool-level type descriptor. Prim and Class carry no
// payload of their own - their meaning comes from the owning
// definition's Name (e.g. a Prim Type named "Int32", a Class Type
// named "Counter"). Ref/WeakRef/ScriptRef/Array wrap another Type by
// index; StaticArray additionally carries a fixed Size.
type Type struct {
	Kind  TypeKind
	Inner PoolIndex[Type] // Ref, WeakRef, ScriptRef, Array, StaticArray
	Size  uint32          // StaticArray only
}

// AnyDefinition is one entry in the pool's definition list: a name, an
// optional owning parent (Undefined for root definitions), and the
// concrete payload.
type AnyDefinition struct {
	Name   PoolIndex[Name]
	Parent PoolIndex[Definition]
	Value  any // one of *Class, *Function, *Field, *Local, *Parameter, *Enum, *EnumMember, *Type
}
