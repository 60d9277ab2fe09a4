// Package poolbuilder assembles pool.ConstantPool fixtures by hand, the
// way a unit test needs one without going through a real compiler
// front end. It is the only place in this module that constructs
// AnyDefinition values directly - everything downstream (pkg/metadata,
// pkg/vm) only ever reads a pool through pool.ConstantPool's own
// accessors.
package poolbuilder

import (
	"fmt"

	"github.com/oxvm/oxvm/pkg/bytecode"
	"github.com/oxvm/oxvm/pkg/pool"
)

// Builder accumulates definitions into a ConstantPool and defers base
// class resolution until Build, so a derived class can be declared
// before or after its base.
type Builder struct {
	pool *pool.ConstantPool

	classByName map[string]pool.PoolIndex[pool.Class]
	primTypes   map[string]pool.PoolIndex[pool.Type]
	baseLinks   []baseLink
}

type baseLink struct {
	class     *pool.Class
	className string
	baseName  string
}

// New returns an empty Builder over a fresh pool.
func New() *Builder {
	return &Builder{
		pool:        pool.New(),
		classByName: map[string]pool.PoolIndex[pool.Class]{},
		primTypes:   map[string]pool.PoolIndex[pool.Type]{},
	}
}

// Pool exposes the underlying pool for direct string-table interning
// ahead of Build, e.g. to precompute a StringConst's Index.
func (b *Builder) Pool() *pool.ConstantPool { return b.pool }

func anon() pool.PoolIndex[pool.Name] { return pool.Undefined[pool.Name]() }

// Prim returns the Type index for a primitive named name (e.g.
// "Int32", "Float", "String"), creating it once and caching the
// result for repeat calls.
func (b *Builder) Prim(name string) pool.PoolIndex[pool.Type] {
	if idx, ok := b.primTypes[name]; ok {
		return idx
	}
	t := &pool.Type{Kind: pool.TypeKindPrim}
	defIdx := b.pool.AddDefinition(pool.AnyDefinition{Name: b.pool.AddName(name), Parent: pool.Undefined[pool.Definition](), Value: t})
	idx := pool.Cast[pool.Definition, pool.Type](defIdx)
	b.primTypes[name] = idx
	return idx
}

// ClassType returns a fresh Type index naming a class type, resolved
// against whatever class of that name exists by the time Metadata is
// built over the finished pool.
func (b *Builder) ClassType(className string) pool.PoolIndex[pool.Type] {
	t := &pool.Type{Kind: pool.TypeKindClass}
	defIdx := b.pool.AddDefinition(pool.AnyDefinition{Name: b.pool.AddName(className), Parent: pool.Undefined[pool.Definition](), Value: t})
	return pool.Cast[pool.Definition, pool.Type](defIdx)
}

func (b *Builder) wrapType(kind pool.TypeKind, inner pool.PoolIndex[pool.Type], size uint32) pool.PoolIndex[pool.Type] {
	t := &pool.Type{Kind: kind, Inner: inner, Size: size}
	defIdx := b.pool.AddDefinition(pool.AnyDefinition{Name: anon(), Parent: pool.Undefined[pool.Definition](), Value: t})
	return pool.Cast[pool.Definition, pool.Type](defIdx)
}

func (b *Builder) RefType(inner pool.PoolIndex[pool.Type]) pool.PoolIndex[pool.Type] {
	return b.wrapType(pool.TypeKindRef, inner, 0)
}
func (b *Builder) WeakRefType(inner pool.PoolIndex[pool.Type]) pool.PoolIndex[pool.Type] {
	return b.wrapType(pool.TypeKindWeakRef, inner, 0)
}
func (b *Builder) ScriptRefType(inner pool.PoolIndex[pool.Type]) pool.PoolIndex[pool.Type] {
	return b.wrapType(pool.TypeKindScriptRef, inner, 0)
}
func (b *Builder) ArrayType(inner pool.PoolIndex[pool.Type]) pool.PoolIndex[pool.Type] {
	return b.wrapType(pool.TypeKindArray, inner, 0)
}
func (b *Builder) StaticArrayType(inner pool.PoolIndex[pool.Type], size uint32) pool.PoolIndex[pool.Type] {
	return b.wrapType(pool.TypeKindStaticArray, inner, size)
}

// ClassBuilder assembles one Class definition: its fields, methods,
// struct-ness, and (by name, resolved at Builder.Build) its base.
type ClassBuilder struct {
	b        *Builder
	name     string
	base     string
	isStruct bool
	fields   []pool.PoolIndex[pool.Field]
	methods  []*FunctionBuilder
}

// Class starts building a class or struct named name.
func (b *Builder) Class(name string) *ClassBuilder {
	return &ClassBuilder{b: b, name: name}
}

// Base names this class's superclass, looked up by name when Build runs.
func (cb *ClassBuilder) Base(name string) *ClassBuilder { cb.base = name; return cb }

// Struct marks this class as a value-type struct (is_struct()).
func (cb *ClassBuilder) Struct() *ClassBuilder { cb.isStruct = true; return cb }

// Field declares a field and returns its pool index immediately, so a
// method body built in the same ClassBuilder can reference it in an
// ObjectField instruction before Build runs.
func (cb *ClassBuilder) Field(name string, typ pool.PoolIndex[pool.Type]) pool.PoolIndex[pool.Field] {
	field := &pool.Field{Type: typ}
	fIdx := cb.b.pool.AddDefinition(pool.AnyDefinition{Name: cb.b.pool.AddName(name), Parent: pool.Undefined[pool.Definition](), Value: field})
	idx := pool.Cast[pool.Definition, pool.Field](fIdx)
	cb.fields = append(cb.fields, idx)
	return idx
}

// Method attaches fb as one of this class's member functions; fb must
// not already have been finalized with Build.
func (cb *ClassBuilder) Method(fb *FunctionBuilder) *ClassBuilder {
	cb.methods = append(cb.methods, fb)
	return cb
}

// Build finalizes the class definition and, if Base was called,
// registers a pending base-name link resolved by the owning Builder's
// own Build.
func (cb *ClassBuilder) Build() pool.PoolIndex[pool.Class] {
	class := &pool.Class{Base: pool.Undefined[pool.Class](), Flags: pool.ClassFlags{Struct: cb.isStruct}}
	classDefIdx := cb.b.pool.AddDefinition(pool.AnyDefinition{Name: cb.b.pool.AddName(cb.name), Parent: pool.Undefined[pool.Definition](), Value: class})
	classIdx := pool.Cast[pool.Definition, pool.Class](classDefIdx)

	class.Fields = append(class.Fields, cb.fields...)
	for _, m := range cb.methods {
		funcIdx := m.finalize(cb.b, classDefIdx)
		class.Functions = append(class.Functions, funcIdx)
	}

	cb.b.classByName[cb.name] = classIdx
	if cb.base != "" {
		cb.b.baseLinks = append(cb.b.baseLinks, baseLink{class: class, className: cb.name, baseName: cb.base})
	}
	return classIdx
}

// FunctionBuilder assembles one Function definition: its signature,
// flags and code. A FunctionBuilder is finalized exactly once, either
// by its own Build (for a root/static function) or by being passed to
// ClassBuilder.Method (for an instance method).
//
// Param/OutParam/Local create their pool definitions immediately and
// hand back the raw index, rather than deferring to Build/finalize,
// so Code can be built referencing them in the same call chain - a
// Param or Local instruction's Index is the raw pool index of the
// Parameter/Local definition, exactly as a real compiler would emit.
type FunctionBuilder struct {
	b          *Builder
	name       string
	nameIdx    pool.PoolIndex[pool.Name]
	hasNameIdx bool
	params     []pool.PoolIndex[pool.Parameter]
	locals     []pool.PoolIndex[pool.Local]
	returnType pool.PoolIndex[pool.Type]
	visibility pool.Visibility
	flags      pool.FunctionFlags
	instrs     []bytecode.Instr
}

// Function starts building a function or method named name - the
// exact compiler-emitted signature string (e.g. "DoThing;Int32;Bool")
// for anything a native lookup or a call-by-name needs to find.
func (b *Builder) Function(name string) *FunctionBuilder {
	return &FunctionBuilder{b: b, name: name, returnType: pool.Undefined[pool.Type](), visibility: pool.VisibilityPublic}
}

// FunctionNamed behaves like Function but reuses an already-interned
// Name index instead of adding a new one. A virtual method and the
// override that replaces it in vtable dispatch must share the exact
// same name index - vtable lookup keys on that raw index, not the
// string - so a derived class's override has to be declared this way
// against the base method's own name index.
func (b *Builder) FunctionNamed(nameIdx pool.PoolIndex[pool.Name], name string) *FunctionBuilder {
	return &FunctionBuilder{b: b, name: name, nameIdx: nameIdx, hasNameIdx: true, returnType: pool.Undefined[pool.Type](), visibility: pool.VisibilityPublic}
}

func (fb *FunctionBuilder) addParam(name string, typ pool.PoolIndex[pool.Type], out bool) pool.PoolIndex[pool.Parameter] {
	param := &pool.Parameter{Type: typ, Flags: pool.ParameterFlags{Out: out}}
	pIdx := fb.b.pool.AddDefinition(pool.AnyDefinition{Name: fb.b.pool.AddName(name), Parent: pool.Undefined[pool.Definition](), Value: param})
	idx := pool.Cast[pool.Definition, pool.Parameter](pIdx)
	fb.params = append(fb.params, idx)
	return idx
}

// Param declares a by-value parameter and returns its pool index.
func (fb *FunctionBuilder) Param(name string, typ pool.PoolIndex[pool.Type]) pool.PoolIndex[pool.Parameter] {
	return fb.addParam(name, typ, false)
}

// OutParam declares an out parameter and returns its pool index.
func (fb *FunctionBuilder) OutParam(name string, typ pool.PoolIndex[pool.Type]) pool.PoolIndex[pool.Parameter] {
	return fb.addParam(name, typ, true)
}

// Local declares a local variable and returns its pool index.
func (fb *FunctionBuilder) Local(name string, typ pool.PoolIndex[pool.Type]) pool.PoolIndex[pool.Local] {
	local := &pool.Local{Type: typ}
	lIdx := fb.b.pool.AddDefinition(pool.AnyDefinition{Name: fb.b.pool.AddName(name), Parent: pool.Undefined[pool.Definition](), Value: local})
	idx := pool.Cast[pool.Definition, pool.Local](lIdx)
	fb.locals = append(fb.locals, idx)
	return idx
}
func (fb *FunctionBuilder) Returns(typ pool.PoolIndex[pool.Type]) *FunctionBuilder {
	fb.returnType = typ
	return fb
}
func (fb *FunctionBuilder) Native() *FunctionBuilder { fb.flags.Native = true; return fb }
func (fb *FunctionBuilder) Static() *FunctionBuilder { fb.flags.Static = true; return fb }
func (fb *FunctionBuilder) Final() *FunctionBuilder  { fb.flags.Final = true; return fb }
func (fb *FunctionBuilder) Private() *FunctionBuilder {
	fb.visibility = pool.VisibilityPrivate
	return fb
}
func (fb *FunctionBuilder) Protected() *FunctionBuilder {
	fb.visibility = pool.VisibilityProtected
	return fb
}

// Code appends instructions in program order. Byte offsets are derived
// automatically from each instruction's Size(); Offset/OffsetB on a
// Jump/Conditional/SwitchLabel instruction must still be supplied
// relative to its own position, exactly as a real compiler would emit
// them.
func (fb *FunctionBuilder) Code(instrs ...bytecode.Instr) *FunctionBuilder {
	fb.instrs = append(fb.instrs, instrs...)
	return fb
}

// Build finalizes fb as a root (non-member) function, e.g. "main;" or
// a free-standing native.
func (fb *FunctionBuilder) Build() pool.PoolIndex[pool.Function] {
	return fb.finalize(fb.b, pool.Undefined[pool.Definition]())
}

func (fb *FunctionBuilder) finalize(b *Builder, parent pool.PoolIndex[pool.Definition]) pool.PoolIndex[pool.Function] {
	fn := &pool.Function{
		Flags:      fb.flags,
		ReturnType: fb.returnType,
		Visibility: fb.visibility,
		Parameters: fb.params,
		Locals:     fb.locals,
		Code:       buildCode(fb.instrs),
	}
	nameIdx := fb.nameIdx
	if !fb.hasNameIdx {
		nameIdx = b.pool.AddName(fb.name)
	}
	funcDefIdx := b.pool.AddDefinition(pool.AnyDefinition{Name: nameIdx, Parent: parent, Value: fn})
	return pool.Cast[pool.Definition, pool.Function](funcDefIdx)
}

func buildCode(instrs []bytecode.Instr) pool.Code {
	code := make(pool.Code, len(instrs))
	var offset uint16
	for i, instr := range instrs {
		code[i] = pool.CodeEntry{Offset: offset, Instr: instr}
		offset += instr.Size()
	}
	return code
}

// EnumBuilder assembles one Enum definition and its members.
type EnumBuilder struct {
	b       *Builder
	name    string
	members []enumMemberSpec
}
type enumMemberSpec struct {
	name  string
	value int64
}

// Enum starts building an enum named name.
func (b *Builder) Enum(name string) *EnumBuilder {
	return &EnumBuilder{b: b, name: name}
}

// Member appends a named value to the enum.
func (eb *EnumBuilder) Member(name string, value int64) *EnumBuilder {
	eb.members = append(eb.members, enumMemberSpec{name, value})
	return eb
}

// Build finalizes the enum definition.
func (eb *EnumBuilder) Build() pool.PoolIndex[pool.Enum] {
	e := &pool.Enum{}
	enumDefIdx := eb.b.pool.AddDefinition(pool.AnyDefinition{Name: eb.b.pool.AddName(eb.name), Parent: pool.Undefined[pool.Definition](), Value: e})
	for _, m := range eb.members {
		member := &pool.EnumMember{Value: m.value}
		mIdx := eb.b.pool.AddDefinition(pool.AnyDefinition{Name: eb.b.pool.AddName(m.name), Parent: enumDefIdx, Value: member})
		e.Members = append(e.Members, pool.Cast[pool.Definition, pool.EnumMember](mIdx))
	}
	return pool.Cast[pool.Definition, pool.Enum](enumDefIdx)
}

// Build resolves every pending class-base link by name and returns the
// finished pool. It fails if a Base names a class that was never
// declared.
func (b *Builder) Build() (*pool.ConstantPool, error) {
	for _, link := range b.baseLinks {
		idx, ok := b.classByName[link.baseName]
		if !ok {
			return nil, fmt.Errorf("poolbuilder: class %q names undeclared base %q", link.className, link.baseName)
		}
		link.class.Base = idx
	}
	return b.pool, nil
}
