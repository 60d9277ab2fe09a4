// Package metadata derives everything the interpreter needs from a
// pool.ConstantPool that is not already stored there directly: a
// name-to-index symbol table, resolved TypeIds, per-class vtables,
// and the native-function registry a host populates via
// RegisterNative.
//
// Type resolution happens eagerly, once, in New - every pool.Type
// definition is walked and reduced to a value.TypeId up front, since
// locals and fields need their default value before the first
// instruction of any function ever runs. Vtables, by contrast, are
// built lazily and memoized the first time a class is instantiated or
// dispatched through, since most classes in a given run are never
// touched.
package metadata

import (
	"fmt"

	"github.com/oxvm/oxvm/pkg/indexmap"
	"github.com/oxvm/oxvm/pkg/interop"
	"github.com/oxvm/oxvm/pkg/pool"
	"github.com/oxvm/oxvm/pkg/value"
)

// Symbols resolves a root definition's name back to its pool index,
// the lookup a host needs to find "main;" or a named test suite class.
type Symbols struct {
	Functions map[string]pool.PoolIndex[pool.Function]
	Classes   map[string]pool.PoolIndex[pool.Class]
	Enums     map[string]pool.PoolIndex[pool.Enum]
}

// vtable implements value.VTable over a plain map, built once per
// class by GetVTable and shared (never copied) by every Instance of
// that class.
type vtable struct {
	byName map[uint32]pool.PoolIndex[pool.Function]
}

func (vt *vtable) Get(nameIdx uint32) (pool.PoolIndex[pool.Function], bool) {
	idx, ok := vt.byName[nameIdx]
	return idx, ok
}

// Metadata is the read-only derived view over a pool, plus the
// mutable native-function registry a host builds up with
// RegisterNative before running anything.
type Metadata struct {
	Pool    *pool.ConstantPool
	Symbols Symbols

	types   map[uint32]value.TypeId
	vtables map[uint32]*vtable
	natives *indexmap.IndexMap[interop.Function]
}

// New builds a Metadata view over p: resolves every Type definition
// eagerly and indexes every root Function/Class/Enum by name.
func New(p *pool.ConstantPool) (*Metadata, error) {
	m := &Metadata{
		Pool:    p,
		Symbols: Symbols{Functions: map[string]pool.PoolIndex[pool.Function]{}, Classes: map[string]pool.PoolIndex[pool.Class]{}, Enums: map[string]pool.PoolIndex[pool.Enum]{}},
		types:   map[uint32]value.TypeId{},
		vtables: map[uint32]*vtable{},
		natives: indexmap.New[interop.Function](),
	}

	for _, entry := range p.Definitions() {
		if _, ok := entry.Def.Value.(*pool.Type); ok {
			typeIdx := pool.Cast[pool.Definition, pool.Type](entry.Index)
			t, err := value.ResolveTypeId(p, typeIdx)
			if err != nil {
				return nil, fmt.Errorf("metadata: resolve type %s: %w", entry.Index, err)
			}
			m.types[entry.Index.Value()] = t
		}
	}

	for _, entry := range p.Roots() {
		name, err := p.NameStr(entry.Def.Name)
		if err != nil {
			return nil, fmt.Errorf("metadata: root %s name: %w", entry.Index, err)
		}
		switch entry.Def.Value.(type) {
		case *pool.Function:
			m.Symbols.Functions[name] = pool.Cast[pool.Definition, pool.Function](entry.Index)
		case *pool.Class:
			m.Symbols.Classes[name] = pool.Cast[pool.Definition, pool.Class](entry.Index)
		case *pool.Enum:
			m.Symbols.Enums[name] = pool.Cast[pool.Definition, pool.Enum](entry.Index)
		}
	}

	return m, nil
}

// GetTypeId returns the TypeId resolved for idx at construction time.
func (m *Metadata) GetTypeId(idx pool.PoolIndex[pool.Type]) (value.TypeId, error) {
	if idx.IsUndefined() {
		return value.TypeId{Kind: value.TypeVoid}, nil
	}
	t, ok := m.types[idx.Value()]
	if !ok {
		return value.TypeId{}, fmt.Errorf("metadata: type %s was never resolved", idx)
	}
	return t, nil
}

// GetVTable returns the memoized vtable for classIdx, building it on
// first use: most-derived class first, first write wins, so a
// derived class's override is never clobbered by its base's
// same-named method inserted later in the walk.
func (m *Metadata) GetVTable(classIdx pool.PoolIndex[pool.Class]) (value.VTable, error) {
	if vt, ok := m.vtables[classIdx.Value()]; ok {
		return vt, nil
	}

	vt := &vtable{byName: map[uint32]pool.PoolIndex[pool.Function]{}}
	current := classIdx
	for !current.IsUndefined() {
		class, err := m.Pool.Class(current)
		if err != nil {
			return nil, fmt.Errorf("metadata: vtable for %s: %w", classIdx, err)
		}
		for _, funIdx := range class.Functions {
			fun, err := m.Pool.Function(funIdx)
			if err != nil {
				return nil, fmt.Errorf("metadata: vtable for %s: %w", classIdx, err)
			}
			if fun.Flags.IsStatic() || fun.Flags.IsFinal() {
				continue
			}
			def, err := m.Pool.Definition(pool.Cast[pool.Function, pool.Definition](funIdx))
			if err != nil {
				return nil, err
			}
			if _, exists := vt.byName[def.Name.Value()]; !exists {
				vt.byName[def.Name.Value()] = funIdx
			}
		}
		current = class.Base
	}

	m.vtables[classIdx.Value()] = vt
	return vt, nil
}

// IsInstanceOf reports whether instance is reachable by walking
// expected's own base chain - the direction is the reverse of what
// the name suggests. This mirrors the upstream type checker's walk
// exactly: it is relied upon by DynamicCast call sites that pass the
// statically-known type as "expected" and the runtime class as
// "instance" even though, read literally, the check asks "does
// expected derive from instance", not the other way around.
func (m *Metadata) IsInstanceOf(instance, expected pool.PoolIndex[pool.Class]) bool {
	current := expected
	for {
		if current.Value() == instance.Value() {
			return true
		}
		if current.IsUndefined() {
			return false
		}
		class, err := m.Pool.Class(current)
		if err != nil {
			return false
		}
		current = class.Base
	}
}

// RegisterNative binds fn as the implementation of the native
// function declared at idx. Calling an IsNative function with no
// registered implementation is an UndefinedNative error.
func (m *Metadata) RegisterNative(idx pool.PoolIndex[pool.Function], fn interop.Function) {
	m.natives.Put(idx.Value(), fn)
}

// GetNative returns the implementation registered for idx, if any.
func (m *Metadata) GetNative(idx pool.PoolIndex[pool.Function]) (interop.Function, bool) {
	return m.natives.Get(idx.Value())
}
