package value

import (
	"fmt"

	"github.com/oxvm/oxvm/pkg/pool"
)

// TypeKind discriminates the coarse runtime type tags used by host
// interop and by default-value initialization. It is coarser than
// pool.Type: every primitive name ("Int32", "Float", ...) collapses
// to one TypeKind, and Ref/WeakRef/ScriptRef/Array wrap an inner
// TypeId the same way pool.Type wraps an inner pool.Type.
type TypeKind int

const (
	TypeVoid TypeKind = iota
	TypeInt8
	TypeInt16
	TypeInt32
	TypeInt64
	TypeUint8
	TypeUint16
	TypeUint32
	TypeUint64
	TypeFloat
	TypeDouble
	TypeBool
	TypeString
	TypeCName
	TypeTweakDBID
	TypeResRef
	TypeVariant
	TypeClass
	TypeRef
	TypeWeakRef
	TypeScriptRef
	TypeArray
)

// TypeId is the resolved runtime type of a Local, Parameter or Field,
// computed once by Metadata from the pool's Type definitions.
type TypeId struct {
	Kind  TypeKind
	Class pool.PoolIndex[pool.Class] // TypeClass only
	Inner *TypeId                    // Ref, WeakRef, ScriptRef, Array
}

// primName maps the primitive type names the compiler emits to a
// TypeKind. Aliases (NodeRef, LocalizationString, CRUID, ...) are
// listed explicitly and fold onto the closest matching kind; a name
// not listed here makes ResolveTypeId fail.
var primName = map[string]TypeKind{
	"Int8": TypeInt8, "Int16": TypeInt16, "Int32": TypeInt32, "Int64": TypeInt64,
	"Uint8": TypeUint8, "Uint16": TypeUint16, "Uint32": TypeUint32, "Uint64": TypeUint64,
	"Float": TypeFloat, "Double": TypeDouble, "Bool": TypeBool,
	"String": TypeString, "CName": TypeCName, "TweakDBID": TypeTweakDBID,
	"Variant": TypeVariant, "NodeRef": TypeString, "LocalizationString": TypeString,
	"CRUID": TypeResRef, "CRUIDRef": TypeResRef, "redResourceReferenceScriptToken": TypeString,
	"ResRef": TypeResRef, "void": TypeVoid, "": TypeVoid,
}

// ResolveTypeId computes the TypeId for a pool type definition,
// resolving its name (for Prim/Class) or recursing into its Inner
// (for Ref/WeakRef/ScriptRef/Array/StaticArray).
func ResolveTypeId(p *pool.ConstantPool, idx pool.PoolIndex[pool.Type]) (TypeId, error) {
	if idx.IsUndefined() {
		return TypeId{Kind: TypeVoid}, nil
	}
	typ, err := p.Type(idx)
	if err != nil {
		return TypeId{}, err
	}

	switch typ.Kind {
	case pool.TypeKindPrim:
		name, err := p.DefName(pool.Cast[pool.Type, pool.Definition](idx))
		if err != nil {
			return TypeId{}, err
		}
		if kind, ok := primName[name]; ok {
			return TypeId{Kind: kind}, nil
		}
		return TypeId{}, fmt.Errorf("value: unknown primitive type %q", name)

	case pool.TypeKindClass:
		name, err := p.DefName(pool.Cast[pool.Type, pool.Definition](idx))
		if err != nil {
			return TypeId{}, err
		}
		classIdx, err := findClassByName(p, name)
		if err != nil {
			return TypeId{}, err
		}
		return TypeId{Kind: TypeClass, Class: classIdx}, nil

	case pool.TypeKindRef, pool.TypeKindWeakRef, pool.TypeKindScriptRef, pool.TypeKindArray, pool.TypeKindStaticArray:
		inner, err := ResolveTypeId(p, typ.Inner)
		if err != nil {
			return TypeId{}, err
		}
		kind := TypeRef
		switch typ.Kind {
		case pool.TypeKindWeakRef:
			kind = TypeWeakRef
		case pool.TypeKindScriptRef:
			kind = TypeScriptRef
		case pool.TypeKindArray, pool.TypeKindStaticArray:
			kind = TypeArray
		}
		return TypeId{Kind: kind, Inner: &inner}, nil
	}

	return TypeId{Kind: TypeVoid}, nil
}

func findClassByName(p *pool.ConstantPool, name string) (pool.PoolIndex[pool.Class], error) {
	for _, entry := range p.Definitions() {
		if _, ok := entry.Def.Value.(*pool.Class); !ok {
			continue
		}
		n, err := p.NameStr(entry.Def.Name)
		if err != nil {
			return pool.PoolIndex[pool.Class]{}, err
		}
		if n == name {
			return pool.Cast[pool.Definition, pool.Class](entry.Index), nil
		}
	}
	return pool.Undefined[pool.Class](), nil
}

// DefaultValue returns the zero value a local, field or parameter of
// this type holds before it is ever assigned.
func (t TypeId) DefaultValue() Value {
	switch t.Kind {
	case TypeInt8:
		return Int8(0)
	case TypeInt16:
		return Int16(0)
	case TypeInt32:
		return Int32(0)
	case TypeInt64:
		return Int64(0)
	case TypeUint8:
		return Uint8(0)
	case TypeUint16:
		return Uint16(0)
	case TypeUint32:
		return Uint32(0)
	case TypeUint64:
		return Uint64(0)
	case TypeFloat:
		return Float32(0)
	case TypeDouble:
		return Float64(0)
	case TypeBool:
		return Bool(false)
	case TypeString, TypeCName, TypeTweakDBID, TypeResRef:
		return Str("")
	case TypeVariant:
		return NewVariant(nil)
	case TypeClass, TypeRef, TypeWeakRef, TypeScriptRef:
		return NullObj()
	case TypeArray:
		return NewArray(nil)
	default:
		return Null()
	}
}
