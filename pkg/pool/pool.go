package pool

import (
	"errors"
	"fmt"
)

// ErrUndefinedIndex is returned by every accessor when asked to
// resolve the sentinel "no definition" index.
var ErrUndefinedIndex = errors.New("pool: undefined index")

// ErrWrongKind is returned when a definition exists at the given
// index but holds a different payload than the accessor expects.
var ErrWrongKind = errors.New("pool: definition has the wrong kind")

// ConstantPool is the linked set of definitions and string tables
// produced by the (out-of-scope) textual-source compiler. It is the
// VM's sole read-only input: Metadata borrows it, and it must outlive
// the VM built over it.
type ConstantPool struct {
	Strings    []string
	Names      []string
	TweakDbIds []string
	Resources  []string

	definitions []AnyDefinition
}

// New returns an empty pool ready to be populated, e.g. by
// pkg/poolbuilder or pkg/bundle.
func New() *ConstantPool {
	return &ConstantPool{}
}

// AddString interns s in the string literal table and returns its index.
func (p *ConstantPool) AddString(s string) PoolIndex[StringLit] {
	p.Strings = append(p.Strings, s)
	return NewIndex[StringLit](uint32(len(p.Strings) - 1))
}

// AddName interns s in the name table and returns its index.
func (p *ConstantPool) AddName(s string) PoolIndex[Name] {
	p.Names = append(p.Names, s)
	return NewIndex[Name](uint32(len(p.Names) - 1))
}

// AddTweakDbId interns s in the TweakDB id table and returns its index.
func (p *ConstantPool) AddTweakDbId(s string) PoolIndex[TweakDbId] {
	p.TweakDbIds = append(p.TweakDbIds, s)
	return NewIndex[TweakDbId](uint32(len(p.TweakDbIds) - 1))
}

// AddResource interns s in the resource path table and returns its index.
func (p *ConstantPool) AddResource(s string) PoolIndex[Resource] {
	p.Resources = append(p.Resources, s)
	return NewIndex[Resource](uint32(len(p.Resources) - 1))
}

// AddDefinition appends def to the definition list and returns the
// index it was assigned.
func (p *ConstantPool) AddDefinition(def AnyDefinition) PoolIndex[Definition] {
	p.definitions = append(p.definitions, def)
	return NewIndex[Definition](uint32(len(p.definitions) - 1))
}

func stringAt(table []string, idx uint32) (string, error) {
	if int(idx) >= len(table) {
		return "", fmt.Errorf("pool: string index %d out of range", idx)
	}
	return table[idx], nil
}

// String resolves a string-literal index.
func (p *ConstantPool) String(idx PoolIndex[StringLit]) (string, error) {
	if idx.IsUndefined() {
		return "", ErrUndefinedIndex
	}
	return stringAt(p.Strings, idx.Value())
}

// NameStr resolves a name-table index.
func (p *ConstantPool) NameStr(idx PoolIndex[Name]) (string, error) {
	if idx.IsUndefined() {
		return "", ErrUndefinedIndex
	}
	return stringAt(p.Names, idx.Value())
}

// TweakDbIdStr resolves a TweakDB id index.
func (p *ConstantPool) TweakDbIdStr(idx PoolIndex[TweakDbId]) (string, error) {
	if idx.IsUndefined() {
		return "", ErrUndefinedIndex
	}
	return stringAt(p.TweakDbIds, idx.Value())
}

// ResourceStr resolves a resource-path index.
func (p *ConstantPool) ResourceStr(idx PoolIndex[Resource]) (string, error) {
	if idx.IsUndefined() {
		return "", ErrUndefinedIndex
	}
	return stringAt(p.Resources, idx.Value())
}

// Definition resolves a generic definition index.
func (p *ConstantPool) Definition(idx PoolIndex[Definition]) (*AnyDefinition, error) {
	if idx.IsUndefined() {
		return nil, ErrUndefinedIndex
	}
	if int(idx.Value()) >= len(p.definitions) {
		return nil, fmt.Errorf("pool: definition index %d out of range", idx.Value())
	}
	return &p.definitions[idx.Value()], nil
}

// DefName returns the name of whatever definition idx points at.
func (p *ConstantPool) DefName(idx PoolIndex[Definition]) (string, error) {
	def, err := p.Definition(idx)
	if err != nil {
		return "", err
	}
	return p.NameStr(def.Name)
}

// Class resolves a class definition.
func (p *ConstantPool) Class(idx PoolIndex[Class]) (*Class, error) {
	def, err := p.Definition(Cast[Class, Definition](idx))
	if err != nil {
		return nil, err
	}
	class, ok := def.Value.(*Class)
	if !ok {
		return nil, ErrWrongKind
	}
	return class, nil
}

// Function resolves a function definition.
func (p *ConstantPool) Function(idx PoolIndex[Function]) (*Function, error) {
	def, err := p.Definition(Cast[Function, Definition](idx))
	if err != nil {
		return nil, err
	}
	fun, ok := def.Value.(*Function)
	if !ok {
		return nil, ErrWrongKind
	}
	return fun, nil
}

// Field resolves a field definition.
func (p *ConstantPool) Field(idx PoolIndex[Field]) (*Field, error) {
	def, err := p.Definition(Cast[Field, Definition](idx))
	if err != nil {
		return nil, err
	}
	field, ok := def.Value.(*Field)
	if !ok {
		return nil, ErrWrongKind
	}
	return field, nil
}

// Local resolves a local-variable definition.
func (p *ConstantPool) Local(idx PoolIndex[Local]) (*Local, error) {
	def, err := p.Definition(Cast[Local, Definition](idx))
	if err != nil {
		return nil, err
	}
	local, ok := def.Value.(*Local)
	if !ok {
		return nil, ErrWrongKind
	}
	return local, nil
}

// Parameter resolves a parameter definition.
func (p *ConstantPool) Parameter(idx PoolIndex[Parameter]) (*Parameter, error) {
	def, err := p.Definition(Cast[Parameter, Definition](idx))
	if err != nil {
		return nil, err
	}
	param, ok := def.Value.(*Parameter)
	if !ok {
		return nil, ErrWrongKind
	}
	return param, nil
}

// Enum resolves an enum definition.
func (p *ConstantPool) Enum(idx PoolIndex[Enum]) (*Enum, error) {
	def, err := p.Definition(Cast[Enum, Definition](idx))
	if err != nil {
		return nil, err
	}
	e, ok := def.Value.(*Enum)
	if !ok {
		return nil, ErrWrongKind
	}
	return e, nil
}

// EnumValue returns the raw i64 value backing an enum member.
func (p *ConstantPool) EnumValue(idx PoolIndex[EnumMember]) (int64, error) {
	def, err := p.Definition(Cast[EnumMember, Definition](idx))
	if err != nil {
		return 0, err
	}
	member, ok := def.Value.(*EnumMember)
	if !ok {
		return 0, ErrWrongKind
	}
	return member.Value, nil
}

// Type resolves a type definition.
func (p *ConstantPool) Type(idx PoolIndex[Type]) (*Type, error) {
	def, err := p.Definition(Cast[Type, Definition](idx))
	if err != nil {
		return nil, err
	}
	typ, ok := def.Value.(*Type)
	if !ok {
		return nil, ErrWrongKind
	}
	return typ, nil
}

// DefinitionEntry pairs a definition with the index it lives at -
// the shape iterated by Definitions and Roots.
type DefinitionEntry struct {
	Index PoolIndex[Definition]
	Def   *AnyDefinition
}

// Definitions returns every definition in the pool alongside its index.
// Iteration order matches insertion order (deterministic, unlike the
// IndexMap's hash-based order).
func (p *ConstantPool) Definitions() []DefinitionEntry {
	out := make([]DefinitionEntry, len(p.definitions))
	for i := range p.definitions {
		out[i] = DefinitionEntry{Index: NewIndex[Definition](uint32(i)), Def: &p.definitions[i]}
	}
	return out
}

// Roots returns the definitions with no owning parent: top-level
// classes, functions and enums, as opposed to their fields, methods
// and members.
func (p *ConstantPool) Roots() []DefinitionEntry {
	all := p.Definitions()
	roots := all[:0]
	for _, e := range all {
		if e.Def.Parent.IsUndefined() {
			roots = append(roots, e)
		}
	}
	return roots
}
