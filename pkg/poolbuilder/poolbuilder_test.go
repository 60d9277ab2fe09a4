package poolbuilder_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxvm/oxvm/pkg/bytecode"
	"github.com/oxvm/oxvm/pkg/pool"
	"github.com/oxvm/oxvm/pkg/poolbuilder"
)

func TestClassFieldsAndBaseResolve(t *testing.T) {
	b := poolbuilder.New()
	i32 := b.Prim("Int32")

	baseIdx := b.Class("Entity").Build()

	cb := b.Class("Pawn").Base("Entity")
	hp := cb.Field("hp", i32)
	name := cb.Field("name", b.Prim("String"))
	pawnIdx := cb.Build()

	p, err := b.Build()
	require.NoError(t, err)

	pawn, err := p.Class(pawnIdx)
	require.NoError(t, err)
	assert.Equal(t, baseIdx.Value(), pawn.Base.Value())
	require.Len(t, pawn.Fields, 2)
	assert.Equal(t, hp.Value(), pawn.Fields[0].Value())
	assert.Equal(t, name.Value(), pawn.Fields[1].Value())

	hpField, err := p.Field(hp)
	require.NoError(t, err)
	assert.Equal(t, i32.Value(), hpField.Type.Value())
}

func TestFunctionParamsLocalsAndCode(t *testing.T) {
	b := poolbuilder.New()
	i32 := b.Prim("Int32")

	fb := b.Function("clamp;Int32;Int32")
	in := fb.Param("in", i32)
	out := fb.OutParam("out", i32)
	tmp := fb.Local("tmp", i32)
	funIdx := fb.Returns(i32).
		Code(
			bytecode.Instr{Op: bytecode.OpReturn},
			bytecode.Instr{Op: bytecode.OpLocal, Index: tmp.Value()},
		).Build()

	p, err := b.Build()
	require.NoError(t, err)

	fun, err := p.Function(funIdx)
	require.NoError(t, err)
	require.Len(t, fun.Parameters, 2)
	assert.Equal(t, in.Value(), fun.Parameters[0].Value())
	assert.Equal(t, out.Value(), fun.Parameters[1].Value())
	require.Len(t, fun.Locals, 1)
	assert.Equal(t, tmp.Value(), fun.Locals[0].Value())
	assert.Equal(t, i32.Value(), fun.ReturnType.Value())

	outParam, err := p.Parameter(out)
	require.NoError(t, err)
	assert.True(t, outParam.Flags.Out)
	inParam, err := p.Parameter(in)
	require.NoError(t, err)
	assert.False(t, inParam.Flags.Out)

	require.Len(t, fun.Code, 2)
	assert.Equal(t, bytecode.OpReturn, fun.Code[0].Instr.Op)
	assert.Equal(t, uint16(0), fun.Code[0].Offset)
	assert.Equal(t, bytecode.OpLocal, fun.Code[1].Instr.Op)
}

// FunctionNamed lets two independently declared methods share a single
// Name-table index, the mechanism a derived class uses to override a
// base method rather than add an unrelated one with the same spelling.
func TestFunctionNamedSharesNameIndex(t *testing.T) {
	b := poolbuilder.New()
	i32 := b.Prim("Int32")
	name := b.Pool().AddName("Speak;;Int32")

	baseCb := b.Class("Base")
	baseCb.Method(b.FunctionNamed(name, "Speak;;Int32").Returns(i32).
		Code(bytecode.Instr{Op: bytecode.OpReturn}, bytecode.Instr{Op: bytecode.OpI32Const, I32: 1}))
	baseCb.Build()

	derivedCb := b.Class("Derived").Base("Base")
	derivedCb.Method(b.FunctionNamed(name, "Speak;;Int32").Returns(i32).
		Code(bytecode.Instr{Op: bytecode.OpReturn}, bytecode.Instr{Op: bytecode.OpI32Const, I32: 2}))
	derivedIdx := derivedCb.Build()

	p, err := b.Build()
	require.NoError(t, err)

	derived, err := p.Class(derivedIdx)
	require.NoError(t, err)
	require.Len(t, derived.Functions, 1)
	override, err := p.Function(derived.Functions[0])
	require.NoError(t, err)

	overrideDefIdx := pool.Cast[pool.Function, pool.Definition](derived.Functions[0])
	def, err := p.Definition(overrideDefIdx)
	require.NoError(t, err)
	assert.Equal(t, name.Value(), def.Name.Value())
	assert.Equal(t, bytecode.OpI32Const, override.Code[1].Instr.Op)
}

func TestArrayAndRefTypeWrap(t *testing.T) {
	b := poolbuilder.New()
	i32 := b.Prim("Int32")

	arr := b.ArrayType(i32)
	ref := b.RefType(b.ClassType("Pawn"))

	p, err := b.Build()
	require.NoError(t, err)

	arrType, err := p.Type(arr)
	require.NoError(t, err)
	assert.Equal(t, i32.Value(), arrType.Inner.Value())

	refType, err := p.Type(ref)
	require.NoError(t, err)
	assert.Equal(t, pool.TypeKindRef, refType.Kind)
}

func TestPrimIsCachedByName(t *testing.T) {
	b := poolbuilder.New()
	a := b.Prim("Int32")
	c := b.Prim("Int32")
	assert.Equal(t, a.Value(), c.Value())
}
