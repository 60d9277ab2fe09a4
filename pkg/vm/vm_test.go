package vm_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxvm/oxvm/pkg/bytecode"
	"github.com/oxvm/oxvm/pkg/metadata"
	"github.com/oxvm/oxvm/pkg/pool"
	"github.com/oxvm/oxvm/pkg/poolbuilder"
	"github.com/oxvm/oxvm/pkg/value"
	"github.com/oxvm/oxvm/pkg/vm"
)

func buildMeta(t *testing.T, b *poolbuilder.Builder) *metadata.Metadata {
	t.Helper()
	p, err := b.Build()
	require.NoError(t, err)
	m, err := metadata.New(p)
	require.NoError(t, err)
	return m
}

// add(a: Int32, b: Int32) -> Int32 { return a + b; }, with OperatorAdd
// bound as a native - exercises InvokeStatic, Param, ParamEnd and
// Return together.
func TestInvokeStaticArithmetic(t *testing.T) {
	b := poolbuilder.New()
	i32 := b.Prim("Int32")

	addFb := b.Function("OperatorAdd;Int32Int32;Int32")
	addFb.Param("a", i32)
	addFb.Param("b", i32)
	addOp := addFb.Returns(i32).Native().Build()

	fb := b.Function("add;Int32Int32;Int32")
	a := fb.Param("a", i32)
	bb := fb.Param("b", i32)
	fb.Returns(i32).
		Code(
			bytecode.Instr{Op: bytecode.OpReturn},
			bytecode.Instr{Op: bytecode.OpInvokeStatic, Index: addOp.Value()},
			bytecode.Instr{Op: bytecode.OpParam, Index: a.Value()},
			bytecode.Instr{Op: bytecode.OpParam, Index: bb.Value()},
			bytecode.Instr{Op: bytecode.OpParamEnd},
		).Build()

	m := buildMeta(t, b)
	m.RegisterNative(addOp, func(args []value.Value, p *pool.ConstantPool) (value.Value, error) {
		x := args[0].Unpinned()
		y := args[1].Unpinned()
		return value.Int32(x.I32 + y.I32), nil
	})
	machine := vm.New(m, nil)
	result, err := machine.Call("add;Int32Int32;Int32", value.Int32(2), value.Int32(3))
	require.NoError(t, err)
	assert.Equal(t, value.Int32(5), result)
}

// setAndGet() -> Int32 { c := new Counter; c.value = 7; return
// c.value; } - exercises New, and an Assign whose target is an
// ObjectField l-value; Assign itself yields the assigned value, so
// Return sees 7 directly without a second field read.
func TestObjectFieldReadWrite(t *testing.T) {
	b := poolbuilder.New()
	i32 := b.Prim("Int32")

	cb := b.Class("Counter")
	valueField := cb.Field("value", i32)
	classIdx := cb.Build()

	b.Function("setAndGet;;Int32").
		Code(
			bytecode.Instr{Op: bytecode.OpReturn},
			bytecode.Instr{Op: bytecode.OpAssign},
			bytecode.Instr{Op: bytecode.OpObjectField, Index: valueField.Value()},
			bytecode.Instr{Op: bytecode.OpNew, Index: classIdx.Value()},
			bytecode.Instr{Op: bytecode.OpI32Const, I32: 7},
		).Build()

	m := buildMeta(t, b)
	machine := vm.New(m, nil)
	result, err := machine.Call("setAndGet;;Int32")
	require.NoError(t, err)
	assert.Equal(t, value.Int32(7), result)
}

// speak() -> Int32 dispatched virtually: Base returns 1, Derived
// overrides it to return 2. Both methods are declared against the
// same name index, so GetVTable's first-write-wins, most-derived-first
// walk sees Derived's entry as an override of Base's rather than a
// second, unrelated method.
func TestVirtualDispatchOverride(t *testing.T) {
	b := poolbuilder.New()
	i32 := b.Prim("Int32")
	speakName := b.Pool().AddName("Speak;;Int32")

	baseCb := b.Class("Base")
	baseCb.Method(b.FunctionNamed(speakName, "Speak;;Int32").
		Returns(i32).
		Code(
			bytecode.Instr{Op: bytecode.OpReturn},
			bytecode.Instr{Op: bytecode.OpI32Const, I32: 1},
		))
	baseCb.Build()

	derivedCb := b.Class("Derived").Base("Base")
	derivedCb.Method(b.FunctionNamed(speakName, "Speak;;Int32").
		Returns(i32).
		Code(
			bytecode.Instr{Op: bytecode.OpReturn},
			bytecode.Instr{Op: bytecode.OpI32Const, I32: 2},
		))
	derivedIdx := derivedCb.Build()

	b.Function("speak;;Int32").
		Code(
			bytecode.Instr{Op: bytecode.OpReturn},
			bytecode.Instr{Op: bytecode.OpInvokeVirtual, Index: speakName.Value()},
			bytecode.Instr{Op: bytecode.OpNew, Index: derivedIdx.Value()},
			bytecode.Instr{Op: bytecode.OpParamEnd},
		).Build()

	m := buildMeta(t, b)
	machine := vm.New(m, nil)
	result, err := machine.Call("speak;;Int32")
	require.NoError(t, err)
	assert.Equal(t, value.Int32(2), result)
}

// pushTwo() -> Int32 pushes two Int32 elements onto a local array,
// one statement at a time, then returns its size. Each ArrayPush is
// its own top-level statement - the interpreter's run loop advances
// to the next unconsumed instruction after each one completes, so
// sibling statements never need explicit sequencing instructions.
func TestArrayPushAndSize(t *testing.T) {
	b := poolbuilder.New()
	i32 := b.Prim("Int32")
	arrType := b.ArrayType(i32)

	fb := b.Function("pushTwo;;Int32")
	items := fb.Local("items", arrType)
	fb.Returns(i32).
		Code(
			bytecode.Instr{Op: bytecode.OpArrayPush},
			bytecode.Instr{Op: bytecode.OpLocal, Index: items.Value()},
			bytecode.Instr{Op: bytecode.OpI32Const, I32: 10},

			bytecode.Instr{Op: bytecode.OpArrayPush},
			bytecode.Instr{Op: bytecode.OpLocal, Index: items.Value()},
			bytecode.Instr{Op: bytecode.OpI32Const, I32: 20},

			bytecode.Instr{Op: bytecode.OpReturn},
			bytecode.Instr{Op: bytecode.OpArraySize},
			bytecode.Instr{Op: bytecode.OpLocal, Index: items.Value()},
		).Build()

	m := buildMeta(t, b)
	machine := vm.New(m, nil)
	result, err := machine.Call("pushTwo;;Int32")
	require.NoError(t, err)
	assert.Equal(t, value.Int32(2), result)
}

// DynamicCast follows IsInstanceOf's reversed walk (see
// Metadata.IsInstanceOf's own doc comment): a Base instance cast as
// Derived succeeds because Derived's own base chain reaches Base:
// RefToBool turns the (possibly null) cast result into the pass/fail
// Bool the test asserts on.
func TestDynamicCast(t *testing.T) {
	b := poolbuilder.New()

	baseIdx := b.Class("Base").Build()
	derivedIdx := b.Class("Derived").Base("Base").Build()
	otherIdx := b.Class("Other").Build()

	b.Function("castToDerived;;Bool").
		Code(
			bytecode.Instr{Op: bytecode.OpReturn},
			bytecode.Instr{Op: bytecode.OpRefToBool},
			bytecode.Instr{Op: bytecode.OpDynamicCast, Index: derivedIdx.Value()},
			bytecode.Instr{Op: bytecode.OpNew, Index: baseIdx.Value()},
		).Build()

	b.Function("castToOther;;Bool").
		Code(
			bytecode.Instr{Op: bytecode.OpReturn},
			bytecode.Instr{Op: bytecode.OpRefToBool},
			bytecode.Instr{Op: bytecode.OpDynamicCast, Index: otherIdx.Value()},
			bytecode.Instr{Op: bytecode.OpNew, Index: baseIdx.Value()},
		).Build()

	m := buildMeta(t, b)
	machine := vm.New(m, nil)

	ok, err := machine.Call("castToDerived;;Bool")
	require.NoError(t, err)
	assert.Equal(t, value.Bool(true), ok)

	notOk, err := machine.Call("castToOther;;Bool")
	require.NoError(t, err)
	assert.Equal(t, value.Bool(false), notOk)
}

// pick(flag: Bool) -> Int32 returns 1 when flag is true and 0
// otherwise, via a single Conditional instruction - exercises both of
// its branches and the seek past the one not taken.
func TestConditionalBranch(t *testing.T) {
	b := poolbuilder.New()
	i32 := b.Prim("Int32")
	boolT := b.Prim("Bool")

	fb := b.Function("pick;Bool;Int32")
	flag := fb.Param("flag", boolT)
	fb.Returns(i32)

	returnInstr := bytecode.Instr{Op: bytecode.OpReturn}
	paramInstr := bytecode.Instr{Op: bytecode.OpParam, Index: flag.Value()}
	trueInstr := bytecode.Instr{Op: bytecode.OpI32Const, I32: 1}
	falseInstr := bytecode.Instr{Op: bytecode.OpI32Const, I32: 0}
	landingInstr := bytecode.Instr{Op: bytecode.OpNop}

	// Conditional's Offset/OffsetB are relative to its own byte
	// position; Offset is the false-branch target (falseInstr),
	// OffsetB is where execution lands after the true branch, past
	// the false branch entirely (landingInstr) - both must name a
	// real instruction offset for Frame.seek to find.
	condSize := bytecode.Instr{Op: bytecode.OpConditional}.Size()
	toFalse := int32(condSize) + int32(paramInstr.Size()) + int32(trueInstr.Size())
	pastFalse := toFalse + int32(falseInstr.Size())
	condInstr := bytecode.Instr{Op: bytecode.OpConditional, Offset: toFalse, OffsetB: pastFalse}

	fb.Code(returnInstr, condInstr, paramInstr, trueInstr, falseInstr, landingInstr).Build()

	m := buildMeta(t, b)
	machine := vm.New(m, nil)

	whenTrue, err := machine.Call("pick;Bool;Int32", value.Bool(true))
	require.NoError(t, err)
	assert.Equal(t, value.Int32(1), whenTrue)

	whenFalse, err := machine.Call("pick;Bool;Int32", value.Bool(false))
	require.NoError(t, err)
	assert.Equal(t, value.Int32(0), whenFalse)
}

func TestCallUnknownFunction(t *testing.T) {
	b := poolbuilder.New()
	m := buildMeta(t, b)
	machine := vm.New(m, nil)
	_, err := machine.Call("missing;;Void")
	assert.Error(t, err)
}
