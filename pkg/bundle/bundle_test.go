package bundle_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxvm/oxvm/pkg/bundle"
	"github.com/oxvm/oxvm/pkg/bytecode"
	"github.com/oxvm/oxvm/pkg/poolbuilder"
)

// buildSamplePool mirrors a small compiled script: a base/derived
// class pair, a field, and a function with a param, a local and real
// code - enough to exercise the class, field, function, parameter,
// local and type tags (enums are not part of this fixture).
func buildSamplePool(t *testing.T) *poolbuilder.Builder {
	t.Helper()
	b := poolbuilder.New()
	i32 := b.Prim("Int32")
	arr := b.ArrayType(i32)

	baseCb := b.Class("Entity")
	baseCb.Field("id", i32)
	baseCb.Build()

	derivedCb := b.Class("Pawn").Base("Entity")
	derivedCb.Field("hp", i32)
	derivedCb.Build()

	fb := b.Function("heal;Int32;Int32")
	amount := fb.Param("amount", i32)
	fb.OutParam("applied", i32)
	fb.Local("buf", arr)
	fb.Returns(i32).
		Code(
			bytecode.Instr{Op: bytecode.OpReturn},
			bytecode.Instr{Op: bytecode.OpParam, Index: amount.Value()},
		).Build()

	return b
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	b := buildSamplePool(t)
	original, err := b.Build()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, bundle.Encode(&buf, original))

	decoded, err := bundle.Decode(&buf)
	require.NoError(t, err)

	wantEntries := original.Definitions()
	gotEntries := decoded.Definitions()
	require.Len(t, gotEntries, len(wantEntries))

	for i, want := range wantEntries {
		got := gotEntries[i]
		assert.Equal(t, want.Def.Name.Value(), got.Def.Name.Value(), "entry %d name", i)
		assert.Equal(t, want.Def.Parent.Value(), got.Def.Parent.Value(), "entry %d parent", i)
		assert.IsType(t, want.Def.Value, got.Def.Value, "entry %d value type", i)
	}

	assert.Equal(t, original.Names, decoded.Names)
	assert.Equal(t, original.Strings, decoded.Strings)
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	buf := bytes.NewBufferString("NOPE")
	_, err := bundle.Decode(buf)
	assert.Error(t, err)
}

func TestDecodeRejectsBadVersion(t *testing.T) {
	b := poolbuilder.New()
	p, err := b.Build()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, bundle.Encode(&buf, p))

	raw := buf.Bytes()
	raw[len(bundle.Magic)] = 0xFF // corrupt the version byte written right after the magic

	_, err = bundle.Decode(bytes.NewReader(raw))
	assert.Error(t, err)
}

func TestFunctionCodeSurvivesRoundTrip(t *testing.T) {
	b := poolbuilder.New()
	i32 := b.Prim("Int32")
	fb := b.Function("double;Int32;Int32")
	fb.Param("in", i32)
	funIdx := fb.Returns(i32).
		Code(
			bytecode.Instr{Op: bytecode.OpReturn},
			bytecode.Instr{Op: bytecode.OpI32Const, I32: 2},
		).Build()

	original, err := b.Build()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, bundle.Encode(&buf, original))
	decoded, err := bundle.Decode(&buf)
	require.NoError(t, err)

	wantFun, err := original.Function(funIdx)
	require.NoError(t, err)
	gotFun, err := decoded.Function(funIdx)
	require.NoError(t, err)

	require.Len(t, gotFun.Code, len(wantFun.Code))
	for i := range wantFun.Code {
		assert.Equal(t, wantFun.Code[i].Offset, gotFun.Code[i].Offset, "code entry %d offset", i)
		assert.Equal(t, wantFun.Code[i].Instr, gotFun.Code[i].Instr, "code entry %d instr", i)
	}
	assert.Equal(t, wantFun.ReturnType.Value(), gotFun.ReturnType.Value())
}
