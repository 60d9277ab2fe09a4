package native

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxvm/oxvm/pkg/interop"
	"github.com/oxvm/oxvm/pkg/value"
)

// recorder collects every name reg was called with, so a test can
// call a single registerX helper and pull out just the native it
// wants to exercise without going through a whole Metadata/pool.
type recorder struct {
	fns map[string]interop.Function
}

func newRecorder() *recorder {
	return &recorder{fns: make(map[string]interop.Function)}
}

func (r *recorder) reg(name string, fn interop.Function) {
	r.fns[name] = fn
}

func (r *recorder) call(t *testing.T, name string, args ...value.Value) value.Value {
	t.Helper()
	fn, ok := r.fns[name]
	require.True(t, ok, "native %q was never registered", name)
	result, err := fn(args, nil)
	require.NoError(t, err)
	return result
}

func TestArithmeticAddAndDivideByZero(t *testing.T) {
	r := newRecorder()
	registerArithmetic(r.reg, "Int32", interop.Int32, value.Int32)

	sum := r.call(t, "OperatorAdd;Int32Int32;Int32", value.Int32(2), value.Int32(3))
	assert.Equal(t, value.Int32(5), sum)

	quot := r.call(t, "OperatorDivide;Int32Int32;Int32", value.Int32(9), value.Int32(0))
	assert.Equal(t, value.Int32(0), quot, "divide by zero returns the zero value rather than erroring")

	less := r.call(t, "OperatorLess;Int32Int32;Bool", value.Int32(2), value.Int32(3))
	assert.Equal(t, value.Bool(true), less)
}

func TestArithmeticAssignAddWritesBackThroughPin(t *testing.T) {
	r := newRecorder()
	registerArithmetic(r.reg, "Int32", interop.Int32, value.Int32)

	cell := value.Int32(10)
	pinned := value.Pin(&cell)
	result := r.call(t, "OperatorAssignAdd;OutInt32Int32;Int32", pinned, value.Int32(5))
	assert.Equal(t, value.Int32(15), result)
	assert.Equal(t, value.Int32(15), cell)
}

func TestCastNativeTruncatesAndWidens(t *testing.T) {
	r := newRecorder()
	registerCasts(r.reg)

	widened := r.call(t, "Cast;Int32;Int64", value.Int32(7))
	assert.Equal(t, value.Int64(7), widened)

	narrowed := r.call(t, "Cast;Int64;Int32", value.Int64(1<<40+3))
	assert.Equal(t, value.Int32(int32(int64(1<<40+3))), narrowed)
}

func TestRegisterExtraHashAndEncoding(t *testing.T) {
	r := newRecorder()
	registerExtra(r.reg)

	hash := r.call(t, "Sha256Hex;String;String", value.Str("hello"))
	assert.Equal(t, value.Str("2cf24dba5fb0a30e26e83b2ac5b9e29e1b161e5c1fa7425e73043362938b9824"), hash)

	encoded := r.call(t, "Base64Encode;String;String", value.Str("hi"))
	assert.Equal(t, value.Str("aGk="), encoded)
	decoded := r.call(t, "Base64Decode;String;String", encoded)
	assert.Equal(t, value.Str("hi"), decoded)

	compressed := r.call(t, "GzipCompress;String;String", value.Str("round trip me"))
	decompressed := r.call(t, "GzipDecompress;String;String", compressed)
	assert.Equal(t, value.Str("round trip me"), decompressed)

	matched := r.call(t, "RegexMatch;StringString;Bool", value.Str("^h.llo$"), value.Str("hello"))
	assert.Equal(t, value.Bool(true), matched)

	replaced := r.call(t, "RegexReplace;StringStringString;String",
		value.Str("o"), value.Str("0"), value.Str("foo"))
	assert.Equal(t, value.Str("f00"), replaced)
}

func TestRegisterExtraBadBase64FallsBackToEmptyString(t *testing.T) {
	r := newRecorder()
	registerExtra(r.reg)

	result := r.call(t, "Base64Decode;String;String", value.Str("not valid base64!!"))
	assert.Equal(t, value.Str(""), result)
}

func TestWrap3ArgumentCountMismatch(t *testing.T) {
	fn := wrap3(interop.String, interop.String, interop.String,
		func(a, b, c string) value.Value { return value.Str(a + b + c) })
	_, err := fn([]value.Value{value.Str("only one")}, nil)
	assert.Error(t, err)
}
