package interop_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxvm/oxvm/pkg/interop"
	"github.com/oxvm/oxvm/pkg/poolbuilder"
	"github.com/oxvm/oxvm/pkg/value"
)

// Log;String;Void and every other String-typed native receives a
// literal string constant as a KindInternStr, not a KindString - the
// wrapped function must resolve it through the pool rather than
// rejecting it outright.
func TestWrap1ResolvesInternedStringArgument(t *testing.T) {
	b := poolbuilder.New()
	idx := b.Pool().AddString("hello")
	p, err := b.Build()
	require.NoError(t, err)

	fn := interop.Wrap1(interop.String, func(s string) value.Value { return value.Str(s + " world") })

	interned := value.Intern(value.InternStr{Table: value.TableString, Index: idx.Value()})
	result, err := fn([]value.Value{interned}, p)
	require.NoError(t, err)
	assert.Equal(t, value.Str("hello world"), result)
}

func TestWrap1StillAcceptsPlainString(t *testing.T) {
	fn := interop.Wrap1(interop.String, func(s string) value.Value { return value.Str(s + "!") })
	result, err := fn([]value.Value{value.Str("hi")}, nil)
	require.NoError(t, err)
	assert.Equal(t, value.Str("hi!"), result)
}

func TestWrap1RejectsWrongKind(t *testing.T) {
	fn := interop.Wrap1(interop.Int32, func(v int32) value.Value { return value.Int32(v) })
	_, err := fn([]value.Value{value.Str("not an int")}, nil)
	assert.Error(t, err)
}
