package value_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oxvm/oxvm/pkg/pool"
	"github.com/oxvm/oxvm/pkg/poolbuilder"
	"github.com/oxvm/oxvm/pkg/value"
)

// emptyVTable is a VTable with no entries, enough to construct an
// Instance for tests that never dispatch virtually.
type emptyVTable struct{}

func (emptyVTable) Get(nameIdx uint32) (pool.PoolIndex[pool.Function], bool) {
	return pool.PoolIndex[pool.Function]{}, false
}

func TestEqualsCompositeKindsAreNeverEqual(t *testing.T) {
	b := poolbuilder.New()
	i32 := b.Prim("Int32")
	cb := b.Class("Point")
	xField := cb.Field("x", i32)
	classIdx := cb.Build()
	p, err := b.Build()
	require.NoError(t, err)

	require.NotNil(t, p)

	inst := value.NewInstance(classIdx, emptyVTable{}, []uint32{xField.Value()}, []value.Value{value.Int32(1)})
	obj := value.Value{Kind: value.KindObj, Obj: value.Obj{Instance: inst}}
	assert.False(t, obj.Equals(obj), "two references to the same instance are still not equal")

	arr := value.Value{Kind: value.KindArray, Arr: &value.Array{Elem: i32, Elems: []value.Value{value.Int32(1)}}}
	assert.False(t, arr.Equals(arr))

	boxed := &value.BoxedStruct{Class: classIdx, Fields: map[uint32]value.Value{xField.Value(): value.Int32(1)}}
	boxedVal := value.FromBoxedStruct(boxed)
	assert.False(t, boxedVal.Equals(boxedVal))

	packed := value.PackedStruct{Class: classIdx, Len: 1}
	packed.Fields[0] = value.Int32(1)
	packedVal := value.FromPacked(packed)
	assert.False(t, packedVal.Equals(packedVal))
}

func TestToStringRendersStructsAndInstancesByFieldName(t *testing.T) {
	b := poolbuilder.New()
	i32 := b.Prim("Int32")
	cb := b.Class("Point")
	xField := cb.Field("x", i32)
	yField := cb.Field("y", i32)
	classIdx := cb.Build()
	p, err := b.Build()
	require.NoError(t, err)

	packed := value.PackedStruct{Class: classIdx, Len: 2}
	packed.Fields[0] = value.Int32(1)
	packed.Fields[1] = value.Int32(2)
	s, err := value.FromPacked(packed).ToString(p)
	require.NoError(t, err)
	assert.Equal(t, "{x: 1, y: 2}", s)

	boxed := &value.BoxedStruct{Class: classIdx, Fields: map[uint32]value.Value{
		xField.Value(): value.Int32(3),
		yField.Value(): value.Int32(4),
	}}
	s, err = value.FromBoxedStruct(boxed).ToString(p)
	require.NoError(t, err)
	assert.Equal(t, "{x: 3, y: 4}", s)

	inst := value.NewInstance(classIdx, emptyVTable{}, []uint32{xField.Value(), yField.Value()},
		[]value.Value{value.Int32(5), value.Int32(6)})
	s, err = (value.Value{Kind: value.KindObj, Obj: value.Obj{Instance: inst}}).ToString(p)
	require.NoError(t, err)
	assert.Equal(t, "{x: 5, y: 6}", s)

	s, err = value.Value{Kind: value.KindObj}.ToString(p)
	require.NoError(t, err)
	assert.Equal(t, "null", s)

	s, err = value.Value{Kind: value.KindNull}.ToString(p)
	require.NoError(t, err)
	assert.Equal(t, "null", s)
}
