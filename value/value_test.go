package value_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/inputlayer/inputlayer/value"
)

func TestOrderingAcrossKinds(t *testing.T) {
	require := require.New(t)
	require.True(value.Less(value.Int(1), value.Float(0.0)))
	require.True(value.Less(value.Unit(), value.Int(-100)))
}

func TestFloatOrderingAndNaN(t *testing.T) {
	require := require.New(t)
	require.True(value.Less(value.Float(1.0), value.Float(2.0)))

	a := value.Float(math.NaN())
	b := value.Float(math.NaN())
	require.True(value.Equal(a, b), "canonical NaN must compare equal to itself")
}

func TestTupleEquality(t *testing.T) {
	require := require.New(t)
	a := value.NewTuple(value.Int(1), value.String("x"))
	b := value.NewTuple(value.Int(1), value.String("x"))
	c := value.NewTuple(value.Int(2), value.String("x"))
	require.True(value.TupleEqual(a, b))
	require.False(value.TupleEqual(a, c))
	require.Equal(a.Hash64(), b.Hash64())
}

func TestRecordFieldOrderIndependentEquality(t *testing.T) {
	require := require.New(t)
	a := value.Record([]value.RecordField{
		{Name: "a", Value: value.Int(1)},
		{Name: "b", Value: value.Int(2)},
	})
	b := value.Record([]value.RecordField{
		{Name: "b", Value: value.Int(2)},
		{Name: "a", Value: value.Int(1)},
	})
	require.True(value.Equal(a, b))
}

func TestSchemaEqual(t *testing.T) {
	require := require.New(t)
	s1 := value.Schema{{Name: "x", Type: value.Type{Base: value.KindInt}}}
	s2 := value.Schema{{Name: "y", Type: value.Type{Base: value.KindInt}}}
	require.True(s1.Equal(s2), "schema equality is positional, names are informational")

	s3 := value.Schema{{Name: "x", Type: value.Type{Base: value.KindString}}}
	require.False(s1.Equal(s3))
}
