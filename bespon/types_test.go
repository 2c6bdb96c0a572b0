package bespon

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================================
// Value API Tests
// ============================================================

func TestValue_Accessors(t *testing.T) {
	b, err := Bool(true).AsBool()
	require.NoError(t, err)
	assert.True(t, b)

	n, err := Int(42).AsInt()
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	f, err := Float(2.5).AsFloat()
	require.NoError(t, err)
	assert.Equal(t, 2.5, f)

	s, err := Str("hi").AsStr()
	require.NoError(t, err)
	assert.Equal(t, "hi", s)

	raw, err := Bytes([]byte{1, 2}).AsBytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, raw)

	c, err := Complex(complex(1, -1)).AsComplex()
	require.NoError(t, err)
	assert.Equal(t, complex(1, -1), c)

	r, err := Rational(big.NewRat(1, 3)).AsRational()
	require.NoError(t, err)
	assert.Zero(t, r.Cmp(big.NewRat(1, 3)))

	assert.True(t, None().IsNone())
	assert.False(t, Int(0).IsNone())
}

func TestValue_KindMismatch(t *testing.T) {
	v := Str("x")

	_, err := v.AsInt()
	assert.ErrorContains(t, err, "expected int")
	_, err = v.AsBool()
	assert.ErrorContains(t, err, "expected bool")
	_, err = v.AsDict()
	assert.ErrorContains(t, err, "expected dict")
	_, err = v.AsList()
	assert.ErrorContains(t, err, "expected list")
}

func TestValue_NilSafety(t *testing.T) {
	var v *Value

	_, err := v.AsInt()
	assert.Error(t, err)
	assert.Nil(t, v.Get("k"))
	assert.Zero(t, v.Len())
	_, err = v.Index(0)
	assert.Error(t, err)
	assert.Equal(t, Position{}, v.Pos())
}

func TestValue_Collections(t *testing.T) {
	d := Dict(Entry("a", Int(1)))
	d.Set("b", Int(2))
	d.Set("a", Int(3))

	assert.Equal(t, 2, d.Len())
	n, err := d.Get("a").AsInt()
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.Nil(t, d.Get("missing"))

	entries, err := d.AsDict()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	k0, _ := entries[0].Key.AsStr()
	assert.Equal(t, "a", k0, "insertion order preserved across overwrite")

	l := List(Str("x"))
	l.Append(Str("y"))
	assert.Equal(t, 2, l.Len())

	item, err := l.Index(1)
	require.NoError(t, err)
	s, _ := item.AsStr()
	assert.Equal(t, "y", s)

	_, err = l.Index(2)
	assert.ErrorContains(t, err, "out of bounds")
	_, err = l.Index(-1)
	assert.Error(t, err)
}

func TestValue_LabelAndType(t *testing.T) {
	v, err := Parse("a = (label = shared)> {x = 1}\nb = $shared\n", nil)
	require.NoError(t, err)

	a := v.Get("a")
	assert.Equal(t, "shared", a.Label())
	assert.Same(t, a, v.Get("b"), "alias shares the labeled node")

	assert.Empty(t, Int(1).ExplicitType())
	assert.Empty(t, Int(1).Label())
}

func TestValue_Pos(t *testing.T) {
	v, err := Parse("a = 1\nb = 2\n", nil)
	require.NoError(t, err)

	pos := v.Get("b").Pos()
	assert.Equal(t, 2, pos.Line)
	assert.Equal(t, 5, pos.Column)
}
