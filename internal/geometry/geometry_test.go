package geometry

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPointArithmetic(t *testing.T) {
	t.Run("point plus vector translates", func(t *testing.T) {
		p := Pt(1, 2, 3).Add(Vec(10, -2, 0.5))
		assert.Equal(t, Pt(11, 0, 3.5), p)
	})

	t.Run("point minus point is a vector", func(t *testing.T) {
		v := Pt(5, 5, 5).Sub(Pt(1, 2, 3))
		assert.Equal(t, Vec(4, 3, 2), v)
	})

	t.Run("round trip through a displacement", func(t *testing.T) {
		a, b := Pt(-3, 7, 1), Pt(4, 4, 4)
		assert.Equal(t, b, a.Add(b.Sub(a)))
	})
}

func TestVectorArithmetic(t *testing.T) {
	tests := []struct {
		name string
		got  Vector3
		want Vector3
	}{
		{"add", Vec(1, 2, 3).Add(Vec(1, 1, 1)), Vec(2, 3, 4)},
		{"sub keeps z sign", Vec(1, 2, 3).Sub(Vec(1, 1, 1)), Vec(0, 1, 2)},
		{"scale", Vec(1, -2, 3).Scale(2), Vec(2, -4, 6)},
		{"div", Vec(2, 4, 6).Div(2), Vec(1, 2, 3)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.got)
		})
	}
}

func TestVectorLength(t *testing.T) {
	assert.InDelta(t, 5.0, Vec(3, 4, 0).Length(), 1e-9)
	assert.InDelta(t, math.Sqrt(3), Vec(1, 1, 1).Length(), 1e-9)
	assert.True(t, Vec(0, 0, 0).IsZero())
	assert.False(t, Vec(0, 0, 1).IsZero())
}

func TestSizeScale(t *testing.T) {
	assert.Equal(t, Sz(2, 4, 0), Sz(1, 2, 0).Scale(2))
	assert.True(t, Size3{}.IsZero())
}

func TestNearEquals(t *testing.T) {
	assert.True(t, NearEquals(Pt(1, 1, 1), Pt(1.0005, 0.9995, 1), DefaultEpsilon))
	assert.False(t, NearEquals(Pt(1, 1, 1), Pt(1.01, 1, 1), DefaultEpsilon))
}

func TestStringers(t *testing.T) {
	assert.Equal(t, "(1, 2.5, 0)", Pt(1, 2.5, 0).String())
	assert.Equal(t, "(100.5, 0.123, -3)", Pt(100.5, 0.12345, -3).String())
	assert.Equal(t, "<1, -2, 0.5>", Vec(1, -2, 0.5).String())
	assert.Equal(t, "10x4x0", Sz(10, 4, 0).String())
}
