// Package geometry holds the small immutable value types used to place graph
// elements in space. Everything here is a plain value: copy freely, no identity.
package geometry

import (
	"fmt"
	"math"
	"strconv"
)

// DefaultEpsilon is the tolerance used by NearEquals when callers have no
// better value.
const DefaultEpsilon = 1e-3

// Point3 is a location in 3D space
type Point3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Pt creates a Point3
func Pt(x, y, z float64) Point3 {
	return Point3{X: x, Y: y, Z: z}
}

// Add translates the point by v
func (p Point3) Add(v Vector3) Point3 {
	return Point3{X: p.X + v.X, Y: p.Y + v.Y, Z: p.Z + v.Z}
}

// Sub returns the vector from q to p
func (p Point3) Sub(q Point3) Vector3 {
	return Vector3{X: p.X - q.X, Y: p.Y - q.Y, Z: p.Z - q.Z}
}

// String formats the point like (1, 2.5, 0)
func (p Point3) String() string {
	return fmt.Sprintf("(%s, %s, %s)", trim(p.X), trim(p.Y), trim(p.Z))
}

// Vector3 is a displacement in 3D space
type Vector3 struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Vec creates a Vector3
func Vec(x, y, z float64) Vector3 {
	return Vector3{X: x, Y: y, Z: z}
}

// Add returns v+w
func (v Vector3) Add(w Vector3) Vector3 {
	return Vector3{X: v.X + w.X, Y: v.Y + w.Y, Z: v.Z + w.Z}
}

// Sub returns v-w
func (v Vector3) Sub(w Vector3) Vector3 {
	return Vector3{X: v.X - w.X, Y: v.Y - w.Y, Z: v.Z - w.Z}
}

// Scale multiplies every component by k
func (v Vector3) Scale(k float64) Vector3 {
	return Vector3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Div divides every component by k. Division by zero follows IEEE rules.
func (v Vector3) Div(k float64) Vector3 {
	return Vector3{X: v.X / k, Y: v.Y / k, Z: v.Z / k}
}

// Length returns the euclidean norm
func (v Vector3) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// IsZero reports whether all components are zero
func (v Vector3) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// String formats the vector like <1, 2.5, 0>
func (v Vector3) String() string {
	return fmt.Sprintf("<%s, %s, %s>", trim(v.X), trim(v.Y), trim(v.Z))
}

// Size3 is an extent in 3D space
type Size3 struct {
	Width  float64 `json:"width" yaml:"width"`
	Height float64 `json:"height" yaml:"height"`
	Depth  float64 `json:"depth" yaml:"depth"`
}

// Sz creates a Size3
func Sz(w, h, d float64) Size3 {
	return Size3{Width: w, Height: h, Depth: d}
}

// Scale multiplies every dimension by k
func (s Size3) Scale(k float64) Size3 {
	return Size3{Width: s.Width * k, Height: s.Height * k, Depth: s.Depth * k}
}

// IsZero reports whether all dimensions are zero
func (s Size3) IsZero() bool {
	return s.Width == 0 && s.Height == 0 && s.Depth == 0
}

// String formats the size like 10x4x0
func (s Size3) String() string {
	return fmt.Sprintf("%sx%sx%s", trim(s.Width), trim(s.Height), trim(s.Depth))
}

// NearEquals compares two points component-wise within eps
func NearEquals(a, b Point3, eps float64) bool {
	return math.Abs(a.X-b.X) <= eps &&
		math.Abs(a.Y-b.Y) <= eps &&
		math.Abs(a.Z-b.Z) <= eps
}

// trim renders f with at most three decimals and no trailing zeros
func trim(f float64) string {
	return strconv.FormatFloat(math.Round(f*1000)/1000, 'f', -1, 64)
}
