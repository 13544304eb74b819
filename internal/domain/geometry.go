package domain

import "math"

// Vector is a 2D/3D point or displacement in drawing units.
type Vector struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
	Z float64 `json:"z" yaml:"z"`
}

// Add returns the component-wise sum.
func (v Vector) Add(o Vector) Vector {
	return Vector{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z}
}

// Sub returns the component-wise difference.
func (v Vector) Sub(o Vector) Vector {
	return Vector{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z}
}

// Neg returns the opposite vector.
func (v Vector) Neg() Vector {
	return Vector{X: -v.X, Y: -v.Y, Z: -v.Z}
}

// IsZero reports whether all components are zero.
func (v Vector) IsZero() bool {
	return v.X == 0 && v.Y == 0 && v.Z == 0
}

// Distance2D returns the planar Euclidean distance, ignoring Z.
func (v Vector) Distance2D(o Vector) float64 {
	dx := v.X - o.X
	dy := v.Y - o.Y
	return math.Sqrt(dx*dx + dy*dy)
}
