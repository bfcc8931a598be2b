package mesh

import "math"

// Vector3 is a position (or displacement) in the 3-D simulation volume, in
// meters.
type Vector3 struct {
	X float64
	Y float64
	Z float64
}

func (v Vector3) DistanceTo(other Vector3) float64 {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

func (v Vector3) Add(other Vector3) Vector3 {
	return Vector3{v.X + other.X, v.Y + other.Y, v.Z + other.Z}
}

func (v Vector3) Sub(other Vector3) Vector3 {
	return Vector3{v.X - other.X, v.Y - other.Y, v.Z - other.Z}
}

func (v Vector3) Scale(k float64) Vector3 {
	return Vector3{v.X * k, v.Y * k, v.Z * k}
}

func (v Vector3) Norm() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Clamp bounds each component to [0, limit] for the matching axis.
func (v Vector3) Clamp(lx, ly, lz float64) Vector3 {
	return Vector3{
		X: math.Max(0, math.Min(v.X, lx)),
		Y: math.Max(0, math.Min(v.Y, ly)),
		Z: math.Max(0, math.Min(v.Z, lz)),
	}
}
