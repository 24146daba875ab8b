package math

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

const sphericalEps = 1e-6

// Spherical holds polar coordinates with Y up.
// Phi is measured from +Y, Theta around Y starting at +Z towards +X.
type Spherical struct {
	Radius float32
	Phi    float32
	Theta  float32
}

// SphericalFromVec3 converts an offset vector to spherical coordinates.
func SphericalFromVec3(v mgl32.Vec3) Spherical {
	r := v.Len()
	if r == 0 {
		return Spherical{}
	}
	return Spherical{
		Radius: r,
		Theta:  float32(math.Atan2(float64(v[0]), float64(v[2]))),
		Phi:    float32(math.Acos(float64(Clamp(v[1]/r, -1, 1)))),
	}
}

// Vec3 converts back to a cartesian offset.
func (s Spherical) Vec3() mgl32.Vec3 {
	sinPhiR := float32(math.Sin(float64(s.Phi))) * s.Radius
	return mgl32.Vec3{
		sinPhiR * float32(math.Sin(float64(s.Theta))),
		float32(math.Cos(float64(s.Phi))) * s.Radius,
		sinPhiR * float32(math.Cos(float64(s.Theta))),
	}
}

// MakeSafe keeps phi off the poles so the view basis stays defined.
func (s Spherical) MakeSafe() Spherical {
	s.Phi = Clamp(s.Phi, sphericalEps, math.Pi-sphericalEps)
	return s
}

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// DegToRad converts degrees to radians.
func DegToRad(deg float32) float32 {
	return deg * math.Pi / 180
}
