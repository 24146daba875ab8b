// Package camera provides the perspective camera and orbit controls used to
// inspect building models.
package camera

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/estateview/pkg/math"
)

// Camera defaults.
const (
	DefaultFOV  = 60
	DefaultNear = 0.1
	DefaultFar  = 10000
)

// Framing constants for FitToBounds.
const (
	FitMargin       = 2.5
	FitAzimuth      = gomath.Pi / 4
	FitElevation    = gomath.Pi / 6
	FitHeightOffset = 0.3
	MinDistanceDim  = 0.5
	MaxDistanceDim  = 10
)

// Camera is a perspective camera looking at a target point.
type Camera struct {
	FOV    float32 // Vertical field of view in degrees
	Aspect float32
	Near   float32
	Far    float32

	Position mgl32.Vec3
	Target   mgl32.Vec3
	Up       mgl32.Vec3
}

// New creates a camera with the viewer defaults.
func New(aspect float32) *Camera {
	if aspect <= 0 {
		aspect = 1
	}
	return &Camera{
		FOV:      DefaultFOV,
		Aspect:   aspect,
		Near:     DefaultNear,
		Far:      DefaultFar,
		Position: mgl32.Vec3{15, 15, 15},
		Up:       mgl32.Vec3{0, 1, 0},
	}
}

// SetAspect updates the aspect ratio from a surface size.
func (c *Camera) SetAspect(width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	c.Aspect = float32(width) / float32(height)
}

// ViewMatrix returns the view matrix for this camera.
func (c *Camera) ViewMatrix() mgl32.Mat4 {
	return mgl32.LookAtV(c.Position, c.Target, c.Up)
}

// ProjectionMatrix returns the perspective projection matrix.
func (c *Camera) ProjectionMatrix() mgl32.Mat4 {
	return mgl32.Perspective(math.DegToRad(c.FOV), c.Aspect, c.Near, c.Far)
}

// ViewProjection returns projection * view.
func (c *Camera) ViewProjection() mgl32.Mat4 {
	return c.ProjectionMatrix().Mul4(c.ViewMatrix())
}

// Right returns the camera's right axis in world space.
func (c *Camera) Right() mgl32.Vec3 {
	forward := c.Target.Sub(c.Position)
	right := forward.Cross(c.Up)
	if right.Len() == 0 {
		return mgl32.Vec3{1, 0, 0}
	}
	return right.Normalize()
}

// Rig is a camera placement plus the zoom limits that go with it.
type Rig struct {
	Position    mgl32.Vec3
	Target      mgl32.Vec3
	MinDistance float32
	MaxDistance float32
}

// ComputeRig frames a bounding box for a camera with the given vertical fov
// in degrees. The camera sits at 45 degrees azimuth and 30 degrees elevation
// around the center, with the target raised by 30% of the model height.
func ComputeRig(b math.AABB, fovDeg float32) Rig {
	center := b.Center()
	size := b.Size()
	maxDim := b.MaxDim()
	if maxDim <= 0 {
		maxDim = 1
	}

	half := float64(math.DegToRad(fovDeg)) / 2
	dist := float64(maxDim) / (2 * gomath.Tan(half)) * FitMargin
	lift := size[1] * FitHeightOffset

	offset := mgl32.Vec3{
		float32(dist * gomath.Sin(FitAzimuth) * gomath.Cos(FitElevation)),
		float32(dist*gomath.Sin(FitElevation)) + lift,
		float32(dist * gomath.Cos(FitAzimuth) * gomath.Cos(FitElevation)),
	}

	return Rig{
		Position:    center.Add(offset),
		Target:      mgl32.Vec3{center[0], center[1] + lift, center[2]},
		MinDistance: maxDim * MinDistanceDim,
		MaxDistance: maxDim * MaxDistanceDim,
	}
}
