// Package lighting provides the fixed light rig for building scenes.
package lighting

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// MaxDirectional is the number of directional lights the mesh shader accepts.
const MaxDirectional = 4

// Shadow describes a directional shadow map.
type Shadow struct {
	MapSize  int32
	HalfSize float32 // Orthographic frustum half extent
	Near     float32
	Far      float32
	Bias     float32
}

// Directional is a light shining from Position towards Target.
type Directional struct {
	Name      string
	Color     mgl32.Vec3
	Intensity float32
	Position  mgl32.Vec3
	Target    mgl32.Vec3
	Shadow    *Shadow // nil when the light casts no shadow
}

// Direction returns the normalized vector from the light towards its target.
func (d Directional) Direction() mgl32.Vec3 {
	dir := d.Target.Sub(d.Position)
	if dir.Len() == 0 {
		return mgl32.Vec3{0, -1, 0}
	}
	return dir.Normalize()
}

// Radiance returns color scaled by intensity.
func (d Directional) Radiance() mgl32.Vec3 {
	return d.Color.Mul(d.Intensity)
}

// Hemisphere blends a sky color from above with a ground color from below.
type Hemisphere struct {
	Sky       mgl32.Vec3
	Ground    mgl32.Vec3
	Intensity float32
}

// Rig is the complete set of scene lights.
type Rig struct {
	Sun        Directional
	Hemisphere Hemisphere
	Fills      []Directional
	Bounce     Directional
}

func hex(c uint32) mgl32.Vec3 {
	return mgl32.Vec3{
		float32((c>>16)&0xff) / 255,
		float32((c>>8)&0xff) / 255,
		float32(c&0xff) / 255,
	}
}

// DefaultRig returns a shadowing sun, a hemisphere fill, two directional fills
// and a weak upward bounce light.
func DefaultRig() Rig {
	return Rig{
		Sun: Directional{
			Name:      "sun",
			Color:     hex(0xffffff),
			Intensity: 1.5,
			Position:  mgl32.Vec3{50, 100, 75},
			Shadow: &Shadow{
				MapSize:  2048,
				HalfSize: 100,
				Near:     0.5,
				Far:      500,
				Bias:     -0.0001,
			},
		},
		Hemisphere: Hemisphere{
			Sky:       hex(0xffffff),
			Ground:    hex(0x3333ff),
			Intensity: 0.6,
		},
		Fills: []Directional{
			{Name: "fill-1", Color: hex(0xffffff), Intensity: 0.5, Position: mgl32.Vec3{-50, 50, -75}},
			{Name: "fill-2", Color: hex(0xffffee), Intensity: 0.3, Position: mgl32.Vec3{100, 25, -100}},
		},
		Bounce: Directional{
			Name:      "bounce",
			Color:     hex(0xccffcc),
			Intensity: 0.2,
			Position:  mgl32.Vec3{0, -10, 0},
		},
	}
}

// Directionals returns all directional lights, sun first.
func (r Rig) Directionals() []Directional {
	lights := make([]Directional, 0, 2+len(r.Fills))
	lights = append(lights, r.Sun)
	lights = append(lights, r.Fills...)
	lights = append(lights, r.Bounce)
	if len(lights) > MaxDirectional {
		lights = lights[:MaxDirectional]
	}
	return lights
}

// GetDirections returns light directions as a flat slice for GPU upload.
// Format: [x0, y0, z0, x1, y1, z1, ...], padded to MaxDirectional.
func (r Rig) GetDirections() []float32 {
	result := make([]float32, MaxDirectional*3)
	for i, l := range r.Directionals() {
		d := l.Direction()
		copy(result[i*3:i*3+3], d[:])
	}
	return result
}

// GetColors returns color times intensity as a flat slice for GPU upload.
func (r Rig) GetColors() []float32 {
	result := make([]float32, MaxDirectional*3)
	for i, l := range r.Directionals() {
		c := l.Radiance()
		copy(result[i*3:i*3+3], c[:])
	}
	return result
}

// ShadowMatrix returns the sun's light-space view-projection matrix
// with the frustum centered on focus.
func (r Rig) ShadowMatrix(focus mgl32.Vec3) mgl32.Mat4 {
	s := r.Sun.Shadow
	if s == nil {
		return mgl32.Ident4()
	}
	dir := r.Sun.Direction()
	eye := focus.Sub(dir.Mul(r.Sun.Position.Len()))
	up := mgl32.Vec3{0, 1, 0}
	if math.Abs(float64(dir.Dot(up))) > 0.99 {
		up = mgl32.Vec3{0, 0, 1}
	}
	view := mgl32.LookAtV(eye, focus, up)
	proj := mgl32.Ortho(-s.HalfSize, s.HalfSize, -s.HalfSize, s.HalfSize, s.Near, s.Far)
	return proj.Mul4(view)
}
