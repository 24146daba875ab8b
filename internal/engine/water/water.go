// Package water provides water plane geometry and animation utilities.
package water

import "math"

// Level is the water surface height, just below the ground plane.
const Level = -0.05

// Plane holds water plane geometry ready for GPU upload.
type Plane struct {
	Vertices []float32 // Flat array: x,y,z for each vertex (4 vertices)
	Level    float32   // Water Y level in world coordinates
}

// BuildPlane creates water plane vertices covering the specified bounds.
// Order: BL, BR, TR, TL.
func BuildPlane(minX, maxX, minZ, maxZ, level float32) *Plane {
	return &Plane{
		Vertices: []float32{
			minX, level, minZ,
			maxX, level, minZ,
			maxX, level, maxZ,
			minX, level, maxZ,
		},
		Level: level,
	}
}

// BuildFeature creates the decorative pond for a water area of the given size.
// The pond is 0.4 by 0.3 of size, centered at (size/2, size/2) on the ground.
func BuildFeature(size float32) *Plane {
	cx, cz := size*0.5, size*0.5
	hw, hd := size*0.4/2, size*0.3/2
	return BuildPlane(cx-hw, cx+hw, cz-hd, cz+hd, Level)
}

// Indices returns the two triangles of the quad, counter-clockwise from above.
func (p *Plane) Indices() []uint32 {
	return []uint32{0, 2, 1, 0, 3, 2}
}

// Normals returns an up-facing normal per vertex.
func (p *Plane) Normals() []float32 {
	n := make([]float32, len(p.Vertices))
	for i := 1; i < len(n); i += 3 {
		n[i] = 1
	}
	return n
}

// Color returns the animated water color at time t seconds.
// Green and blue oscillate on independent slow sine waves.
func Color(t float64) [3]float32 {
	return [3]float32{
		0,
		float32(0.2 + math.Sin(t*0.3)*0.05),
		float32(0.5 + math.Sin(t*0.5)*0.1),
	}
}

// DefaultColor is the resting water color (0x0055aa).
var DefaultColor = [3]float32{0, 0x55 / 255.0, 0xaa / 255.0}

// DefaultOpacity is the water material opacity.
const DefaultOpacity = 0.8
