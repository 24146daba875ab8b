package scene

import (
	"image"
	"image/color"
	"math"
	"math/rand"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/image/draw"

	"github.com/Faultbox/estateview/internal/engine/water"
	pkgmath "github.com/Faultbox/estateview/pkg/math"
)

// Environment defaults.
const (
	DefaultExtent      = 300
	ExtentPerDiagonal  = 3
	WaterAreaRatio     = 0.3
	GroundLevel        = -0.02
	GroundRepeat       = 20
	GroundSegments     = 32
	DefaultTextureSize = 1024
	speckleDensity     = 50000.0 / (1024 * 1024)
)

// Sky holds the atmospheric scattering parameters of the sky dome.
type Sky struct {
	Scale           float32
	Turbidity       float32
	Rayleigh        float32
	MieCoefficient  float32
	MieDirectionalG float32
	SunPosition     mgl32.Vec3
}

// DefaultSky returns a clear afternoon sky with the sun at phi 60, theta 135.
func DefaultSky() Sky {
	sun := pkgmath.Spherical{
		Radius: 1,
		Phi:    pkgmath.DegToRad(60),
		Theta:  pkgmath.DegToRad(135),
	}
	return Sky{
		Scale:           10000,
		Turbidity:       10,
		Rayleigh:        2,
		MieCoefficient:  0.005,
		MieDirectionalG: 0.8,
		SunPosition:     sun.Vec3(),
	}
}

// Fog is exponential squared distance fog.
type Fog struct {
	Color   mgl32.Vec3
	Density float32
}

// ExtentFor returns the terrain extent for a model bounding box.
func ExtentFor(b pkgmath.AABB) float32 {
	if b.IsEmpty() || b.Diagonal() == 0 {
		return DefaultExtent
	}
	return b.Diagonal() * ExtentPerDiagonal
}

// buildTerrain creates the ground plane and the pond as one terrain group.
func buildTerrain(extent float32, textureSize int, rng *rand.Rand) *Node {
	terrain := NewGroup("terrain")
	terrain.Tag = TagTerrain

	groundMat := NewMaterial("ground", Standard, Hex(0xeee9d9))
	groundMat.Roughness = 0.88
	groundMat.Metalness = 0.02
	groundMat.DoubleSided = true
	groundMat.Map = groundTexture(textureSize, rng)

	ground := NewMesh("groundPlane", NewPlaneXZ(extent, extent, GroundSegments, GroundSegments), groundMat)
	ground.Position = mgl32.Vec3{0, GroundLevel, 0}
	ground.ReceiveShadow = true
	terrain.Add(ground)

	terrain.Add(buildWater(extent * WaterAreaRatio))
	return terrain
}

func buildWater(size float32) *Node {
	plane := water.BuildFeature(size)
	geo := &Geometry{
		Positions: plane.Vertices,
		Normals:   plane.Normals(),
		Indices:   plane.Indices(),
		Primitive: Triangles,
	}
	mat := NewMaterial("water", Phong, mgl32.Vec3(water.DefaultColor))
	mat.Shininess = 100
	mat.Transparent = true
	mat.Opacity = water.DefaultOpacity

	n := NewMesh("waterFeature", geo, mat)
	n.Tag = TagWater
	return n
}

func buildSky(sky Sky) *Node {
	mat := NewMaterial("sky", SkyShader, mgl32.Vec3{1, 1, 1})
	mat.DoubleSided = true
	n := NewMesh("sky", NewBox(1, 1, 1), mat)
	n.Tag = TagSky
	n.Scale = mgl32.Vec3{sky.Scale, sky.Scale, sky.Scale}
	return n
}

// groundTexture paints a light sand base with faint dark speckles.
// A fresh texture is generated on every call.
func groundTexture(size int, rng *rand.Rand) *Texture {
	size = max(size, 1)
	img := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.Draw(img, img.Bounds(), image.NewUniform(color.RGBA{0xed, 0xeb, 0xe0, 0xff}), image.Point{}, draw.Src)

	ink := image.NewUniform(color.Black)
	count := int(math.Max(1, speckleDensity*float64(size*size)))
	for i := 0; i < count; i++ {
		x := rng.Intn(size)
		y := rng.Intn(size)
		s := 1 + rng.Intn(3)
		alpha := uint8(rng.Float64() * 0.07 * 255)
		r := image.Rect(x, y, x+s, y+s)
		draw.DrawMask(img, r, ink, image.Point{}, image.NewUniform(color.Alpha{A: alpha}), image.Point{}, draw.Over)
	}

	return &Texture{Image: img, RepeatU: GroundRepeat, RepeatV: GroundRepeat}
}
