package model

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/estateview/internal/engine/scene"
)

// Fallback building dimensions.
const (
	fallbackWidth  = 4
	fallbackHeight = 6
	fallbackDepth  = 3
	roofRadius     = 3
	roofHeight     = 2
)

// Fallback builds the placeholder shown when a payload has no drawable
// geometry: a box with a four-sided roof and a wireframe outline.
// It obeys the same centering and grounding rules as normalized models.
func Fallback() *scene.Node {
	root := scene.NewGroup("fallback-building")
	root.Tag = scene.TagFallback

	body := scene.NewBox(fallbackWidth, fallbackHeight, fallbackDepth)
	body.Translate(mgl32.Vec3{0, fallbackHeight / 2, 0})
	building := scene.NewMesh("building", body, scene.NewMaterial("building", scene.Lambert, scene.Hex(0x4488ff)))
	building.CastShadow = true
	building.ReceiveShadow = true

	roofGeo := scene.NewCone(roofRadius, roofHeight, 4)
	roofGeo.Transform(mgl32.Translate3D(0, fallbackHeight+roofHeight/2, 0).Mul4(mgl32.HomogRotate3DY(math.Pi / 4)))
	roof := scene.NewMesh("roof", roofGeo, scene.NewMaterial("roof", scene.Lambert, scene.Hex(0xff4444)))
	roof.CastShadow = true

	outline := scene.NewMesh("building-wireframe", scene.NewWireframe(body), scene.NewMaterial("wireframe", scene.LineBasic, scene.Hex(0x000000)))

	root.Add(building)
	root.Add(roof)
	root.Add(outline)

	// The outline moves with the meshes it traces.
	outline.Geometry.Translate(ground([]*scene.Node{building, roof}))
	return root
}
