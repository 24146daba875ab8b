package model

import (
	"errors"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"github.com/Faultbox/estateview/internal/engine/scene"
	"github.com/Faultbox/estateview/pkg/formats"
	pkgmath "github.com/Faultbox/estateview/pkg/math"
)

// ErrNoMeshes is returned when no object yields a drawable triangle.
// Callers show the fallback building instead.
var ErrNoMeshes = errors.New("no drawable meshes")

// Normalize builds a model node from a parsed OBJ.
//
// Source files are Z up. Each mesh is rotated into the Y-up frame with the
// rotation baked into its vertices, then all meshes are shifted together so
// the combined bounds are centered on X/Z and grounded at Y=0. Every node
// keeps an identity transform.
func Normalize(obj *formats.OBJ) (*scene.Node, error) {
	if obj == nil {
		return nil, ErrNoMeshes
	}

	root := scene.NewGroup("building")
	root.Tag = scene.TagModel

	for i := range obj.Objects {
		o := &obj.Objects[i]
		geo := triangulate(obj, o)
		if geo == nil {
			continue
		}
		name := o.Name
		if name == "" {
			name = fmt.Sprintf("mesh-%d", i)
		}
		geo.RotateX(-math.Pi / 2)
		root.Add(scene.NewMesh(name, geo, nil))
	}

	meshes := root.Meshes()
	if len(meshes) == 0 {
		return nil, ErrNoMeshes
	}

	ground(meshes)
	decorate(meshes)
	return root, nil
}

// triangulate fan-triangulates an object's polygons into flat-shaded
// triangles. Zero-area triangles are dropped. It returns nil when nothing remains.
func triangulate(obj *formats.OBJ, o *formats.OBJObject) *scene.Geometry {
	geo := &scene.Geometry{Primitive: scene.Triangles}
	vertex := func(i int) mgl32.Vec3 {
		return mgl32.Vec3(obj.Vertex(i))
	}
	for _, f := range o.Faces {
		a := vertex(f.V[0])
		for k := 1; k+1 < len(f.V); k++ {
			b, c := vertex(f.V[k]), vertex(f.V[k+1])
			if b.Sub(a).Cross(c.Sub(a)).Len() == 0 {
				continue
			}
			geo.Positions = append(geo.Positions,
				a[0], a[1], a[2],
				b[0], b[1], b[2],
				c[0], c[1], c[2])
		}
	}
	if len(geo.Positions) == 0 {
		return nil
	}
	geo.ComputeFlatNormals()
	return geo
}

// ground shifts meshes so their combined bounds are centered on X/Z with
// the minimum Y at zero, and resets their transforms. It returns the applied offset.
func ground(meshes []*scene.Node) mgl32.Vec3 {
	bounds := pkgmath.EmptyAABB()
	for _, m := range meshes {
		m.ResetTransform()
		bounds = bounds.Union(m.Geometry.Bounds())
	}
	center := bounds.Center()
	offset := mgl32.Vec3{-center[0], -bounds.Min[1], -center[2]}
	for _, m := range meshes {
		m.Geometry.Translate(offset)
	}
	return offset
}

// decorate assigns palette materials cyclically and adds an edge overlay per mesh.
func decorate(meshes []*scene.Node) {
	palette := Palette()
	for i, m := range meshes {
		m.Material = palette[i%len(palette)]
		m.CastShadow = true
		m.ReceiveShadow = true
		m.Add(scene.NewMesh(m.Name+"-edges", scene.NewEdges(m.Geometry, EdgeThresholdDeg), edgeMaterial()))
	}
}
