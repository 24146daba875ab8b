package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// NewPlaneXZ creates a horizontal plane centered on the origin facing +Y,
// subdivided into segX by segZ cells with UVs spanning [0,1].
func NewPlaneXZ(width, depth float32, segX, segZ int) *Geometry {
	segX, segZ = max(segX, 1), max(segZ, 1)
	g := &Geometry{Primitive: Triangles}
	for iz := 0; iz <= segZ; iz++ {
		v := float32(iz) / float32(segZ)
		for ix := 0; ix <= segX; ix++ {
			u := float32(ix) / float32(segX)
			g.Positions = append(g.Positions, (u-0.5)*width, 0, (v-0.5)*depth)
			g.Normals = append(g.Normals, 0, 1, 0)
			g.UVs = append(g.UVs, u, 1-v)
		}
	}
	row := uint32(segX + 1)
	for iz := 0; iz < segZ; iz++ {
		for ix := 0; ix < segX; ix++ {
			a := uint32(iz)*row + uint32(ix)
			b := a + 1
			c := a + row
			d := c + 1
			// Counter-clockwise seen from +Y.
			g.Indices = append(g.Indices, a, c, b, b, c, d)
		}
	}
	return g
}

// NewBox creates a box centered on the origin with flat normals.
func NewBox(w, h, d float32) *Geometry {
	x, y, z := w/2, h/2, d/2
	c := [8]mgl32.Vec3{
		{-x, -y, -z}, {x, -y, -z}, {x, y, -z}, {-x, y, -z},
		{-x, -y, z}, {x, -y, z}, {x, y, z}, {-x, y, z},
	}
	g := &Geometry{Primitive: Triangles}
	quads := [6][4]int{
		{4, 5, 6, 7}, // +Z
		{1, 0, 3, 2}, // -Z
		{5, 1, 2, 6}, // +X
		{0, 4, 7, 3}, // -X
		{7, 6, 2, 3}, // +Y
		{0, 1, 5, 4}, // -Y
	}
	for _, q := range quads {
		appendTriangle(g, c[q[0]], c[q[1]], c[q[2]])
		appendTriangle(g, c[q[0]], c[q[2]], c[q[3]])
	}
	g.ComputeFlatNormals()
	return g
}

// NewCone creates a cone centered on the origin with its apex at +height/2.
// With four sides the base is a square whose corners lie on the axes.
func NewCone(radius, height float32, sides int) *Geometry {
	sides = max(sides, 3)
	apex := mgl32.Vec3{0, height / 2, 0}
	base := mgl32.Vec3{0, -height / 2, 0}
	ring := make([]mgl32.Vec3, sides+1)
	for i := 0; i <= sides; i++ {
		theta := 2 * math.Pi * float64(i) / float64(sides)
		ring[i] = mgl32.Vec3{
			radius * float32(math.Sin(theta)),
			-height / 2,
			radius * float32(math.Cos(theta)),
		}
	}
	g := &Geometry{Primitive: Triangles}
	for i := 0; i < sides; i++ {
		appendTriangle(g, apex, ring[i], ring[i+1])
		appendTriangle(g, base, ring[i+1], ring[i])
	}
	g.ComputeFlatNormals()
	return g
}

func appendTriangle(g *Geometry, a, b, c mgl32.Vec3) {
	g.Positions = append(g.Positions, a[0], a[1], a[2], b[0], b[1], b[2], c[0], c[1], c[2])
}

// vertexKey quantizes a position so coincident vertices hash together.
type vertexKey [3]int64

func keyOf(v mgl32.Vec3) vertexKey {
	const precision = 1e4
	return vertexKey{
		int64(math.Round(float64(v[0]) * precision)),
		int64(math.Round(float64(v[1]) * precision)),
		int64(math.Round(float64(v[2]) * precision)),
	}
}

type edgeRecord struct {
	a, b   mgl32.Vec3
	normal mgl32.Vec3
	open   bool
}

// triangleAt returns triangle i of g, following indices when present.
func triangleAt(g *Geometry, i int) (mgl32.Vec3, mgl32.Vec3, mgl32.Vec3) {
	at := func(v int) mgl32.Vec3 {
		if len(g.Indices) > 0 {
			v = int(g.Indices[v])
		}
		return mgl32.Vec3{g.Positions[v*3], g.Positions[v*3+1], g.Positions[v*3+2]}
	}
	return at(i * 3), at(i*3 + 1), at(i*3 + 2)
}

// NewEdges builds line segments along triangle edges whose adjacent faces
// meet at more than thresholdDeg, plus all boundary edges.
func NewEdges(src *Geometry, thresholdDeg float32) *Geometry {
	out := &Geometry{Primitive: Lines}
	if src == nil || src.Primitive != Triangles {
		return out
	}
	thresholdDot := float32(math.Cos(float64(mgl32.DegToRad(thresholdDeg))))

	index := make(map[[2]vertexKey]int)
	var records []edgeRecord

	triCount := src.ElementCount() / 3
	for t := 0; t < triCount; t++ {
		a, b, c := triangleAt(src, t)
		verts := [3]mgl32.Vec3{a, b, c}
		keys := [3]vertexKey{keyOf(a), keyOf(b), keyOf(c)}
		if keys[0] == keys[1] || keys[1] == keys[2] || keys[2] == keys[0] {
			continue
		}
		normal := faceNormal(a, b, c)

		for j := 0; j < 3; j++ {
			next := (j + 1) % 3
			fwd := [2]vertexKey{keys[j], keys[next]}
			rev := [2]vertexKey{keys[next], keys[j]}
			if ri, ok := index[rev]; ok && records[ri].open {
				if normal.Dot(records[ri].normal) <= thresholdDot {
					appendLine(out, records[ri].a, records[ri].b)
				}
				records[ri].open = false
				continue
			}
			if _, ok := index[fwd]; !ok {
				index[fwd] = len(records)
				records = append(records, edgeRecord{a: verts[j], b: verts[next], normal: normal, open: true})
			}
		}
	}

	for _, r := range records {
		if r.open {
			appendLine(out, r.a, r.b)
		}
	}
	return out
}

// NewWireframe builds one line segment per unique triangle edge.
func NewWireframe(src *Geometry) *Geometry {
	out := &Geometry{Primitive: Lines}
	if src == nil || src.Primitive != Triangles {
		return out
	}
	seen := make(map[[2]vertexKey]bool)
	triCount := src.ElementCount() / 3
	for t := 0; t < triCount; t++ {
		a, b, c := triangleAt(src, t)
		verts := [3]mgl32.Vec3{a, b, c}
		for j := 0; j < 3; j++ {
			p, q := verts[j], verts[(j+1)%3]
			kp, kq := keyOf(p), keyOf(q)
			if kq[0] < kp[0] || (kq[0] == kp[0] && (kq[1] < kp[1] || (kq[1] == kp[1] && kq[2] < kp[2]))) {
				kp, kq = kq, kp
			}
			key := [2]vertexKey{kp, kq}
			if kp == kq || seen[key] {
				continue
			}
			seen[key] = true
			appendLine(out, p, q)
		}
	}
	return out
}

func appendLine(g *Geometry, a, b mgl32.Vec3) {
	g.Positions = append(g.Positions, a[0], a[1], a[2], b[0], b[1], b[2])
}
