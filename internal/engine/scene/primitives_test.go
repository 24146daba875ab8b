package scene

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestNewBox(t *testing.T) {
	g := NewBox(4, 6, 3)

	if g.VertexCount() != 36 {
		t.Errorf("expected 36 vertices, got %d", g.VertexCount())
	}
	b := g.Bounds()
	if b.Min != (mgl32.Vec3{-2, -3, -1.5}) || b.Max != (mgl32.Vec3{2, 3, 1.5}) {
		t.Errorf("unexpected bounds %v", b)
	}

	// Every normal points away from the center.
	for i := 0; i < len(g.Positions); i += 9 {
		c := mgl32.Vec3{
			(g.Positions[i] + g.Positions[i+3] + g.Positions[i+6]) / 3,
			(g.Positions[i+1] + g.Positions[i+4] + g.Positions[i+7]) / 3,
			(g.Positions[i+2] + g.Positions[i+5] + g.Positions[i+8]) / 3,
		}
		n := mgl32.Vec3{g.Normals[i], g.Normals[i+1], g.Normals[i+2]}
		if c.Dot(n) <= 0 {
			t.Fatalf("triangle %d normal %v points inward", i/9, n)
		}
	}
}

func TestNewCone(t *testing.T) {
	g := NewCone(3, 2, 4)

	if g.VertexCount() != 4*2*3 {
		t.Errorf("expected 24 vertices, got %d", g.VertexCount())
	}
	b := g.Bounds()
	if b.Min[1] != -1 || b.Max[1] != 1 {
		t.Errorf("unexpected height range %v..%v", b.Min[1], b.Max[1])
	}
	if math.Abs(float64(b.Max[0]-3)) > 1e-5 || math.Abs(float64(b.Max[2]-3)) > 1e-5 {
		t.Errorf("expected base corners on the axes at radius 3, got %v", b.Max)
	}
}

func TestNewPlaneXZ(t *testing.T) {
	g := NewPlaneXZ(10, 20, 2, 4)

	if g.VertexCount() != 3*5 {
		t.Errorf("expected 15 vertices, got %d", g.VertexCount())
	}
	if len(g.Indices) != 2*4*6 {
		t.Errorf("expected 48 indices, got %d", len(g.Indices))
	}
	b := g.Bounds()
	if b.Size() != (mgl32.Vec3{10, 0, 20}) {
		t.Errorf("unexpected size %v", b.Size())
	}

	a, bb, c := triangleAt(g, 0)
	if n := faceNormal(a, bb, c); n[1] <= 0 {
		t.Errorf("plane should face up, got normal %v", n)
	}
}

func TestNewEdgesBox(t *testing.T) {
	box := NewBox(1, 1, 1)

	edges := NewEdges(box, 25)
	if edges.Primitive != Lines {
		t.Fatal("edges should be line primitives")
	}
	// Face diagonals are coplanar and dropped; the 12 box edges remain.
	if got := edges.VertexCount() / 2; got != 12 {
		t.Errorf("expected 12 edges, got %d", got)
	}

	// A threshold above 90 degrees drops the right-angle edges too.
	if got := NewEdges(box, 95).VertexCount() / 2; got != 0 {
		t.Errorf("expected no edges above 90 degrees, got %d", got)
	}
}

func TestNewEdgesBoundary(t *testing.T) {
	// A lone triangle has three boundary edges.
	tri := &Geometry{Primitive: Triangles, Positions: []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}}
	if got := NewEdges(tri, 25).VertexCount() / 2; got != 3 {
		t.Errorf("expected 3 boundary edges, got %d", got)
	}

	// Degenerate triangles are skipped.
	degenerate := &Geometry{Primitive: Triangles, Positions: []float32{0, 0, 0, 0, 0, 0, 1, 0, 0}}
	if got := NewEdges(degenerate, 25).VertexCount(); got != 0 {
		t.Errorf("expected no edges for a degenerate triangle, got %d", got)
	}

	if NewEdges(nil, 25).VertexCount() != 0 {
		t.Error("nil geometry should give empty edges")
	}
}

func TestNewWireframe(t *testing.T) {
	// 12 box edges plus one diagonal per face.
	if got := NewWireframe(NewBox(1, 1, 1)).VertexCount() / 2; got != 18 {
		t.Errorf("expected 18 wireframe lines, got %d", got)
	}
}

func TestGeometryRotateX(t *testing.T) {
	g := &Geometry{
		Primitive: Triangles,
		Positions: []float32{0, 0, 1},
		Normals:   []float32{0, 0, 1},
	}
	// Z up becomes Y up.
	g.RotateX(-math.Pi / 2)

	want := mgl32.Vec3{0, 1, 0}
	got := mgl32.Vec3{g.Positions[0], g.Positions[1], g.Positions[2]}
	if !got.ApproxEqualThreshold(want, 1e-6) {
		t.Errorf("position = %v, want %v", got, want)
	}
	n := mgl32.Vec3{g.Normals[0], g.Normals[1], g.Normals[2]}
	if !n.ApproxEqualThreshold(want, 1e-6) {
		t.Errorf("normal = %v, want %v", n, want)
	}
}

func TestNodeBoundsWithTransform(t *testing.T) {
	group := NewGroup("g")
	mesh := NewMesh("box", NewBox(2, 2, 2), nil)
	mesh.Position = mgl32.Vec3{10, 0, 0}
	mesh.Scale = mgl32.Vec3{2, 1, 1}
	group.Add(mesh)

	b := group.Bounds()
	if !b.Min.ApproxEqual(mgl32.Vec3{8, -1, -1}) || !b.Max.ApproxEqual(mgl32.Vec3{12, 1, 1}) {
		t.Errorf("unexpected bounds %v", b)
	}
	if !NewGroup("empty").Bounds().IsEmpty() {
		t.Error("group without geometry should have empty bounds")
	}
}

func TestNodeTree(t *testing.T) {
	root := NewGroup("root")
	a := NewGroup("a")
	b := NewGroup("b")
	root.Add(a)
	a.Add(b)

	if root.Count() != 3 {
		t.Errorf("expected 3 nodes, got %d", root.Count())
	}
	if root.FindByName("b") != b {
		t.Error("FindByName should find nested node")
	}

	// Re-parenting detaches from the old parent.
	root.Add(b)
	if len(a.Children()) != 0 || b.Parent() != root {
		t.Error("b should move from a to root")
	}
	if !root.Remove(a) || root.Remove(a) {
		t.Error("Remove should succeed once")
	}

	b.Visible = false
	visited := 0
	root.TraverseVisible(func(*Node) { visited++ })
	if visited != 1 {
		t.Errorf("hidden subtree should be skipped, visited %d", visited)
	}
}

func TestDisposeIdempotentAndShared(t *testing.T) {
	reg := NewRegistry()
	released := 0
	reg.OnDispose(func(Resource) error {
		released++
		return nil
	})

	shared := NewMaterial("glass", Physical, Hex(0xbedcff))
	group := NewGroup("g")
	group.Add(NewMesh("a", NewBox(1, 1, 1), shared))
	group.Add(NewMesh("b", NewBox(1, 1, 1), shared))
	reg.Adopt(group)

	if reg.Live() != 3 {
		t.Fatalf("expected 3 live resources, got %d", reg.Live())
	}
	if err := group.Dispose(); err != nil {
		t.Fatal(err)
	}
	if err := group.Dispose(); err != nil {
		t.Fatal(err)
	}
	if released != 3 {
		t.Errorf("expected 3 releases, got %d", released)
	}
	if reg.Live() != 0 {
		t.Errorf("expected no live resources, got %d", reg.Live())
	}
}

func TestHex(t *testing.T) {
	if got := Hex(0xff0000); got != (mgl32.Vec3{1, 0, 0}) {
		t.Errorf("Hex(0xff0000) = %v", got)
	}
	if got := Hex(0x333333); math.Abs(float64(got[0])-0.2) > 1e-6 {
		t.Errorf("Hex(0x333333) = %v", got)
	}
}
