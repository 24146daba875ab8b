package scene

import (
	"image"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/multierr"

	pkgmath "github.com/Faultbox/estateview/pkg/math"
)

// ResourceKind identifies a disposable scene resource.
type ResourceKind uint8

const (
	KindGeometry ResourceKind = iota
	KindMaterial
	KindTexture
)

// String returns the kind name.
func (k ResourceKind) String() string {
	switch k {
	case KindGeometry:
		return "geometry"
	case KindMaterial:
		return "material"
	case KindTexture:
		return "texture"
	default:
		return "unknown"
	}
}

// Resource is anything the renderer may hold GPU state for.
type Resource interface {
	ID() uint64
	Kind() ResourceKind
	Dispose() error
	Disposed() bool
}

// DisposeFunc is notified when a registered resource is released.
// The GPU renderer subscribes to free buffers and textures.
type DisposeFunc func(Resource) error

// Registry tracks live resources of one scene.
// Resources are created unowned and adopted when their node enters the scene,
// so geometry can be built off the render thread.
type Registry struct {
	nextID    uint64
	live      map[uint64]Resource
	listeners []DisposeFunc
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{live: make(map[uint64]Resource)}
}

// OnDispose registers a listener for released resources.
func (r *Registry) OnDispose(fn DisposeFunc) {
	r.listeners = append(r.listeners, fn)
}

// Adopt registers every resource under n that is not yet owned.
func (r *Registry) Adopt(n *Node) {
	n.Traverse(func(node *Node) {
		if node.Geometry != nil {
			r.adopt(&node.Geometry.handle, node.Geometry)
		}
		if m := node.Material; m != nil {
			r.adopt(&m.handle, m)
			if m.Map != nil {
				r.adopt(&m.Map.handle, m.Map)
			}
		}
	})
}

func (r *Registry) adopt(h *handle, res Resource) {
	if h.owner != nil || h.disposed {
		return
	}
	r.nextID++
	h.id = r.nextID
	h.owner = r
	r.live[h.id] = res
}

// Live returns the number of live resources.
func (r *Registry) Live() int {
	return len(r.live)
}

// LiveByKind returns the number of live resources of one kind.
func (r *Registry) LiveByKind(kind ResourceKind) int {
	n := 0
	for _, res := range r.live {
		if res.Kind() == kind {
			n++
		}
	}
	return n
}

// Lookup returns a live resource by id.
func (r *Registry) Lookup(id uint64) (Resource, bool) {
	res, ok := r.live[id]
	return res, ok
}

func (r *Registry) release(res Resource) error {
	delete(r.live, res.ID())
	var err error
	for _, fn := range r.listeners {
		err = multierr.Append(err, fn(res))
	}
	return err
}

// handle carries the identity and ownership shared by all resources.
type handle struct {
	id       uint64
	owner    *Registry
	disposed bool
}

func (h *handle) dispose(res Resource) error {
	if h.disposed {
		return nil
	}
	h.disposed = true
	if h.owner == nil {
		return nil
	}
	return h.owner.release(res)
}

// Primitive is the draw topology of a geometry.
type Primitive uint8

const (
	Triangles Primitive = iota
	Lines
)

// Geometry holds vertex data. Without Indices, positions are drawn in order.
type Geometry struct {
	Positions []float32 // xyz
	Normals   []float32 // xyz, same length as Positions or empty
	UVs       []float32 // uv
	Indices   []uint32
	Primitive Primitive

	handle
}

// ID returns the registry id, zero while unowned.
func (g *Geometry) ID() uint64 { return g.id }

// Kind returns KindGeometry.
func (g *Geometry) Kind() ResourceKind { return KindGeometry }

// Disposed reports whether Dispose ran.
func (g *Geometry) Disposed() bool { return g.disposed }

// Dispose releases the geometry. Repeated calls are no-ops.
func (g *Geometry) Dispose() error {
	err := g.handle.dispose(g)
	g.Positions, g.Normals, g.UVs, g.Indices = nil, nil, nil, nil
	return err
}

// VertexCount returns the number of vertices.
func (g *Geometry) VertexCount() int {
	return len(g.Positions) / 3
}

// ElementCount returns the number of vertices drawn.
func (g *Geometry) ElementCount() int {
	if len(g.Indices) > 0 {
		return len(g.Indices)
	}
	return g.VertexCount()
}

// Bounds computes the local bounding box.
func (g *Geometry) Bounds() pkgmath.AABB {
	return pkgmath.AABBFromPoints(g.Positions)
}

// Transform applies m to positions and its rotation part to normals.
func (g *Geometry) Transform(m mgl32.Mat4) {
	for i := 0; i+2 < len(g.Positions); i += 3 {
		p := m.Mul4x1(mgl32.Vec4{g.Positions[i], g.Positions[i+1], g.Positions[i+2], 1})
		g.Positions[i], g.Positions[i+1], g.Positions[i+2] = p[0], p[1], p[2]
	}
	nm := m.Mat3().Inv().Transpose()
	for i := 0; i+2 < len(g.Normals); i += 3 {
		n := nm.Mul3x1(mgl32.Vec3{g.Normals[i], g.Normals[i+1], g.Normals[i+2]})
		if l := n.Len(); l > 0 {
			n = n.Mul(1 / l)
		}
		g.Normals[i], g.Normals[i+1], g.Normals[i+2] = n[0], n[1], n[2]
	}
}

// RotateX rotates the geometry about the X axis.
func (g *Geometry) RotateX(angle float32) {
	g.Transform(mgl32.HomogRotate3DX(angle))
}

// Translate offsets every position by d.
func (g *Geometry) Translate(d mgl32.Vec3) {
	for i := 0; i+2 < len(g.Positions); i += 3 {
		g.Positions[i] += d[0]
		g.Positions[i+1] += d[1]
		g.Positions[i+2] += d[2]
	}
}

// ComputeFlatNormals sets one normal per triangle on non-indexed triangle data.
func (g *Geometry) ComputeFlatNormals() {
	if g.Primitive != Triangles || len(g.Indices) > 0 {
		return
	}
	g.Normals = make([]float32, len(g.Positions))
	for i := 0; i+8 < len(g.Positions); i += 9 {
		a := mgl32.Vec3{g.Positions[i], g.Positions[i+1], g.Positions[i+2]}
		b := mgl32.Vec3{g.Positions[i+3], g.Positions[i+4], g.Positions[i+5]}
		c := mgl32.Vec3{g.Positions[i+6], g.Positions[i+7], g.Positions[i+8]}
		n := faceNormal(a, b, c)
		for v := 0; v < 3; v++ {
			copy(g.Normals[i+v*3:i+v*3+3], n[:])
		}
	}
}

func faceNormal(a, b, c mgl32.Vec3) mgl32.Vec3 {
	n := c.Sub(b).Cross(a.Sub(b))
	if l := n.Len(); l > 0 {
		return n.Mul(1 / l)
	}
	return mgl32.Vec3{}
}

// MaterialKind selects the shading model.
type MaterialKind uint8

const (
	Standard MaterialKind = iota
	Physical
	Phong
	Lambert
	LineBasic
	SkyShader
)

// Material describes surface shading.
type Material struct {
	Name        string
	Shading     MaterialKind
	Color       mgl32.Vec3
	Opacity     float32
	Transparent bool
	DoubleSided bool
	Wireframe   bool

	Metalness          float32
	Roughness          float32
	Clearcoat          float32
	ClearcoatRoughness float32
	Shininess          float32

	Map *Texture

	handle
}

// NewMaterial creates an opaque material of the given kind and color.
func NewMaterial(name string, kind MaterialKind, color mgl32.Vec3) *Material {
	return &Material{Name: name, Shading: kind, Color: color, Opacity: 1}
}

// ID returns the registry id, zero while unowned.
func (m *Material) ID() uint64 { return m.id }

// Kind returns KindMaterial.
func (m *Material) Kind() ResourceKind { return KindMaterial }

// Disposed reports whether Dispose ran.
func (m *Material) Disposed() bool { return m.disposed }

// Dispose releases the material and its texture map.
func (m *Material) Dispose() error {
	err := m.handle.dispose(m)
	if m.Map != nil {
		err = multierr.Append(err, m.Map.Dispose())
	}
	return err
}

// Texture is a CPU-side image with repeat wrapping.
type Texture struct {
	Image   *image.RGBA
	RepeatU float32
	RepeatV float32

	handle
}

// ID returns the registry id, zero while unowned.
func (t *Texture) ID() uint64 { return t.id }

// Kind returns KindTexture.
func (t *Texture) Kind() ResourceKind { return KindTexture }

// Disposed reports whether Dispose ran.
func (t *Texture) Disposed() bool { return t.disposed }

// Dispose releases the texture.
func (t *Texture) Dispose() error {
	err := t.handle.dispose(t)
	t.Image = nil
	return err
}

// Hex converts a 0xRRGGBB color to linear floats.
func Hex(c uint32) mgl32.Vec3 {
	return mgl32.Vec3{
		float32((c>>16)&0xff) / 255,
		float32((c>>8)&0xff) / 255,
		float32(c&0xff) / 255,
	}
}
