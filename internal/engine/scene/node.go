package scene

import (
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/multierr"

	pkgmath "github.com/Faultbox/estateview/pkg/math"
)

// Tag marks the role of a top-level node.
type Tag uint8

const (
	TagNone Tag = iota
	TagModel
	TagFallback
	TagTerrain
	TagWater
	TagSky
)

// String returns the tag name.
func (t Tag) String() string {
	switch t {
	case TagModel:
		return "model"
	case TagFallback:
		return "fallback"
	case TagTerrain:
		return "terrain"
	case TagWater:
		return "water"
	case TagSky:
		return "sky"
	default:
		return "none"
	}
}

// IsModel reports whether the tag marks an installed building model.
func (t Tag) IsModel() bool {
	return t == TagModel || t == TagFallback
}

// Node is a scene graph element. A node with Geometry is drawn, otherwise it groups.
type Node struct {
	Name     string
	Tag      Tag
	Geometry *Geometry
	Material *Material
	Visible  bool

	Position mgl32.Vec3
	Rotation mgl32.Vec3 // Euler XYZ, radians
	Scale    mgl32.Vec3

	CastShadow    bool
	ReceiveShadow bool

	parent   *Node
	children []*Node
}

// NewGroup creates an empty node.
func NewGroup(name string) *Node {
	return &Node{Name: name, Visible: true, Scale: mgl32.Vec3{1, 1, 1}}
}

// NewMesh creates a drawable node.
func NewMesh(name string, geo *Geometry, mat *Material) *Node {
	n := NewGroup(name)
	n.Geometry = geo
	n.Material = mat
	return n
}

// Add attaches child, detaching it from any previous parent.
func (n *Node) Add(child *Node) {
	if child.parent != nil {
		child.parent.Remove(child)
	}
	child.parent = n
	n.children = append(n.children, child)
}

// Remove detaches child. It reports whether child was attached to n.
func (n *Node) Remove(child *Node) bool {
	for i, c := range n.children {
		if c == child {
			n.children = append(n.children[:i], n.children[i+1:]...)
			child.parent = nil
			return true
		}
	}
	return false
}

// Parent returns the parent node or nil.
func (n *Node) Parent() *Node {
	return n.parent
}

// Children returns the direct children.
func (n *Node) Children() []*Node {
	return n.children
}

// Traverse visits n and its descendants depth first.
func (n *Node) Traverse(fn func(*Node)) {
	fn(n)
	for _, c := range n.children {
		c.Traverse(fn)
	}
}

// TraverseVisible is Traverse that skips hidden subtrees.
func (n *Node) TraverseVisible(fn func(*Node)) {
	if !n.Visible {
		return
	}
	fn(n)
	for _, c := range n.children {
		c.TraverseVisible(fn)
	}
}

// FindByName returns the first node with the given name.
func (n *Node) FindByName(name string) *Node {
	var found *Node
	n.Traverse(func(node *Node) {
		if found == nil && node.Name == name {
			found = node
		}
	})
	return found
}

// Count returns the number of nodes in the subtree, n included.
func (n *Node) Count() int {
	count := 0
	n.Traverse(func(*Node) { count++ })
	return count
}

// HasIdentityTransform reports whether position, rotation and scale are neutral.
func (n *Node) HasIdentityTransform() bool {
	return n.Position == (mgl32.Vec3{}) && n.Rotation == (mgl32.Vec3{}) && n.Scale == (mgl32.Vec3{1, 1, 1})
}

// ResetTransform sets the local transform to identity.
func (n *Node) ResetTransform() {
	n.Position = mgl32.Vec3{}
	n.Rotation = mgl32.Vec3{}
	n.Scale = mgl32.Vec3{1, 1, 1}
}

// LocalMatrix returns T * Rx * Ry * Rz * S.
func (n *Node) LocalMatrix() mgl32.Mat4 {
	m := mgl32.Translate3D(n.Position[0], n.Position[1], n.Position[2])
	m = m.Mul4(mgl32.HomogRotate3DX(n.Rotation[0]))
	m = m.Mul4(mgl32.HomogRotate3DY(n.Rotation[1]))
	m = m.Mul4(mgl32.HomogRotate3DZ(n.Rotation[2]))
	return m.Mul4(mgl32.Scale3D(n.Scale[0], n.Scale[1], n.Scale[2]))
}

// WorldMatrix composes local matrices up to the root.
func (n *Node) WorldMatrix() mgl32.Mat4 {
	m := n.LocalMatrix()
	for p := n.parent; p != nil; p = p.parent {
		m = p.LocalMatrix().Mul4(m)
	}
	return m
}

// Bounds returns the world-space box over all geometry in the subtree.
func (n *Node) Bounds() pkgmath.AABB {
	box := pkgmath.EmptyAABB()
	n.Traverse(func(node *Node) {
		if node.Geometry == nil {
			return
		}
		local := node.Geometry.Bounds()
		if local.IsEmpty() {
			return
		}
		world := node.WorldMatrix()
		if world == mgl32.Ident4() {
			box = box.Union(local)
			return
		}
		for i := 0; i < 8; i++ {
			corner := mgl32.Vec3{local.Min[0], local.Min[1], local.Min[2]}
			if i&1 != 0 {
				corner[0] = local.Max[0]
			}
			if i&2 != 0 {
				corner[1] = local.Max[1]
			}
			if i&4 != 0 {
				corner[2] = local.Max[2]
			}
			box = box.Extend(mgl32.TransformCoordinate(corner, world))
		}
	})
	return box
}

// Meshes returns drawable triangle nodes in traversal order.
func (n *Node) Meshes() []*Node {
	var meshes []*Node
	n.Traverse(func(node *Node) {
		if node.Geometry != nil && node.Geometry.Primitive == Triangles {
			meshes = append(meshes, node)
		}
	})
	return meshes
}

// Dispose releases every geometry, material and texture in the subtree.
// Shared materials are released once.
func (n *Node) Dispose() error {
	var err error
	n.Traverse(func(node *Node) {
		if node.Geometry != nil {
			err = multierr.Append(err, node.Geometry.Dispose())
		}
		if node.Material != nil {
			err = multierr.Append(err, node.Material.Dispose())
		}
	})
	return err
}
