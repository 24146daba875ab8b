package sdlhost

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/estateview/internal/engine/camera"
	"github.com/Faultbox/estateview/internal/engine/lighting"
	"github.com/Faultbox/estateview/internal/engine/scene"
	"github.com/Faultbox/estateview/internal/engine/shader"
)

// glContextLost is GL_CONTEXT_LOST from GL 4.5 / KHR_robustness.
const glContextLost = 0x0507

// ErrContextLost is returned by Render once the GL context is gone.
var ErrContextLost = errors.New("gl context lost")

// gpuMesh holds the GL objects of one uploaded geometry.
type gpuMesh struct {
	vao     uint32
	vbos    [3]uint32 // position, normal, uv
	ebo     uint32
	count   int32
	indexed bool
	mode    uint32
}

// drawItem is one visible mesh with its world transform.
type drawItem struct {
	node  *scene.Node
	model mgl32.Mat4
	depth float32 // Squared distance to the camera
}

// Renderer draws scene graphs with GL. Geometry and textures are uploaded on
// first use and released when the scene registry disposes them.
type Renderer struct {
	width  int
	height int

	mesh      *shader.Program
	line      *shader.Program
	sky       *shader.Program
	depth     *shader.Program
	shadow    *shadowMap
	noShadows bool

	meshes   map[uint64]*gpuMesh
	textures map[uint64]uint32
	attached map[*scene.Registry]bool

	disposed bool
	log      *zap.Logger
}

// newRenderer initializes GL state and programs.
// Must be called with a current GL context.
func newRenderer(width, height int, log *zap.Logger) (*Renderer, error) {
	if err := gl.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize OpenGL: %w", err)
	}

	log.Info("OpenGL initialized",
		zap.String("version", gl.GoStr(gl.GetString(gl.VERSION))),
		zap.String("renderer", gl.GoStr(gl.GetString(gl.RENDERER))),
	)

	r := &Renderer{
		width:    width,
		height:   height,
		meshes:   make(map[uint64]*gpuMesh),
		textures: make(map[uint64]uint32),
		attached: make(map[*scene.Registry]bool),
		log:      log,
	}

	var err error
	for _, p := range []struct {
		dst  **shader.Program
		name string
	}{
		{&r.mesh, shader.Mesh},
		{&r.line, shader.Line},
		{&r.sky, shader.Sky},
		{&r.depth, shader.Depth},
	} {
		if *p.dst, err = shader.Load(p.name); err != nil {
			r.Dispose()
			return nil, err
		}
	}

	gl.Enable(gl.DEPTH_TEST)
	gl.DepthFunc(gl.LEQUAL)
	gl.Enable(gl.MULTISAMPLE)
	gl.Viewport(0, 0, int32(width), int32(height))
	return r, nil
}

// Resize updates the viewport.
func (r *Renderer) Resize(width, height int) {
	r.width, r.height = width, height
	gl.Viewport(0, 0, int32(width), int32(height))
	r.log.Debug("renderer resized", zap.Int("width", width), zap.Int("height", height))
}

// attach subscribes to a scene registry so released resources free their
// GL objects.
func (r *Renderer) attach(reg *scene.Registry) {
	if r.attached[reg] {
		return
	}
	r.attached[reg] = true
	reg.OnDispose(r.release)
}

func (r *Renderer) release(res scene.Resource) error {
	if r.disposed {
		return nil
	}
	switch res.Kind() {
	case scene.KindGeometry:
		if m, ok := r.meshes[res.ID()]; ok {
			deleteMesh(m)
			delete(r.meshes, res.ID())
		}
	case scene.KindTexture:
		if tex, ok := r.textures[res.ID()]; ok {
			gl.DeleteTextures(1, &tex)
			delete(r.textures, res.ID())
		}
	}
	if code := gl.GetError(); code != gl.NO_ERROR {
		return fmt.Errorf("releasing %s %d: gl error 0x%x", res.Kind(), res.ID(), code)
	}
	return nil
}

// Render draws one frame into the back buffer.
func (r *Renderer) Render(sc *scene.Scene, cam *camera.Camera) error {
	if r.disposed {
		return errors.New("renderer disposed")
	}
	r.attach(sc.Registry())

	var opaque, transparent, lines []drawItem
	var sky *drawItem
	sc.Root.TraverseVisible(func(n *scene.Node) {
		// Only registry-owned geometry is drawn, so every GL object has an owner
		// that releases it.
		if n.Geometry == nil || n.Material == nil || n.Geometry.Disposed() || n.Geometry.ID() == 0 {
			return
		}
		world := n.WorldMatrix()
		item := drawItem{node: n, model: world}
		switch {
		case n.Material.Shading == scene.SkyShader:
			sky = &item
		case n.Geometry.Primitive == scene.Lines:
			lines = append(lines, item)
		case n.Material.Transparent:
			d := world.Mul4x1(n.Geometry.Bounds().Center().Vec4(1)).Vec3().Sub(cam.Position)
			item.depth = d.Dot(d)
			transparent = append(transparent, item)
		default:
			opaque = append(opaque, item)
		}
	})

	lights := sc.Lights()
	lightSpace := r.renderShadows(lights, opaque, sc)

	bg := sc.Background
	gl.ClearColor(bg[0], bg[1], bg[2], 1)
	gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)

	viewProj := cam.ViewProjection()

	if sky != nil {
		r.drawSky(*sky, sc.Sky, cam, viewProj)
	}

	r.mesh.Use()
	r.setFrameUniforms(r.mesh, sc, cam, viewProj)
	r.mesh.SetVec3Array("uLightDirs", lights.GetDirections())
	r.mesh.SetVec3Array("uLightColors", lights.GetColors())
	hemi := lights.Hemisphere
	r.mesh.SetVec3("uHemiSky", hemi.Sky.Mul(hemi.Intensity))
	r.mesh.SetVec3("uHemiGround", hemi.Ground.Mul(hemi.Intensity))
	r.mesh.SetMat4("uShadowMatrix", lightSpace)
	if lights.Sun.Shadow != nil {
		r.mesh.SetFloat("uShadowBias", lights.Sun.Shadow.Bias)
	}
	r.mesh.SetInt("uMap", 0)
	r.mesh.SetInt("uShadowMap", 1)
	if r.shadow != nil {
		r.shadow.bindTexture(gl.TEXTURE1)
	}

	gl.Disable(gl.BLEND)
	for _, item := range opaque {
		r.drawMesh(item)
	}

	slices.SortFunc(transparent, func(a, b drawItem) int {
		switch {
		case a.depth > b.depth:
			return -1
		case a.depth < b.depth:
			return 1
		}
		return 0
	})
	gl.Enable(gl.BLEND)
	gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	gl.DepthMask(false)
	for _, item := range transparent {
		r.drawMesh(item)
	}

	r.line.Use()
	r.setFrameUniforms(r.line, sc, cam, viewProj)
	for _, item := range lines {
		r.drawLines(item)
	}
	gl.DepthMask(true)
	gl.Disable(gl.BLEND)

	return r.checkError()
}

func (r *Renderer) setFrameUniforms(p *shader.Program, sc *scene.Scene, cam *camera.Camera, viewProj mgl32.Mat4) {
	p.SetMat4("uViewProj", viewProj)
	p.SetVec3("uCameraPos", cam.Position)
	p.SetVec3("uFogColor", sc.Fog.Color)
	p.SetFloat("uFogDensity", sc.Fog.Density)
}

// renderShadows draws shadow casters into the sun's depth map and returns
// the light-space matrix, or identity when the sun casts no shadow.
func (r *Renderer) renderShadows(lights lighting.Rig, casters []drawItem, sc *scene.Scene) mgl32.Mat4 {
	s := lights.Sun.Shadow
	if s == nil || r.noShadows {
		return mgl32.Ident4()
	}
	if r.shadow == nil {
		r.shadow = newShadowMap(s.MapSize)
		if r.shadow == nil {
			r.log.Warn("shadow map unavailable", zap.Int32("size", s.MapSize))
			r.noShadows = true
			return mgl32.Ident4()
		}
	}

	focus := mgl32.Vec3{}
	if m := sc.Model(); m != nil {
		focus = m.Bounds().Center()
	}
	lightSpace := lights.ShadowMatrix(focus)

	r.shadow.bind()
	r.depth.Use()
	r.depth.SetMat4("uLightSpace", lightSpace)
	for _, item := range casters {
		if !item.node.CastShadow {
			continue
		}
		m := r.upload(item.node.Geometry)
		r.depth.SetMat4("uModel", item.model)
		drawGPU(m)
	}
	r.shadow.unbind(int32(r.width), int32(r.height))
	return lightSpace
}

func (r *Renderer) drawSky(item drawItem, sky scene.Sky, cam *camera.Camera, viewProj mgl32.Mat4) {
	// Keep the dome centered on the camera so it is never clipped.
	model := mgl32.Translate3D(cam.Position[0], cam.Position[1], cam.Position[2]).
		Mul4(mgl32.Scale3D(sky.Scale, sky.Scale, sky.Scale))

	r.sky.Use()
	r.sky.SetMat4("uModel", model)
	r.sky.SetMat4("uViewProj", viewProj)
	r.sky.SetVec3("uCameraPos", cam.Position)
	r.sky.SetVec3("uSunPosition", sky.SunPosition)
	r.sky.SetFloat("uTurbidity", sky.Turbidity)
	r.sky.SetFloat("uRayleigh", sky.Rayleigh)
	r.sky.SetFloat("uMieCoefficient", sky.MieCoefficient)
	r.sky.SetFloat("uMieDirectionalG", sky.MieDirectionalG)

	gl.DepthMask(false)
	gl.Disable(gl.CULL_FACE)
	drawGPU(r.upload(item.node.Geometry))
	gl.DepthMask(true)
}

func (r *Renderer) drawMesh(item drawItem) {
	n := item.node
	mat := n.Material
	m := r.upload(n.Geometry)

	r.mesh.SetMat4("uModel", item.model)
	r.mesh.SetMat3("uNormalMatrix", item.model.Mat3().Inv().Transpose())
	r.mesh.SetVec3("uColor", mat.Color)
	r.mesh.SetFloat("uOpacity", mat.Opacity)
	r.mesh.SetInt("uShading", shadingIndex(mat.Shading))
	r.mesh.SetFloat("uMetalness", mat.Metalness)
	r.mesh.SetFloat("uRoughness", mat.Roughness)
	r.mesh.SetFloat("uClearcoat", mat.Clearcoat)
	r.mesh.SetFloat("uShininess", max(mat.Shininess, 1))
	r.mesh.SetBool("uReceiveShadow", n.ReceiveShadow && r.shadow != nil)

	if tex := mat.Map; tex != nil && !tex.Disposed() {
		gl.ActiveTexture(gl.TEXTURE0)
		gl.BindTexture(gl.TEXTURE_2D, r.uploadTexture(tex))
		r.mesh.SetBool("uUseMap", true)
		r.mesh.SetVec2("uRepeat", tex.RepeatU, tex.RepeatV)
	} else {
		r.mesh.SetBool("uUseMap", false)
		r.mesh.SetVec2("uRepeat", 1, 1)
	}

	if mat.DoubleSided {
		gl.Disable(gl.CULL_FACE)
	} else {
		gl.Enable(gl.CULL_FACE)
		gl.CullFace(gl.BACK)
	}
	if mat.Wireframe {
		gl.PolygonMode(gl.FRONT_AND_BACK, gl.LINE)
	}
	drawGPU(m)
	if mat.Wireframe {
		gl.PolygonMode(gl.FRONT_AND_BACK, gl.FILL)
	}
}

func (r *Renderer) drawLines(item drawItem) {
	mat := item.node.Material
	r.line.SetMat4("uModel", item.model)
	r.line.SetVec3("uColor", mat.Color)
	r.line.SetFloat("uOpacity", mat.Opacity)
	if mat.Opacity < 1 || mat.Transparent {
		gl.Enable(gl.BLEND)
		gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	} else {
		gl.Disable(gl.BLEND)
	}
	drawGPU(r.upload(item.node.Geometry))
}

func shadingIndex(k scene.MaterialKind) int32 {
	switch k {
	case scene.Physical:
		return 1
	case scene.Phong:
		return 2
	case scene.Lambert:
		return 3
	}
	return 0
}

// upload returns the GL mesh for geo, creating it on first use.
func (r *Renderer) upload(geo *scene.Geometry) *gpuMesh {
	if m, ok := r.meshes[geo.ID()]; ok {
		return m
	}

	m := &gpuMesh{mode: gl.TRIANGLES}
	if geo.Primitive == scene.Lines {
		m.mode = gl.LINES
	}

	gl.GenVertexArrays(1, &m.vao)
	gl.BindVertexArray(m.vao)

	attribs := [][]float32{geo.Positions, geo.Normals, geo.UVs}
	sizes := [3]int32{3, 3, 2}
	for i, data := range attribs {
		loc := uint32(i)
		if len(data) == 0 {
			gl.DisableVertexAttribArray(loc)
			continue
		}
		gl.GenBuffers(1, &m.vbos[i])
		gl.BindBuffer(gl.ARRAY_BUFFER, m.vbos[i])
		gl.BufferData(gl.ARRAY_BUFFER, len(data)*4, gl.Ptr(data), gl.STATIC_DRAW)
		gl.VertexAttribPointer(loc, sizes[i], gl.FLOAT, false, 0, nil)
		gl.EnableVertexAttribArray(loc)
	}
	if len(geo.Normals) == 0 {
		gl.VertexAttrib3f(1, 0, 1, 0)
	}

	if len(geo.Indices) > 0 {
		gl.GenBuffers(1, &m.ebo)
		gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, m.ebo)
		gl.BufferData(gl.ELEMENT_ARRAY_BUFFER, len(geo.Indices)*4, gl.Ptr(geo.Indices), gl.STATIC_DRAW)
		m.indexed = true
		m.count = int32(len(geo.Indices))
	} else {
		m.count = int32(geo.VertexCount())
	}

	gl.BindVertexArray(0)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)

	r.meshes[geo.ID()] = m
	return m
}

func (r *Renderer) uploadTexture(tex *scene.Texture) uint32 {
	if id, ok := r.textures[tex.ID()]; ok {
		return id
	}

	var id uint32
	gl.GenTextures(1, &id)
	gl.BindTexture(gl.TEXTURE_2D, id)
	b := tex.Image.Bounds()
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, int32(b.Dx()), int32(b.Dy()), 0,
		gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(tex.Image.Pix))
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.REPEAT)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.LINEAR_MIPMAP_LINEAR)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.LINEAR)
	gl.GenerateMipmap(gl.TEXTURE_2D)

	r.textures[tex.ID()] = id
	return id
}

func drawGPU(m *gpuMesh) {
	gl.BindVertexArray(m.vao)
	if m.indexed {
		gl.DrawElements(m.mode, m.count, gl.UNSIGNED_INT, nil)
	} else {
		gl.DrawArrays(m.mode, 0, m.count)
	}
	gl.BindVertexArray(0)
}

func deleteMesh(m *gpuMesh) {
	for i := range m.vbos {
		if m.vbos[i] != 0 {
			gl.DeleteBuffers(1, &m.vbos[i])
		}
	}
	if m.ebo != 0 {
		gl.DeleteBuffers(1, &m.ebo)
	}
	gl.DeleteVertexArrays(1, &m.vao)
}

func (r *Renderer) checkError() error {
	code := gl.GetError()
	switch code {
	case gl.NO_ERROR:
		return nil
	case glContextLost:
		return ErrContextLost
	}
	return fmt.Errorf("gl error 0x%x", code)
}

// UploadedMeshes returns the number of geometries resident on the GPU.
func (r *Renderer) UploadedMeshes() int {
	return len(r.meshes)
}

// Dispose deletes every GL object owned by the renderer.
func (r *Renderer) Dispose() {
	if r.disposed {
		return
	}
	r.disposed = true
	for id, m := range r.meshes {
		deleteMesh(m)
		delete(r.meshes, id)
	}
	for id, tex := range r.textures {
		gl.DeleteTextures(1, &tex)
		delete(r.textures, id)
	}
	for _, p := range []*shader.Program{r.mesh, r.line, r.sky, r.depth} {
		if p != nil {
			p.Delete()
		}
	}
	if r.shadow != nil {
		r.shadow.destroy()
	}
	r.log.Info("renderer disposed")
}
