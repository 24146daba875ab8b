// Package shader loads the embedded GLSL programs used by the renderer.
package shader

import (
	"embed"
	"fmt"
	"strings"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/mathgl/mgl32"
)

//go:embed glsl/*.vert glsl/*.frag
var sources embed.FS

// Program names of the embedded shaders.
const (
	Mesh  = "mesh"
	Line  = "line"
	Sky   = "sky"
	Depth = "depth"
)

// Source returns the embedded vertex and fragment source of a program.
func Source(name string) (vertex, fragment string, err error) {
	v, err := sources.ReadFile("glsl/" + name + ".vert")
	if err != nil {
		return "", "", fmt.Errorf("shader %q: %w", name, err)
	}
	f, err := sources.ReadFile("glsl/" + name + ".frag")
	if err != nil {
		return "", "", fmt.Errorf("shader %q: %w", name, err)
	}
	return string(v), string(f), nil
}

// Program is a linked program with cached uniform locations.
type Program struct {
	Name     string
	ID       uint32
	uniforms map[string]int32
}

// CompileError carries the driver log of a failed compile or link.
type CompileError struct {
	Program string
	Stage   string // "vertex", "fragment" or "link"
	Log     string
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("shader %q %s: %s", e.Program, e.Stage, e.Log)
}

func newCompileError(program, stage string, log []byte) *CompileError {
	return &CompileError{
		Program: program,
		Stage:   stage,
		Log:     strings.TrimSpace(strings.TrimRight(string(log), "\x00")),
	}
}

// Load compiles and links an embedded program.
// Requires a current GL context.
func Load(name string) (*Program, error) {
	vert, frag, err := Source(name)
	if err != nil {
		return nil, err
	}
	p := &Program{Name: name, uniforms: make(map[string]int32)}
	if err := p.link(vert, frag); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Program) link(vertexSrc, fragmentSrc string) error {
	vs, err := p.compile(vertexSrc, gl.VERTEX_SHADER, "vertex")
	if err != nil {
		return err
	}
	defer gl.DeleteShader(vs)
	fs, err := p.compile(fragmentSrc, gl.FRAGMENT_SHADER, "fragment")
	if err != nil {
		return err
	}
	defer gl.DeleteShader(fs)

	id := gl.CreateProgram()
	gl.AttachShader(id, vs)
	gl.AttachShader(id, fs)
	gl.LinkProgram(id)

	var status int32
	gl.GetProgramiv(id, gl.LINK_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetProgramiv(id, gl.INFO_LOG_LENGTH, &n)
		log := make([]byte, max(n, 1))
		gl.GetProgramInfoLog(id, n, nil, &log[0])
		gl.DeleteProgram(id)
		return newCompileError(p.Name, "link", log)
	}
	p.ID = id
	return nil
}

func (p *Program) compile(src string, kind uint32, stage string) (uint32, error) {
	id := gl.CreateShader(kind)
	csrc, free := gl.Strs(src + "\x00")
	gl.ShaderSource(id, 1, csrc, nil)
	free()
	gl.CompileShader(id)

	var status int32
	gl.GetShaderiv(id, gl.COMPILE_STATUS, &status)
	if status == gl.FALSE {
		var n int32
		gl.GetShaderiv(id, gl.INFO_LOG_LENGTH, &n)
		log := make([]byte, max(n, 1))
		gl.GetShaderInfoLog(id, n, nil, &log[0])
		gl.DeleteShader(id)
		return 0, newCompileError(p.Name, stage, log)
	}
	return id, nil
}

// Use binds the program.
func (p *Program) Use() {
	gl.UseProgram(p.ID)
}

// Uniform returns a cached uniform location, -1 when inactive.
func (p *Program) Uniform(name string) int32 {
	if loc, ok := p.uniforms[name]; ok {
		return loc
	}
	loc := gl.GetUniformLocation(p.ID, gl.Str(name+"\x00"))
	p.uniforms[name] = loc
	return loc
}

// SetMat4 sets a mat4 uniform.
func (p *Program) SetMat4(name string, m mgl32.Mat4) {
	gl.UniformMatrix4fv(p.Uniform(name), 1, false, &m[0])
}

// SetMat3 sets a mat3 uniform.
func (p *Program) SetMat3(name string, m mgl32.Mat3) {
	gl.UniformMatrix3fv(p.Uniform(name), 1, false, &m[0])
}

// SetVec3 sets a vec3 uniform.
func (p *Program) SetVec3(name string, v mgl32.Vec3) {
	gl.Uniform3f(p.Uniform(name), v[0], v[1], v[2])
}

// SetVec2 sets a vec2 uniform.
func (p *Program) SetVec2(name string, x, y float32) {
	gl.Uniform2f(p.Uniform(name), x, y)
}

// SetVec3Array sets a vec3 array uniform from packed floats.
func (p *Program) SetVec3Array(name string, v []float32) {
	if len(v) < 3 {
		return
	}
	gl.Uniform3fv(p.Uniform(name), int32(len(v)/3), &v[0])
}

// SetFloat sets a float uniform.
func (p *Program) SetFloat(name string, f float32) {
	gl.Uniform1f(p.Uniform(name), f)
}

// SetInt sets an int or sampler uniform.
func (p *Program) SetInt(name string, i int32) {
	gl.Uniform1i(p.Uniform(name), i)
}

// SetBool sets a bool uniform.
func (p *Program) SetBool(name string, b bool) {
	var i int32
	if b {
		i = 1
	}
	gl.Uniform1i(p.Uniform(name), i)
}

// Delete releases the program.
func (p *Program) Delete() {
	if p.ID != 0 {
		gl.DeleteProgram(p.ID)
		p.ID = 0
	}
	clear(p.uniforms)
}
