// Package formats parses Wavefront OBJ text meshes for building models.
package formats

import (
	"bufio"
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
)

// OBJ parse outcomes.
var (
	// ErrMalformedPayload means the payload has no vertex or no face records,
	// or a vertex record that cannot be read or is not finite.
	ErrMalformedPayload = errors.New("malformed OBJ payload")
	// ErrEmptyGeometry means the payload parsed but left nothing drawable.
	// It is returned together with the parsed OBJ.
	ErrEmptyGeometry = errors.New("OBJ has no drawable geometry")
)

// OBJStats holds counts from a cheap line scan.
type OBJStats struct {
	VertexCount int
	FaceCount   int
	Size        int // Payload size in bytes
}

// OBJ is a parsed mesh: a shared vertex pool and objects referencing it.
type OBJ struct {
	Positions []float32 // xyz per vertex
	Objects   []OBJObject
}

// OBJObject is one drawable group. A new object starts on "o", "g" or "usemtl".
type OBJObject struct {
	Name     string
	Material string
	Faces    []OBJFace
}

// OBJFace is a polygon of zero-based vertex indices, at least three long.
type OBJFace struct {
	V []int
}

// VertexCount returns the number of vertices in the pool.
func (o *OBJ) VertexCount() int {
	return len(o.Positions) / 3
}

// FaceCount returns the number of kept faces over all objects.
func (o *OBJ) FaceCount() int {
	n := 0
	for i := range o.Objects {
		n += len(o.Objects[i].Faces)
	}
	return n
}

// TriangleCount returns the number of triangles after fan triangulation.
func (o *OBJ) TriangleCount() int {
	n := 0
	for i := range o.Objects {
		for _, f := range o.Objects[i].Faces {
			n += len(f.V) - 2
		}
	}
	return n
}

// Vertex returns vertex i.
func (o *OBJ) Vertex(i int) [3]float32 {
	return [3]float32{o.Positions[i*3], o.Positions[i*3+1], o.Positions[i*3+2]}
}

// ScanOBJ counts vertex and face records without building geometry.
func ScanOBJ(payload string) OBJStats {
	stats := OBJStats{Size: len(payload)}
	for line := range strings.Lines(payload) {
		switch keyword(line) {
		case "v":
			stats.VertexCount++
		case "f":
			stats.FaceCount++
		}
	}
	return stats
}

// ParseOBJ parses OBJ text.
// Payloads without vertex or face records are rejected before any geometry is built.
func ParseOBJ(payload string) (*OBJ, error) {
	if strings.TrimSpace(payload) == "" {
		return nil, fmt.Errorf("%w: empty payload", ErrMalformedPayload)
	}
	stats := ScanOBJ(payload)
	if stats.VertexCount == 0 {
		return nil, fmt.Errorf("%w: no vertex records", ErrMalformedPayload)
	}
	if stats.FaceCount == 0 {
		return nil, fmt.Errorf("%w: no face records", ErrMalformedPayload)
	}

	obj := &OBJ{Positions: make([]float32, 0, stats.VertexCount*3)}
	cur := OBJObject{}

	// flush keeps the current object if it has faces and starts a new one.
	flush := func(name, material string) {
		if len(cur.Faces) > 0 {
			obj.Objects = append(obj.Objects, cur)
		}
		cur = OBJObject{Name: name, Material: material}
	}

	scanner := bufio.NewScanner(strings.NewReader(payload))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}

		switch fields[0] {
		case "v":
			if len(fields) < 4 {
				return nil, fmt.Errorf("%w: line %d: vertex needs 3 coordinates", ErrMalformedPayload, lineNo)
			}
			for _, f := range fields[1:4] {
				val, err := strconv.ParseFloat(f, 32)
				if err != nil {
					return nil, fmt.Errorf("%w: line %d: %v", ErrMalformedPayload, lineNo, err)
				}
				if math.IsNaN(val) || math.IsInf(val, 0) {
					return nil, fmt.Errorf("%w: line %d: non-finite coordinate %q", ErrMalformedPayload, lineNo, f)
				}
				obj.Positions = append(obj.Positions, float32(val))
			}
		case "f":
			if face, ok := parseFace(fields[1:], obj.VertexCount()); ok {
				cur.Faces = append(cur.Faces, face)
			}
		case "o", "g":
			flush(strings.Join(fields[1:], " "), cur.Material)
		case "usemtl":
			material := ""
			if len(fields) > 1 {
				material = fields[1]
			}
			if len(cur.Faces) == 0 {
				cur.Material = material
			} else {
				flush(cur.Name, material)
			}
		}
		// vn, vt, mtllib, s and unknown records are ignored.
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	flush("", "")

	if len(obj.Objects) == 0 {
		return obj, ErrEmptyGeometry
	}
	return obj, nil
}

// ParseOBJFile parses an OBJ file from disk.
func ParseOBJFile(path string) (*OBJ, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading OBJ file: %w", err)
	}
	return ParseOBJ(string(data))
}

// parseFace resolves "v", "v/vt", "v//vn" and "v/vt/vn" tokens.
// Faces with fewer than three valid references are dropped.
func parseFace(tokens []string, vertexCount int) (OBJFace, bool) {
	if len(tokens) < 3 {
		return OBJFace{}, false
	}
	face := OBJFace{V: make([]int, 0, len(tokens))}
	for _, tok := range tokens {
		ref, _, _ := strings.Cut(tok, "/")
		idx, err := strconv.Atoi(ref)
		if err != nil || idx == 0 {
			return OBJFace{}, false
		}
		if idx < 0 {
			idx = vertexCount + idx
		} else {
			idx--
		}
		if idx < 0 || idx >= vertexCount {
			return OBJFace{}, false
		}
		face.V = append(face.V, idx)
	}
	return face, true
}

// keyword returns the first token of a line.
func keyword(line string) string {
	line = strings.TrimLeft(line, " \t")
	end := strings.IndexAny(line, " \t\r\n")
	if end < 0 {
		return line
	}
	return line[:end]
}
