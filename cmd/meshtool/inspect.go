package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/spf13/cobra"

	"github.com/Faultbox/estateview/internal/engine/camera"
	"github.com/Faultbox/estateview/internal/engine/model"
	"github.com/Faultbox/estateview/internal/engine/scene"
	"github.com/Faultbox/estateview/pkg/formats"
)

var inspectFOV float32

var inspectCmd = &cobra.Command{
	Use:   "inspect [file.obj]",
	Short: "Parse and normalize an OBJ model and report its geometry",
	Long: `Parse an OBJ file, normalize it the way the viewer does (Z-up to Y-up,
centered on X/Z, resting on the ground) and print counts, bounds and the
camera placement the viewer would choose.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().Float32Var(&inspectFOV, "fov", camera.DefaultFOV, "Vertical field of view in degrees")
	rootCmd.AddCommand(inspectCmd)
}

type vec3 [3]float32

func toVec3(v mgl32.Vec3) vec3 { return vec3{v[0], v[1], v[2]} }

// inspectReport describes a normalized model.
type inspectReport struct {
	File      string `json:"file"`
	Bytes     int    `json:"bytes"`
	Vertices  int    `json:"vertices"`
	Faces     int    `json:"faces"`
	Objects   int    `json:"objects"`
	Triangles int    `json:"triangles"`
	Meshes    int    `json:"meshes"`
	Fallback  bool   `json:"fallback"`

	Min  vec3    `json:"min"`
	Max  vec3    `json:"max"`
	Size vec3    `json:"size"`
	Diag float32 `json:"diagonal"`

	CameraPosition vec3    `json:"camera_position"`
	CameraTarget   vec3    `json:"camera_target"`
	MinDistance    float32 `json:"min_distance"`
	MaxDistance    float32 `json:"max_distance"`
}

func runInspect(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	report, err := inspectOBJ(args[0], string(data), inspectFOV)
	if err != nil {
		return err
	}
	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(cmd.OutOrStdout(), report)
	return nil
}

// inspectOBJ runs the viewer's parse and normalize steps on payload.
// Payloads without drawable geometry report the fallback building.
func inspectOBJ(name, payload string, fov float32) (inspectReport, error) {
	stats := formats.ScanOBJ(payload)
	report := inspectReport{
		File:     name,
		Bytes:    stats.Size,
		Vertices: stats.VertexCount,
		Faces:    stats.FaceCount,
	}

	obj, err := formats.ParseOBJ(payload)
	if err != nil && !errors.Is(err, formats.ErrEmptyGeometry) {
		return report, err
	}

	var node *scene.Node
	if err == nil {
		report.Objects = len(obj.Objects)
		report.Triangles = obj.TriangleCount()
		node, err = model.Normalize(obj)
		if err != nil && !errors.Is(err, model.ErrNoMeshes) {
			return report, err
		}
	}
	if node == nil {
		node = model.Fallback()
		report.Fallback = true
	}
	defer node.Dispose()

	report.Meshes = len(node.Meshes())
	b := node.Bounds()
	report.Min, report.Max, report.Size = toVec3(b.Min), toVec3(b.Max), toVec3(b.Size())
	report.Diag = b.Diagonal()

	rig := camera.ComputeRig(b, fov)
	report.CameraPosition = toVec3(rig.Position)
	report.CameraTarget = toVec3(rig.Target)
	report.MinDistance = rig.MinDistance
	report.MaxDistance = rig.MaxDistance
	return report, nil
}

func printReport(w io.Writer, r inspectReport) {
	fmt.Fprintln(w, "OBJ Model Information")
	fmt.Fprintln(w, "=====================")
	fmt.Fprintf(w, "File: %s (%d bytes)\n\n", r.File, r.Bytes)

	fmt.Fprintln(w, "Records:")
	fmt.Fprintf(w, "  Vertices:  %d\n", r.Vertices)
	fmt.Fprintf(w, "  Faces:     %d\n", r.Faces)
	fmt.Fprintf(w, "  Objects:   %d\n", r.Objects)
	fmt.Fprintf(w, "  Triangles: %d\n\n", r.Triangles)

	if r.Fallback {
		fmt.Fprintln(w, "No drawable geometry, the viewer shows the fallback building.")
		fmt.Fprintln(w)
	}
	fmt.Fprintf(w, "Normalized (%d meshes, Y-up):\n", r.Meshes)
	fmt.Fprintf(w, "  Min:      %s\n", formatVec(r.Min))
	fmt.Fprintf(w, "  Max:      %s\n", formatVec(r.Max))
	fmt.Fprintf(w, "  Size:     %s\n", formatVec(r.Size))
	fmt.Fprintf(w, "  Diagonal: %.3f\n\n", r.Diag)

	fmt.Fprintln(w, "Camera:")
	fmt.Fprintf(w, "  Position: %s\n", formatVec(r.CameraPosition))
	fmt.Fprintf(w, "  Target:   %s\n", formatVec(r.CameraTarget))
	fmt.Fprintf(w, "  Zoom:     %.3f .. %.3f\n", r.MinDistance, r.MaxDistance)
}

func formatVec(v vec3) string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", v[0], v[1], v[2])
}
