package lighting

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestDefaultRig(t *testing.T) {
	rig := DefaultRig()

	if rig.Sun.Intensity != 1.5 {
		t.Errorf("expected sun intensity 1.5, got %v", rig.Sun.Intensity)
	}
	if rig.Sun.Shadow == nil {
		t.Fatal("sun should cast shadows")
	}
	if rig.Sun.Shadow.MapSize != 2048 {
		t.Errorf("expected shadow map 2048, got %d", rig.Sun.Shadow.MapSize)
	}
	if rig.Hemisphere.Intensity != 0.6 {
		t.Errorf("expected hemisphere 0.6, got %v", rig.Hemisphere.Intensity)
	}
	if len(rig.Fills) != 2 {
		t.Errorf("expected 2 fill lights, got %d", len(rig.Fills))
	}
	for _, f := range rig.Fills {
		if f.Shadow != nil {
			t.Errorf("fill light %s should not cast shadows", f.Name)
		}
	}
	if got := rig.Bounce.Direction(); got != (mgl32.Vec3{0, 1, 0}) {
		t.Errorf("bounce light should point up, got %v", got)
	}
}

func TestDirectionals(t *testing.T) {
	lights := DefaultRig().Directionals()
	if len(lights) != 4 {
		t.Fatalf("expected 4 directional lights, got %d", len(lights))
	}
	if lights[0].Name != "sun" || lights[3].Name != "bounce" {
		t.Errorf("unexpected order: %s ... %s", lights[0].Name, lights[3].Name)
	}
}

func TestGetDirections(t *testing.T) {
	dirs := DefaultRig().GetDirections()
	if len(dirs) != MaxDirectional*3 {
		t.Fatalf("expected %d floats, got %d", MaxDirectional*3, len(dirs))
	}
	for i := 0; i < MaxDirectional; i++ {
		l := math.Sqrt(float64(dirs[i*3]*dirs[i*3] + dirs[i*3+1]*dirs[i*3+1] + dirs[i*3+2]*dirs[i*3+2]))
		if math.Abs(l-1) > 1e-5 {
			t.Errorf("direction %d not normalized: %v", i, l)
		}
	}
	// Sun shines down towards the origin.
	if dirs[1] >= 0 {
		t.Errorf("sun direction should point down, got y=%v", dirs[1])
	}
}

func TestGetColors(t *testing.T) {
	colors := DefaultRig().GetColors()
	if colors[0] != 1.5 || colors[1] != 1.5 || colors[2] != 1.5 {
		t.Errorf("sun radiance = %v, want 1.5 white", colors[:3])
	}
}

func TestShadowMatrixMapsFocus(t *testing.T) {
	rig := DefaultRig()
	m := rig.ShadowMatrix(mgl32.Vec3{})
	p := mgl32.TransformCoordinate(mgl32.Vec3{}, m)
	if math.Abs(float64(p[0])) > 1e-4 || math.Abs(float64(p[1])) > 1e-4 {
		t.Errorf("focus should project to the shadow map center, got %v", p)
	}
	if p[2] < -1 || p[2] > 1 {
		t.Errorf("focus should be inside the depth range, got %v", p[2])
	}
}
