package math

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func approx(a, b float32) bool {
	return float32(math.Abs(float64(a-b))) < 1e-4
}

func TestEmptyAABB(t *testing.T) {
	b := EmptyAABB()
	if !b.IsEmpty() {
		t.Fatal("EmptyAABB() should be empty")
	}
	if s := b.Size(); s != (mgl32.Vec3{}) {
		t.Errorf("empty Size() = %v, want zero", s)
	}
	if d := b.MaxDim(); d != 0 {
		t.Errorf("empty MaxDim() = %v, want 0", d)
	}
}

func TestAABBExtend(t *testing.T) {
	b := EmptyAABB().
		Extend(mgl32.Vec3{1, 2, 3}).
		Extend(mgl32.Vec3{-1, 0, 5})

	if b.IsEmpty() {
		t.Fatal("box should not be empty")
	}
	if b.Min != (mgl32.Vec3{-1, 0, 3}) {
		t.Errorf("Min = %v", b.Min)
	}
	if b.Max != (mgl32.Vec3{1, 2, 5}) {
		t.Errorf("Max = %v", b.Max)
	}
	if c := b.Center(); c != (mgl32.Vec3{0, 1, 4}) {
		t.Errorf("Center() = %v", c)
	}
	if d := b.MaxDim(); d != 2 {
		t.Errorf("MaxDim() = %v, want 2", d)
	}
}

func TestAABBFromPoints(t *testing.T) {
	b := AABBFromPoints([]float32{
		0, 0, 0,
		10, 10, 10,
		-5, 3, 2,
	})
	if b.Min != (mgl32.Vec3{-5, 0, 0}) || b.Max != (mgl32.Vec3{10, 10, 10}) {
		t.Errorf("AABBFromPoints() = %v", b)
	}

	if !AABBFromPoints(nil).IsEmpty() {
		t.Error("no points should give an empty box")
	}
}

func TestAABBUnion(t *testing.T) {
	a := AABB{Min: mgl32.Vec3{0, 0, 0}, Max: mgl32.Vec3{1, 1, 1}}
	b := AABB{Min: mgl32.Vec3{-2, 0.5, 0}, Max: mgl32.Vec3{0, 3, 0.5}}

	u := a.Union(b)
	if u.Min != (mgl32.Vec3{-2, 0, 0}) || u.Max != (mgl32.Vec3{1, 3, 1}) {
		t.Errorf("Union() = %v", u)
	}
	if got := a.Union(EmptyAABB()); got != a {
		t.Errorf("Union(empty) = %v, want %v", got, a)
	}
	if got := EmptyAABB().Union(a); got != a {
		t.Errorf("empty.Union(a) = %v, want %v", got, a)
	}
}

func TestAABBDiagonal(t *testing.T) {
	b := AABB{Min: mgl32.Vec3{0, 0, 0}, Max: mgl32.Vec3{3, 4, 0}}
	if d := b.Diagonal(); !approx(d, 5) {
		t.Errorf("Diagonal() = %v, want 5", d)
	}
}

func TestAABBTranslate(t *testing.T) {
	b := AABB{Min: mgl32.Vec3{-1, 2, -1}, Max: mgl32.Vec3{1, 4, 1}}
	moved := b.Translate(mgl32.Vec3{0, -2, 0})
	if moved.Min[1] != 0 || moved.Max[1] != 2 {
		t.Errorf("Translate() = %v", moved)
	}
	if !EmptyAABB().Translate(mgl32.Vec3{1, 1, 1}).IsEmpty() {
		t.Error("translating an empty box should stay empty")
	}
}
