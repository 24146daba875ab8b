package shader

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestEmbeddedSources(t *testing.T) {
	for _, name := range []string{Mesh, Line, Sky, Depth} {
		vert, frag, err := Source(name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		for stage, src := range map[string]string{"vertex": vert, "fragment": frag} {
			if !strings.HasPrefix(src, "#version 410 core") {
				t.Errorf("%s %s shader should target GLSL 410 core", name, stage)
			}
			if !strings.Contains(src, "void main()") {
				t.Errorf("%s %s shader has no main", name, stage)
			}
		}
	}
}

func TestUnknownSource(t *testing.T) {
	if _, _, err := Source("toon"); err == nil {
		t.Error("expected error for unknown shader")
	}
}

func TestCompileErrorTrimsDriverLog(t *testing.T) {
	log := []byte("0:12(3): error: `normal' undeclared\n\x00\x00")
	err := fmt.Errorf("creating renderer: %w", newCompileError(Mesh, "fragment", log))

	var ce *CompileError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CompileError, got %v", err)
	}
	if ce.Stage != "fragment" || ce.Program != Mesh {
		t.Errorf("got program %q stage %q", ce.Program, ce.Stage)
	}
	want := `shader "mesh" fragment: 0:12(3): error: ` + "`normal' undeclared"
	if ce.Error() != want {
		t.Errorf("Error() = %q, want %q", ce.Error(), want)
	}
}
