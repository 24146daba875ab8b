package loop

import (
	"errors"
	"testing"
	"time"

	"github.com/Faultbox/estateview/internal/engine/camera"
	"github.com/Faultbox/estateview/internal/engine/host"
	"github.com/Faultbox/estateview/internal/engine/scene"
)

const frame = 16 * time.Millisecond

func TestLoopSchedulesEveryFrame(t *testing.T) {
	h := host.NewHeadless(320, 240)
	renders := 0
	var ticks []time.Duration
	l := New(h, func(dt time.Duration, _ time.Time) { ticks = append(ticks, dt) }, func() error {
		renders++
		return nil
	})

	l.Start()
	l.Start()
	if h.Pending() != 1 {
		t.Fatalf("expected 1 pending frame, got %d", h.Pending())
	}
	for i := 0; i < 5; i++ {
		h.Step(frame)
	}

	if renders != 5 {
		t.Errorf("expected 5 renders, got %d", renders)
	}
	// The first frame has no previous timestamp.
	if len(ticks) != 4 {
		t.Fatalf("expected 4 ticks, got %d", len(ticks))
	}
	for _, dt := range ticks {
		if dt != frame {
			t.Errorf("dt = %v, want %v", dt, frame)
		}
	}
}

func TestLoopSkipsLongGaps(t *testing.T) {
	h := host.NewHeadless(320, 240)
	ticks := 0
	renders := 0
	l := New(h, func(time.Duration, time.Time) { ticks++ }, func() error {
		renders++
		return nil
	})
	l.Start()

	h.Step(frame)
	h.Step(frame)
	h.Step(2 * time.Second)
	h.Step(MaxTickDelta)
	h.Step(frame)

	if ticks != 2 {
		t.Errorf("expected 2 ticks, got %d", ticks)
	}
	if renders != 5 {
		t.Errorf("long gaps should still render, got %d renders", renders)
	}
}

func TestLoopSurvivesRenderFailures(t *testing.T) {
	h := host.NewHeadless(320, 240)
	calls := 0
	l := New(h, nil, func() error {
		calls++
		switch calls {
		case 2:
			return errors.New("transient gpu error")
		case 3:
			panic("driver crash")
		}
		return nil
	})
	l.Start()

	for i := 0; i < 5; i++ {
		h.Step(frame)
	}

	if calls != 5 {
		t.Errorf("expected 5 render calls, got %d", calls)
	}
	if l.Failures() != 2 {
		t.Errorf("expected 2 failures, got %d", l.Failures())
	}
	if !l.Running() || h.Pending() != 1 {
		t.Error("loop should keep scheduling after failures")
	}
}

func TestLoopCancelIdempotent(t *testing.T) {
	h := host.NewHeadless(320, 240)
	renders := 0
	l := New(h, nil, func() error {
		renders++
		return nil
	})
	l.Start()
	h.Step(frame)

	l.Cancel()
	l.Cancel()

	if l.Running() {
		t.Error("loop should stop after Cancel")
	}
	if h.Pending() != 0 {
		t.Errorf("expected no pending frames, got %d", h.Pending())
	}
	h.Step(frame)
	if renders != 1 {
		t.Errorf("no frame should render after Cancel, got %d renders", renders)
	}

	l.Start()
	if l.Running() {
		t.Error("cancelled loop should not restart")
	}
}

func TestLoopCancelFromRender(t *testing.T) {
	h := host.NewHeadless(320, 240)
	var l *Loop
	l = New(h, nil, func() error {
		l.Cancel()
		return nil
	})
	l.Start()
	h.Step(frame)

	if h.Pending() != 0 {
		t.Error("cancelling inside a frame should not reschedule")
	}
	if l.Frames() != 1 {
		t.Errorf("expected 1 frame, got %d", l.Frames())
	}
}

func TestLoopHeadlessSurfaceFaults(t *testing.T) {
	h := host.NewHeadless(320, 240)
	rs, err := h.CreateRenderSurface()
	if err != nil {
		t.Fatal(err)
	}
	surface := h.Surface()
	surface.FailNext(errors.New("lost buffer"))
	surface.PanicNext(1)

	sc := scene.New(scene.Config{GroundTextureSize: 16, Seed: 1})
	cam := camera.New(4.0 / 3.0)
	l := New(h, nil, func() error { return rs.Render(sc, cam) })
	l.Start()
	for i := 0; i < 4; i++ {
		h.Step(frame)
	}

	if l.Failures() != 2 {
		t.Errorf("expected 2 failures, got %d", l.Failures())
	}
	if surface.Renders() != 2 {
		t.Errorf("expected 2 renders, got %d", surface.Renders())
	}
}

func TestLoopEachRunsOnEveryFrame(t *testing.T) {
	h := host.NewHeadless(320, 240)
	var seen []time.Time
	renders := 0
	l := New(h, nil, func() error {
		renders++
		return nil
	})
	l.Each(func(now time.Time) { seen = append(seen, now) })
	l.Start()

	h.Step(frame)
	h.Step(2 * time.Second)
	h.Step(frame)

	if len(seen) != 3 {
		t.Fatalf("expected 3 calls, got %d", len(seen))
	}
	if !seen[2].Equal(h.Now()) {
		t.Errorf("each got %v, want host clock %v", seen[2], h.Now())
	}
	if renders != 3 {
		t.Errorf("expected 3 renders, got %d", renders)
	}
}

func TestLoopCancelFromEachSkipsRender(t *testing.T) {
	h := host.NewHeadless(320, 240)
	renders := 0
	var l *Loop
	l = New(h, nil, func() error {
		renders++
		return nil
	})
	l.Each(func(time.Time) { l.Cancel() })
	l.Start()

	h.Step(frame)
	h.Step(frame)

	if renders != 0 {
		t.Errorf("expected no renders after cancel, got %d", renders)
	}
	if h.Pending() != 0 {
		t.Errorf("expected no pending frames, got %d", h.Pending())
	}
}
