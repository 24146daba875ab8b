// Package host abstracts the platform that owns the window, the frame
// scheduler and the graphics context, so the viewer core runs the same
// against SDL and against a headless test host.
package host

import (
	"errors"
	"image"
	"time"

	"github.com/Faultbox/estateview/internal/engine/camera"
	"github.com/Faultbox/estateview/internal/engine/input"
	"github.com/Faultbox/estateview/internal/engine/scene"
)

// ErrSurfaceUnavailable is returned when a render surface cannot be created.
var ErrSurfaceUnavailable = errors.New("render surface unavailable")

// FrameID identifies a scheduled frame callback.
type FrameID uint64

// FrameFunc is called once per scheduled frame with the frame timestamp.
type FrameFunc func(now time.Time)

// Scheduler runs callbacks on the next frame.
type Scheduler interface {
	ScheduleFrame(fn FrameFunc) FrameID
	CancelFrame(id FrameID)
}

// Surface is the platform capability the viewer is built on.
type Surface interface {
	Scheduler
	CreateRenderSurface() (RenderSurface, error)
	// ObserveResize registers fn for size changes and returns a function
	// that stops observing.
	ObserveResize(fn func(width, height int)) (stop func())
	// OnDetachedInput sets the handler for input that arrives while no
	// render surface exists. A nil handler drops such input.
	OnDetachedInput(h input.Handler)
}

// RenderSurface draws a scene from a camera into a graphics context.
type RenderSurface interface {
	Render(s *scene.Scene, cam *camera.Camera) error
	Resize(width, height int)
	Size() (width, height int)
	// Events drains the input received since the last call.
	Events() []input.Event
	// OnContextLost registers fn to run when the graphics context is lost.
	OnContextLost(fn func())
	// SetGrabbing switches the pointer between the grab and grabbing cursors.
	SetGrabbing(grabbing bool)
	// Capture reads back the last rendered frame.
	Capture() (*image.RGBA, error)
	Dispose() error
}
