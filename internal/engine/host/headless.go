package host

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/Faultbox/estateview/internal/engine/camera"
	"github.com/Faultbox/estateview/internal/engine/input"
	"github.com/Faultbox/estateview/internal/engine/scene"
)

// ErrDisposed is returned when a disposed surface is used.
var ErrDisposed = errors.New("render surface disposed")

var (
	_ Surface       = (*Headless)(nil)
	_ RenderSurface = (*HeadlessSurface)(nil)
)

type pendingFrame struct {
	id FrameID
	fn FrameFunc
}

// Headless is an in-memory host. Frames only run when Step is called.
type Headless struct {
	mu       sync.Mutex
	width    int
	height   int
	now      time.Time
	nextID   FrameID
	pending  []pendingFrame
	observer map[int]func(int, int)
	nextObs  int
	surfaces []*HeadlessSurface
	detached input.Handler

	// CreateErr makes the next CreateRenderSurface calls fail.
	CreateErr error
}

// NewHeadless creates a headless host with the given viewport size.
func NewHeadless(width, height int) *Headless {
	return &Headless{
		width:    width,
		height:   height,
		now:      time.Unix(0, 0),
		observer: make(map[int]func(int, int)),
	}
}

// ScheduleFrame queues fn for the next Step.
func (h *Headless) ScheduleFrame(fn FrameFunc) FrameID {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.pending = append(h.pending, pendingFrame{id: h.nextID, fn: fn})
	return h.nextID
}

// CancelFrame removes a queued callback. Unknown ids are ignored.
func (h *Headless) CancelFrame(id FrameID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, p := range h.pending {
		if p.id == id {
			h.pending = append(h.pending[:i], h.pending[i+1:]...)
			return
		}
	}
}

// Pending returns the number of queued frame callbacks.
func (h *Headless) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// Step advances the clock by dt and runs the callbacks queued before the
// call. It returns how many ran.
func (h *Headless) Step(dt time.Duration) int {
	h.mu.Lock()
	h.now = h.now.Add(dt)
	now := h.now
	batch := h.pending
	h.pending = nil
	h.mu.Unlock()

	for _, p := range batch {
		p.fn(now)
	}
	return len(batch)
}

// Now returns the host clock.
func (h *Headless) Now() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.now
}

// CreateRenderSurface creates a surface sized to the host viewport.
func (h *Headless) CreateRenderSurface() (RenderSurface, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.CreateErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrSurfaceUnavailable, h.CreateErr)
	}
	s := &HeadlessSurface{width: h.width, height: h.height}
	h.surfaces = append(h.surfaces, s)
	return s, nil
}

// Surface returns the most recently created surface, or nil.
func (h *Headless) Surface() *HeadlessSurface {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.surfaces) == 0 {
		return nil
	}
	return h.surfaces[len(h.surfaces)-1]
}

// OnDetachedInput sets the handler Push uses when no live surface exists.
func (h *Headless) OnDetachedInput(handler input.Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detached = handler
}

// Push delivers a window event: to the newest surface while it is live,
// otherwise straight to the detached input handler.
func (h *Headless) Push(e input.Event) {
	h.mu.Lock()
	var s *HeadlessSurface
	if n := len(h.surfaces); n > 0 {
		s = h.surfaces[n-1]
	}
	handler := h.detached
	h.mu.Unlock()

	if s != nil && !s.Disposed() {
		s.Push(e)
		return
	}
	if handler != nil {
		input.Dispatch([]input.Event{e}, handler)
	}
}

// SurfaceCount returns how many surfaces were created.
func (h *Headless) SurfaceCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.surfaces)
}

// ObserveResize registers fn for Resize calls.
func (h *Headless) ObserveResize(fn func(width, height int)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextObs
	h.nextObs++
	h.observer[id] = fn
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.observer, id)
	}
}

// Resize changes the viewport, resizes the newest surface and notifies
// observers.
func (h *Headless) Resize(width, height int) {
	h.mu.Lock()
	h.width, h.height = width, height
	if n := len(h.surfaces); n > 0 {
		h.surfaces[n-1].Resize(width, height)
	}
	fns := make([]func(int, int), 0, len(h.observer))
	for _, fn := range h.observer {
		fns = append(fns, fn)
	}
	h.mu.Unlock()

	for _, fn := range fns {
		fn(width, height)
	}
}

// HeadlessSurface records renders instead of drawing.
type HeadlessSurface struct {
	mu         sync.Mutex
	width      int
	height     int
	renders    int
	failures   []error
	panics     int
	events     input.Queue
	lost       []func()
	grabbing   bool
	disposed   bool
	lastBg     color.RGBA
	lastModel  string
	lastCamera camera.Camera
}

// Render counts the frame, or fails if a fault was injected.
func (s *HeadlessSurface) Render(sc *scene.Scene, cam *camera.Camera) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if s.panics > 0 {
		s.panics--
		s.mu.Unlock()
		panic("injected render panic")
	}
	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		s.mu.Unlock()
		return err
	}
	defer s.mu.Unlock()

	s.renders++
	s.lastBg = color.RGBA{
		R: uint8(sc.Background[0] * 255),
		G: uint8(sc.Background[1] * 255),
		B: uint8(sc.Background[2] * 255),
		A: 0xff,
	}
	s.lastModel = ""
	if m := sc.Model(); m != nil {
		s.lastModel = m.Name
	}
	if cam != nil {
		s.lastCamera = *cam
	}
	return nil
}

// FailNext makes the next Render calls return errs in order.
func (s *HeadlessSurface) FailNext(errs ...error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, errs...)
}

// PanicNext makes the next n Render calls panic.
func (s *HeadlessSurface) PanicNext(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.panics += n
}

// Renders returns the number of successful renders.
func (s *HeadlessSurface) Renders() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.renders
}

// LastModel returns the model name seen by the last render.
func (s *HeadlessSurface) LastModel() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastModel
}

// LastCamera returns the camera state seen by the last render.
func (s *HeadlessSurface) LastCamera() camera.Camera {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCamera
}

// Resize sets the surface size.
func (s *HeadlessSurface) Resize(width, height int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.width, s.height = width, height
}

// Size returns the surface size.
func (s *HeadlessSurface) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

// Push queues an input event for the next Events call.
func (s *HeadlessSurface) Push(e input.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events.Push(e)
}

// Events drains queued input.
func (s *HeadlessSurface) Events() []input.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]input.Event(nil), s.events.Drain()...)
}

// OnContextLost registers a context loss callback.
func (s *HeadlessSurface) OnContextLost(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lost = append(s.lost, fn)
}

// LoseContext simulates a lost graphics context.
func (s *HeadlessSurface) LoseContext() {
	s.mu.Lock()
	fns := append([]func(){}, s.lost...)
	s.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// SetGrabbing records the cursor state.
func (s *HeadlessSurface) SetGrabbing(grabbing bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.grabbing = grabbing
}

// Grabbing reports the cursor state.
func (s *HeadlessSurface) Grabbing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.grabbing
}

// Capture returns a frame filled with the last background color.
func (s *HeadlessSurface) Capture() (*image.RGBA, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return nil, ErrDisposed
	}
	img := image.NewRGBA(image.Rect(0, 0, s.width, s.height))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = s.lastBg.R
		img.Pix[i+1] = s.lastBg.G
		img.Pix[i+2] = s.lastBg.B
		img.Pix[i+3] = s.lastBg.A
	}
	return img, nil
}

// Dispose releases the surface. Further calls are no-ops.
func (s *HeadlessSurface) Dispose() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disposed = true
	s.lost = nil
	return nil
}

// Disposed reports whether Dispose was called.
func (s *HeadlessSurface) Disposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}
