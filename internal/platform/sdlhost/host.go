package sdlhost

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/veandco/go-sdl2/sdl"
	"go.uber.org/zap"

	"github.com/Faultbox/estateview/internal/engine/camera"
	"github.com/Faultbox/estateview/internal/engine/host"
	"github.com/Faultbox/estateview/internal/engine/input"
	"github.com/Faultbox/estateview/internal/engine/scene"
	"github.com/Faultbox/estateview/internal/logger"
)

var (
	_ host.Surface       = (*Host)(nil)
	_ host.RenderSurface = (*Surface)(nil)
)

// idleWait bounds how long Run blocks for events when no frame is pending.
const idleWait = 16 * time.Millisecond

type frameRequest struct {
	id host.FrameID
	fn host.FrameFunc
}

// Host owns the SDL window and runs frame callbacks on the main thread.
type Host struct {
	window     *Window
	translator *translator
	log        *zap.Logger

	mu       sync.Mutex
	nextID   host.FrameID
	frames   []frameRequest
	observer map[int]func(int, int)
	nextObs  int
	surface  *Surface
	detached input.Handler

	grab     *sdl.Cursor
	grabbing *sdl.Cursor
}

// New opens the window. Call Close when done.
func New(cfg WindowConfig) (*Host, error) {
	log := logger.Named("sdlhost")
	w, err := newWindow(cfg, log)
	if err != nil {
		return nil, err
	}
	h := &Host{
		window:     w,
		translator: newTranslator(cfg.Width, cfg.Height),
		log:        log,
		observer:   make(map[int]func(int, int)),
		grab:       sdl.CreateSystemCursor(sdl.SYSTEM_CURSOR_HAND),
		grabbing:   sdl.CreateSystemCursor(sdl.SYSTEM_CURSOR_SIZEALL),
	}
	if h.grab != nil {
		sdl.SetCursor(h.grab)
	}
	return h, nil
}

// Window returns the host window.
func (h *Host) Window() *Window {
	return h.window
}

// ScheduleFrame queues fn for the next iteration of Run.
func (h *Host) ScheduleFrame(fn host.FrameFunc) host.FrameID {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	h.frames = append(h.frames, frameRequest{id: h.nextID, fn: fn})
	return h.nextID
}

// CancelFrame drops a queued callback.
func (h *Host) CancelFrame(id host.FrameID) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, f := range h.frames {
		if f.id == id {
			h.frames = append(h.frames[:i], h.frames[i+1:]...)
			return
		}
	}
}

// ObserveResize registers fn for window size changes.
func (h *Host) ObserveResize(fn func(width, height int)) func() {
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

// OnDetachedInput sets the handler for events that arrive while no surface
// exists. Run calls it on the main thread.
func (h *Host) OnDetachedInput(handler input.Handler) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detached = handler
}

// CreateRenderSurface creates a fresh GL context and renderer on the window.
// A previous surface is disposed first.
func (h *Host) CreateRenderSurface() (host.RenderSurface, error) {
	h.mu.Lock()
	old := h.surface
	h.surface = nil
	h.mu.Unlock()
	if old != nil {
		if err := old.Dispose(); err != nil {
			h.log.Warn("disposing previous surface", zap.Error(err))
		}
	}

	ctx, err := h.window.createContext()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", host.ErrSurfaceUnavailable, err)
	}
	width, height := h.window.Size()
	r, err := newRenderer(width, height, h.log)
	if err != nil {
		sdl.GLDeleteContext(ctx)
		return nil, fmt.Errorf("%w: %w", host.ErrSurfaceUnavailable, err)
	}

	s := &Surface{host: h, ctx: ctx, renderer: r, width: width, height: height}
	h.mu.Lock()
	h.surface = s
	h.mu.Unlock()
	return s, nil
}

// Run pumps window events and frame callbacks until the window is closed or
// ctx is done.
func (h *Host) Run(ctx context.Context) error {
	var events []input.Event
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		h.mu.Lock()
		idle := len(h.frames) == 0
		h.mu.Unlock()

		events = events[:0]
		var ev sdl.Event
		if idle {
			ev = sdl.WaitEventTimeout(int(idleWait / time.Millisecond))
		} else {
			ev = sdl.PollEvent()
		}
		for ; ev != nil; ev = sdl.PollEvent() {
			events = h.translator.translate(events, ev)
		}

		for _, e := range events {
			switch e.Type {
			case input.EventQuit:
				h.log.Info("quit requested")
				return nil
			case input.EventResize:
				h.resized(e.Width, e.Height)
			}
		}
		if s := h.current(); s != nil {
			s.push(events)
		} else if d := h.detachedHandler(); d != nil {
			input.Dispatch(events, d)
		}

		h.runFrames()

		if s := h.current(); s != nil {
			s.checkLost()
		}
	}
}

func (h *Host) current() *Surface {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.surface
}

func (h *Host) detachedHandler() input.Handler {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.detached
}

func (h *Host) resized(width, height int) {
	dw, dh := h.window.Size()
	if s := h.current(); s != nil {
		s.Resize(dw, dh)
	}
	h.mu.Lock()
	fns := make([]func(int, int), 0, len(h.observer))
	for _, fn := range h.observer {
		fns = append(fns, fn)
	}
	h.mu.Unlock()
	for _, fn := range fns {
		fn(width, height)
	}
}

func (h *Host) runFrames() {
	h.mu.Lock()
	batch := h.frames
	h.frames = nil
	h.mu.Unlock()

	now := time.Now()
	for _, f := range batch {
		f.fn(now)
	}
}

// Close disposes the current surface and the window.
func (h *Host) Close() error {
	var err error
	if s := h.current(); s != nil {
		err = s.Dispose()
	}
	if h.grab != nil {
		sdl.FreeCursor(h.grab)
	}
	if h.grabbing != nil {
		sdl.FreeCursor(h.grabbing)
	}
	h.window.Close()
	return err
}

// Surface is a GL context with its scene renderer.
type Surface struct {
	host     *Host
	ctx      sdl.GLContext
	renderer *Renderer

	mu       sync.Mutex
	width    int
	height   int
	events   input.Queue
	lostFns  []func()
	lost     bool
	notified bool
	disposed bool

	lastScene  *scene.Scene
	lastCamera *camera.Camera
}

// Render draws the scene and presents it.
func (s *Surface) Render(sc *scene.Scene, cam *camera.Camera) error {
	if s.isDisposed() {
		return host.ErrSurfaceUnavailable
	}
	err := s.renderer.Render(sc, cam)
	if errors.Is(err, ErrContextLost) {
		s.mu.Lock()
		s.lost = true
		s.mu.Unlock()
		return err
	}
	s.lastScene, s.lastCamera = sc, cam
	s.host.window.SwapBuffers()
	return err
}

// Resize updates the drawable size.
func (s *Surface) Resize(width, height int) {
	s.mu.Lock()
	s.width, s.height = width, height
	s.mu.Unlock()
	s.renderer.Resize(width, height)
}

// Size returns the drawable size in pixels.
func (s *Surface) Size() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.width, s.height
}

func (s *Surface) push(events []input.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range events {
		s.events.Push(e)
	}
}

// Events drains the input received since the last call.
func (s *Surface) Events() []input.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.events.Drain()
}

// OnContextLost registers fn to run after the context is lost. Callbacks
// run on the host loop, outside of any frame.
func (s *Surface) OnContextLost(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lostFns = append(s.lostFns, fn)
}

func (s *Surface) checkLost() {
	s.mu.Lock()
	if !s.lost || s.notified || s.disposed {
		s.mu.Unlock()
		return
	}
	s.notified = true
	fns := append([]func(){}, s.lostFns...)
	s.mu.Unlock()

	s.host.log.Warn("GL context lost")
	for _, fn := range fns {
		fn()
	}
}

// SetGrabbing switches between the grab and grabbing cursors.
func (s *Surface) SetGrabbing(grabbing bool) {
	c := s.host.grab
	if grabbing {
		c = s.host.grabbing
	}
	if c != nil {
		sdl.SetCursor(c)
	}
}

// Capture renders the last frame again and reads it back top row first.
func (s *Surface) Capture() (*image.RGBA, error) {
	if s.isDisposed() {
		return nil, host.ErrSurfaceUnavailable
	}
	if s.lastScene == nil || s.lastCamera == nil {
		return nil, errors.New("nothing rendered yet")
	}
	if err := s.renderer.Render(s.lastScene, s.lastCamera); err != nil {
		return nil, fmt.Errorf("capture render: %w", err)
	}

	width, height := s.Size()
	pixels := make([]byte, width*height*4)
	gl.PixelStorei(gl.PACK_ALIGNMENT, 1)
	gl.ReadBuffer(gl.BACK)
	gl.ReadPixels(0, 0, int32(width), int32(height), gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(pixels))
	if code := gl.GetError(); code != gl.NO_ERROR {
		return nil, fmt.Errorf("read pixels: gl error 0x%x", code)
	}
	return flipRows(pixels, width, height), nil
}

// flipRows copies bottom-up GL pixels into a top-down image.
func flipRows(pixels []byte, width, height int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	rowSize := width * 4
	for y := 0; y < height; y++ {
		src := (height - 1 - y) * rowSize
		dst := y * img.Stride
		copy(img.Pix[dst:dst+rowSize], pixels[src:src+rowSize])
	}
	return img
}

func (s *Surface) isDisposed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disposed
}

// Dispose releases the renderer and the GL context. It is safe to call twice.
func (s *Surface) Dispose() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	s.disposed = true
	s.lostFns = nil
	s.lastScene, s.lastCamera = nil, nil
	s.mu.Unlock()

	s.renderer.Dispose()
	sdl.GLDeleteContext(s.ctx)

	s.host.mu.Lock()
	if s.host.surface == s {
		s.host.surface = nil
	}
	s.host.mu.Unlock()
	return nil
}
