package camera

import (
	gomath "math"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"

	"github.com/Faultbox/estateview/internal/engine/input"
	"github.com/Faultbox/estateview/internal/logger"
	"github.com/Faultbox/estateview/pkg/math"
)

const changeEpsilon = 1e-6

// Settings tunes orbit behavior.
type Settings struct {
	EnableDamping bool
	DampingFactor float32
	RotateSpeed   float32
	ZoomSpeed     float32
	PanSpeed      float32
	KeyPanSpeed   float32 // Pixels per key press

	MinPolarAngle float32 // Radians from +Y
	MaxPolarAngle float32
	MinDistance   float32
	MaxDistance   float32
}

// DefaultSettings returns the viewer's orbit defaults.
func DefaultSettings() Settings {
	return Settings{
		EnableDamping: true,
		DampingFactor: 0.08,
		RotateSpeed:   0.8,
		ZoomSpeed:     1.2,
		PanSpeed:      1.0,
		KeyPanSpeed:   7.0,
		MinPolarAngle: 0,
		MaxPolarAngle: gomath.Pi * 0.8,
		MinDistance:   1,
		MaxDistance:   500,
	}
}

type dragState int

const (
	stateNone dragState = iota
	stateRotate
	stateDolly
	statePan
	stateTouchRotate
	stateTouchDollyPan
)

// OrbitControls rotates, dollies and pans a camera around its target.
// Motion is accumulated from input and integrated by Update each frame.
type OrbitControls struct {
	Settings

	cam    *Camera
	width  int
	height int

	state       dragState
	delta       math.Spherical
	scale       float32
	panOffset   mgl32.Vec3
	rotateStart mgl32.Vec2
	panStart    mgl32.Vec2
	dollyStart  mgl32.Vec2
	touchStart  float32

	onStart  func()
	onEnd    func()
	disposed bool
	log      *zap.Logger
}

// NewOrbitControls binds controls to cam for a viewport of width x height.
func NewOrbitControls(cam *Camera, settings Settings, width, height int) *OrbitControls {
	c := &OrbitControls{
		Settings: settings,
		cam:      cam,
		scale:    1,
		log:      logger.Named("orbit"),
	}
	c.SetViewport(width, height)
	return c
}

// Camera returns the controlled camera.
func (c *OrbitControls) Camera() *Camera {
	return c.cam
}

// SetViewport updates the viewport used to scale pointer motion.
func (c *OrbitControls) SetViewport(width, height int) {
	c.width = max(width, 1)
	c.height = max(height, 1)
}

// OnInteraction registers hooks fired when a drag or gesture starts and ends.
func (c *OrbitControls) OnInteraction(start, end func()) {
	c.onStart = start
	c.onEnd = end
}

// Distance returns the current camera to target distance.
func (c *OrbitControls) Distance() float32 {
	return c.cam.Position.Sub(c.cam.Target).Len()
}

// Rig returns the current camera placement and limits.
func (c *OrbitControls) Rig() Rig {
	return Rig{
		Position:    c.cam.Position,
		Target:      c.cam.Target,
		MinDistance: c.MinDistance,
		MaxDistance: c.MaxDistance,
	}
}

// FitToBounds frames the camera around b and rescales the zoom limits.
// Pending motion is discarded.
func (c *OrbitControls) FitToBounds(b math.AABB) {
	rig := ComputeRig(b, c.cam.FOV)
	c.cam.Position = rig.Position
	c.cam.Target = rig.Target
	c.MinDistance = rig.MinDistance
	c.MaxDistance = rig.MaxDistance
	c.reset()
	c.Update()

	c.log.Debug("camera framed",
		zap.Float32("min_distance", rig.MinDistance),
		zap.Float32("max_distance", rig.MaxDistance),
		zap.Float32("distance", c.Distance()))
}

func (c *OrbitControls) reset() {
	c.delta = math.Spherical{}
	c.panOffset = mgl32.Vec3{}
	c.scale = 1
}

// Update integrates pending motion into the camera and reports whether the
// camera moved.
func (c *OrbitControls) Update() bool {
	cam := c.cam
	lastPos, lastTarget := cam.Position, cam.Target

	s := math.SphericalFromVec3(cam.Position.Sub(cam.Target))
	if c.EnableDamping {
		s.Theta += c.delta.Theta * c.DampingFactor
		s.Phi += c.delta.Phi * c.DampingFactor
	} else {
		s.Theta += c.delta.Theta
		s.Phi += c.delta.Phi
	}
	s.Phi = math.Clamp(s.Phi, c.MinPolarAngle, c.MaxPolarAngle)
	s = s.MakeSafe()
	s.Radius = math.Clamp(s.Radius*c.scale, c.MinDistance, c.MaxDistance)

	if c.EnableDamping {
		cam.Target = cam.Target.Add(c.panOffset.Mul(c.DampingFactor))
	} else {
		cam.Target = cam.Target.Add(c.panOffset)
	}
	cam.Position = cam.Target.Add(s.Vec3())

	if c.EnableDamping {
		decay := 1 - c.DampingFactor
		c.delta.Theta *= decay
		c.delta.Phi *= decay
		c.panOffset = c.panOffset.Mul(decay)
	} else {
		c.delta = math.Spherical{}
		c.panOffset = mgl32.Vec3{}
	}
	c.scale = 1

	moved := cam.Position.Sub(lastPos)
	shifted := cam.Target.Sub(lastTarget)
	return moved.Dot(moved) > changeEpsilon || shifted.Dot(shifted) > changeEpsilon
}

// Dispose unbinds the controls. Later events are ignored.
func (c *OrbitControls) Dispose() {
	if c.state != stateNone && c.onEnd != nil {
		c.onEnd()
	}
	c.disposed = true
	c.state = stateNone
	c.onStart, c.onEnd = nil, nil
	c.reset()
}

// HandleEvent applies an input event and reports whether it was consumed.
func (c *OrbitControls) HandleEvent(e *input.Event) bool {
	if c.disposed {
		return false
	}

	switch e.Type {
	case input.EventResize:
		c.SetViewport(e.Width, e.Height)
		return false

	case input.EventContextMenu:
		e.PreventDefault()
		return true

	case input.EventPointerDown:
		return c.pointerDown(e)

	case input.EventPointerMove:
		return c.pointerMove(e)

	case input.EventPointerUp:
		if c.state == stateNone {
			return false
		}
		c.endDrag()
		return true

	case input.EventWheel:
		if e.DeltaY == 0 || c.state != stateNone {
			return false
		}
		e.PreventDefault()
		c.fire(c.onStart)
		if e.DeltaY < 0 {
			c.dollyIn(c.zoomScale())
		} else {
			c.dollyOut(c.zoomScale())
		}
		c.fire(c.onEnd)
		return true

	case input.EventTouchStart:
		e.PreventDefault()
		c.touchBegin(e.Touches)
		return true

	case input.EventTouchMove:
		e.PreventDefault()
		c.touchMove(e.Touches)
		return true

	case input.EventTouchEnd:
		e.PreventDefault()
		if len(e.Touches) == 0 {
			if c.state != stateNone {
				c.endDrag()
			}
		} else {
			// Remaining fingers restart the gesture from their positions.
			c.touchBegin(e.Touches)
		}
		return true

	case input.EventKeyDown:
		return c.keyDown(e.Key)
	}
	return false
}

func (c *OrbitControls) pointerDown(e *input.Event) bool {
	p := mgl32.Vec2{e.X, e.Y}
	switch e.Button {
	case input.ButtonLeft:
		c.rotateStart = p
		c.state = stateRotate
	case input.ButtonMiddle:
		c.dollyStart = p
		c.state = stateDolly
	case input.ButtonRight:
		c.panStart = p
		c.state = statePan
	default:
		return false
	}
	c.fire(c.onStart)
	return true
}

func (c *OrbitControls) pointerMove(e *input.Event) bool {
	p := mgl32.Vec2{e.X, e.Y}
	switch c.state {
	case stateRotate:
		c.rotateBy(p.Sub(c.rotateStart))
		c.rotateStart = p
	case stateDolly:
		dy := p[1] - c.dollyStart[1]
		if dy > 0 {
			c.dollyOut(c.zoomScale())
		} else if dy < 0 {
			c.dollyIn(c.zoomScale())
		}
		c.dollyStart = p
	case statePan:
		d := p.Sub(c.panStart).Mul(c.PanSpeed)
		c.pan(d[0], d[1])
		c.panStart = p
	default:
		return false
	}
	return true
}

func (c *OrbitControls) touchBegin(touches []input.Touch) {
	wasIdle := c.state == stateNone
	switch len(touches) {
	case 1:
		c.rotateStart = mgl32.Vec2{touches[0].X, touches[0].Y}
		c.state = stateTouchRotate
	case 2:
		c.touchStart = touchDistance(touches)
		c.panStart = touchCenter(touches)
		c.state = stateTouchDollyPan
	default:
		c.state = stateNone
	}
	if wasIdle && c.state != stateNone {
		c.fire(c.onStart)
	}
}

func (c *OrbitControls) touchMove(touches []input.Touch) {
	switch {
	case c.state == stateTouchRotate && len(touches) == 1:
		p := mgl32.Vec2{touches[0].X, touches[0].Y}
		c.rotateBy(p.Sub(c.rotateStart))
		c.rotateStart = p

	case c.state == stateTouchDollyPan && len(touches) == 2:
		dist := touchDistance(touches)
		if c.touchStart > 0 && dist > 0 {
			ratio := float32(gomath.Pow(float64(dist/c.touchStart), float64(c.ZoomSpeed)))
			c.dollyOut(ratio)
		}
		c.touchStart = dist

		center := touchCenter(touches)
		d := center.Sub(c.panStart).Mul(c.PanSpeed)
		c.pan(d[0], d[1])
		c.panStart = center
	}
}

func (c *OrbitControls) keyDown(k input.Key) bool {
	switch k {
	case input.KeyUp:
		c.pan(0, c.KeyPanSpeed)
	case input.KeyDown:
		c.pan(0, -c.KeyPanSpeed)
	case input.KeyLeft:
		c.pan(c.KeyPanSpeed, 0)
	case input.KeyRight:
		c.pan(-c.KeyPanSpeed, 0)
	default:
		return false
	}
	return true
}

func (c *OrbitControls) endDrag() {
	c.state = stateNone
	c.fire(c.onEnd)
}

func (c *OrbitControls) fire(fn func()) {
	if fn != nil {
		fn()
	}
}

// rotateBy turns a pointer delta in pixels into orbit angles. A drag across
// the full viewport height is one revolution at unit speed.
func (c *OrbitControls) rotateBy(d mgl32.Vec2) {
	d = d.Mul(c.RotateSpeed)
	h := float32(c.height)
	c.delta.Theta -= 2 * gomath.Pi * d[0] / h
	c.delta.Phi -= 2 * gomath.Pi * d[1] / h
}

func (c *OrbitControls) zoomScale() float32 {
	return float32(gomath.Pow(0.95, float64(c.ZoomSpeed)))
}

func (c *OrbitControls) dollyIn(s float32) {
	c.scale *= s
}

func (c *OrbitControls) dollyOut(s float32) {
	if s != 0 {
		c.scale /= s
	}
}

// pan moves the target by a pixel delta, scaled so a point at the target
// depth follows the pointer. Vertical motion slides along the ground.
func (c *OrbitControls) pan(dx, dy float32) {
	offset := c.cam.Position.Sub(c.cam.Target)
	targetDistance := offset.Len() * float32(gomath.Tan(float64(math.DegToRad(c.cam.FOV))/2))
	h := float32(c.height)

	right := c.cam.Right()
	c.panOffset = c.panOffset.Add(right.Mul(-2 * dx * targetDistance / h))

	forward := c.cam.Up.Cross(right)
	c.panOffset = c.panOffset.Add(forward.Mul(2 * dy * targetDistance / h))
}

func touchDistance(t []input.Touch) float32 {
	dx := t[0].X - t[1].X
	dy := t[0].Y - t[1].Y
	return float32(gomath.Sqrt(float64(dx*dx + dy*dy)))
}

func touchCenter(t []input.Touch) mgl32.Vec2 {
	return mgl32.Vec2{(t[0].X + t[1].X) / 2, (t[0].Y + t[1].Y) / 2}
}
