package sdlhost

import (
	"sort"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/Faultbox/estateview/internal/engine/input"
)

// translator converts SDL events into input events.
type translator struct {
	width   int
	height  int
	touches map[sdl.FingerID]input.Touch
}

func newTranslator(width, height int) *translator {
	return &translator{
		width:   width,
		height:  height,
		touches: make(map[sdl.FingerID]input.Touch),
	}
}

// touchMouseID marks mouse events synthesized from touch input.
const touchMouseID = ^uint32(0)

func translateKey(sym sdl.Keycode) input.Key {
	switch sym {
	case sdl.K_UP:
		return input.KeyUp
	case sdl.K_DOWN:
		return input.KeyDown
	case sdl.K_LEFT:
		return input.KeyLeft
	case sdl.K_RIGHT:
		return input.KeyRight
	case sdl.K_r:
		return input.KeyR
	case sdl.K_p:
		return input.KeyP
	case sdl.K_ESCAPE:
		return input.KeyEscape
	}
	return input.KeyUnknown
}

func translateButton(b uint8) input.Button {
	switch b {
	case sdl.BUTTON_LEFT:
		return input.ButtonLeft
	case sdl.BUTTON_MIDDLE:
		return input.ButtonMiddle
	case sdl.BUTTON_RIGHT:
		return input.ButtonRight
	}
	return input.ButtonNone
}

// translate appends the input events for one SDL event.
func (t *translator) translate(out []input.Event, event sdl.Event) []input.Event {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		out = append(out, input.Event{Type: input.EventQuit})

	case *sdl.WindowEvent:
		if e.Event == sdl.WINDOWEVENT_SIZE_CHANGED {
			t.width, t.height = int(e.Data1), int(e.Data2)
			out = append(out, input.Event{
				Type:   input.EventResize,
				Width:  t.width,
				Height: t.height,
			})
		}

	case *sdl.KeyboardEvent:
		key := translateKey(e.Keysym.Sym)
		if key == input.KeyUnknown {
			break
		}
		typ := input.EventKeyUp
		if e.State == sdl.PRESSED {
			typ = input.EventKeyDown
		}
		out = append(out, input.Event{Type: typ, Key: key})

	case *sdl.MouseMotionEvent:
		if e.Which == touchMouseID {
			break
		}
		out = append(out, input.Event{
			Type: input.EventPointerMove,
			X:    float32(e.X),
			Y:    float32(e.Y),
		})

	case *sdl.MouseButtonEvent:
		if e.Which == touchMouseID {
			break
		}
		button := translateButton(e.Button)
		if button == input.ButtonNone {
			break
		}
		typ := input.EventPointerUp
		if e.State == sdl.PRESSED {
			typ = input.EventPointerDown
		}
		out = append(out, input.Event{
			Type:   typ,
			X:      float32(e.X),
			Y:      float32(e.Y),
			Button: button,
		})
		if button == input.ButtonRight && typ == input.EventPointerDown {
			out = append(out, input.Event{Type: input.EventContextMenu, X: float32(e.X), Y: float32(e.Y)})
		}

	case *sdl.MouseWheelEvent:
		dy := -float32(e.Y)
		if e.Direction == uint32(sdl.MOUSEWHEEL_FLIPPED) {
			dy = -dy
		}
		if dy != 0 {
			out = append(out, input.Event{Type: input.EventWheel, DeltaY: dy})
		}

	case *sdl.TouchFingerEvent:
		touch := input.Touch{
			ID: int64(e.FingerID),
			X:  e.X * float32(t.width),
			Y:  e.Y * float32(t.height),
		}
		var typ input.EventType
		switch e.Type {
		case sdl.FINGERDOWN:
			t.touches[e.FingerID] = touch
			typ = input.EventTouchStart
		case sdl.FINGERMOTION:
			t.touches[e.FingerID] = touch
			typ = input.EventTouchMove
		case sdl.FINGERUP:
			delete(t.touches, e.FingerID)
			typ = input.EventTouchEnd
		default:
			return out
		}
		out = append(out, input.Event{Type: typ, X: touch.X, Y: touch.Y, Touches: t.activeTouches()})
	}
	return out
}

// activeTouches returns the current touches ordered by id.
func (t *translator) activeTouches() []input.Touch {
	touches := make([]input.Touch, 0, len(t.touches))
	for _, touch := range t.touches {
		touches = append(touches, touch)
	}
	sort.Slice(touches, func(i, j int) bool { return touches[i].ID < touches[j].ID })
	return touches
}
