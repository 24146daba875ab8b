// Package input defines host-independent pointer, touch and keyboard events.
package input

// EventType identifies an input event.
type EventType int

const (
	EventNone EventType = iota
	EventQuit
	EventResize
	EventKeyDown
	EventKeyUp
	EventPointerMove
	EventPointerDown
	EventPointerUp
	EventWheel
	EventTouchStart
	EventTouchMove
	EventTouchEnd
	EventContextMenu
	EventContextLost
)

// Button is a mouse button.
type Button uint8

const (
	ButtonNone Button = iota
	ButtonLeft
	ButtonMiddle
	ButtonRight
)

// Key is a keyboard key the viewer reacts to.
type Key int

const (
	KeyUnknown Key = iota
	KeyUp
	KeyDown
	KeyLeft
	KeyRight
	KeyR
	KeyP
	KeyEscape
)

// Touch is one active contact point.
type Touch struct {
	ID   int64
	X, Y float32
}

// Event represents a processed input event.
type Event struct {
	Type    EventType
	X, Y    float32 // Pointer position in pixels
	DeltaY  float32 // Wheel delta, positive scrolls towards the user
	Button  Button
	Key     Key
	Width   int
	Height  int
	Touches []Touch // All active touches after the event

	defaultPrevented bool
}

// PreventDefault marks the event as consumed so the host skips its default
// handling, such as a context menu or touch scrolling.
func (e *Event) PreventDefault() {
	e.defaultPrevented = true
}

// DefaultPrevented reports whether PreventDefault was called.
func (e *Event) DefaultPrevented() bool {
	return e.defaultPrevented
}

// Handler consumes events.
type Handler interface {
	HandleEvent(e *Event) bool
}

// Queue collects events between frames.
type Queue struct {
	events []Event
}

// NewQueue creates an empty queue.
func NewQueue() *Queue {
	return &Queue{events: make([]Event, 0, 16)}
}

// Push appends an event.
func (q *Queue) Push(e Event) {
	q.events = append(q.events, e)
}

// Drain returns the queued events and empties the queue.
func (q *Queue) Drain() []Event {
	events := q.events
	q.events = nil
	return events
}

// Events returns the queued events without removing them.
func (q *Queue) Events() []Event {
	return q.events
}

// IsKeyPressed checks if a key went down since the last drain.
func (q *Queue) IsKeyPressed(key Key) bool {
	for _, e := range q.events {
		if e.Type == EventKeyDown && e.Key == key {
			return true
		}
	}
	return false
}

// Dispatch hands each event to the handlers in order until one consumes it.
func Dispatch(events []Event, handlers ...Handler) {
	for i := range events {
		for _, h := range handlers {
			if h != nil && h.HandleEvent(&events[i]) {
				break
			}
		}
	}
}
