package input

import "testing"

type recorder struct {
	consume bool
	seen    []EventType
}

func (r *recorder) HandleEvent(e *Event) bool {
	r.seen = append(r.seen, e.Type)
	return r.consume
}

func TestQueueDrain(t *testing.T) {
	q := NewQueue()
	q.Push(Event{Type: EventKeyDown, Key: KeyR})
	q.Push(Event{Type: EventPointerMove})

	if !q.IsKeyPressed(KeyR) || q.IsKeyPressed(KeyP) {
		t.Error("IsKeyPressed should only report queued key downs")
	}
	events := q.Drain()
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if len(q.Events()) != 0 {
		t.Error("queue should be empty after Drain")
	}

	q.Push(Event{Type: EventQuit})
	if events[0].Type != EventKeyDown {
		t.Error("drained events should survive later pushes")
	}
}

func TestPreventDefault(t *testing.T) {
	e := Event{Type: EventContextMenu}
	if e.DefaultPrevented() {
		t.Error("new events should not be prevented")
	}
	e.PreventDefault()
	if !e.DefaultPrevented() {
		t.Error("PreventDefault should stick")
	}
}

func TestDispatchStopsAtConsumer(t *testing.T) {
	first := &recorder{consume: true}
	second := &recorder{}
	Dispatch([]Event{{Type: EventWheel}, {Type: EventKeyDown}}, nil, first, second)

	if len(first.seen) != 2 {
		t.Errorf("first handler saw %d events, want 2", len(first.seen))
	}
	if len(second.seen) != 0 {
		t.Errorf("consumed events should not reach later handlers, got %v", second.seen)
	}
}
