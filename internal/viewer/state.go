package viewer

import "fmt"

// Phase is the viewer's load phase.
type Phase int

const (
	// Idle: nothing requested. The environment is shown without a model.
	Idle Phase = iota
	// Loading: a load attempt is in flight.
	Loading
	// Ready: a model or the fallback building is installed.
	Ready
	// Empty: the lookup completed but there is nothing to show.
	Empty
	// Error: the load or the viewer setup failed. Retry is offered.
	Error
)

var phaseNames = [...]string{"idle", "loading", "ready", "empty", "error"}

func (p Phase) String() string {
	if p >= 0 && int(p) < len(phaseNames) {
		return phaseNames[p]
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// State is the full machine state. Epoch identifies the authoritative load
// attempt; results from any other epoch are stale.
type State struct {
	Phase   Phase
	Epoch   uint64
	Message string // Set in Error
}

// EventType enumerates machine inputs.
type EventType int

const (
	// EventStart begins the first load after setup.
	EventStart EventType = iota
	// EventInputChanged reports a new address or building id.
	EventInputChanged
	// EventRetry is the user asking to load again.
	EventRetry
	// EventLoaded delivers a model for Epoch.
	EventLoaded
	// EventNoModel reports that Epoch found nothing to show.
	EventNoModel
	// EventFailed reports that Epoch failed with Message.
	EventFailed
	// EventInitFailed reports that the render surface could not be set up.
	EventInitFailed
	// EventSurfaceLost reports a lost graphics context.
	EventSurfaceLost
)

var eventNames = [...]string{"start", "input_changed", "retry", "loaded", "no_model", "failed", "init_failed", "surface_lost"}

func (t EventType) String() string {
	if t >= 0 && int(t) < len(eventNames) {
		return eventNames[t]
	}
	return fmt.Sprintf("EventType(%d)", int(t))
}

// Event is one machine input. HasInput tells whether an address or building
// id is set.
type Event struct {
	Type     EventType
	Epoch    uint64
	Message  string
	HasInput bool
}

// Effect is a side effect the viewer performs after a transition.
type Effect int

const (
	// EffectReset clears the model and announces Idle before a new load.
	EffectReset Effect = iota
	// EffectClearModel removes the installed model.
	EffectClearModel
	// EffectStartLoad runs the load pipeline for the new epoch.
	EffectStartLoad
	// EffectInstall installs the delivered model.
	EffectInstall
	// EffectDiscard drops a stale result.
	EffectDiscard
	// EffectReinit tears down and recreates the surface, scene and controls.
	EffectReinit
)

var effectNames = [...]string{"reset", "clear_model", "start_load", "install", "discard", "reinit"}

func (e Effect) String() string {
	if e >= 0 && int(e) < len(effectNames) {
		return effectNames[e]
	}
	return fmt.Sprintf("Effect(%d)", int(e))
}

// Transition computes the next state and the effects to run. It has no side
// effects of its own.
func Transition(s State, e Event) (State, []Effect) {
	switch e.Type {
	case EventStart:
		if s.Phase != Idle || !e.HasInput {
			return s, nil
		}
		return loading(s), []Effect{EffectStartLoad}

	case EventInputChanged:
		if !e.HasInput {
			return State{Phase: Idle, Epoch: s.Epoch + 1}, []Effect{EffectReset}
		}
		return loading(s), []Effect{EffectReset, EffectStartLoad}

	case EventRetry:
		if !e.HasInput {
			if s.Phase == Idle {
				return s, nil
			}
			return State{Phase: Idle, Epoch: s.Epoch + 1}, []Effect{EffectClearModel}
		}
		return loading(s), []Effect{EffectClearModel, EffectStartLoad}

	case EventLoaded:
		if !current(s, e) {
			return s, []Effect{EffectDiscard}
		}
		return State{Phase: Ready, Epoch: s.Epoch}, []Effect{EffectInstall}

	case EventNoModel:
		if !current(s, e) {
			return s, []Effect{EffectDiscard}
		}
		return State{Phase: Empty, Epoch: s.Epoch}, nil

	case EventFailed:
		// An install failure arrives after the Ready transition.
		if e.Epoch != s.Epoch || (s.Phase != Loading && s.Phase != Ready) {
			return s, []Effect{EffectDiscard}
		}
		return State{Phase: Error, Epoch: s.Epoch, Message: e.Message}, []Effect{EffectClearModel}

	case EventInitFailed:
		return State{Phase: Error, Epoch: s.Epoch + 1, Message: e.Message}, nil

	case EventSurfaceLost:
		if s.Phase == Idle || !e.HasInput {
			return State{Phase: Idle, Epoch: s.Epoch + 1}, []Effect{EffectReinit}
		}
		return loading(s), []Effect{EffectReinit, EffectStartLoad}
	}
	return s, nil
}

func loading(s State) State {
	return State{Phase: Loading, Epoch: s.Epoch + 1}
}

func current(s State, e Event) bool {
	return s.Phase == Loading && e.Epoch == s.Epoch
}
