package capture

import (
	"errors"
	"fmt"
)

// State is the lifecycle position of the capture controller.
type State int

const (
	Idle State = iota
	Recording
	Paused
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Active reports whether a session exists in this state.
func (s State) Active() bool {
	return s == Recording || s == Paused
}

// Action is a requested transition.
type Action int

const (
	ActionStart Action = iota
	ActionPause
	ActionResume
	ActionStop
	ActionFail
)

func (a Action) String() string {
	switch a {
	case ActionStart:
		return "start"
	case ActionPause:
		return "pause"
	case ActionResume:
		return "resume"
	case ActionStop:
		return "stop"
	case ActionFail:
		return "fail"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

var ErrIllegalTransition = errors.New("illegal capture transition")

type edge struct {
	from State
	on   Action
}

var transitions = map[edge]State{
	{Idle, ActionStart}:      Recording,
	{Stopped, ActionStart}:   Recording,
	{Recording, ActionPause}: Paused,
	{Paused, ActionResume}:   Recording,
	{Recording, ActionStop}:  Stopped,
	{Paused, ActionStop}:     Stopped,
	{Recording, ActionFail}:  Idle,
}

// Transition returns the state reached by applying a in from.
func Transition(from State, a Action) (State, error) {
	next, ok := transitions[edge{from, a}]
	if !ok {
		return from, fmt.Errorf("%w: %s while %s", ErrIllegalTransition, a, from)
	}
	return next, nil
}

const (
	LabelPause  = "Pause"
	LabelResume = "Resume"
)

// Controls are the page control flags derived from a state.
type Controls struct {
	RecordEnabled bool
	StopEnabled   bool
	PauseEnabled  bool
	PauseLabel    string
	UploadEnabled bool
}

func ControlsFor(s State) Controls {
	c := Controls{PauseLabel: LabelPause}
	if s.Active() {
		c.StopEnabled = true
		c.PauseEnabled = true
	} else {
		c.RecordEnabled = true
		c.UploadEnabled = true
	}
	if s == Paused {
		c.PauseLabel = LabelResume
	}
	return c
}
