package session

import (
	"errors"
	"fmt"
)

// State is the lifecycle position of a playback session.
type State int

const (
	Idle State = iota
	Generating
	Playing
	Paused
	Stopped
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Generating:
		return "generating"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event drives a state change.
type Event int

const (
	RequestStart Event = iota
	Scheduled
	Pause
	Resume
	Stop
	Elapsed
	TeardownDone
	Fatal
)

func (e Event) String() string {
	return [...]string{"request_start", "scheduled", "pause", "resume", "stop", "elapsed", "teardown_done", "fatal"}[e]
}

// Effect is work the Manager performs as part of a transition, in order.
type Effect int

const (
	StartSchedulers Effect = iota
	OpenCapture
	StartTransport
	ArmAutoStop
	PauseTransport
	DisarmAutoStop
	CancelHandles
	CancelAll
	StopTransport
	StopCapture
	Finalize
	DiscardCapture
)

var (
	ErrNotPlaying        = errors.New("session is not playing")
	ErrNotPaused         = errors.New("session is not paused")
	ErrInvalidTransition = errors.New("invalid session transition")
)

// teardown stops everything and keeps the capture.
var teardown = []Effect{DisarmAutoStop, CancelHandles, CancelAll, StopTransport, StopCapture, Finalize}

// abort stops everything and throws the capture away.
var abort = []Effect{DisarmAutoStop, CancelHandles, CancelAll, StopTransport, DiscardCapture}

// Transition returns the next state and the effects to run for e in s.
// It has no side effects.
func Transition(s State, e Event) (State, []Effect, error) {
	switch e {
	case RequestStart:
		if s == Idle {
			return Generating, []Effect{StartSchedulers}, nil
		}
	case Scheduled:
		if s == Generating {
			return Playing, []Effect{OpenCapture, StartTransport, ArmAutoStop}, nil
		}
	case Pause:
		if s != Playing {
			return s, nil, ErrNotPlaying
		}
		return Paused, []Effect{PauseTransport}, nil
	case Resume:
		if s != Paused {
			return s, nil, ErrNotPaused
		}
		return Playing, []Effect{StartTransport}, nil
	case Stop, Elapsed:
		switch s {
		case Idle, Stopped:
			return s, nil, nil
		case Playing, Paused:
			return Stopped, teardown, nil
		case Generating:
			return Stopped, abort, nil
		}
	case TeardownDone:
		if s == Stopped {
			return Idle, nil, nil
		}
	case Fatal:
		if s == Idle {
			return Idle, nil, nil
		}
		return Stopped, abort, nil
	}
	return s, nil, fmt.Errorf("%w: %s on %s", ErrInvalidTransition, e, s)
}
