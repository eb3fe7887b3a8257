// Package ptyrun drives interactive CLIs inside a pseudo-terminal and captures
// what they render.
package ptyrun

import "fmt"

type State int

const (
	NotStarted State = iota
	Launching
	AwaitingOutput
	Captured
	TimedOut
	ProcessExited
	LaunchFailed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not_started"
	case Launching:
		return "launching"
	case AwaitingOutput:
		return "awaiting_output"
	case Captured:
		return "captured"
	case TimedOut:
		return "timed_out"
	case ProcessExited:
		return "process_exited"
	case LaunchFailed:
		return "launch_failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Failed reports whether s is a terminal failure state.
func (s State) Failed() bool {
	return s == TimedOut || s == ProcessExited || s == LaunchFailed
}

var transitions = map[State][]State{
	NotStarted:     {Launching},
	Launching:      {AwaitingOutput, LaunchFailed},
	AwaitingOutput: {Captured, TimedOut, ProcessExited},
}

// Machine tracks the lifecycle of one CLI process. Persistent machines may
// go back to AwaitingOutput after a capture and back to NotStarted after any
// outcome; one-shot machines stop at the first outcome.
type Machine struct {
	state      State
	persistent bool
}

func NewMachine(persistent bool) *Machine {
	return &Machine{persistent: persistent}
}

func (m *Machine) State() State { return m.state }

func (m *Machine) CanTransition(next State) bool {
	for _, s := range transitions[m.state] {
		if s == next {
			return true
		}
	}
	if !m.persistent {
		return false
	}
	switch {
	case m.state == Captured && next == AwaitingOutput:
		return true
	case (m.state == Captured || m.state.Failed()) && next == NotStarted:
		return true
	}
	return false
}

func (m *Machine) To(next State) error {
	if !m.CanTransition(next) {
		return fmt.Errorf("ptyrun: illegal transition %s -> %s", m.state, next)
	}
	m.state = next
	return nil
}
