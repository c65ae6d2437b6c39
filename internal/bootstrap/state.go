package bootstrap

import "fmt"

// State is the install state of the build directory.
type State int

const (
	StateNotInstalled State = iota
	StateInstalling
	StateVersionMismatch
	StateInstalled
	StateFailed
)

var stateNames = map[State]string{
	StateNotInstalled:    "not_installed",
	StateInstalling:      "installing",
	StateVersionMismatch: "version_mismatch",
	StateInstalled:       "installed",
	StateFailed:          "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// IsTerminal reports whether the state ends a run.
func (s State) IsTerminal() bool {
	return s == StateInstalled || s == StateFailed
}

func isAllowedTransition(from, to State) bool {
	if to == StateFailed {
		return from != StateFailed
	}
	switch from {
	case StateNotInstalled:
		return to == StateInstalling
	case StateInstalling:
		// The fresh install is inspected again, so a package with the wrong
		// marker shows up as a mismatch.
		return to == StateInstalled || to == StateVersionMismatch
	case StateVersionMismatch:
		return to == StateNotInstalled
	default:
		return false
	}
}

// machine tracks the state of one Ensure call and bounds reinstalls.
type machine struct {
	state      State
	reinstalls int
	ceiling    int
	history    []State
}

func newMachine(initial State, ceiling int) *machine {
	return &machine{state: initial, ceiling: ceiling, history: []State{initial}}
}

func (m *machine) to(next State) error {
	if !isAllowedTransition(m.state, next) {
		return fmt.Errorf("disallowed install transition: %s -> %s", m.state, next)
	}
	if m.state == StateVersionMismatch && next == StateNotInstalled {
		m.reinstalls++
	}
	m.state = next
	m.history = append(m.history, next)
	return nil
}

// exhausted reports whether another reinstall would pass the ceiling.
func (m *machine) exhausted() bool { return m.reinstalls >= m.ceiling }
