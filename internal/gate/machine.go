package gate

import (
	"errors"
	"fmt"
)

// State is a turn's position in the double-gate sequence.
type State string

const (
	StateIdle            State = "IDLE"
	StateGateAEvaluating State = "GATE_A_EVALUATING"
	StateGateAPass       State = "GATE_A_PASS"
	StateGateAVeto       State = "GATE_A_VETO"
	StateGenerating      State = "GENERATING"
	StateGateBEvaluating State = "GATE_B_EVALUATING"
	StateGateBPass       State = "GATE_B_PASS"
	StateGateBVeto       State = "GATE_B_VETO"
	StateDone            State = "DONE"
	StateBlocked         State = "BLOCKED"
)

// ErrIllegalTransition is wrapped by every rejected transition.
var ErrIllegalTransition = errors.New("illegal gate transition")

var transitions = map[State][]State{
	StateIdle:            {StateGateAEvaluating},
	StateGateAEvaluating: {StateGateAPass, StateGateAVeto},
	StateGateAPass:       {StateGenerating},
	StateGateAVeto:       {StateBlocked},
	StateGenerating:      {StateGateBEvaluating},
	StateGateBEvaluating: {StateGateBPass, StateGateBVeto},
	StateGateBPass:       {StateDone},
	StateGateBVeto:       {StateBlocked},
}

// Machine tracks one turn. Generation is only reachable through a passing
// Gate A verdict. It is not safe for concurrent use.
type Machine struct {
	state   State
	history []State
}

// NewMachine returns a machine in StateIdle.
func NewMachine() *Machine {
	return &Machine{state: StateIdle, history: []State{StateIdle}}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// History returns every state visited, in order.
func (m *Machine) History() []State { return append([]State(nil), m.history...) }

// Terminal reports whether the turn has finished.
func (m *Machine) Terminal() bool { return m.state == StateDone || m.state == StateBlocked }

// Transition moves to next or returns an error wrapping
// ErrIllegalTransition.
func (m *Machine) Transition(next State) error {
	for _, s := range transitions[m.state] {
		if s == next {
			m.state = next
			m.history = append(m.history, next)
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrIllegalTransition, m.state, next)
}

// Record moves out of an evaluating state according to v, then on to
// BLOCKED when v is a veto.
func (m *Machine) Record(v Verdict) error {
	var pass, veto State
	switch {
	case m.state == StateGateAEvaluating && v.Gate == NameA:
		pass, veto = StateGateAPass, StateGateAVeto
	case m.state == StateGateBEvaluating && v.Gate == NameB:
		pass, veto = StateGateBPass, StateGateBVeto
	default:
		return fmt.Errorf("%w: %s verdict in state %s", ErrIllegalTransition, v.Gate, m.state)
	}
	if v.Passed {
		return m.Transition(pass)
	}
	if err := m.Transition(veto); err != nil {
		return err
	}
	return m.Transition(StateBlocked)
}
