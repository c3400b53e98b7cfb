// Package workflow defines the status machines that govern tracked entities.
//
// A Machine is plain data: an ordered state list plus an adjacency map of
// allowed targets. Adding a state or an edge is a single table edit here;
// nothing else in the codebase branches on individual status values.
package workflow

import (
	"fmt"
	"slices"
)

// State is a status value stored on a tracked entity.
type State string

// CreatedReason is recorded on the history row written when an entity is created.
const CreatedReason = "created"

// TransitionError reports a status change the machine does not allow.
type TransitionError struct {
	Machine string
	From    State
	To      State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("Invalid status transition from %s to %s", e.From, e.To)
}

// UnknownStateError reports a value that is not a member of the machine.
type UnknownStateError struct {
	Machine string
	State   State
}

func (e *UnknownStateError) Error() string {
	return fmt.Sprintf("unknown %s status %q", e.Machine, e.State)
}

// Machine is an explicit finite-state-machine definition.
type Machine struct {
	name    string
	initial State
	states  []State
	edges   map[State][]State
}

// Edge is a single allowed transition.
type Edge struct {
	From State
	To   State
}

// New builds a machine from its ordered states and adjacency map. States that
// have no entry in edges are terminal. It panics on a malformed definition
// since machines are package-level values built at init time.
func New(name string, initial State, states []State, edges map[State][]State) *Machine {
	m := &Machine{
		name:    name,
		initial: initial,
		states:  slices.Clone(states),
		edges:   make(map[State][]State, len(edges)),
	}
	if !m.Has(initial) {
		panic(fmt.Sprintf("workflow %s: initial state %q is not declared", name, initial))
	}
	for from, targets := range edges {
		if !m.Has(from) {
			panic(fmt.Sprintf("workflow %s: edge source %q is not declared", name, from))
		}
		for _, to := range targets {
			if !m.Has(to) {
				panic(fmt.Sprintf("workflow %s: edge target %q is not declared", name, to))
			}
		}
		m.edges[from] = slices.Clone(targets)
	}
	return m
}

// Linear builds a strictly forward pipeline where each stage may only advance
// to the next one. The first stage is initial and the last one is terminal.
func Linear(name string, stages ...State) *Machine {
	if len(stages) == 0 {
		panic(fmt.Sprintf("workflow %s: no stages", name))
	}
	edges := make(map[State][]State, len(stages)-1)
	for i := 0; i+1 < len(stages); i++ {
		edges[stages[i]] = []State{stages[i+1]}
	}
	return New(name, stages[0], stages, edges)
}

// Name identifies the machine in errors and API output.
func (m *Machine) Name() string { return m.name }

// Initial is the state every entity is created in. It is also the only state
// in which field edits and deletion are permitted.
func (m *Machine) Initial() State { return m.initial }

// States returns the declared states in order.
func (m *Machine) States() []State { return slices.Clone(m.states) }

// Has reports whether s is a member of the machine.
func (m *Machine) Has(s State) bool { return slices.Contains(m.states, s) }

// Targets returns the states reachable from s in one transition.
func (m *Machine) Targets(s State) []State { return slices.Clone(m.edges[s]) }

// Terminal reports whether s has no outgoing transitions.
func (m *Machine) Terminal(s State) bool { return m.Has(s) && len(m.edges[s]) == 0 }

// Editable reports whether an entity in state s may be edited or deleted.
func (m *Machine) Editable(s State) bool { return s == m.initial }

// CanTransition reports whether from -> to is an allowed edge.
func (m *Machine) CanTransition(from, to State) bool {
	return slices.Contains(m.edges[from], to)
}

// Validate returns nil when from -> to is allowed, an *UnknownStateError when
// to is not a member, and a *TransitionError otherwise.
func (m *Machine) Validate(from, to State) error {
	if !m.Has(to) {
		return &UnknownStateError{Machine: m.name, State: to}
	}
	if !m.CanTransition(from, to) {
		return &TransitionError{Machine: m.name, From: from, To: to}
	}
	return nil
}

// Parse converts raw input into a member state.
func (m *Machine) Parse(raw string) (State, error) {
	s := State(raw)
	if !m.Has(s) {
		return "", &UnknownStateError{Machine: m.name, State: s}
	}
	return s, nil
}

// Edges lists every allowed transition in declaration order.
func (m *Machine) Edges() []Edge {
	var out []Edge
	for _, from := range m.states {
		for _, to := range m.edges[from] {
			out = append(out, Edge{From: from, To: to})
		}
	}
	return out
}
