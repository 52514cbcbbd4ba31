package workflow

import (
	"context"
	"fmt"
	"sort"
)

// StateMachine tracks the current state and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire reports whether the trigger has any transition configured from the current state.
	// Guards are not evaluated.
	CanFire(trigger Trigger) bool

	// Peek evaluates guards and returns the state Fire would move to, without moving.
	Peek(ctx context.Context, trigger Trigger) (State, error)

	// Fire executes the trigger, transitioning to the new state if allowed
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns the configured triggers of the current state, sorted
	PermittedTriggers() []Trigger
}

type stateMachine struct {
	current        State
	configurations map[State]*stateConfig
}

func (m *stateMachine) State() State {
	return m.current
}

func (m *stateMachine) CanFire(trigger Trigger) bool {
	config, ok := m.configurations[m.current]
	if !ok {
		return false
	}
	return len(config.transitions[trigger]) > 0
}

func (m *stateMachine) Peek(ctx context.Context, trigger Trigger) (State, error) {
	if m.current.IsTerminal() {
		return m.current, fmt.Errorf("%w: %s is terminal, cannot fire %s", ErrInvalidTransition, m.current, trigger)
	}

	config, ok := m.configurations[m.current]
	if !ok {
		return m.current, fmt.Errorf("%w: cannot fire %s from %s (no configuration)", ErrInvalidTransition, trigger, m.current)
	}

	transitions := config.transitions[trigger]
	if len(transitions) == 0 {
		return m.current, fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, m.current)
	}

	// first passing guard wins
	for _, t := range transitions {
		if t.guard == nil || t.guard(ctx) {
			return t.toState, nil
		}
	}

	return m.current, fmt.Errorf("%w: trigger %s from state %s", ErrGuardFailed, trigger, m.current)
}

func (m *stateMachine) Fire(ctx context.Context, trigger Trigger) error {
	next, err := m.Peek(ctx, trigger)
	if err != nil {
		return err
	}
	m.current = next
	return nil
}

func (m *stateMachine) PermittedTriggers() []Trigger {
	config, ok := m.configurations[m.current]
	if !ok {
		return []Trigger{}
	}

	triggers := make([]Trigger, 0, len(config.transitions))
	for trigger := range config.transitions {
		triggers = append(triggers, trigger)
	}
	sort.Slice(triggers, func(i, j int) bool { return triggers[i] < triggers[j] })

	return triggers
}
