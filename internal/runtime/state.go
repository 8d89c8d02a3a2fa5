package runtime

import (
	"fmt"
	"sync"
)

// ConsumerState is the lifecycle position of a long-running consumer.
type ConsumerState int32

const (
	StateDisconnected ConsumerState = iota
	StateProvisioning
	StateSubscribed
	StateConsuming
	StateStoppedGraceful
	StateStoppedFatal
)

func (s ConsumerState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateProvisioning:
		return "provisioning"
	case StateSubscribed:
		return "subscribed"
	case StateConsuming:
		return "consuming"
	case StateStoppedGraceful:
		return "stopped_graceful"
	case StateStoppedFatal:
		return "stopped_fatal"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Terminal reports whether no further transitions are possible.
func (s ConsumerState) Terminal() bool {
	return s == StateStoppedGraceful || s == StateStoppedFatal
}

// Ready reports whether the consumer is attached to its topics.
func (s ConsumerState) Ready() bool {
	return s == StateSubscribed || s == StateConsuming
}

var transitions = map[ConsumerState][]ConsumerState{
	StateDisconnected: {StateProvisioning, StateSubscribed, StateStoppedGraceful, StateStoppedFatal},
	StateProvisioning: {StateSubscribed, StateStoppedGraceful, StateStoppedFatal},
	StateSubscribed:   {StateConsuming, StateStoppedGraceful, StateStoppedFatal},
	StateConsuming:    {StateStoppedGraceful, StateStoppedFatal},
}

// stateMachine guards ConsumerState transitions.
type stateMachine struct {
	mu       sync.RWMutex
	current  ConsumerState
	onChange func(from, to ConsumerState)
}

func newStateMachine(onChange func(from, to ConsumerState)) *stateMachine {
	return &stateMachine{current: StateDisconnected, onChange: onChange}
}

func (m *stateMachine) Current() ConsumerState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Transition moves to next. Re-entering the current state is a no-op;
// anything not in the transition table is rejected.
func (m *stateMachine) Transition(next ConsumerState) error {
	m.mu.Lock()
	from := m.current
	if from == next {
		m.mu.Unlock()
		return nil
	}
	allowed := false
	for _, candidate := range transitions[from] {
		if candidate == next {
			allowed = true
			break
		}
	}
	if !allowed {
		m.mu.Unlock()
		return fmt.Errorf("invalid consumer state transition %s -> %s", from, next)
	}
	m.current = next
	m.mu.Unlock()

	if m.onChange != nil {
		m.onChange(from, next)
	}
	return nil
}
