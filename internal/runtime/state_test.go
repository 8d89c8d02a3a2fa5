package runtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachineHappyPath(t *testing.T) {
	var seen []string
	m := newStateMachine(func(from, to ConsumerState) {
		seen = append(seen, from.String()+">"+to.String())
	})
	assert.Equal(t, StateDisconnected, m.Current())

	for _, next := range []ConsumerState{StateProvisioning, StateSubscribed, StateConsuming, StateStoppedGraceful} {
		require.NoError(t, m.Transition(next))
	}
	assert.Equal(t, []string{
		"disconnected>provisioning",
		"provisioning>subscribed",
		"subscribed>consuming",
		"consuming>stopped_graceful",
	}, seen)
	assert.True(t, m.Current().Terminal())
}

func TestStateMachineRejectsInvalidTransitions(t *testing.T) {
	m := newStateMachine(nil)
	require.NoError(t, m.Transition(StateSubscribed))
	require.NoError(t, m.Transition(StateSubscribed), "re-entering is a no-op")

	err := m.Transition(StateProvisioning)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "subscribed -> provisioning")

	require.NoError(t, m.Transition(StateStoppedFatal))
	assert.Error(t, m.Transition(StateConsuming), "terminal states are final")
}

func TestConsumerStateHelpers(t *testing.T) {
	assert.True(t, StateSubscribed.Ready())
	assert.True(t, StateConsuming.Ready())
	assert.False(t, StateProvisioning.Ready())
	assert.False(t, StateStoppedGraceful.Ready())
	assert.False(t, StateConsuming.Terminal())
	assert.Equal(t, "state(42)", ConsumerState(42).String())
}
