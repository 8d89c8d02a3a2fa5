package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errspkg "github.com/drblury/eventrelay/internal/runtime/errors"
)

func TestAllTopicsIsFixed(t *testing.T) {
	topics := AllTopics()
	assert.Equal(t, []string{
		"sensorData", "autoCommand", "uiCommand", "legacyAddDevice", "deleteDeviceNotification",
	}, Names(topics))

	topics[0] = "mutated"
	assert.Equal(t, TopicSensorData, AllTopics()[0], "callers must not be able to change the set")
}

func TestParseTopic(t *testing.T) {
	got, err := ParseTopic("uiCommand")
	require.NoError(t, err)
	assert.Equal(t, TopicUICommand, got)

	_, err = ParseTopic("newDeviceNotification")
	require.Error(t, err)
	assert.ErrorIs(t, err, errspkg.ErrUnknownTopic)
	assert.Contains(t, err.Error(), "newDeviceNotification")
}

func TestParseTopics(t *testing.T) {
	all, err := ParseTopics(nil)
	require.NoError(t, err)
	assert.Equal(t, AllTopics(), all)

	some, err := ParseTopics([]string{"autoCommand", "uiCommand", "autoCommand"})
	require.NoError(t, err)
	assert.Equal(t, []Topic{TopicAutoCommand, TopicUICommand}, some)

	_, err = ParseTopics([]string{"autoCommand", "bogus"})
	assert.ErrorIs(t, err, errspkg.ErrUnknownTopic)
}
