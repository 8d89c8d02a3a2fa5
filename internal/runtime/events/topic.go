package events

import (
	"fmt"
	"slices"

	errspkg "github.com/drblury/eventrelay/internal/runtime/errors"
)

// Topic names one of the fixed broker topics.
type Topic string

const (
	TopicSensorData               Topic = "sensorData"
	TopicAutoCommand              Topic = "autoCommand"
	TopicUICommand                Topic = "uiCommand"
	TopicLegacyAddDevice          Topic = "legacyAddDevice"
	TopicDeleteDeviceNotification Topic = "deleteDeviceNotification"
)

var allTopics = []Topic{
	TopicSensorData,
	TopicAutoCommand,
	TopicUICommand,
	TopicLegacyAddDevice,
	TopicDeleteDeviceNotification,
}

// AllTopics returns the fixed topic set in declaration order.
func AllTopics() []Topic {
	return slices.Clone(allTopics)
}

func (t Topic) String() string { return string(t) }

// Valid reports whether t belongs to the fixed topic set.
func (t Topic) Valid() bool {
	return slices.Contains(allTopics, t)
}

// ParseTopic maps a topic name onto the fixed set.
func ParseTopic(name string) (Topic, error) {
	t := Topic(name)
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", errspkg.ErrUnknownTopic, name)
	}
	return t, nil
}

// ParseTopics parses names, dropping duplicates. An empty list selects every topic.
func ParseTopics(names []string) ([]Topic, error) {
	if len(names) == 0 {
		return AllTopics(), nil
	}
	out := make([]Topic, 0, len(names))
	for _, name := range names {
		t, err := ParseTopic(name)
		if err != nil {
			return nil, err
		}
		if !slices.Contains(out, t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// Names converts topics to their broker names.
func Names(topics []Topic) []string {
	names := make([]string, len(topics))
	for i, t := range topics {
		names[i] = string(t)
	}
	return names
}
