package eventlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/EventStore/EventStore-Client-Go/v4/esdb"

	errspkg "github.com/drblury/eventrelay/internal/runtime/errors"
	loggingpkg "github.com/drblury/eventrelay/internal/runtime/logging"
)

// State is the connection state of an EventStoreSink.
type State int32

const (
	NotConnected State = iota
	Connected
	ConnectionLost
)

func (s State) String() string {
	switch s {
	case NotConnected:
		return "not_connected"
	case Connected:
		return "connected"
	case ConnectionLost:
		return "connection_lost"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// StreamAppender is the part of the EventStoreDB client used by the sink.
type StreamAppender interface {
	AppendToStream(ctx context.Context, streamID string, opts esdb.AppendToStreamOptions, events ...esdb.EventData) (*esdb.WriteResult, error)
	// Ping makes one round trip to the server.
	Ping(ctx context.Context) error
	Close() error
}

// DialEventStore allows overriding client creation for testing. Creating
// the client does not contact the server.
var DialEventStore = func(connection string) (StreamAppender, error) {
	settings, err := esdb.ParseConnectionString(connection)
	if err != nil {
		return nil, fmt.Errorf("parse connection string: %w", err)
	}
	client, err := esdb.NewClient(settings)
	if err != nil {
		return nil, err
	}
	return esdbClient{client}, nil
}

type esdbClient struct{ *esdb.Client }

// Ping reads at most one event from $all; an empty store answers with EOF.
func (c esdbClient) Ping(ctx context.Context) error {
	stream, err := c.ReadAll(ctx, esdb.ReadAllOptions{From: esdb.Start{}}, 1)
	if err != nil {
		return err
	}
	defer stream.Close()
	if _, err := stream.Recv(); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// EventStoreSink appends to EventStoreDB. It creates the client on first use,
// reports Connected once the server has answered a ping or an append, and
// drops the client after a failed call so the next one reconnects.
type EventStoreSink struct {
	connection string
	logger     loggingpkg.ServiceLogger

	mu     sync.Mutex
	client StreamAppender
	state  State
	closed bool
}

// NewEventStoreSink returns a sink for the given esdb:// connection string.
// No connection is made until the first Append or HealthCheck.
func NewEventStoreSink(connection string, logger loggingpkg.ServiceLogger) *EventStoreSink {
	if logger == nil {
		logger = loggingpkg.NewNopLogger()
	}
	return &EventStoreSink{
		connection: connection,
		logger:     logger.With(loggingpkg.LogFields{"component": "eventstore_sink"}),
	}
}

// State reports the current connection state.
func (s *EventStoreSink) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// HealthCheck pings the server, creating the client first if needed.
func (s *EventStoreSink) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	client, err := s.acquire()
	if err != nil {
		return err
	}
	if err := client.Ping(ctx); err != nil {
		if ctx.Err() == nil {
			s.markLost(client, err)
		}
		return fmt.Errorf("event store health check: %w", err)
	}
	s.markConnected(client)
	return nil
}

// Append writes event to streamID as one JSON event.
func (s *EventStoreSink) Append(ctx context.Context, streamID string, event Event) error {
	if streamID == "" {
		return errspkg.ErrTopicRequired
	}
	client, err := s.acquire()
	if err != nil {
		return err
	}

	_, err = client.AppendToStream(ctx, streamID, esdb.AppendToStreamOptions{}, esdb.EventData{
		ContentType: esdb.ContentTypeJson,
		EventType:   event.Type,
		Data:        event.Data,
	})
	if err != nil {
		if ctx.Err() == nil {
			s.markLost(client, err)
		}
		return fmt.Errorf("append to stream %q: %w", streamID, err)
	}
	s.markConnected(client)
	return nil
}

func (s *EventStoreSink) acquire() (StreamAppender, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errspkg.ErrSinkClosed
	}
	if s.client != nil {
		return s.client, nil
	}

	client, err := DialEventStore(s.connection)
	if err != nil {
		return nil, fmt.Errorf("connect to event store: %w", err)
	}
	s.client = client
	return client, nil
}

func (s *EventStoreSink) markConnected(client StreamAppender) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.client != client || s.state == Connected {
		return
	}
	s.state = Connected
	s.logger.Info("Connected to event store", nil)
}

// markLost drops client. The state only moves to ConnectionLost when the
// server had answered before.
func (s *EventStoreSink) markLost(client StreamAppender, cause error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// another goroutine may already have replaced the client
	if s.client != client {
		return
	}
	s.client = nil
	if s.state == Connected {
		s.state = ConnectionLost
	}
	if err := client.Close(); err != nil {
		s.logger.Debug("Closing event store client failed", loggingpkg.LogFields{"error": err.Error()})
	}
	s.logger.Warn("Event store unreachable", cause, loggingpkg.LogFields{"state": s.state.String()})
}

// Close releases the client. Appends after Close fail with ErrSinkClosed.
func (s *EventStoreSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.state = NotConnected
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}
