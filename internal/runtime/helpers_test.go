package runtime

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/drblury/eventrelay/internal/runtime/eventlog"
	loggingpkg "github.com/drblury/eventrelay/internal/runtime/logging"
	transportpkg "github.com/drblury/eventrelay/transport"
)

func newTestLogger() loggingpkg.ServiceLogger {
	return loggingpkg.NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug})))
}

type logEntry struct {
	level  string
	msg    string
	err    error
	fields loggingpkg.LogFields
}

// recordingLogger keeps entries from itself and every child in one list.
type recordingLogger struct {
	mu      *sync.Mutex
	entries *[]logEntry
	fields  loggingpkg.LogFields
}

func newRecordingLogger() *recordingLogger {
	return &recordingLogger{mu: &sync.Mutex{}, entries: &[]logEntry{}}
}

func (r *recordingLogger) With(fields loggingpkg.LogFields) loggingpkg.ServiceLogger {
	merged := loggingpkg.LogFields{}
	for k, v := range r.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &recordingLogger{mu: r.mu, entries: r.entries, fields: merged}
}

func (r *recordingLogger) add(level, msg string, err error, fields loggingpkg.LogFields) {
	r.mu.Lock()
	defer r.mu.Unlock()
	*r.entries = append(*r.entries, logEntry{level: level, msg: msg, err: err, fields: fields})
}

func (r *recordingLogger) Debug(msg string, fields loggingpkg.LogFields) {
	r.add("debug", msg, nil, fields)
}
func (r *recordingLogger) Info(msg string, fields loggingpkg.LogFields) {
	r.add("info", msg, nil, fields)
}
func (r *recordingLogger) Warn(msg string, err error, fields loggingpkg.LogFields) {
	r.add("warn", msg, err, fields)
}
func (r *recordingLogger) Error(msg string, err error, fields loggingpkg.LogFields) {
	r.add("error", msg, err, fields)
}
func (r *recordingLogger) Trace(msg string, fields loggingpkg.LogFields) {
	r.add("trace", msg, nil, fields)
}

func (r *recordingLogger) find(level, msg string) []logEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []logEntry
	for _, e := range *r.entries {
		if e.level == level && e.msg == msg {
			out = append(out, e)
		}
	}
	return out
}

type appended struct {
	stream string
	event  eventlog.Event
}

// memorySink records appends. failFirst makes that many appends fail.
type memorySink struct {
	mu        sync.Mutex
	appends   []appended
	attempts  int
	failFirst int
	closed    bool
}

var errSinkDown = errors.New("event store unreachable")

func (s *memorySink) Append(_ context.Context, streamID string, event eventlog.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.failFirst {
		return errSinkDown
	}
	s.appends = append(s.appends, appended{stream: streamID, event: event})
	return nil
}

func (s *memorySink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *memorySink) Appended() []appended {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]appended(nil), s.appends...)
}

func (s *memorySink) Attempts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts
}

type fakeProvisioner struct {
	mu    sync.Mutex
	err   error
	calls [][]string
}

func (p *fakeProvisioner) EnsureTopics(_ context.Context, names []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, append([]string(nil), names...))
	return p.err
}

// newGoChannel returns a persistent in-memory pub/sub shared by a producer
// and the consumers under test.
func newGoChannel(t *testing.T) *gochannel.GoChannel {
	t.Helper()
	pubSub := gochannel.NewGoChannel(gochannel.Config{Persistent: true}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubSub.Close() })
	return pubSub
}

// newTestService builds a Service over sub. The service does not close the
// shared pub/sub: the test cleanup does.
func newTestService(t *testing.T, name string, sub message.Subscriber, logger loggingpkg.ServiceLogger) *Service {
	t.Helper()
	if logger == nil {
		logger = newTestLogger()
	}
	svc, err := NewService(context.Background(), name, nil, logger, ServiceDependencies{
		Transport:  &transportpkg.Transport{Subscriber: nopCloseSubscriber{sub}},
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	return svc
}

type nopCloseSubscriber struct {
	message.Subscriber
}

func (nopCloseSubscriber) Close() error { return nil }

type nopClosePublisher struct {
	message.Publisher
}

func (nopClosePublisher) Close() error { return nil }

func newTestMetrics(t *testing.T) *RelayMetrics {
	t.Helper()
	m, err := NewRelayMetrics(prometheus.NewRegistry())
	require.NoError(t, err)
	return m
}

func publishRaw(t *testing.T, pub message.Publisher, topic, payload string) {
	t.Helper()
	require.NoError(t, pub.Publish(topic, message.NewMessage(watermill.NewUUID(), []byte(payload))))
}

// runInBackground starts r and returns a stop func that cancels it and
// returns the Run error.
func runInBackground(t *testing.T, r Runner) func() error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	var once sync.Once
	var result error
	stop := func() error {
		once.Do(func() {
			cancel()
			select {
			case result = <-done:
			case <-time.After(10 * time.Second):
				t.Fatal("runner did not stop")
			}
		})
		return result
	}
	t.Cleanup(func() { _ = stop() })
	return stop
}

const eventually = 5 * time.Second
const tick = 10 * time.Millisecond
