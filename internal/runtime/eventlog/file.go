package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	errspkg "github.com/drblury/eventrelay/internal/runtime/errors"
	"github.com/drblury/eventrelay/internal/runtime/ids"
	"github.com/drblury/eventrelay/internal/runtime/jsoncodec"
)

type fileEntry struct {
	ID         string          `json:"id"`
	StreamID   string          `json:"stream_id"`
	EventType  string          `json:"event_type"`
	Data       json.RawMessage `json:"data"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// FileSink appends events as JSON lines to a local file.
type FileSink struct {
	path string

	mu     sync.Mutex
	file   *os.File
	closed bool
}

// OpenFile opens path for appending, creating it when missing.
func OpenFile(path string) (*FileSink, error) {
	if path == "" {
		return nil, fmt.Errorf("file path is required")
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log file: %w", err)
	}
	return &FileSink{path: path, file: f}, nil
}

func (s *FileSink) Append(_ context.Context, streamID string, event Event) error {
	if streamID == "" {
		return errspkg.ErrTopicRequired
	}
	if !jsoncodec.Valid(event.Data) {
		return errspkg.ErrInvalidPayload
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errspkg.ErrSinkClosed
	}

	entry := fileEntry{
		ID:         ids.New(),
		StreamID:   streamID,
		EventType:  event.Type,
		Data:       json.RawMessage(event.Data),
		RecordedAt: time.Now().UTC(),
	}
	if err := jsoncodec.Encode(s.file, entry); err != nil {
		return fmt.Errorf("append to stream %q: %w", streamID, err)
	}
	return nil
}

// Events reads the file back and returns the events of one stream.
func (s *FileSink) Events(_ context.Context, streamID string) ([]StoredEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open event log file: %w", err)
	}
	defer f.Close()

	var out []StoredEvent
	reader := bufio.NewReader(f)
	for {
		line, err := reader.ReadBytes('\n')
		if len(line) > 0 {
			var entry fileEntry
			if uerr := jsoncodec.Unmarshal(line, &entry); uerr != nil {
				return nil, fmt.Errorf("decode event log line: %w", uerr)
			}
			if entry.StreamID == streamID {
				out = append(out, StoredEvent{
					ID:         entry.ID,
					StreamID:   entry.StreamID,
					EventType:  entry.EventType,
					Data:       []byte(entry.Data),
					RecordedAt: entry.RecordedAt,
				})
			}
		}
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("read event log file: %w", err)
		}
	}
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}
