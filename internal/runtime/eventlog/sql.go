package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver

	errspkg "github.com/drblury/eventrelay/internal/runtime/errors"
	"github.com/drblury/eventrelay/internal/runtime/ids"
)

// Dialect selects the SQL flavour of an SQLSink.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite3"
)

var schemas = map[Dialect]string{
	DialectPostgres: `
	CREATE TABLE IF NOT EXISTS event_log (
		seq BIGSERIAL PRIMARY KEY,
		event_id TEXT NOT NULL UNIQUE,
		stream_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		data BYTEA NOT NULL,
		recorded_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_event_log_stream ON event_log(stream_id, seq);`,
	DialectSQLite: `
	CREATE TABLE IF NOT EXISTS event_log (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL UNIQUE,
		stream_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		data BLOB NOT NULL,
		recorded_at TIMESTAMP NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_event_log_stream ON event_log(stream_id, seq);`,
}

// SQLSink appends events to an event_log table. Rows are only ever inserted.
type SQLSink struct {
	db      *sql.DB
	dialect Dialect
	closed  atomic.Bool
}

// OpenPostgres connects to PostgreSQL and prepares the event_log table.
func OpenPostgres(ctx context.Context, url string) (*SQLSink, error) {
	if url == "" {
		return nil, fmt.Errorf("postgres connection string is required")
	}
	db, err := sql.Open(string(DialectPostgres), url)
	if err != nil {
		return nil, fmt.Errorf("failed to open PostgreSQL database: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	return NewSQLSink(ctx, db, DialectPostgres)
}

// OpenSQLite opens (or creates) a SQLite database file. ":memory:" is
// accepted for tests.
func OpenSQLite(ctx context.Context, file string) (*SQLSink, error) {
	if file == "" {
		return nil, fmt.Errorf("sqlite file is required")
	}
	dsn := file
	if file != ":memory:" {
		dsn = file + "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open(string(DialectSQLite), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// a single connection keeps :memory: databases alive and serialises writers
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	return NewSQLSink(ctx, db, DialectSQLite)
}

// NewSQLSink wraps an open database and creates the schema if needed. The
// sink owns db and closes it on Close.
func NewSQLSink(ctx context.Context, db *sql.DB, dialect Dialect) (*SQLSink, error) {
	schema, ok := schemas[dialect]
	if !ok {
		db.Close()
		return nil, fmt.Errorf("unsupported SQL dialect %q", dialect)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return &SQLSink{db: db, dialect: dialect}, nil
}

func (s *SQLSink) Append(ctx context.Context, streamID string, event Event) error {
	if s.closed.Load() {
		return errspkg.ErrSinkClosed
	}
	if streamID == "" {
		return errspkg.ErrTopicRequired
	}

	query := s.rebind(`INSERT INTO event_log (event_id, stream_id, event_type, data, recorded_at) VALUES (?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, query, ids.New(), streamID, event.Type, event.Data, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("append to stream %q: %w", streamID, err)
	}
	return nil
}

// Events returns the events of one stream in append order.
func (s *SQLSink) Events(ctx context.Context, streamID string) ([]StoredEvent, error) {
	if s.closed.Load() {
		return nil, errspkg.ErrSinkClosed
	}
	query := s.rebind(`SELECT event_id, stream_id, event_type, data, recorded_at FROM event_log WHERE stream_id = ? ORDER BY seq`)
	rows, err := s.db.QueryContext(ctx, query, streamID)
	if err != nil {
		return nil, fmt.Errorf("read stream %q: %w", streamID, err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var ev StoredEvent
		if err := rows.Scan(&ev.ID, &ev.StreamID, &ev.EventType, &ev.Data, &ev.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, ev)
	}
	return out, rows.Err()
}

// rebind turns ? placeholders into $n for PostgreSQL.
func (s *SQLSink) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLSink) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return s.db.Close()
}
