package eventlog

import (
	"context"
	"fmt"

	"github.com/drblury/eventrelay/internal/runtime/config"
	loggingpkg "github.com/drblury/eventrelay/internal/runtime/logging"
)

// Open builds the sink selected by cfg.Backend.
func Open(ctx context.Context, cfg config.EventLogConfig, logger loggingpkg.ServiceLogger) (Sink, error) {
	switch cfg.Backend {
	case "", config.EventLogEventStore:
		return NewEventStoreSink(cfg.ESDBConnection(), logger), nil
	case config.EventLogPostgres:
		return OpenPostgres(ctx, cfg.PostgresURL)
	case config.EventLogSQLite:
		return OpenSQLite(ctx, cfg.SQLiteFile)
	case config.EventLogFile:
		return OpenFile(cfg.FilePath)
	default:
		return nil, fmt.Errorf("unknown event log backend %q", cfg.Backend)
	}
}
