package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/ThreeDotsLabs/watermill"
)

// LevelTrace sits below slog.LevelDebug and carries Watermill's trace output.
const LevelTrace = slog.Level(-8)

// LogFields represents structured logging key/value pairs.
type LogFields map[string]any

// ServiceLogger is the logging contract shared by every relay component. It
// maps onto Watermill's logging needs plus a warn level for recoverable
// per-message failures.
type ServiceLogger interface {
	With(fields LogFields) ServiceLogger
	Debug(msg string, fields LogFields)
	Info(msg string, fields LogFields)
	Warn(msg string, err error, fields LogFields)
	Error(msg string, err error, fields LogFields)
	Trace(msg string, fields LogFields)
}

// Options configures New.
type Options struct {
	Level   string
	Format  string
	Output  io.Writer
	Service string
	Version string
}

// New builds a slog.Logger writing JSON (default) or text records with the
// service and version attached to every record.
func New(opts Options) *slog.Logger {
	output := opts.Output
	if output == nil {
		output = os.Stdout
	}

	handlerOpts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var handler slog.Handler
	switch strings.ToLower(opts.Format) {
	case "text":
		handler = slog.NewTextHandler(output, handlerOpts)
	default:
		handler = slog.NewJSONHandler(output, handlerOpts)
	}

	service := opts.Service
	if service == "" {
		service = "eventrelay"
	}
	attrs := []slog.Attr{slog.String("service", service)}
	if opts.Version != "" {
		attrs = append(attrs, slog.String("version", opts.Version))
	}

	return slog.New(handler.WithAttrs(attrs))
}

// ParseLevel converts a textual level to slog.Level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return LevelTrace
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewSlogServiceLogger wraps a slog.Logger so it satisfies ServiceLogger.
func NewSlogServiceLogger(log *slog.Logger) ServiceLogger {
	if log == nil {
		panic("eventrelay: slog logger cannot be nil")
	}
	return &slogServiceLogger{inner: log}
}

// NewNopLogger returns a ServiceLogger that discards everything.
func NewNopLogger() ServiceLogger {
	return NewSlogServiceLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type slogServiceLogger struct {
	inner *slog.Logger
}

func (l *slogServiceLogger) With(fields LogFields) ServiceLogger {
	if len(fields) == 0 {
		return l
	}
	return &slogServiceLogger{inner: l.inner.With(toArgs(fields, nil)...)}
}

func (l *slogServiceLogger) Debug(msg string, fields LogFields) {
	l.inner.Debug(msg, toArgs(fields, nil)...)
}

func (l *slogServiceLogger) Info(msg string, fields LogFields) {
	l.inner.Info(msg, toArgs(fields, nil)...)
}

func (l *slogServiceLogger) Warn(msg string, err error, fields LogFields) {
	l.inner.Warn(msg, toArgs(fields, err)...)
}

func (l *slogServiceLogger) Error(msg string, err error, fields LogFields) {
	l.inner.Error(msg, toArgs(fields, err)...)
}

func (l *slogServiceLogger) Trace(msg string, fields LogFields) {
	l.inner.Log(context.Background(), LevelTrace, msg, toArgs(fields, nil)...)
}

func toArgs(fields LogFields, err error) []any {
	args := make([]any, 0, len(fields)*2+2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	if err != nil {
		args = append(args, "error", err)
	}
	return args
}

type serviceLoggerAdapter struct {
	base ServiceLogger
}

// NewWatermillAdapter converts a ServiceLogger into a Watermill LoggerAdapter so
// routers and transports log through the same logger.
func NewWatermillAdapter(log ServiceLogger) watermill.LoggerAdapter {
	if log == nil {
		panic("eventrelay: ServiceLogger cannot be nil")
	}
	return &serviceLoggerAdapter{base: log}
}

func (s *serviceLoggerAdapter) Error(msg string, err error, fields watermill.LogFields) {
	s.base.Error(msg, err, fromWatermillFields(fields))
}

func (s *serviceLoggerAdapter) Info(msg string, fields watermill.LogFields) {
	s.base.Info(msg, fromWatermillFields(fields))
}

func (s *serviceLoggerAdapter) Debug(msg string, fields watermill.LogFields) {
	s.base.Debug(msg, fromWatermillFields(fields))
}

func (s *serviceLoggerAdapter) Trace(msg string, fields watermill.LogFields) {
	s.base.Trace(msg, fromWatermillFields(fields))
}

func (s *serviceLoggerAdapter) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &serviceLoggerAdapter{base: s.base.With(fromWatermillFields(fields))}
}

func fromWatermillFields(fields watermill.LogFields) LogFields {
	if len(fields) == 0 {
		return nil
	}
	return LogFields(fields)
}
