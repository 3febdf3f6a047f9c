package polaris

import (
	"context"
	"log/slog"
)

// NewSlogLogger adapts a *slog.Logger to Logger. A nil logger uses slog.Default.
func NewSlogLogger(l *slog.Logger) Logger {
	if l == nil {
		l = slog.Default()
	}

	return &slogLogger{l: l}
}

type slogLogger struct {
	l *slog.Logger
}

func (s *slogLogger) Debug(msg string, fields map[string]interface{}) {
	s.log(slog.LevelDebug, msg, fields)
}

func (s *slogLogger) Info(msg string, fields map[string]interface{}) {
	s.log(slog.LevelInfo, msg, fields)
}

func (s *slogLogger) Warn(msg string, fields map[string]interface{}) {
	s.log(slog.LevelWarn, msg, fields)
}

func (s *slogLogger) Error(msg string, fields map[string]interface{}) {
	s.log(slog.LevelError, msg, fields)
}

func (s *slogLogger) log(level slog.Level, msg string, fields map[string]interface{}) {
	attrs := make([]slog.Attr, 0, len(fields))
	for k, v := range fields {
		attrs = append(attrs, slog.Any(k, v))
	}

	s.l.LogAttrs(context.Background(), level, msg, attrs...)
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, map[string]interface{}) {}
func (NopLogger) Info(string, map[string]interface{})  {}
func (NopLogger) Warn(string, map[string]interface{})  {}
func (NopLogger) Error(string, map[string]interface{}) {}
