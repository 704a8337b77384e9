package audit

import (
	"context"
	"log/slog"
)

// LoggerSink writes events to the structured logger.
type LoggerSink struct {
	logger *slog.Logger
}

// NewLoggerSink constructs a logging sink.
func NewLoggerSink(logger *slog.Logger) *LoggerSink {
	return &LoggerSink{logger: logger}
}

// Append writes the event as a single log line.
func (s *LoggerSink) Append(ctx context.Context, e Event) error {
	if s == nil || s.logger == nil {
		return nil
	}
	s.logger.InfoContext(ctx, "audit",
		slog.String("action", e.Action),
		slog.String("user_id", e.UserID),
		slog.String("group_id", e.GroupID),
		slog.String("details", e.Details),
	)
	return nil
}
