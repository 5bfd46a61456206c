package sinks

import (
	"context"

	"go.uber.org/zap"

	"github.com/JakeFAU/auditsnap/internal/progress"
)

// LogSink emits one structured log line per lifecycle event.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink wires a Zap logger to the sink interface.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Consume logs each event in the batch using structured fields.
func (s *LogSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		fields := []zap.Field{
			zap.String("report_id", evt.ReportID),
			zap.String("stage", string(evt.Stage)),
			zap.String("host", evt.Host),
			zap.Time("ts", evt.TS),
		}
		if evt.UserID != "" {
			fields = append(fields, zap.String("user_id", evt.UserID))
		}
		if evt.Dur > 0 {
			fields = append(fields, zap.Duration("dur", evt.Dur))
		}
		if evt.Note != "" {
			fields = append(fields, zap.String("note", evt.Note))
		}
		s.logger.Info("lifecycle event", fields...)
	}
	return nil
}

// Close implements the Sink interface; it performs no action.
func (s *LogSink) Close(context.Context) error {
	return nil
}
