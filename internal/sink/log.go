package sink

import (
	"context"

	"actiongate/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogSink writes forwarded actions to the service log
type LogSink struct {
	logger *zap.Logger
	level  zapcore.Level
}

// NewLogSink creates a log sink. An unknown level falls back to info.
func NewLogSink(cfg *config.LogSinkConfig, logger *zap.Logger) *LogSink {
	level := zapcore.InfoLevel
	if cfg != nil && cfg.Level != "" {
		if l, err := zapcore.ParseLevel(cfg.Level); err == nil {
			level = l
		}
	}
	return &LogSink{
		logger: logger.Named("events"),
		level:  level,
	}
}

// Name returns the sink type
func (s *LogSink) Name() Type { return TypeLog }

// Deliver logs the event
func (s *LogSink) Deliver(_ context.Context, ev *Event) error {
	if ce := s.logger.Check(s.level, "Action forwarded"); ce != nil {
		ce.Write(
			zap.String("event_id", ev.ID),
			zap.String("group", ev.Group),
			zap.String("channel", ev.Channel),
			zap.Any("args", ev.Args),
			zap.Time("forwarded_at", ev.ForwardedAt),
		)
	}
	return nil
}

// Close is a no-op
func (s *LogSink) Close() error { return nil }
