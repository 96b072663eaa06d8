package alerting

import "github.com/rs/zerolog"

// LogSink is the default Sink. It writes alert transitions to the log, which
// is where a standalone deployment surfaces them; richer sinks (an issue
// registry, a notification service) implement the same interface.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a LogSink.
func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger.With().Str("component", "alerts").Logger()}
}

// RaiseAlert implements Sink.
func (s *LogSink) RaiseAlert(key string, severity Severity, context map[string]string) {
	event := s.logger.Warn()
	if severity == SeverityError {
		event = s.logger.Error()
	}
	for k, v := range context {
		event = event.Str(k, v)
	}
	event.Str("alert", key).Msg("alert raised")
}

// ClearAlert implements Sink.
func (s *LogSink) ClearAlert(key string) {
	s.logger.Info().Str("alert", key).Msg("alert cleared")
}
