package runtime

import "log/slog"

type LogLevel string

const (
	LevelInfo    LogLevel = "info"
	LevelSuccess LogLevel = "success"
	LevelWarn    LogLevel = "warn"
	LevelError   LogLevel = "error"
)

// LogFunc receives every engine and handler log line. nodeID is empty for
// execution-wide lines.
type LogFunc func(level LogLevel, message, nodeID string)

// SlogSink forwards log lines to l. Success lines are logged at info with
// outcome=success.
func SlogSink(l *slog.Logger) LogFunc {
	return func(level LogLevel, message, nodeID string) {
		var attrs []any
		if nodeID != "" {
			attrs = append(attrs, "node", nodeID)
		}

		switch level {
		case LevelError:
			l.Error(message, attrs...)
		case LevelWarn:
			l.Warn(message, attrs...)
		case LevelSuccess:
			l.Info(message, append(attrs, "outcome", "success")...)
		default:
			l.Info(message, attrs...)
		}
	}
}

// MultiSink fans a log line out to every non-nil sink in order.
func MultiSink(sinks ...LogFunc) LogFunc {
	return func(level LogLevel, message, nodeID string) {
		for _, s := range sinks {
			if s != nil {
				s(level, message, nodeID)
			}
		}
	}
}

func discardLog(LogLevel, string, string) {}
