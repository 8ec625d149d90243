package modregistry

// Logger defines the interface for registry logging.
// The registry uses structured logging with key-value pairs to provide
// consistent, parseable log output across all components.
//
// The Logger interface uses variadic arguments in key-value pairs:
//
//	logger.Info("message", "key1", "value1", "key2", "value2")
//
// This approach is compatible with popular structured logging libraries
// like slog, logrus, zap, and others. Example implementation using
// Go's standard log/slog:
//
//	type SlogLogger struct {
//	    logger *slog.Logger
//	}
//
//	func (l *SlogLogger) Info(msg string, args ...any) {
//	    l.logger.Info(msg, args...)
//	}
type Logger interface {
	// Info logs an informational message with optional key-value pairs.
	// Used for normal registry events like module registration or job completion.
	Info(msg string, args ...any)

	// Error logs an error message with optional key-value pairs.
	Error(msg string, args ...any)

	// Warn logs a warning message with optional key-value pairs.
	// Used for conditions that are unusual but don't prevent normal operation.
	Warn(msg string, args ...any)

	// Debug logs a debug message with optional key-value pairs.
	// Used for detailed diagnostic information, typically disabled in production.
	Debug(msg string, args ...any)
}

// NoopLogger discards all log output. It is the default logger for
// components constructed without an explicit logger.
type NoopLogger struct{}

// Info implements Logger.
func (NoopLogger) Info(string, ...any) {}

// Error implements Logger.
func (NoopLogger) Error(string, ...any) {}

// Warn implements Logger.
func (NoopLogger) Warn(string, ...any) {}

// Debug implements Logger.
func (NoopLogger) Debug(string, ...any) {}
