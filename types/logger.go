package types

// Logger is the structured logging interface used throughout the
// library. Every method takes a message followed by alternating
// key-value pairs, so a zap.SugaredLogger satisfies it directly and
// other structured loggers need only a thin adapter.
//
// The library logs election progress at Debug and Info, transient
// coordination failures at Warn, and hook faults at Error. It never
// calls Fatal itself; the level exists for applications sharing the
// logger.
type Logger interface {
	// Debug logs fine-grained election progress, such as individual
	// state transitions and claim outcomes.
	Debug(msg string, keysAndValues ...any)

	// Info logs lifecycle milestones: election started, finished.
	Info(msg string, keysAndValues ...any)

	// Warn logs recoverable problems that trigger a retry.
	Warn(msg string, keysAndValues ...any)

	// Error logs faults that are absorbed but should not happen, such
	// as a panicking hook.
	Error(msg string, keysAndValues ...any)

	// Fatal logs at the highest severity and is expected to terminate
	// the process, matching zap's SugaredLogger.Fatalw semantics.
	Fatal(msg string, keysAndValues ...any)
}
