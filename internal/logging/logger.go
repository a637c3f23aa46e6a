// Package logging defines the structured-logging contract shared by every
// component. Loggers are handed to constructors explicitly; no package keeps a
// process-wide logger of its own.
package logging

// Logger is a leveled, structured logger. The variadic args are key-value
// pairs, e.g. log.Info("session issued", "account", uid).
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// With returns a child logger that always includes the given key-value
	// pairs.
	With(args ...any) Logger
}
