package build

import (
	"os"

	"github.com/btcsuite/btclog"
)

// DefaultLogLevel is the level used by subsystem loggers that have not been
// assigned a level explicitly.
const DefaultLogLevel = "info"

// LogWriter is the shared sink for all subsystem loggers. All output is
// written to stdout; callers that need to silence a subsystem should set its
// level rather than swap the writer.
type LogWriter struct{}

// Write writes the log output to stdout.
func (w *LogWriter) Write(b []byte) (int, error) {
	return os.Stdout.Write(b)
}

// NewSubLogger constructs a new subsystem logger. If a sublogger constructor
// is provided it is used so that all subsystems share the same backend;
// otherwise logging for the subsystem is disabled until a caller installs a
// logger explicitly.
func NewSubLogger(subsystem string,
	genSubLogger func(string) btclog.Logger) btclog.Logger {

	if genSubLogger != nil {
		return genSubLogger(subsystem)
	}

	return btclog.Disabled
}

// NewStdOutLogger returns a standalone stdout backed logger for the given
// subsystem at the default level. It is primarily useful for tests and
// tools that do not set up the daemon's shared backend.
func NewStdOutLogger(subsystem string) btclog.Logger {
	backend := btclog.NewBackend(&LogWriter{})
	logger := backend.Logger(subsystem)

	level, _ := btclog.LevelFromString(DefaultLogLevel)
	logger.SetLevel(level)

	return logger
}

// SubLoggers is a type that holds a map of subsystem loggers keyed by their
// subsystem name.
type SubLoggers map[string]btclog.Logger

// SetLogLevels assigns the same log level to every logger in the map. An
// invalid level string is ignored and the loggers keep their current level.
func (l SubLoggers) SetLogLevels(logLevel string) {
	level, ok := btclog.LevelFromString(logLevel)
	if !ok {
		return
	}

	for _, logger := range l {
		logger.SetLevel(level)
	}
}
