package fedd

import (
	"github.com/btcsuite/btclog"

	"github.com/nexusfed/fedd/build"
	"github.com/nexusfed/fedd/peer"
	"github.com/nexusfed/fedd/routing"
	"github.com/nexusfed/fedd/signal"
)

// log is a logger that is initialized with no output filters. This means the
// package will not perform any logging by default until the caller requests
// it.
var log btclog.Logger

// The default amount of logging is none.
func init() {
	UseLogger(build.NewSubLogger("FEDD", nil))
}

// DisableLog disables all library log output. Logging output is disabled by
// default until UseLogger is called.
func DisableLog() {
	UseLogger(btclog.Disabled)
}

// UseLogger uses a specified Logger to output package logging info. This
// should be used in preference to SetLogWriter if the caller is also using
// btclog.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// SetupLoggers installs a stdout backed logger for every subsystem in the
// daemon and applies the requested log level across all of them.
func SetupLoggers(logLevel string) {
	backend := btclog.NewBackend(&build.LogWriter{})

	subLoggers := make(build.SubLoggers)
	genLogger := func(subsystem string) btclog.Logger {
		logger := backend.Logger(subsystem)
		subLoggers[subsystem] = logger
		return logger
	}

	UseLogger(build.NewSubLogger("FEDD", genLogger))
	peer.UseLogger(build.NewSubLogger("PEER", genLogger))
	routing.UseLogger(build.NewSubLogger("RTNG", genLogger))
	signal.UseLogger(build.NewSubLogger("SGNL", genLogger))

	subLoggers.SetLogLevels(logLevel)
}

// logClosure is used to provide a closure over expensive logging operations
// so they are not performed when the logging level does not warrant it.
type logClosure func() string

func (c logClosure) String() string {
	return c()
}

func newLogClosure(c func() string) logClosure {
	return logClosure(c)
}
