package hodlvoice

import (
	"github.com/decred/hodlvoice/build"
	"github.com/decred/hodlvoice/chainstate"
	"github.com/decred/hodlvoice/clnrpc"
	"github.com/decred/hodlvoice/hodl"
	"github.com/decred/hodlvoice/holdstore"
	"github.com/decred/hodlvoice/lnplugin"
	"github.com/decred/hodlvoice/monitoring"
	"github.com/decred/hodlvoice/signal"
	"github.com/decred/slog"
)

// Loggers per subsystem. A single backend logger is created and all subsystem
// loggers created from it will write to the backend. When adding new
// subsystems, add the subsystem logger variable here and to the
// subsystemLoggers map.
//
// Loggers can not be used before the log rotator has been initialized with a
// log file. This must be performed early during application startup by
// calling logWriter.InitLogRotator.
var (
	logWriter = build.NewRotatingLogWriter()

	// hdvcLog is the logger of the plugin's main package.
	hdvcLog = build.NewSubLogger("HDVC", logWriter.GenSubLogger)
)

// Initialize package-global logger variables.
func init() {
	setSubLogger("HDVC", hdvcLog, nil)
	addSubLogger("HODL", hodl.UseLogger)
	addSubLogger("CHST", chainstate.UseLogger)
	addSubLogger("HSTR", holdstore.UseLogger)
	addSubLogger("PLGN", lnplugin.UseLogger)
	addSubLogger("CRPC", clnrpc.UseLogger)
	addSubLogger("MNTR", monitoring.UseLogger)
	addSubLogger("SGNL", signal.UseLogger)
}

// addSubLogger is a helper method to conveniently create and register the
// logger of a sub system.
func addSubLogger(subsystem string, useLogger func(slog.Logger)) {
	logger := build.NewSubLogger(subsystem, logWriter.GenSubLogger)
	setSubLogger(subsystem, logger, useLogger)
}

// setSubLogger is a helper method to conveniently register the logger of a sub
// system.
func setSubLogger(subsystem string, logger slog.Logger,
	useLogger func(slog.Logger)) {

	logWriter.RegisterSubLogger(subsystem, logger)
	if useLogger != nil {
		useLogger(logger)
	}
}
