package build

import (
	"io"
	"os"

	"github.com/decred/slog"
)

// LogWriter is the shared sink of every subsystem logger. Output always goes
// to stderr, since stdout carries the plugin protocol, and is additionally
// copied to the log rotator once one has been attached.
type LogWriter struct {
	// RotatorPipe is the write-end pipe for writing to the log rotator.
	RotatorPipe *io.PipeWriter
}

// Write writes the data in b to stderr and, if present, the rotator pipe.
func (w *LogWriter) Write(b []byte) (int, error) {
	os.Stderr.Write(b)
	if w.RotatorPipe != nil {
		w.RotatorPipe.Write(b)
	}
	return len(b), nil
}

// NewSubLogger constructs a new subsystem log from the passed generator. When
// no generator is given the returned logger is disabled, which is what
// packages use as their default until the main package wires them up.
func NewSubLogger(subsystem string,
	genSubLogger func(string) slog.Logger) slog.Logger {

	if genSubLogger == nil {
		return slog.Disabled
	}
	return genSubLogger(subsystem)
}
