package build

import (
	"testing"

	"github.com/decred/slog"
)

func newTestLogWriter() *RotatingLogWriter {
	w := NewRotatingLogWriter()
	for _, tag := range []string{"HODL", "PLGN"} {
		w.RegisterSubLogger(tag, NewSubLogger(tag, w.GenSubLogger))
	}
	return w
}

// TestParseAndSetDebugLevels checks global and per subsystem debug levels.
func TestParseAndSetDebugLevels(t *testing.T) {
	w := newTestLogWriter()

	if err := ParseAndSetDebugLevels("debug", w); err != nil {
		t.Fatalf("unable to set level: %v", err)
	}
	for tag, logger := range w.SubLoggers() {
		if logger.Level() != slog.LevelDebug {
			t.Fatalf("%s: expected debug, got %v", tag,
				logger.Level())
		}
	}

	err := ParseAndSetDebugLevels("HODL=trace,PLGN=warn", w)
	if err != nil {
		t.Fatalf("unable to set levels: %v", err)
	}
	if w.SubLoggers()["HODL"].Level() != slog.LevelTrace ||
		w.SubLoggers()["PLGN"].Level() != slog.LevelWarn {

		t.Fatalf("per subsystem levels not applied")
	}

	invalid := []string{"loud", "HODL=loud", "NOPE=info", "HODL",
		"HODL=info=debug,PLGN=info", "HODL=info,"}
	for _, level := range invalid {
		if err := ParseAndSetDebugLevels(level, w); err == nil {
			t.Fatalf("expected error for %q", level)
		}
	}

	subsystems := w.SupportedSubsystems()
	if len(subsystems) != 2 || subsystems[0] != "HODL" {
		t.Fatalf("unexpected subsystems %v", subsystems)
	}
}
