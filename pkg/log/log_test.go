package log

import "testing"

func TestNopLoggerDoesNotPanic(t *testing.T) {
	l := Nop()
	l.Debug("x")
	l.Infof("y %d", 1)
	derived := l.With("key", "value")
	derived.Warn("z")
}

func TestNewWithConsoleOnly(t *testing.T) {
	logger, err := New(Config{Level: "debug", Console: true})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	logger.Info("hello")
}

func TestNewRejectsInvalidLevel(t *testing.T) {
	_, err := New(Config{Level: "not-a-level"})
	if err == nil {
		t.Fatal("expected error for invalid level")
	}
}
