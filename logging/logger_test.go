package logging

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]LogLevel{
		"error":   LogLevelError,
		"warn":    LogLevelWarn,
		"warning": LogLevelWarn,
		"info":    LogLevelInfo,
		"debug":   LogLevelDebug,
		"bogus":   LogLevelInfo,
	}
	for name, want := range cases {
		if got := ParseLevel(name); got != want {
			t.Fatalf("ParseLevel(%q) = %d, want %d", name, got, want)
		}
	}
}

func TestFromZapRecordsEntries(t *testing.T) {
	obsCore, logs := observer.New(zapcore.DebugLevel)
	l := FromZap(zap.New(obsCore)).Named("sim")

	l.Debugf("sent %d", 1)
	l.Warnf("dropped %s", "m1")

	entries := logs.All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[1].Message != "dropped m1" {
		t.Fatalf("unexpected message %q", entries[1].Message)
	}
	if entries[0].LoggerName != "sim" {
		t.Fatalf("expected logger name sim, got %q", entries[0].LoggerName)
	}
}

func TestNilLoggerIsSafe(t *testing.T) {
	var l *Logger
	l.Infof("ignored")
	l.SetLevel(LogLevelDebug)
	if l.Named("x") != nil {
		t.Fatalf("expected nil child from nil logger")
	}
}

func TestSetLoggerIgnoresNil(t *testing.T) {
	prev := GetLogger()
	SetLogger(nil)
	if GetLogger() != prev {
		t.Fatalf("SetLogger(nil) must keep the current logger")
	}
	nop := NewNop()
	SetLogger(nop)
	defer SetLogger(prev)
	if GetLogger() != nop {
		t.Fatalf("SetLogger did not install logger")
	}
}
