package monitoring

import (
	"testing"
)

func TestSetLogger(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	called := false
	SetLogger(func(format string, v ...interface{}) {
		called = true
	})
	Logf("test message")
	if !called {
		t.Error("custom logger was not called")
	}

	// nil installs a no-op, not a nil func
	called = false
	SetLogger(nil)
	Logf("test message")
	if called {
		t.Error("no-op logger should not have triggered callback")
	}
	if Logf == nil {
		t.Error("Logf must never be nil")
	}
}

func TestPrefixed(t *testing.T) {
	original := Logf
	defer func() { Logf = original }()

	var got string
	SetLogger(func(format string, v ...interface{}) {
		got = format
	})

	engineLog := Prefixed("engine")
	engineLog("cycle %d closed", 3)
	if got != "[engine] cycle %d closed" {
		t.Errorf("prefixed format = %q, want %q", got, "[engine] cycle %d closed")
	}

	// Prefixed must pick up a logger installed after it was created.
	var swapped string
	SetLogger(func(format string, v ...interface{}) {
		swapped = format
	})
	engineLog("restarted")
	if swapped != "[engine] restarted" {
		t.Errorf("prefixed logger did not follow SetLogger, got %q", swapped)
	}
}
