package main

import (
	"os"
	"testing"
)

func TestApplyEnvOverrides_Basic(t *testing.T) {
	base := &appConfig{
		midiBackend:  "virtual",
		serialDevice: "/dev/ttyAMA0",
		serialBaud:   31250,
		logFormat:    "text",
		logLevel:     "info",
		metricsAddr:  "",
	}

	os.Setenv("MIDI_CLIENT_MIDI_BACKEND", "serial")
	os.Setenv("MIDI_CLIENT_SERIAL_DEVICE", "/dev/ttyUSB0")
	os.Setenv("MIDI_CLIENT_SERIAL_BAUD", "9600")
	os.Setenv("MIDI_CLIENT_LOG_LEVEL", "debug")
	t.Cleanup(func() {
		os.Unsetenv("MIDI_CLIENT_MIDI_BACKEND")
		os.Unsetenv("MIDI_CLIENT_SERIAL_DEVICE")
		os.Unsetenv("MIDI_CLIENT_SERIAL_BAUD")
		os.Unsetenv("MIDI_CLIENT_LOG_LEVEL")
	})
	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.midiBackend != "serial" {
		t.Fatalf("expected midiBackend override, got %q", base.midiBackend)
	}
	if base.serialDevice != "/dev/ttyUSB0" {
		t.Fatalf("expected serialDevice override, got %q", base.serialDevice)
	}
	if base.serialBaud != 9600 {
		t.Fatalf("expected serialBaud override, got %d", base.serialBaud)
	}
	if base.logLevel != "debug" {
		t.Fatalf("expected logLevel override, got %q", base.logLevel)
	}
}

func TestApplyEnvOverrides_FlagPrecedence(t *testing.T) {
	base := &appConfig{midiBackend: "virtual"}
	os.Setenv("MIDI_CLIENT_MIDI_BACKEND", "serial")
	t.Cleanup(func() { os.Unsetenv("MIDI_CLIENT_MIDI_BACKEND") })
	if err := applyEnvOverrides(base, map[string]struct{}{"midi-backend": {}}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if base.midiBackend != "virtual" {
		t.Fatalf("expected midiBackend unchanged \"virtual\" got %q", base.midiBackend)
	}
}

func TestApplyEnvOverrides_BadInt(t *testing.T) {
	base := &appConfig{serialBaud: 31250}
	os.Setenv("MIDI_CLIENT_SERIAL_BAUD", "notint")
	t.Cleanup(func() { os.Unsetenv("MIDI_CLIENT_SERIAL_BAUD") })
	if err := applyEnvOverrides(base, map[string]struct{}{}); err == nil {
		t.Fatalf("expected error for bad integer")
	}
}
