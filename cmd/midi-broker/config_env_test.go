package main

import (
	"os"
	"testing"
	"time"
)

func TestApplyEnvOverrides_Basic(t *testing.T) {
	base := &appConfig{
		listenAddr:   ":7676",
		logFormat:    "text",
		logLevel:     "info",
		metricsAddr:  "",
		broadcastBuf: 256,
		maxClients:   0,
		clientReadTO: 60 * time.Second,
		mdnsEnable:   false,
		mdnsName:     "",
	}

	os.Setenv("MIDI_BROKER_BROADCAST_BUFFER", "512")
	os.Setenv("MIDI_BROKER_MDNS_ENABLE", "true")
	os.Setenv("MIDI_BROKER_CLIENT_READ_TIMEOUT", "10s")
	os.Setenv("MIDI_BROKER_LOG_METRICS_INTERVAL", "5s")
	t.Cleanup(func() {
		os.Unsetenv("MIDI_BROKER_BROADCAST_BUFFER")
		os.Unsetenv("MIDI_BROKER_MDNS_ENABLE")
		os.Unsetenv("MIDI_BROKER_CLIENT_READ_TIMEOUT")
		os.Unsetenv("MIDI_BROKER_LOG_METRICS_INTERVAL")
	})
	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.broadcastBuf != 512 {
		t.Fatalf("expected broadcastBuf override, got %d", base.broadcastBuf)
	}
	if !base.mdnsEnable {
		t.Fatalf("expected mdnsEnable true")
	}
	if base.clientReadTO != 10*time.Second {
		t.Fatalf("expected clientReadTO 10s got %v", base.clientReadTO)
	}
	if base.logMetricsEvery != 5*time.Second {
		t.Fatalf("expected logMetricsEvery 5s got %v", base.logMetricsEvery)
	}
}

func TestApplyEnvOverrides_FlagPrecedence(t *testing.T) {
	base := &appConfig{broadcastBuf: 256}
	os.Setenv("MIDI_BROKER_BROADCAST_BUFFER", "999")
	t.Cleanup(func() { os.Unsetenv("MIDI_BROKER_BROADCAST_BUFFER") })
	if err := applyEnvOverrides(base, map[string]struct{}{"broadcast-buffer": {}}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if base.broadcastBuf != 256 {
		t.Fatalf("expected broadcastBuf unchanged 256 got %d", base.broadcastBuf)
	}
}

func TestApplyEnvOverrides_BadInt(t *testing.T) {
	base := &appConfig{maxClients: 0}
	os.Setenv("MIDI_BROKER_MAX_CLIENTS", "notint")
	t.Cleanup(func() { os.Unsetenv("MIDI_BROKER_MAX_CLIENTS") })
	if err := applyEnvOverrides(base, map[string]struct{}{}); err == nil {
		t.Fatalf("expected error for bad integer")
	}
}
