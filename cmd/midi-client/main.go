// Command midi-client joins the broker's relay, rendering inbound MIDI
// events to a local output and forwarding events from subscribed local
// inputs, debounced and coalesced before being forwarded.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/purplemass/midi-fabric/internal/identity"
	"github.com/purplemass/midi-fabric/internal/metrics"
	"github.com/purplemass/midi-fabric/internal/session"
)

const outboundQueueSize = 256

func main() {
	cfg, showVersion, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if showVersion {
		fmt.Printf("midi-client %s (commit %s, built %s)\n", version, commit, date)
		return
	}

	l := setupLogger(cfg.logFormat, cfg.logLevel)
	l.Info("build_info", "version", version, "commit", commit, "date", date)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() { <-sigCh; l.Info("shutdown_signal"); cancel() }()

	id, err := resolveClientID(cfg.clientIDStr)
	if err != nil {
		l.Error("client_id_error", "error", err)
		os.Exit(1)
	}
	l.Info("client_id", "id", id.String())

	addr := cfg.serverIP
	if cfg.discover && addr == "" {
		discovered, derr := discoverBroker(ctx, 5*time.Second)
		if derr != nil {
			l.Error("discover_failed", "error", derr)
			os.Exit(1)
		}
		addr = discovered
		l.Info("broker_discovered", "addr", addr)
	} else {
		addr = cfg.brokerAddr()
	}

	backend, err := openBackend(ctx, cfg)
	if err != nil {
		l.Error("backend_init_error", "error", err)
		os.Exit(1)
	}
	defer func() { _ = backend.Close() }()

	var wg sync.WaitGroup
	startMetricsLogger(ctx, 0, l, &wg)
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sess, err := session.Dial(addr, id, backend, outboundQueueSize)
	if err != nil {
		l.Error("connect_failed", "addr", addr, "error", err)
		os.Exit(1)
	}
	metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })

	renderOnly, err := backend.startInputs(ctx, id, sess.Outbound(), cfg)
	if err != nil {
		l.Error("input_setup_error", "error", err)
		os.Exit(1)
	}
	if renderOnly {
		l.Info("render_only_mode", "reason", "no inputs enumerated")
	}

	if cfg.chat {
		go runChatLoop(os.Stdin, id, sess.Outbound(), l)
	}

	if err := sess.Run(ctx); err != nil {
		l.Error("session_ended", "error", err)
	}
	cancel()
	wg.Wait()
}

func resolveClientID(override string) (identity.ClientId, error) {
	if override == "" {
		return identity.New(), nil
	}
	return identity.Parse(override)
}

func openBackend(ctx context.Context, cfg *appConfig) (midiBackend, error) {
	switch cfg.midiBackend {
	case "serial":
		return newSerialBackend(ctx, cfg)
	default:
		return newVirtualBackend(cfg)
	}
}
