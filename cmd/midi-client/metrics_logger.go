package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/purplemass/midi-fabric/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"frames_in", snap.FramesIn,
					"frames_out", snap.FramesOut,
					"loopback_suppressed", snap.Loopback,
					"rendered", snap.Rendered,
					"parse_failures", snap.ParseFail,
					"coalesced", snap.Coalesced,
					"notes_immediate", snap.Notes,
					"flushed", snap.Flushed,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
