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
					"hub_drops", snap.HubDrops,
					"hub_peers", snap.HubPeers,
					"fanout", snap.Fanout,
					"malformed", snap.Malformed,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
