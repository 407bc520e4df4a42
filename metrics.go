package main

import (
	"context"
	"log"
	"time"
)

// RunMetrics logs engine stats every interval until ctx is canceled.
func RunMetrics(ctx context.Context, engine *Engine, hub *EventHub, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var lastRx, lastTx uint64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rx, tx, cues, connected := engine.Stats()
			if !connected && rx == lastRx && tx == lastTx {
				continue
			}
			log.Printf("[metrics] connected=%v cues=%d rx=%d tx=%d (%.1f msg/s in) browsers=%d",
				connected, cues, rx, tx,
				float64(rx-lastRx)/interval.Seconds(), hub.ClientCount())
			lastRx, lastTx = rx, tx
		}
	}
}
