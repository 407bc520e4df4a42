package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"k8s.io/utils/clock"

	"aboutcue/server/store"
)

func main() {
	// Check for CLI subcommands before parsing flags.
	if len(os.Args) > 1 {
		// Default data directory for CLI commands (overridable by the
		// -data-dir flag in serve mode).
		if RunCLI(os.Args[1:], "data") {
			return
		}
	}

	apiAddr := flag.String("api-addr", ":8080", "REST API and WebSocket listen address")
	dataDir := flag.String("data-dir", "data", "directory for show files and settings")
	autoConnect := flag.Bool("auto-connect", true, "connect to the console on startup when an address is configured")
	flag.Parse()

	settings := store.LoadSettings(*dataDir)

	st, err := store.Open(*dataDir, settings.LastShowName)
	if err != nil {
		log.Fatalf("[store] %v", err)
	}
	log.Printf("[store] show %q loaded, %d cues", st.ShowName(), len(st.Cues()))

	engine := NewEngine(st, settings, clock.RealClock{})

	hub := NewEventHub()
	engine.SetOnEvent(hub.Broadcast)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown on interrupt.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("[server] shutting down...")
		cancel()
	}()

	// Engine tickers: refresh batching, the active-cue poll, and countdown
	// pushes. Each is inert when its concern is idle.
	go runTicker(ctx, refreshBatchInterval, engine.RefreshTick)
	go runTicker(ctx, pollInterval, engine.PollTick)
	go runTicker(ctx, countdownInterval, engine.CountdownTick)

	// Start metrics logging.
	go RunMetrics(ctx, engine, hub, 30*time.Second)

	// Connect to the console if we know where it lives. Failure is not
	// fatal; the UI retries via POST /api/connect.
	if *autoConnect && settings.OSC.IPAddress != "" {
		if err := engine.Connect(); err != nil {
			log.Printf("[engine] startup connect: %v", err)
		}
	}

	// Create the uploads directory next to the show data.
	uploadsDir := filepath.Join(*dataDir, "uploads")
	if err := os.MkdirAll(uploadsDir, 0o755); err != nil {
		log.Fatalf("[api] create uploads dir: %v", err)
	}

	api := NewAPIServer(engine, hub, uploadsDir)
	log.Printf("[api] listening on %s", *apiAddr)
	api.Run(ctx, *apiAddr)

	// Final flush so annotations made in the last debounce window survive.
	engine.Disconnect()
	if err := st.PersistNow(); err != nil {
		log.Printf("[store] final persist: %v", err)
	}
}

// runTicker invokes fn on every tick until ctx is cancelled.
func runTicker(ctx context.Context, interval time.Duration, fn func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
