package commands

import (
	"context"
	"errors"
	"net"
	"os"
	"os/signal"
	"syscall"

	"peerchat/config"
	"peerchat/tracker"
	"peerchat/tracker/registry"
)

// RunTracker starts the peer tracker server and blocks until interrupted.
func RunTracker(ctx context.Context, cfg *config.Config) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	l, err := net.Listen("tcp", cfg.Tracker.ListenAddress)
	if err != nil {
		log.Fatalf("Failed to bind %s: %v", cfg.Tracker.ListenAddress, err)
	}

	log.Infof("Peer tracker started on %s (liveness timeout %v, sweep every %v)",
		l.Addr(), cfg.LivenessTimeout(), cfg.SweepInterval())

	srv := tracker.NewServer(l, registry.New(), cfg.LivenessTimeout(), cfg.SweepInterval())
	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("Tracker failed: %v", err)
	}

	log.Info("Tracker stopped")
}
