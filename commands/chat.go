package commands

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"peerchat/cli"
	"peerchat/config"
	"peerchat/datastore/history"
	"peerchat/peer"
	"peerchat/tracker/client"
)

const unregisterTimeout = 3 * time.Second

// RunChat starts the chat client: register with the tracker, run the
// inbound listener and heartbeat in the background, and hand the
// foreground to the interactive command loop.
func RunChat(ctx context.Context, cfg *config.Config, peerID string) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// One history log per peer id, so two local clients don't fight over
	// the same LevelDB.
	hist, err := history.Open(filepath.Join(cfg.Peer.HistoryPath, peerID))
	if err != nil {
		log.Fatalf("Failed to open message history: %v", err)
	}
	defer hist.Close()

	ui, err := cli.New(hist)
	if err != nil {
		log.Fatalf("Failed to set up terminal: %v", err)
	}

	tc := client.New(cfg.Peer.TrackerAddress, cfg.DialTimeout())

	p, err := peer.New(cfg, peerID, tc, hist, ui)
	if err != nil {
		log.Fatalf("Failed to start peer: %v", err)
	}
	ui.Attach(p)

	if err := p.Register(ctx); err != nil {
		log.Fatalf("Failed to register with tracker: %v", err)
	}
	if err := p.RefreshPeers(ctx); err != nil {
		log.Warnf("Failed to fetch initial peer list: %v", err)
	}

	cctx, cancel := context.WithCancel(ctx)
	defer cancel()

	wg, cctx := errgroup.WithContext(cctx)
	wg.Go(func() error {
		return p.Run(cctx)
	})
	wg.Go(func() error {
		// When the command loop exits, take the background tasks down too.
		defer cancel()
		return ui.Run(cctx)
	})

	if err := wg.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Errorf("Chat terminated: %v", err)
	}

	// Best-effort goodbye on a fresh context; never blocks shutdown for
	// long if the tracker is gone.
	uctx, ucancel := context.WithTimeout(context.Background(), unregisterTimeout)
	defer ucancel()
	if err := p.Unregister(uctx); err != nil {
		log.Warnf("Failed to unregister from tracker: %v", err)
	} else {
		log.Info("Unregistered from tracker")
	}
}
