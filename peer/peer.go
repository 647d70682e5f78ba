// Package peer implements the client side of the system: registration and
// heartbeating against the tracker, a locally cached peer list, direct and
// broadcast sends, and the inbound listener for messages from other peers.
package peer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	log "github.com/sirupsen/logrus"

	"peerchat/config"
	"peerchat/datamodel/message"
	"peerchat/datamodel/peer"
	"peerchat/datastore/history"
	"peerchat/helper/timer"
	"peerchat/tracker/client"
)

// ErrUnknownPeer means the target id is not in the local cache. No network
// call is attempted; refresh the cache and retry.
var ErrUnknownPeer = errors.New("unknown peer")

// DeliveryError wraps a failed connect or write to another peer. It is
// non-fatal: the cache entry stays untouched so the caller sees the
// staleness instead of having it silently repaired.
type DeliveryError struct {
	PeerID string
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("delivery to %s failed: %v", e.PeerID, e.Err)
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}

// SendResult is one per-peer outcome of a broadcast.
type SendResult struct {
	PeerID string
	Err    error
}

// Notifier receives every inbound message. Implementations must not block;
// they run on the connection goroutine.
type Notifier interface {
	Notify(msg message.Message)
}

type NotifierFunc func(msg message.Message)

func (f NotifierFunc) Notify(msg message.Message) {
	f(msg)
}

type Peer struct {
	ID   string
	IP   string
	Port int

	tracker  *client.Client
	history  *history.Store // optional
	notifier Notifier       // optional

	dialTimeout       time.Duration
	heartbeatInterval time.Duration

	listener net.Listener

	// cache is a wholesale copy of the last GET_PEERS snapshot, self
	// excluded. Staleness between refreshes is expected. The heartbeat
	// task never touches it.
	mu    sync.RWMutex
	cache map[string]peer.Record

	// Collapses concurrent refreshes into one tracker round trip.
	sg singleflight.Group
}

// New binds the inbound listener and assembles a peer. A bind failure is
// the one unrecoverable startup fault and is returned to the caller.
func New(cfg *config.Config, id string, tracker *client.Client, hist *history.Store, notifier Notifier) (*Peer, error) {
	l, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Peer.ListenPort))
	if err != nil {
		return nil, fmt.Errorf("failed to bind listen port %d: %w", cfg.Peer.ListenPort, err)
	}

	port := cfg.Peer.ListenPort
	if tcpAddr, ok := l.Addr().(*net.TCPAddr); ok {
		port = tcpAddr.Port
	}

	ip := cfg.Peer.AdvertisedIP
	if ip == "" {
		ip = localIP()
	}

	p := &Peer{
		ID:                id,
		IP:                ip,
		Port:              port,
		tracker:           tracker,
		history:           hist,
		notifier:          notifier,
		dialTimeout:       cfg.DialTimeout(),
		heartbeatInterval: cfg.HeartbeatInterval(),
		listener:          l,
		cache:             make(map[string]peer.Record),
	}

	log.Infof("I am %s, listening for peers on %s", p.ID, l.Addr())

	return p, nil
}

// Register announces this peer to the tracker. Heartbeats are scheduled by
// Run, not here.
func (p *Peer) Register(ctx context.Context) error {
	count, err := p.tracker.Register(ctx, p.ID, p.IP, p.Port)
	if err != nil {
		return err
	}
	log.Infof("peer: registered with tracker %s, %d peers in network", p.tracker.Addr(), count)
	return nil
}

// Unregister is best-effort and meant for shutdown paths; callers bound it
// with their own short timeout.
func (p *Peer) Unregister(ctx context.Context) error {
	return p.tracker.Unregister(ctx, p.ID)
}

// Run drives the inbound listener and the heartbeat ticker until the
// context is cancelled. Both run independently of the foreground command
// loop, so a slow remote peer never stalls local message reception.
func (p *Peer) Run(ctx context.Context) error {
	wg, cctx := errgroup.WithContext(ctx)

	wg.Go(func() error {
		return p.serve(cctx)
	})

	wg.Go(func() error {
		interval := &timer.Interval{
			Duration: p.heartbeatInterval,
			Jitter:   p.heartbeatInterval / 6,
		}
		return timer.RunWithTicker(cctx, interval, p.heartbeat)
	})

	return wg.Wait()
}

// heartbeat runs on the ticker. It always returns nil: failures are logged
// and the next attempt is simply scheduled.
func (p *Peer) heartbeat(ctx context.Context) error {
	err := p.tracker.Heartbeat(ctx, p.ID)

	var serr client.ServerError
	switch {
	case err == nil:
		log.Debugf("peer: heartbeat acknowledged")
	case errors.As(err, &serr):
		// A sweep evicted us between heartbeats. Accepted race: the fix
		// is simply to register again.
		log.Warnf("peer: tracker dropped our registration (%v), re-registering", serr)
		if rerr := p.Register(ctx); rerr != nil {
			log.Errorf("peer: re-registration failed: %v", rerr)
		}
	default:
		log.Warnf("peer: heartbeat failed: %v", err)
	}
	return nil
}

// RefreshPeers fetches a fresh snapshot from the tracker and replaces the
// cache wholesale, with no merging of the previous contents. Our own record
// is filtered out.
func (p *Peer) RefreshPeers(ctx context.Context) error {
	_, err, _ := p.sg.Do("refresh", func() (interface{}, error) {
		// The round trip is shared with every caller piggybacking on this
		// flight, so it must not die with the first caller's context. The
		// tracker client bounds it with its own timeout.
		records, err := p.tracker.GetPeers(context.WithoutCancel(ctx))
		if err != nil {
			return nil, err
		}

		next := make(map[string]peer.Record, len(records))
		for _, rec := range records {
			if rec.PeerID == p.ID {
				continue
			}
			next[rec.PeerID] = rec
		}

		p.mu.Lock()
		p.cache = next
		p.mu.Unlock()

		log.Infof("peer: updated peer list, %d peers available", len(next))
		return nil, nil
	})
	return err
}

// Peers returns a copy of the cached peer list, sorted by id for stable
// display.
func (p *Peer) Peers() []peer.Record {
	p.mu.RLock()
	out := make([]peer.Record, 0, len(p.cache))
	for _, rec := range p.cache {
		out = append(out, rec)
	}
	p.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].PeerID < out[j].PeerID })
	return out
}

// SendDirect delivers content to one peer from the cache. A cache miss
// fails with ErrUnknownPeer before any network activity.
func (p *Peer) SendDirect(ctx context.Context, peerID, content string) error {
	p.mu.RLock()
	rec, ok := p.cache[peerID]
	p.mu.RUnlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, peerID)
	}

	msg := message.Message{Type: message.TypeDirect, From: p.ID, Content: content}
	return p.deliver(ctx, rec, msg)
}

// Broadcast attempts delivery to every cached peer except ourselves and
// reports one result per peer. An unreachable peer never aborts the
// remaining sends.
func (p *Peer) Broadcast(ctx context.Context, content string) []SendResult {
	msg := message.Message{Type: message.TypeBroadcast, From: p.ID, Content: content}

	targets := p.Peers()
	results := make([]SendResult, 0, len(targets))
	sent := 0

	for _, rec := range targets {
		if rec.PeerID == p.ID {
			continue
		}
		err := p.deliver(ctx, rec, msg)
		if err != nil {
			log.Warnf("peer: broadcast to %s failed: %v", rec.PeerID, err)
		} else {
			sent++
		}
		results = append(results, SendResult{PeerID: rec.PeerID, Err: err})
	}

	log.Infof("peer: broadcast sent to %d of %d peers", sent, len(results))
	return results
}

// deliver opens a fresh connection, writes one message and closes. The
// connection is not cached or reused.
func (p *Peer) deliver(ctx context.Context, rec peer.Record, msg message.Message) error {
	d := net.Dialer{Timeout: p.dialTimeout}
	conn, err := d.DialContext(ctx, "tcp", rec.Addr())
	if err != nil {
		return &DeliveryError{PeerID: rec.PeerID, Err: err}
	}
	defer conn.Close()

	conn.SetWriteDeadline(time.Now().Add(p.dialTimeout))
	if err := writeMessage(conn, msg); err != nil {
		return &DeliveryError{PeerID: rec.PeerID, Err: err}
	}

	log.Debugf("peer: sent %s message to %s", msg.Type, rec.PeerID)
	return nil
}

// Addr returns the address other peers dial to reach us.
func (p *Peer) Addr() string {
	return p.listener.Addr().String()
}

// localIP guesses the address other peers should dial. No packet is sent;
// the dial only selects the outbound interface.
func localIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return "127.0.0.1"
	}
	defer conn.Close()

	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return "127.0.0.1"
}
