// Package tracker implements the central discovery server. Peers register
// their ip:port here and fetch each other's addresses; message traffic never
// passes through the tracker.
package tracker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	log "github.com/sirupsen/logrus"

	"peerchat/helper/timer"
	"peerchat/tracker/protocol"
	"peerchat/tracker/registry"
)

// Limit on one request line. The protocol carries an id and an address,
// nothing that should come close to this.
const maxLineBytes = 4096

// How long a connected client may take to deliver its one command line.
const requestTimeout = 30 * time.Second

type Server struct {
	listener net.Listener
	reg      *registry.Registry

	livenessTimeout time.Duration
	sweepInterval   time.Duration
}

func NewServer(l net.Listener, reg *registry.Registry, livenessTimeout, sweepInterval time.Duration) *Server {
	return &Server{
		listener:        l,
		reg:             reg,
		livenessTimeout: livenessTimeout,
		sweepInterval:   sweepInterval,
	}
}

// Registry exposes the server's registry, mainly for tests.
func (s *Server) Registry() *registry.Registry {
	return s.reg
}

// Run drives the accept loop and the liveness sweeper until the context is
// cancelled. The sweeper is independent of client traffic: a slow or stuck
// client never delays eviction.
func (s *Server) Run(ctx context.Context) error {
	wg, cctx := errgroup.WithContext(ctx)

	wg.Go(func() error {
		return s.serve(cctx)
	})

	wg.Go(func() error {
		interval := &timer.Interval{Duration: s.sweepInterval}
		return timer.RunWithTicker(cctx, interval, s.sweep)
	})

	return wg.Wait()
}

func (s *Server) serve(ctx context.Context) error {
	// Closing the listener unblocks Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		log.Infof("tracker: context cancelled, closing listener %s", s.listener.Addr())
		if err := s.listener.Close(); err != nil {
			log.Warnf("tracker: error closing listener %s: %v", s.listener.Addr(), err)
		}
	}()

	log.Infof("tracker: listening on %s", s.listener.Addr())

	var tempDelay time.Duration // how long to sleep on accept failure
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				log.Infof("tracker: shutting down listener %s", s.listener.Addr())
				return ctx.Err()
			default:
				if ne, ok := err.(net.Error); ok && ne.Timeout() {
					if tempDelay == 0 {
						tempDelay = 5 * time.Millisecond
					} else {
						tempDelay *= 2
					}
					if max := 1 * time.Second; tempDelay > max {
						tempDelay = max
					}
					log.Warnf("tracker: accept error: %v; retrying in %v", err, tempDelay)
					time.Sleep(tempDelay)
					continue
				}
				log.Errorf("tracker: critical accept error: %v", err)
				return err
			}
		}

		tempDelay = 0
		go s.handleConn(conn)
	}
}

// handleConn services exactly one request: read a command line, dispatch,
// write one JSON response, close. Malformed input yields an error response,
// never a dropped connection or a crashed handler.
func (s *Server) handleConn(conn net.Conn) {
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(requestTimeout))

	line, err := readLine(conn)
	if err != nil {
		log.Warnf("tracker: failed to read request from %s: %v", conn.RemoteAddr(), err)
		writeResponse(conn, protocol.Error("Failed to read request"))
		return
	}

	log.Debugf("tracker: %s sent %q", conn.RemoteAddr(), line)

	cmd, err := protocol.Parse(line)
	if err != nil {
		writeResponse(conn, protocol.Error(err.Error()))
		return
	}

	writeResponse(conn, s.dispatch(cmd))
}

// readLine reads one newline-terminated command. A client that closes its
// write side without the newline still gets its line processed.
func readLine(conn net.Conn) (string, error) {
	r := bufio.NewReaderSize(io.LimitReader(conn, maxLineBytes), maxLineBytes)
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return line, nil
}

func writeResponse(conn net.Conn, res *protocol.Response) {
	if err := json.NewEncoder(conn).Encode(res); err != nil {
		log.Warnf("tracker: failed to write response to %s: %v", conn.RemoteAddr(), err)
	}
}

func (s *Server) dispatch(cmd *protocol.Command) *protocol.Response {
	switch cmd.Kind {
	case protocol.KindRegister:
		count := s.reg.Upsert(cmd.PeerID, cmd.IP, cmd.Port)
		log.Infof("tracker: registered peer %s (%s:%d), %d active", cmd.PeerID, cmd.IP, cmd.Port, count)
		return protocol.SuccessCount("Peer registered successfully", count)

	case protocol.KindGetPeers:
		snap := s.reg.Snapshot()
		log.Debugf("tracker: sending peer list (%d peers)", len(snap))
		return protocol.PeerList(snap)

	case protocol.KindUnregister:
		if !s.reg.Remove(cmd.PeerID) {
			return protocol.Error("Peer not found")
		}
		log.Infof("tracker: unregistered peer %s, %d active", cmd.PeerID, s.reg.Count())
		return protocol.Success("Peer unregistered successfully")

	case protocol.KindHeartbeat:
		if !s.reg.Touch(cmd.PeerID) {
			return protocol.Error("Peer not found")
		}
		return protocol.Success("Heartbeat received")
	}

	// Parse only emits the kinds above.
	return protocol.Error("Unknown command")
}

// sweep runs on the ticker and evicts peers whose heartbeat fell outside
// the liveness window.
func (s *Server) sweep(ctx context.Context) error {
	removed := s.reg.Sweep(time.Now(), s.livenessTimeout)
	for _, id := range removed {
		log.Infof("tracker: removing inactive peer %s", id)
	}
	if len(removed) > 0 {
		log.Infof("tracker: %d active peers", s.reg.Count())
	}
	return nil
}
