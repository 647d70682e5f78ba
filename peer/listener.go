package peer

import (
	"context"
	"encoding/json"
	"net"
	"time"

	log "github.com/sirupsen/logrus"

	"peerchat/datamodel/message"
)

// How long an inbound connection may take to deliver its one message.
const inboundTimeout = 30 * time.Second

// serve accepts direct connections from other peers. Each connection
// carries exactly one message and is closed afterwards.
func (p *Peer) serve(ctx context.Context) error {
	// Closing the listener unblocks Accept when the context is cancelled.
	go func() {
		<-ctx.Done()
		log.Debugf("peer: context cancelled, closing listener %s", p.listener.Addr())
		if err := p.listener.Close(); err != nil {
			log.Warnf("peer: error closing listener: %v", err)
		}
	}()

	var tempDelay time.Duration
	for {
		conn, err := p.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				log.Infof("peer: inbound listener shutting down")
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
					log.Warnf("peer: accept error: %v; retrying in %v", err, tempDelay)
					time.Sleep(tempDelay)
					continue
				}
				log.Errorf("peer: critical accept error: %v", err)
				return err
			}
		}

		tempDelay = 0
		go p.handleInbound(conn)
	}
}

// handleInbound reads one message, hands it to the notifier sink, logs it
// to history and closes the connection.
func (p *Peer) handleInbound(conn net.Conn) {
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(inboundTimeout))

	var msg message.Message
	if err := json.NewDecoder(conn).Decode(&msg); err != nil {
		log.Warnf("peer: failed to decode message from %s: %v", conn.RemoteAddr(), err)
		return
	}

	switch msg.Type {
	case message.TypeDirect, message.TypeBroadcast:
	default:
		log.Warnf("peer: dropping message with unknown type %q from %s", msg.Type, conn.RemoteAddr())
		return
	}

	log.Debugf("peer: received %s message from %s", msg.Type, msg.From)

	if p.notifier != nil {
		p.notifier.Notify(msg)
	}

	if p.history != nil {
		if err := p.history.Append(msg, time.Now()); err != nil {
			log.Errorf("peer: failed to log message to history: %v", err)
		}
	}
}

func writeMessage(conn net.Conn, msg message.Message) error {
	return json.NewEncoder(conn).Encode(msg)
}
