// Package client talks the tracker's wire protocol: dial, send one command
// line, decode one JSON response, close.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"peerchat/datamodel/peer"
	"peerchat/tracker/protocol"
)

// ErrTrackerUnreachable wraps every transport-level failure (dial, write,
// read, timeout) so callers can tell "tracker down" from "tracker said no".
var ErrTrackerUnreachable = errors.New("tracker unreachable")

// ServerError carries an error response the tracker produced itself, e.g.
// a heartbeat for an id the tracker no longer knows.
type ServerError string

func (e ServerError) Error() string {
	return string(e)
}

type Client struct {
	addr    string
	timeout time.Duration
}

func New(addr string, timeout time.Duration) *Client {
	return &Client{
		addr:    addr,
		timeout: timeout,
	}
}

// Addr returns the tracker address this client dials.
func (c *Client) Addr() string {
	return c.addr
}

// Register announces id as reachable at ip:port and returns the tracker's
// total peer count.
func (c *Client) Register(ctx context.Context, id, ip string, port int) (int, error) {
	res, err := c.roundTrip(ctx, fmt.Sprintf("REGISTER %s %s %d", id, ip, port))
	if err != nil {
		return 0, err
	}
	if res.PeerCount == nil {
		return 0, nil
	}
	return *res.PeerCount, nil
}

func (c *Client) Unregister(ctx context.Context, id string) error {
	_, err := c.roundTrip(ctx, fmt.Sprintf("UNREGISTER %s", id))
	return err
}

func (c *Client) Heartbeat(ctx context.Context, id string) error {
	_, err := c.roundTrip(ctx, fmt.Sprintf("HEARTBEAT %s", id))
	return err
}

// GetPeers fetches a snapshot of every registered peer, the caller's own
// record included.
func (c *Client) GetPeers(ctx context.Context) ([]peer.Record, error) {
	res, err := c.roundTrip(ctx, "GET_PEERS")
	if err != nil {
		return nil, err
	}
	if res.Peers == nil {
		return []peer.Record{}, nil
	}
	return *res.Peers, nil
}

// roundTrip performs one request/response exchange. Transport faults come
// back wrapped in ErrTrackerUnreachable; an error status from the tracker
// comes back as a ServerError.
func (c *Client) roundTrip(ctx context.Context, command string) (*protocol.Response, error) {
	d := net.Dialer{Timeout: c.timeout}
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTrackerUnreachable, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	conn.SetDeadline(deadline)

	if _, err := fmt.Fprintf(conn, "%s\n", command); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTrackerUnreachable, err)
	}

	res := &protocol.Response{}
	if err := json.NewDecoder(conn).Decode(res); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTrackerUnreachable, err)
	}

	if !res.IsSuccess() {
		return res, ServerError(res.Message)
	}
	return res, nil
}
