package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"peerchat/tracker/client"
	"peerchat/tracker/protocol"
	"peerchat/tracker/registry"
)

func startTestServer(t *testing.T) (*Server, string) {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := NewServer(l, registry.New(), 5*time.Minute, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Run(ctx)

	return srv, l.Addr().String()
}

func TestRegisterAndGetPeers(t *testing.T) {
	srv, addr := startTestServer(t)
	c := client.New(addr, 2*time.Second)
	ctx := context.Background()

	count, err := c.Register(ctx, "alice", "127.0.0.1", 6001)
	require.NoError(t, err)
	require.Equal(t, 1, count)

	count, err = c.Register(ctx, "bob", "127.0.0.1", 6002)
	require.NoError(t, err)
	require.Equal(t, 2, count)

	peers, err := c.GetPeers(ctx)
	require.NoError(t, err)
	require.Len(t, peers, 2)

	byID := make(map[string]int)
	for _, rec := range peers {
		byID[rec.PeerID] = rec.Port
	}
	require.Equal(t, 6001, byID["alice"])
	require.Equal(t, 6002, byID["bob"])
	require.Equal(t, 2, srv.Registry().Count())
}

func TestReRegistrationOverwrites(t *testing.T) {
	srv, addr := startTestServer(t)
	c := client.New(addr, 2*time.Second)
	ctx := context.Background()

	_, err := c.Register(ctx, "alice", "127.0.0.1", 6001)
	require.NoError(t, err)
	count, err := c.Register(ctx, "alice", "10.0.0.9", 7001)
	require.NoError(t, err)
	require.Equal(t, 1, count, "re-registration must not duplicate the record")

	peers, err := c.GetPeers(ctx)
	require.NoError(t, err)
	require.Len(t, peers, 1)
	require.Equal(t, "10.0.0.9", peers[0].IP)
	require.Equal(t, 7001, peers[0].Port)
	require.Equal(t, 1, srv.Registry().Count())
}

func TestHeartbeatUnknownPeer(t *testing.T) {
	srv, addr := startTestServer(t)
	c := client.New(addr, 2*time.Second)
	ctx := context.Background()

	err := c.Heartbeat(ctx, "ghost")
	require.Error(t, err)

	var serr client.ServerError
	require.True(t, errors.As(err, &serr), "tracker rejection must surface as a ServerError")
	require.Equal(t, 0, srv.Registry().Count(), "a rejected heartbeat must not create a record")

	_, err = c.Register(ctx, "alice", "127.0.0.1", 6001)
	require.NoError(t, err)
	require.NoError(t, c.Heartbeat(ctx, "alice"))
}

func TestUnregister(t *testing.T) {
	_, addr := startTestServer(t)
	c := client.New(addr, 2*time.Second)
	ctx := context.Background()

	_, err := c.Register(ctx, "alice", "127.0.0.1", 6001)
	require.NoError(t, err)

	require.NoError(t, c.Unregister(ctx, "alice"))

	err = c.Unregister(ctx, "alice")
	var serr client.ServerError
	require.True(t, errors.As(err, &serr))
}

func TestMalformedRequests(t *testing.T) {
	_, addr := startTestServer(t)

	for _, line := range []string{
		"REGISTER onlyid\n",
		"REGISTER alice 127.0.0.1 notaport\n",
		"FROBNICATE\n",
		"\n",
	} {
		conn, err := net.Dial("tcp", addr)
		require.NoError(t, err)

		_, err = conn.Write([]byte(line))
		require.NoError(t, err)

		var res protocol.Response
		require.NoError(t, json.NewDecoder(conn).Decode(&res), "line %q", line)
		require.Equal(t, protocol.StatusError, res.Status, "line %q", line)
		conn.Close()
	}
}

func TestCommandWithoutTrailingNewline(t *testing.T) {
	_, addr := startTestServer(t)

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("REGISTER alice 127.0.0.1 6001"))
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	var res protocol.Response
	require.NoError(t, json.NewDecoder(conn).Decode(&res))
	require.Equal(t, protocol.StatusSuccess, res.Status)
}

func TestSweepScenario(t *testing.T) {
	srv, addr := startTestServer(t)
	c := client.New(addr, 2*time.Second)
	ctx := context.Background()

	_, err := c.Register(ctx, "alice", "127.0.0.1", 6001)
	require.NoError(t, err)
	_, err = c.Register(ctx, "bob", "127.0.0.1", 6002)
	require.NoError(t, err)

	peers, err := c.GetPeers(ctx)
	require.NoError(t, err)
	require.Len(t, peers, 2)

	// Simulate the liveness window elapsing with no heartbeats.
	removed := srv.Registry().Sweep(time.Now().Add(10*time.Minute), 5*time.Minute)
	require.Len(t, removed, 2)

	peers, err = c.GetPeers(ctx)
	require.NoError(t, err)
	require.Empty(t, peers)
}

func TestConcurrentRegistrationsOverTheWire(t *testing.T) {
	srv, addr := startTestServer(t)

	const n = 16
	var wg sync.WaitGroup
	errs := make(chan error, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c := client.New(addr, 5*time.Second)
			_, err := c.Register(context.Background(), fmt.Sprintf("peer-%d", i), "127.0.0.1", 6000+i)
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}
	require.Equal(t, n, srv.Registry().Count())
}

func TestTrackerUnreachable(t *testing.T) {
	// Reserve a port, then close it so nothing is listening there.
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	c := client.New(addr, 500*time.Millisecond)
	_, err = c.Register(context.Background(), "alice", "127.0.0.1", 6001)
	require.ErrorIs(t, err, client.ErrTrackerUnreachable)
}
