package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"peerchat/datamodel/peer"
)

func TestParseRegister(t *testing.T) {
	cmd, err := Parse("REGISTER alice 127.0.0.1 6001")
	require.NoError(t, err)
	require.Equal(t, KindRegister, cmd.Kind)
	require.Equal(t, "alice", cmd.PeerID)
	require.Equal(t, "127.0.0.1", cmd.IP)
	require.Equal(t, 6001, cmd.Port)
}

func TestParseLowercaseCommand(t *testing.T) {
	cmd, err := Parse("heartbeat bob")
	require.NoError(t, err)
	require.Equal(t, KindHeartbeat, cmd.Kind)
	require.Equal(t, "bob", cmd.PeerID)
}

func TestParseGetPeers(t *testing.T) {
	cmd, err := Parse("GET_PEERS\n")
	require.NoError(t, err)
	require.Equal(t, KindGetPeers, cmd.Kind)
}

func TestParseRejectsMalformed(t *testing.T) {
	cases := []string{
		"",
		"   ",
		"REGISTER alice",
		"REGISTER alice 127.0.0.1",
		"REGISTER alice 127.0.0.1 notaport",
		"REGISTER alice 127.0.0.1 0",
		"REGISTER alice 127.0.0.1 70000",
		"UNREGISTER",
		"HEARTBEAT",
		"FROBNICATE alice",
	}
	for _, line := range cases {
		_, err := Parse(line)
		require.Error(t, err, "line %q must not parse", line)
	}
}

func TestResponseJSONShape(t *testing.T) {
	raw, err := json.Marshal(SuccessCount("Peer registered successfully", 2))
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"success","message":"Peer registered successfully","peer_count":2}`, string(raw))

	raw, err = json.Marshal(Success("Peer unregistered successfully"))
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"success","message":"Peer unregistered successfully"}`, string(raw))

	raw, err = json.Marshal(Error("Peer not found"))
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"error","message":"Peer not found"}`, string(raw))
}

func TestPeerListResponseIncludesZeroCount(t *testing.T) {
	raw, err := json.Marshal(PeerList(nil))
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"success","peers":[],"peer_count":0}`, string(raw))

	raw, err = json.Marshal(PeerList([]peer.Record{{PeerID: "alice", IP: "127.0.0.1", Port: 6001}}))
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"success","peers":[{"peer_id":"alice","ip":"127.0.0.1","port":6001}],"peer_count":1}`, string(raw))
}
