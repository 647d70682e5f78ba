// Package protocol defines the tracker's line-oriented wire protocol:
// one whitespace-separated command per connection in, one JSON object out.
package protocol

import (
	"fmt"
	"strconv"
	"strings"

	"peerchat/datamodel/peer"
)

type Kind int

const (
	KindRegister Kind = iota
	KindGetPeers
	KindUnregister
	KindHeartbeat
)

func (k Kind) String() string {
	switch k {
	case KindRegister:
		return "REGISTER"
	case KindGetPeers:
		return "GET_PEERS"
	case KindUnregister:
		return "UNREGISTER"
	case KindHeartbeat:
		return "HEARTBEAT"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Command is a fully parsed request line. Fields beyond Kind are populated
// only where the command carries them.
type Command struct {
	Kind   Kind
	PeerID string
	IP     string
	Port   int
}

var (
	ErrEmptyCommand   = fmt.Errorf("empty command")
	ErrUnknownCommand = fmt.Errorf("unknown command")
)

// Parse turns one request line into a Command. Parsing happens exactly once,
// at the connection boundary; handlers downstream switch on Kind and never
// re-inspect the raw line. The returned error message is safe to echo back
// to the client verbatim.
func Parse(line string) (*Command, error) {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil, ErrEmptyCommand
	}

	switch strings.ToUpper(parts[0]) {
	case "REGISTER":
		if len(parts) < 4 {
			return nil, fmt.Errorf("invalid format, use: REGISTER <peer_id> <ip> <port>")
		}
		port, err := strconv.Atoi(parts[3])
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("invalid port %q", parts[3])
		}
		return &Command{Kind: KindRegister, PeerID: parts[1], IP: parts[2], Port: port}, nil

	case "GET_PEERS":
		return &Command{Kind: KindGetPeers}, nil

	case "UNREGISTER":
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid format, use: UNREGISTER <peer_id>")
		}
		return &Command{Kind: KindUnregister, PeerID: parts[1]}, nil

	case "HEARTBEAT":
		if len(parts) < 2 {
			return nil, fmt.Errorf("invalid format, use: HEARTBEAT <peer_id>")
		}
		return &Command{Kind: KindHeartbeat, PeerID: parts[1]}, nil
	}

	return nil, ErrUnknownCommand
}

const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Response is the single JSON object written back for any command.
// Peers and PeerCount are pointers so that they are present (including an
// explicit [] or 0) exactly for the commands that report them.
type Response struct {
	Status    string         `json:"status"`
	Message   string         `json:"message,omitempty"`
	Peers     *[]peer.Record `json:"peers,omitempty"`
	PeerCount *int           `json:"peer_count,omitempty"`
}

func Success(msg string) *Response {
	return &Response{Status: StatusSuccess, Message: msg}
}

func SuccessCount(msg string, count int) *Response {
	return &Response{Status: StatusSuccess, Message: msg, PeerCount: &count}
}

// PeerList builds the GET_PEERS response. The peers field is always an
// array, never null, so clients can range over it unconditionally.
func PeerList(peers []peer.Record) *Response {
	if peers == nil {
		peers = []peer.Record{}
	}
	count := len(peers)
	return &Response{Status: StatusSuccess, Peers: &peers, PeerCount: &count}
}

func Error(msg string) *Response {
	return &Response{Status: StatusError, Message: msg}
}

// IsSuccess reports whether the tracker accepted the command.
func (r *Response) IsSuccess() bool {
	return r.Status == StatusSuccess
}
