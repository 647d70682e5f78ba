package peer

import (
	"net"
	"strconv"
	"time"
)

// Record describes one peer known to the tracker. PeerID is the identity:
// a re-registration under the same id overwrites the rest of the record.
// Only the id/ip/port triple travels over the wire; the timestamps are
// tracker-local state.
type Record struct {
	PeerID string `json:"peer_id"`
	IP     string `json:"ip"`
	Port   int    `json:"port"`

	LastHeartbeat time.Time `json:"-"`
	RegisteredAt  time.Time `json:"-"`
}

// Addr returns the dialable "ip:port" form of the record.
func (r *Record) Addr() string {
	return net.JoinHostPort(r.IP, strconv.Itoa(r.Port))
}
