package message

// Type discriminates the two delivery modes on the peer-to-peer wire.
type Type string

const (
	TypeDirect    Type = "direct"
	TypeBroadcast Type = "broadcast"
)

// Message is the single JSON object exchanged per peer-to-peer connection.
// There is no "to" field: the destination is whoever owns the socket.
// The tracker never sees messages.
type Message struct {
	Type    Type   `json:"type"`
	From    string `json:"from"`
	Content string `json:"content"`
}
