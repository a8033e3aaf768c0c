package observerproto

// Version is the observer feed version, separate from the session protocol.
const Version = "parkcraft-observer/1"

const (
	TypeSubscribe = "SUBSCRIBE"
	TypeAction    = "ACTION"
	TypeRejected  = "REJECTED"
)

// SubscribeMsg is the first message on an observer connection and may be
// re-sent to change the filter.
type SubscribeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	// Player limits the feed to one player; zero means everyone.
	Player  uint32 `json:"player,omitempty"`
	Rejects bool   `json:"rejects,omitempty"`
}

// BootstrapResponse answers GET /v1/observer/bootstrap.
type BootstrapResponse struct {
	ProtocolVersion string `json:"protocol_version"`
	ParkID          string `json:"park_id"`
	TickRateHz      int    `json:"tick_rate_hz"`
	Tick            uint32 `json:"tick"`
	LastSeq         uint32 `json:"last_seq"`
	Digest          string `json:"digest"`
	Rides           int    `json:"rides"`
	Elements        int    `json:"elements"`
	Cash            int64  `json:"cash"`
}

// ActionMsg is sent for every executed action.
type ActionMsg struct {
	Type    string `json:"type"`
	Seq     uint32 `json:"seq"`
	Tick    uint32 `json:"tick"`
	Kind    string `json:"kind"`
	Player  uint32 `json:"player"`
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
	Cost    int64  `json:"cost"`
	Digest  string `json:"digest,omitempty"`
}

// RejectedMsg is sent for actions refused before sequencing, to
// subscribers that asked for them.
type RejectedMsg struct {
	Type    string            `json:"type"`
	Tick    uint32            `json:"tick"`
	Kind    string            `json:"kind"`
	Player  uint32            `json:"player"`
	Status  string            `json:"status"`
	Message string            `json:"message"`
	Args    map[string]string `json:"args,omitempty"`
}
