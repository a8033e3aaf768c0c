package protocol

// HELLO (participant -> authority)
type HelloMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	PlayerName      string `json:"player_name"`
	CatalogDigest   string `json:"catalog_digest"`
	// LastSeq lets a reconnecting participant report how far it applied.
	LastSeq uint32 `json:"last_seq,omitempty"`
}

// WELCOME (authority -> participant)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	PlayerID        uint32 `json:"player_id"`
	Group           string `json:"group"`
	CatalogDigest   string `json:"catalog_digest"`
	TickRateHz      int    `json:"tick_rate_hz"`
	Tick            uint32 `json:"tick"`
	LastSeq         uint32 `json:"last_seq"`
	StateDigest     string `json:"state_digest"`
}

// SNAPSHOT (authority -> joining participant) follows WELCOME and carries the
// park as of WELCOME.last_seq, encoded by persistence/snapshot.
type SnapshotMsg struct {
	Type   string `json:"type"`
	Seq    uint32 `json:"seq"`
	Tick   uint32 `json:"tick"`
	Digest string `json:"digest"`
	Data   []byte `json:"data"`
}

// REJECT (authority -> originating participant) completes a pending request
// that failed permission or validation on the authority.
type RejectMsg struct {
	Type      string            `json:"type"`
	RequestID uint32            `json:"request_id"`
	Kind      uint16            `json:"kind"`
	Status    string            `json:"status"`
	Code      string            `json:"code"`
	Title     string            `json:"title,omitempty"`
	Message   string            `json:"message"`
	Args      map[string]string `json:"args,omitempty"`
	Cost      int64             `json:"cost,omitempty"`
}

// BYE (either direction) announces an orderly close.
type ByeMsg struct {
	Type   string `json:"type"`
	Code   string `json:"code,omitempty"`
	Reason string `json:"reason,omitempty"`
}
