package action

import "parkcraft.ai/internal/sim/park"

type ActorKind uint8

const (
	ActorHuman ActorKind = iota
	ActorAI
	ActorServer
)

func (k ActorKind) String() string {
	switch k {
	case ActorHuman:
		return "human"
	case ActorAI:
		return "ai"
	case ActorServer:
		return "server"
	default:
		return "unknown"
	}
}

// Actor is who an action is attributed to. Group names a permission group
// from tuning; empty means the default group.
type Actor struct {
	ID    park.PlayerID
	Kind  ActorKind
	Group string
}

// ServerActor is the host itself. It bypasses permission checks.
func ServerActor() Actor {
	return Actor{ID: park.ServerPlayer, Kind: ActorServer}
}
