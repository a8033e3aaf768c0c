package ws

import (
	"sync"

	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/park"
)

// Roster hands out player ids by name. A name keeps its id for the life of
// the authority, so a reconnecting player owns the same rides.
type Roster struct {
	mu           sync.Mutex
	defaultGroup string
	groups       map[string]string
	byName       map[string]park.PlayerID
	next         park.PlayerID
}

func NewRoster(defaultGroup string, groups map[string]string) *Roster {
	return &Roster{
		defaultGroup: defaultGroup,
		groups:       groups,
		byName:       map[string]park.PlayerID{},
		next:         1,
	}
}

func (r *Roster) Assign(name string) action.Actor {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.byName[name]
	if !ok {
		id = r.next
		r.next++
		r.byName[name] = id
	}
	group, ok := r.groups[name]
	if !ok {
		group = r.defaultGroup
	}
	return action.Actor{ID: id, Kind: action.ActorHuman, Group: group}
}
