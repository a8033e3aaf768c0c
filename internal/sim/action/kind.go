package action

import "fmt"

// Kind is the wire discriminator of an action. Values are part of the
// protocol and never reused.
type Kind uint16

const (
	KindTrackPlace            Kind = 1
	KindTrackRemove           Kind = 2
	KindRideCreate            Kind = 3
	KindRideEntranceExitPlace Kind = 4
	KindRideSetColourScheme   Kind = 5
	KindGuestSetFlags         Kind = 6
	KindParkSetCash           Kind = 7
)

var kindNames = map[Kind]string{
	KindTrackPlace:            "track_place",
	KindTrackRemove:           "track_remove",
	KindRideCreate:            "ride_create",
	KindRideEntranceExitPlace: "ride_entrance_exit_place",
	KindRideSetColourScheme:   "ride_set_colour_scheme",
	KindGuestSetFlags:         "guest_set_flags",
	KindParkSetCash:           "park_set_cash",
}

// SupportedKinds is the closed set of kinds this build understands.
func SupportedKinds() []Kind {
	return []Kind{
		KindTrackPlace,
		KindTrackRemove,
		KindRideCreate,
		KindRideEntranceExitPlace,
		KindRideSetColourScheme,
		KindGuestSetFlags,
		KindParkSetCash,
	}
}

func (k Kind) String() string {
	if n, ok := kindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("kind(%d)", uint16(k))
}

// ParseKind maps a kind name back to its value.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// Flags describe how the dispatcher treats every instance of a variant.
type Flags uint8

const (
	FlagMutates Flags = 1 << iota
	FlagLogged
	FlagNetworked
	FlagAllowWhilePaused
	FlagEditorOnly
)

func (f Flags) Has(x Flags) bool { return f&x == x }

// CommandFlags are per-instance switches carried in the serialized header.
type CommandFlags uint32

const (
	// CmdGhost marks a preview placement: executed, but neither charged nor recorded.
	CmdGhost CommandFlags = 1 << iota
	CmdNoSpend
	// CmdNetworked is set on every copy that arrived through the sealed path.
	CmdNetworked
	// CmdReplay is set by the replay player.
	CmdReplay
	// CmdAllowWhilePaused lets a single instance bypass the pause gate.
	CmdAllowWhilePaused
)

func (c CommandFlags) Has(x CommandFlags) bool { return c&x == x }
