package park

type RideStatus uint8

const (
	RideClosed RideStatus = iota
	RideTesting
	RideOpen
)

func (s RideStatus) String() string {
	switch s {
	case RideTesting:
		return "testing"
	case RideOpen:
		return "open"
	default:
		return "closed"
	}
}

type Station struct {
	HasEntrance bool       `json:"has_entrance,omitempty"`
	Entrance    CoordsXYZD `json:"entrance"`
	HasExit     bool       `json:"has_exit,omitempty"`
	Exit        CoordsXYZD `json:"exit"`
}

type Ride struct {
	ID              RideID     `json:"id"`
	Type            uint8      `json:"type"`
	Name            string     `json:"name"`
	Owner           PlayerID   `json:"owner"`
	Status          RideStatus `json:"status"`
	PrimaryColour   uint8      `json:"primary_colour"`
	SecondaryColour uint8      `json:"secondary_colour"`
	Stations        []Station  `json:"stations"`
	TrackPieces     int        `json:"track_pieces"`
	Value           Money      `json:"value"`
}

func (r Ride) clone() Ride {
	out := r
	out.Stations = append([]Station(nil), r.Stations...)
	return out
}

type Guest struct {
	ID    GuestID `json:"id"`
	Flags uint32  `json:"flags"`
}

// PlayerStats is the per-player bookkeeping updated after every applied action.
type PlayerStats struct {
	MoneySpent  Money  `json:"money_spent"`
	Actions     uint64 `json:"actions"`
	LastActTick uint64 `json:"last_act_tick"`
}
