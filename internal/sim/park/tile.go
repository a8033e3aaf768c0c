package park

type ElementKind uint8

const (
	ElementTrack ElementKind = iota + 1
	ElementEntrance
	ElementExit
)

func (k ElementKind) String() string {
	switch k {
	case ElementTrack:
		return "track"
	case ElementEntrance:
		return "entrance"
	case ElementExit:
		return "exit"
	default:
		return "unknown"
	}
}

// Element is one occupant of a tile column between BaseZ and ClearZ.
type Element struct {
	Kind           ElementKind `json:"kind"`
	BaseZ          int32       `json:"base_z"`
	ClearZ         int32       `json:"clear_z"`
	Direction      uint8       `json:"dir"`
	Ride           RideID      `json:"ride"`
	TrackType      uint16      `json:"track_type,omitempty"`
	Sequence       uint8       `json:"seq,omitempty"`
	Station        uint8       `json:"station,omitempty"`
	ColourScheme   uint8       `json:"colour_scheme,omitempty"`
	BrakeSpeed     uint8       `json:"brake_speed,omitempty"`
	SeatRotation   uint8       `json:"seat_rotation,omitempty"`
	Ghost          bool        `json:"ghost,omitempty"`
	Indestructible bool        `json:"indestructible,omitempty"`
}

// Overlaps reports whether the element's vertical span intersects [baseZ, clearZ).
func (e Element) Overlaps(baseZ, clearZ int32) bool {
	return baseZ < e.ClearZ && e.BaseZ < clearZ
}

// Tile is one map column. The surface always exists and counts toward the
// tile's element budget.
type Tile struct {
	Surface  int32     `json:"surface"`
	Water    int32     `json:"water,omitempty"`
	Owned    bool      `json:"owned,omitempty"`
	Elements []Element `json:"elements,omitempty"`
}

func (t Tile) ElementCount() int { return 1 + len(t.Elements) }

func (t Tile) clone() Tile {
	out := t
	if len(t.Elements) > 0 {
		out.Elements = append([]Element(nil), t.Elements...)
	}
	return out
}

// Underwater reports whether a span starting at baseZ would sit below the water line.
func (t Tile) Underwater(baseZ int32) bool {
	return t.Water > 0 && baseZ < t.Water
}
