package catalogs

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"parkcraft.ai/internal/sim/park"
)

type Catalogs struct {
	Tracks TrackCatalog
	Rides  RideTypeCatalog
}

type TrackCatalog struct {
	ByID   map[uint16]TrackPieceDef
	Digest string
}

// TrackPieceDef describes one placeable track piece. Tile offsets are given for
// direction 0 and rotated at placement time.
type TrackPieceDef struct {
	ID      uint16      `json:"id"`
	Name    string      `json:"name"`
	Station bool        `json:"station,omitempty"`
	Price   park.Money  `json:"price"`
	Tiles   []PieceTile `json:"tiles"`
}

type PieceTile struct {
	X         int32 `json:"x"`
	Y         int32 `json:"y"`
	Z         int32 `json:"z"`
	Clearance int32 `json:"clearance"`
}

type RideTypeCatalog struct {
	ByID   map[uint8]RideTypeDef
	Digest string
}

type RideTypeDef struct {
	ID          uint8    `json:"id"`
	Name        string   `json:"name"`
	TrackPieces []uint16 `json:"track_pieces"`
	// SupportCost is charged per height step between the surface and the piece.
	SupportCost park.Money `json:"support_cost"`
	// AllowUnderwater lets pieces be placed below the water line.
	AllowUnderwater bool `json:"allow_underwater,omitempty"`
}

func (d RideTypeDef) Allows(trackType uint16) bool {
	for _, id := range d.TrackPieces {
		if id == trackType {
			return true
		}
	}
	return false
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadTracks(filepath.Join(configDir, "track_pieces.json"), &c.Tracks); err != nil {
		return nil, err
	}
	if err := loadRideTypes(filepath.Join(configDir, "ride_types.json"), &c.Rides); err != nil {
		return nil, err
	}
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Digest identifies the catalog contents. Peers with different digests would
// disagree about placement costs and are refused at handshake.
func (c *Catalogs) Digest() string {
	return sha256Hex([]byte(c.Tracks.Digest + ":" + c.Rides.Digest))
}

func (c *Catalogs) validate() error {
	ids := make([]int, 0, len(c.Rides.ByID))
	for id := range c.Rides.ByID {
		ids = append(ids, int(id))
	}
	sort.Ints(ids)
	for _, id := range ids {
		rt := c.Rides.ByID[uint8(id)]
		for _, tp := range rt.TrackPieces {
			if _, ok := c.Tracks.ByID[tp]; !ok {
				return fmt.Errorf("ride_types.json: %s references unknown track piece %d", rt.Name, tp)
			}
		}
	}
	return nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadTracks(path string, out *TrackCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []TrackPieceDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("track_pieces.json: %w", err)
	}
	out.ByID = map[uint16]TrackPieceDef{}
	for _, d := range defs {
		if d.Name == "" {
			return fmt.Errorf("track_pieces.json: piece %d has no name", d.ID)
		}
		if len(d.Tiles) == 0 {
			return fmt.Errorf("track_pieces.json: %s has no tiles", d.Name)
		}
		for _, t := range d.Tiles {
			if t.Clearance <= 0 {
				return fmt.Errorf("track_pieces.json: %s has non-positive clearance", d.Name)
			}
		}
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("track_pieces.json: duplicate id %d", d.ID)
		}
		out.ByID[d.ID] = d
	}
	return nil
}

func loadRideTypes(path string, out *RideTypeCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	out.Digest = sha256Hex(raw)

	var defs []RideTypeDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("ride_types.json: %w", err)
	}
	out.ByID = map[uint8]RideTypeDef{}
	for _, d := range defs {
		if d.Name == "" {
			return fmt.Errorf("ride_types.json: type %d has no name", d.ID)
		}
		if _, dup := out.ByID[d.ID]; dup {
			return fmt.Errorf("ride_types.json: duplicate id %d", d.ID)
		}
		out.ByID[d.ID] = d
	}
	return nil
}
