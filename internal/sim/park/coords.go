package park

import "fmt"

const (
	// TileSize is the edge length of one map tile in world units.
	TileSize = 32
	// HeightStep is the vertical resolution of element base and clearance heights.
	HeightStep = 8
)

type CoordsXY struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
}

type CoordsXYZ struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
	Z int32 `json:"z"`
}

// CoordsXYZD is an anchored position with a facing direction (0..3).
type CoordsXYZD struct {
	X         int32 `json:"x"`
	Y         int32 `json:"y"`
	Z         int32 `json:"z"`
	Direction uint8 `json:"d"`
}

// TileXY addresses a tile by column and row.
type TileXY struct {
	X int32
	Y int32
}

func (c CoordsXY) Tile() TileXY   { return TileXY{X: floorDiv(c.X, TileSize), Y: floorDiv(c.Y, TileSize)} }
func (c CoordsXYZ) XY() CoordsXY  { return CoordsXY{X: c.X, Y: c.Y} }
func (c CoordsXYZD) XY() CoordsXY { return CoordsXY{X: c.X, Y: c.Y} }
func (c CoordsXYZD) XYZ() CoordsXYZ {
	return CoordsXYZ{X: c.X, Y: c.Y, Z: c.Z}
}

// Aligned reports whether the position sits on a tile corner.
func (c CoordsXY) Aligned() bool { return c.X%TileSize == 0 && c.Y%TileSize == 0 }

func (c CoordsXY) String() string { return fmt.Sprintf("{x:%d,y:%d}", c.X, c.Y) }
func (c CoordsXYZD) String() string {
	return fmt.Sprintf("{x:%d,y:%d,z:%d,d:%d}", c.X, c.Y, c.Z, c.Direction)
}

func (t TileXY) Coords() CoordsXY { return CoordsXY{X: t.X * TileSize, Y: t.Y * TileSize} }

// Rotate turns a tile offset clockwise by direction quarter turns.
func (t TileXY) Rotate(direction uint8) TileXY {
	switch direction & 3 {
	case 1:
		return TileXY{X: t.Y, Y: -t.X}
	case 2:
		return TileXY{X: -t.X, Y: -t.Y}
	case 3:
		return TileXY{X: -t.Y, Y: t.X}
	default:
		return t
	}
}

func floorDiv(a, b int32) int32 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
