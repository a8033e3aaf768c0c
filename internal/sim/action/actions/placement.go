package actions

import (
	"math"

	"parkcraft.ai/internal/sim/action"
	"parkcraft.ai/internal/sim/catalogs"
	"parkcraft.ai/internal/sim/park"
)

// Ground flags reported by placements.
const (
	GroundAbove      uint8 = 1 << 0
	GroundUnderneath uint8 = 1 << 1
	GroundUnderwater uint8 = 1 << 2
)

// span is one tile column a piece would occupy.
type span struct {
	tile   park.TileXY
	baseZ  int32
	clearZ int32
	seq    uint8

	// overflow is set when the clearance top does not fit in int32.
	overflow bool
}

// pieceSpans places a catalog piece at origin, rotating tile offsets by the
// origin's direction.
func pieceSpans(def catalogs.TrackPieceDef, origin park.CoordsXYZD) []span {
	base := origin.XY().Tile()
	out := make([]span, 0, len(def.Tiles))
	for i, pt := range def.Tiles {
		off := park.TileXY{X: pt.X, Y: pt.Y}.Rotate(origin.Direction)
		z := int64(origin.Z) + int64(pt.Z)
		top := z + int64(pt.Clearance)
		if z < math.MinInt32 {
			z = math.MinInt32
		}
		out = append(out, span{
			tile:     park.TileXY{X: base.X + off.X, Y: base.Y + off.Y},
			baseZ:    int32(z),
			clearZ:   int32(top),
			seq:      uint8(i),
			overflow: top > math.MaxInt32,
		})
	}
	return out
}

// checkMapCapacity fails when any tile already holds the per-tile maximum or
// the map cannot take one more element per tile.
func checkMapCapacity(w park.View, tiles []park.TileXY, title action.MessageID) action.Result {
	lim := w.Limits()
	for _, t := range tiles {
		tile, ok := w.Tile(t)
		if !ok {
			return action.Fail(action.StatusPreconditionFailed, title, action.MsgOffEdgeOfMap)
		}
		if lim.MaxTileElements > 0 && tile.ElementCount() >= lim.MaxTileElements {
			return action.Fail(action.StatusPreconditionFailed, title, action.MsgTileElementLimit).
				With("limit", lim.MaxTileElements)
		}
	}
	if lim.MaxMapElements > 0 && w.ElementCount()+len(tiles) > lim.MaxMapElements {
		return action.Fail(action.StatusPreconditionFailed, title, action.MsgMapElementLimit).
			With("limit", lim.MaxMapElements)
	}
	return action.OK()
}

// checkSite validates bounds, ownership, height and clearance for one span
// and reports where the span sits relative to the ground. Elements matched by
// replaces are about to be removed and do not obstruct.
func checkSite(w park.View, s span, allowUnderwater bool, title action.MessageID, replaces func(park.Element) bool) (uint8, action.Result) {
	tile, ok := w.Tile(s.tile)
	if !ok {
		return 0, action.Fail(action.StatusPreconditionFailed, title, action.MsgOffEdgeOfMap)
	}
	if !w.Rules().Sandbox && !tile.Owned {
		return 0, action.Fail(action.StatusPreconditionFailed, title, action.MsgLandNotOwned)
	}
	if s.overflow {
		return 0, action.Fail(action.StatusPreconditionFailed, title, action.MsgTooHigh).With("max_height", w.Limits().MaxHeight)
	}
	if s.baseZ < 0 {
		return 0, action.Fail(action.StatusPreconditionFailed, title, action.MsgTooLow)
	}
	if maxZ := w.Limits().MaxHeight; maxZ > 0 && s.clearZ > maxZ {
		return 0, action.Fail(action.StatusPreconditionFailed, title, action.MsgTooHigh).With("max_height", maxZ)
	}
	for _, e := range tile.Elements {
		if replaces != nil && replaces(e) {
			continue
		}
		if e.Overlaps(s.baseZ, s.clearZ) {
			return 0, action.Fail(action.StatusPreconditionFailed, title, action.MsgObstruction).With("with", e.Kind)
		}
	}
	var ground uint8
	if s.baseZ < tile.Surface {
		ground |= GroundUnderneath
	} else {
		ground |= GroundAbove
	}
	if tile.Underwater(s.baseZ) {
		if !allowUnderwater {
			return 0, action.Fail(action.StatusPreconditionFailed, title, action.MsgUnderwater)
		}
		ground |= GroundUnderwater
	}
	return ground, action.OK()
}

func spanTiles(spans []span) []park.TileXY {
	out := make([]park.TileXY, len(spans))
	for i, s := range spans {
		out[i] = s.tile
	}
	return out
}

func checkOrigin(origin park.CoordsXYZD, title action.MessageID) action.Result {
	if origin.Direction > 3 {
		return action.Fail(action.StatusPreconditionFailed, title, action.MsgInvalidDirection)
	}
	if !origin.XY().Aligned() || origin.Z%park.HeightStep != 0 {
		return action.Fail(action.StatusPreconditionFailed, title, action.MsgNotTileAligned)
	}
	return action.OK()
}

// inconsistent is returned when execute finds state that its query should
// have ruled out.
func inconsistent(title action.MessageID, err error) action.Result {
	r := action.Fail(action.StatusInternalInvariantViolation, title, action.MsgWorldInconsistent)
	if err != nil {
		r = r.With("error", err.Error())
	}
	return r
}
