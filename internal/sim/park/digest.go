package park

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"sort"
)

type hashWriter interface {
	Write(p []byte) (n int, err error)
}

// Digest hashes every field that actions can change. Two nodes that applied
// the same sealed actions to the same starting park produce the same digest.
func (s *State) Digest() string {
	h := sha256.New()
	var tmp [8]byte

	s.digestHeader(h, &tmp)
	s.digestTiles(h, &tmp)
	s.digestRides(h, &tmp)
	s.digestGuests(h, &tmp)
	s.digestFinance(h, &tmp)

	return hex.EncodeToString(h.Sum(nil))
}

func (s *State) digestHeader(h hashWriter, tmp *[8]byte) {
	digestWriteI64(h, tmp, int64(s.limits.Width))
	digestWriteI64(h, tmp, int64(s.limits.Height))
	h.Write([]byte{
		boolByte(s.rules.Sandbox),
		boolByte(s.rules.Paused),
		boolByte(s.rules.BuildInPause),
		boolByte(s.rules.NoMoney),
		boolByte(s.rules.Editor),
	})
}

func (s *State) digestTiles(h hashWriter, tmp *[8]byte) {
	for i := range s.tiles {
		t := &s.tiles[i]
		digestWriteI64(h, tmp, int64(t.Surface))
		digestWriteI64(h, tmp, int64(t.Water))
		h.Write([]byte{boolByte(t.Owned)})
		digestWriteU64(h, tmp, uint64(len(t.Elements)))
		for _, e := range t.Elements {
			h.Write([]byte{byte(e.Kind), e.Direction, e.Sequence, e.Station, e.ColourScheme, e.BrakeSpeed, e.SeatRotation, boolByte(e.Ghost), boolByte(e.Indestructible)})
			digestWriteI64(h, tmp, int64(e.BaseZ))
			digestWriteI64(h, tmp, int64(e.ClearZ))
			digestWriteU64(h, tmp, uint64(e.Ride))
			digestWriteU64(h, tmp, uint64(e.TrackType))
		}
	}
}

func (s *State) digestRides(h hashWriter, tmp *[8]byte) {
	for _, id := range s.RideIDs() {
		r := s.rides[id]
		digestWriteU64(h, tmp, uint64(r.ID))
		h.Write([]byte{r.Type, byte(r.Status), r.PrimaryColour, r.SecondaryColour})
		h.Write([]byte(r.Name))
		digestWriteU64(h, tmp, uint64(r.Owner))
		digestWriteU64(h, tmp, uint64(r.TrackPieces))
		digestWriteI64(h, tmp, int64(r.Value))
		for _, st := range r.Stations {
			h.Write([]byte{boolByte(st.HasEntrance), boolByte(st.HasExit)})
			digestWriteCoords(h, tmp, st.Entrance)
			digestWriteCoords(h, tmp, st.Exit)
		}
	}
}

func (s *State) digestGuests(h hashWriter, tmp *[8]byte) {
	ids := make([]GuestID, 0, len(s.guests))
	for id := range s.guests {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		digestWriteU64(h, tmp, uint64(id))
		digestWriteU64(h, tmp, uint64(s.guests[id].Flags))
	}
}

func (s *State) digestFinance(h hashWriter, tmp *[8]byte) {
	digestWriteI64(h, tmp, int64(s.cash))
	exps := make([]int, 0, len(s.spent))
	for e, v := range s.spent {
		if v != 0 {
			exps = append(exps, int(e))
		}
	}
	sort.Ints(exps)
	for _, e := range exps {
		digestWriteU64(h, tmp, uint64(e))
		digestWriteI64(h, tmp, int64(s.spent[Expenditure(e)]))
	}
}

func digestWriteCoords(h hashWriter, tmp *[8]byte, c CoordsXYZD) {
	digestWriteI64(h, tmp, int64(c.X))
	digestWriteI64(h, tmp, int64(c.Y))
	digestWriteI64(h, tmp, int64(c.Z))
	h.Write([]byte{c.Direction})
}

func digestWriteU64(h hashWriter, tmp *[8]byte, v uint64) {
	binary.LittleEndian.PutUint64(tmp[:], v)
	h.Write(tmp[:])
}

func digestWriteI64(h hashWriter, tmp *[8]byte, v int64) {
	digestWriteU64(h, tmp, uint64(v))
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
