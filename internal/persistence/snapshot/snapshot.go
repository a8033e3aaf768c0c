package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"

	"github.com/klauspost/compress/zstd"

	"parkcraft.ai/internal/sim/encoding"
	"parkcraft.ai/internal/sim/park"
)

const Version = 1

// Header is written as a plain JSON line ahead of the gob body so tools can
// identify a snapshot without decoding the whole park.
type Header struct {
	Version int    `json:"version"`
	ParkID  string `json:"park_id"`
	Tick    uint32 `json:"tick"`
	Seq     uint32 `json:"seq"`
	Digest  string `json:"digest"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	Limits park.Limits `json:"limits"`
	Rules  park.Rules  `json:"rules"`
	Cash   park.Money  `json:"cash"`

	// Surface and water heights, row-major, run-length encoded.
	Surface string `json:"surface"`
	Water   string `json:"water"`
	// Owned tile indices.
	Owned []uint32 `json:"owned,omitempty"`
	// Columns lists only tiles that hold elements.
	Columns []ColumnV1 `json:"columns,omitempty"`

	Rides   []park.Ride  `json:"rides,omitempty"`
	Guests  []park.Guest `json:"guests,omitempty"`
	Spent   []SpentV1    `json:"spent,omitempty"`
	Players []PlayerV1   `json:"players,omitempty"`
}

type ColumnV1 struct {
	Index    uint32         `json:"index"`
	Elements []park.Element `json:"elements"`
}

type SpentV1 struct {
	Expenditure park.Expenditure `json:"expenditure"`
	Amount      park.Money       `json:"amount"`
}

type PlayerV1 struct {
	ID    park.PlayerID    `json:"id"`
	Stats park.PlayerStats `json:"stats"`
}

// Build captures an export at (seq, tick). Map iteration order never leaks
// into the snapshot, so equal parks give byte-equal snapshots.
func Build(parkID string, seq, tick uint32, digest string, e park.Export) SnapshotV1 {
	snap := SnapshotV1{
		Header: Header{Version: Version, ParkID: parkID, Tick: tick, Seq: seq, Digest: digest},
		Limits: e.Limits,
		Rules:  e.Rules,
		Cash:   e.Cash,
		Rides:  e.Rides,
		Guests: e.Guests,
	}
	surface := make([]int32, len(e.Tiles))
	water := make([]int32, len(e.Tiles))
	for i, t := range e.Tiles {
		surface[i] = t.Surface
		water[i] = t.Water
		if t.Owned {
			snap.Owned = append(snap.Owned, uint32(i))
		}
		if len(t.Elements) > 0 {
			snap.Columns = append(snap.Columns, ColumnV1{Index: uint32(i), Elements: t.Elements})
		}
	}
	snap.Surface = encoding.EncodeHeights(surface)
	snap.Water = encoding.EncodeHeights(water)

	for k, v := range e.Spent {
		snap.Spent = append(snap.Spent, SpentV1{Expenditure: k, Amount: v})
	}
	sort.Slice(snap.Spent, func(i, j int) bool { return snap.Spent[i].Expenditure < snap.Spent[j].Expenditure })
	for k, v := range e.Players {
		snap.Players = append(snap.Players, PlayerV1{ID: k, Stats: v})
	}
	sort.Slice(snap.Players, func(i, j int) bool { return snap.Players[i].ID < snap.Players[j].ID })
	return snap
}

// Export rebuilds the park export a snapshot was built from.
func (s SnapshotV1) Export() (park.Export, error) {
	if s.Header.Version != Version {
		return park.Export{}, fmt.Errorf("snapshot version %d unsupported", s.Header.Version)
	}
	n := int(s.Limits.Width) * int(s.Limits.Height)
	if n <= 0 {
		return park.Export{}, fmt.Errorf("bad snapshot size %dx%d", s.Limits.Width, s.Limits.Height)
	}
	surface, err := encoding.DecodeHeights(s.Surface, n)
	if err != nil {
		return park.Export{}, fmt.Errorf("surface: %w", err)
	}
	water, err := encoding.DecodeHeights(s.Water, n)
	if err != nil {
		return park.Export{}, fmt.Errorf("water: %w", err)
	}
	e := park.Export{
		Limits:  s.Limits,
		Rules:   s.Rules,
		Cash:    s.Cash,
		Tiles:   make([]park.Tile, n),
		Rides:   s.Rides,
		Guests:  s.Guests,
		Spent:   map[park.Expenditure]park.Money{},
		Players: map[park.PlayerID]park.PlayerStats{},
	}
	for i := range e.Tiles {
		e.Tiles[i] = park.Tile{Surface: surface[i], Water: water[i]}
	}
	for _, idx := range s.Owned {
		if int(idx) >= n {
			return park.Export{}, fmt.Errorf("owned tile %d out of range", idx)
		}
		e.Tiles[idx].Owned = true
	}
	for _, c := range s.Columns {
		if int(c.Index) >= n {
			return park.Export{}, fmt.Errorf("column %d out of range", c.Index)
		}
		e.Tiles[c.Index].Elements = c.Elements
	}
	for _, sp := range s.Spent {
		e.Spent[sp.Expenditure] = sp.Amount
	}
	for _, p := range s.Players {
		e.Players[p.ID] = p.Stats
	}
	return e, nil
}

// Restore imports the snapshot and checks the rebuilt park against the
// recorded digest.
func (s SnapshotV1) Restore() (*park.State, error) {
	e, err := s.Export()
	if err != nil {
		return nil, err
	}
	st, err := park.Import(e)
	if err != nil {
		return nil, err
	}
	if s.Header.Digest != "" {
		if got := st.Digest(); got != s.Header.Digest {
			return nil, fmt.Errorf("snapshot digest mismatch: got %s want %s", got, s.Header.Digest)
		}
	}
	return st, nil
}

// Encode writes snap to w as zstd(header JSON line + gob body).
func Encode(w io.Writer, snap SnapshotV1) error {
	enc, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, err := json.Marshal(snap.Header)
	if err != nil {
		_ = enc.Close()
		return err
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

func Decode(r io.Reader) (SnapshotV1, error) {
	var snap SnapshotV1
	dec, err := zstd.NewReader(r)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)
	line, err := br.ReadBytes('\n')
	if err != nil {
		return snap, fmt.Errorf("snapshot header: %w", err)
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return snap, fmt.Errorf("snapshot header: %w", err)
	}
	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header != h {
		return snap, errors.New("snapshot header does not match body")
	}
	return snap, nil
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if err := Encode(f, snap); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, path)
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	f, err := os.Open(path)
	if err != nil {
		return SnapshotV1{}, err
	}
	defer f.Close()
	return Decode(f)
}

// ReadHeader decodes only the leading JSON line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()
	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	err = json.Unmarshal(line, &h)
	return h, err
}

// PathFor names the snapshot taken at seq.
func PathFor(parkDir string, seq uint32) string {
	return filepath.Join(parkDir, "snapshots", fmt.Sprintf("%010d.snap.zst", seq))
}

// Latest returns the newest snapshot under parkDir, or "" when none exists.
func Latest(parkDir string) (string, error) {
	paths, err := filepath.Glob(filepath.Join(parkDir, "snapshots", "*.snap.zst"))
	if err != nil || len(paths) == 0 {
		return "", err
	}
	sort.Strings(paths)
	return paths[len(paths)-1], nil
}
