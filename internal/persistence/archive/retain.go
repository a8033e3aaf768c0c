package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"parkcraft.ai/internal/persistence/snapshot"
)

type Meta struct {
	ParkID     string `json:"park_id"`
	Seq        uint32 `json:"seq"`
	Tick       uint32 `json:"tick"`
	Digest     string `json:"digest"`
	Snapshot   string `json:"snapshot"`
	ArchivedAt string `json:"archived_at"`
}

// Retain keeps the newest keep snapshots in parkDir/snapshots and moves
// the rest to parkDir/archives/<seq>/ next to a meta.json. It returns the
// archived paths. keep <= 0 archives nothing.
func Retain(parkDir string, keep int, now time.Time) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	paths, err := filepath.Glob(filepath.Join(parkDir, "snapshots", "*.snap.zst"))
	if err != nil {
		return nil, err
	}
	if len(paths) <= keep {
		return nil, nil
	}
	sort.Strings(paths)

	var out []string
	for _, src := range paths[:len(paths)-keep] {
		h, err := snapshot.ReadHeader(src)
		if err != nil {
			return out, fmt.Errorf("%s: %w", src, err)
		}
		dir := filepath.Join(parkDir, "archives", fmt.Sprintf("%010d", h.Seq))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return out, err
		}
		dst := filepath.Join(dir, filepath.Base(src))
		if err := os.Rename(src, dst); err != nil {
			return out, err
		}
		meta := Meta{
			ParkID:     h.ParkID,
			Seq:        h.Seq,
			Tick:       h.Tick,
			Digest:     h.Digest,
			Snapshot:   filepath.Base(dst),
			ArchivedAt: now.UTC().Format(time.RFC3339Nano),
		}
		if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
			_ = os.WriteFile(filepath.Join(dir, "meta.json"), b, 0o644)
		}
		out = append(out, dst)
	}
	return out, nil
}

// ReadMeta loads the meta.json of an archived snapshot.
func ReadMeta(archiveDir string) (Meta, error) {
	var m Meta
	b, err := os.ReadFile(filepath.Join(archiveDir, "meta.json"))
	if err != nil {
		return m, err
	}
	err = json.Unmarshal(b, &m)
	return m, err
}
