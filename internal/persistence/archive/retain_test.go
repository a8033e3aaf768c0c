package archive

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"parkcraft.ai/internal/persistence/snapshot"
	"parkcraft.ai/internal/sim/park"
)

func writeSnap(t *testing.T, parkDir string, seq uint32) string {
	t.Helper()
	s := park.NewState(park.DefaultLimits(), park.Rules{}, 1000)
	snap := snapshot.Build("p1", seq, seq*10, s.Digest(), s.Export())
	path := snapshot.PathFor(parkDir, seq)
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		t.Fatalf("write snapshot: %v", err)
	}
	return path
}

func TestRetain_ArchivesOlderSnapshots(t *testing.T) {
	dir := t.TempDir()
	for _, seq := range []uint32{3, 1, 2} {
		writeSnap(t, dir, seq)
	}

	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	archived, err := Retain(dir, 1, now)
	if err != nil {
		t.Fatalf("retain: %v", err)
	}
	if len(archived) != 2 {
		t.Fatalf("archived %d snapshots, want 2", len(archived))
	}

	latest, err := snapshot.Latest(dir)
	if err != nil || latest != snapshot.PathFor(dir, 3) {
		t.Fatalf("latest = %q, %v", latest, err)
	}
	archiveDir := filepath.Join(dir, "archives", "0000000001")
	if _, err := os.Stat(filepath.Join(archiveDir, "0000000001.snap.zst")); err != nil {
		t.Fatalf("archived snapshot missing: %v", err)
	}
	meta, err := ReadMeta(archiveDir)
	if err != nil {
		t.Fatalf("meta: %v", err)
	}
	if meta.Seq != 1 || meta.Tick != 10 || meta.ParkID != "p1" || meta.ArchivedAt != "2026-01-02T03:04:05Z" {
		t.Fatalf("unexpected meta: %+v", meta)
	}
}

func TestRetain_NothingToDo(t *testing.T) {
	dir := t.TempDir()
	writeSnap(t, dir, 1)
	for _, keep := range []int{0, 1, 5} {
		archived, err := Retain(dir, keep, time.Now())
		if err != nil || len(archived) != 0 {
			t.Fatalf("keep=%d: archived %v, err %v", keep, archived, err)
		}
	}
}
