package catalogs

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadShippedCatalogs(t *testing.T) {
	c, err := Load("../../../configs")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	flat, ok := c.Tracks.ByID[0]
	if !ok || flat.Name != "flat" {
		t.Fatalf("missing flat piece: %+v", flat)
	}
	coaster, ok := c.Rides.ByID[1]
	if !ok || !coaster.Allows(16) {
		t.Fatalf("coaster should allow quarter turns: %+v", coaster)
	}
	if c.Digest() == "" || len(c.Digest()) != 64 {
		t.Fatalf("bad digest %q", c.Digest())
	}
}

func TestLoadRejectsDanglingTrackReference(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	write("track_pieces.json", `[{"id":0,"name":"flat","price":10,"tiles":[{"x":0,"y":0,"z":0,"clearance":16}]}]`)
	write("ride_types.json", `[{"id":1,"name":"coaster","track_pieces":[0,7]}]`)
	if _, err := Load(dir); err == nil {
		t.Fatalf("expected error for unknown track piece")
	}
}

func TestDigestChangesWithContents(t *testing.T) {
	dir := t.TempDir()
	tracks := `[{"id":0,"name":"flat","price":10,"tiles":[{"x":0,"y":0,"z":0,"clearance":16}]}]`
	_ = os.WriteFile(filepath.Join(dir, "track_pieces.json"), []byte(tracks), 0o644)
	_ = os.WriteFile(filepath.Join(dir, "ride_types.json"), []byte(`[{"id":1,"name":"a","track_pieces":[0]}]`), 0o644)
	a, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	_ = os.WriteFile(filepath.Join(dir, "ride_types.json"), []byte(`[{"id":1,"name":"b","track_pieces":[0]}]`), 0o644)
	b, err := Load(dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if a.Digest() == b.Digest() {
		t.Fatalf("digest should differ")
	}
}
