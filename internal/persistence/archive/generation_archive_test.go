package archive

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"thecore.gg/internal/persistence/snapshot"
)

func writeDummy(t *testing.T, path string) []byte {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	b := []byte("dummy")
	if err := os.WriteFile(path, b, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return b
}

func TestArchiveGenerationSnapshot_CopiesAndWritesMeta(t *testing.T) {
	gameDir := filepath.Join(t.TempDir(), "games", "core")
	src := filepath.Join(gameDir, "snapshots", "1300.snap.zst")
	want := writeDummy(t, src)

	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{Version: 1, GameID: "core", Tick: 1300},
		Reason: ReasonGenerationEnd,
		Deaths: []snapshot.DeathV1{
			{Generation: 1, Holder: "H1", Tick: 900, Reason: "ABANDONED"},
			{Generation: 2, Holder: "H2", Tick: 1300, Reason: "ADMIN_RESET"},
		},
	}
	death, archivedPath, ok, err := ArchiveGenerationSnapshot(gameDir, src, snap)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if !ok || death.Generation != 2 || death.Holder != "H2" {
		t.Fatalf("unexpected result ok=%v death=%+v", ok, death)
	}
	if filepath.Base(filepath.Dir(archivedPath)) != "generation_002" {
		t.Fatalf("archive dir: %s", archivedPath)
	}
	got, err := os.ReadFile(archivedPath)
	if err != nil {
		t.Fatalf("read archived: %v", err)
	}
	if string(got) != string(want) {
		t.Fatalf("archived content mismatch: got=%q want=%q", got, want)
	}

	raw, err := os.ReadFile(filepath.Join(filepath.Dir(archivedPath), "meta.json"))
	if err != nil {
		t.Fatalf("read meta: %v", err)
	}
	var meta GenerationArchiveMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		t.Fatalf("unmarshal meta: %v", err)
	}
	if meta.Holder != "H2" || meta.DeathTick != 1300 || meta.Snapshot != "1300.snap.zst" {
		t.Fatalf("unexpected meta: %+v", meta)
	}
}

func TestArchiveGenerationSnapshot_SkipsPeriodic(t *testing.T) {
	gameDir := t.TempDir()
	src := filepath.Join(gameDir, "snapshots", "600.snap.zst")
	writeDummy(t, src)
	_, _, ok, err := ArchiveGenerationSnapshot(gameDir, src, snapshot.SnapshotV1{
		Reason: "PERIODIC",
		Deaths: []snapshot.DeathV1{{Generation: 1, Holder: "H"}},
	})
	if err != nil || ok {
		t.Fatalf("periodic snapshot must not be archived: ok=%v err=%v", ok, err)
	}
}
