package game

import (
	"path/filepath"
	"testing"

	"thecore.gg/internal/persistence/snapshot"
)

func TestSnapshot_ImportRestoresDigest(t *testing.T) {
	e, clk, _ := newStartedEngine(t, "A")
	if err := e.RegisterIdentity("A", "B", 3); err != nil {
		t.Fatalf("register: %v", err)
	}
	clk.tick = 300
	if err := e.Pass("A", "B"); err != nil {
		t.Fatalf("pass: %v", err)
	}
	clk.tick = 2000
	if err := e.SpawnNewGeneration("C"); err != nil {
		t.Fatalf("spawn: %v", err)
	}

	path := filepath.Join(t.TempDir(), "snap.zst")
	if err := snapshot.WriteSnapshot(path, e.ExportSnapshot(clk.tick)); err != nil {
		t.Fatalf("write: %v", err)
	}
	snap, err := snapshot.ReadSnapshot(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	restored, _, _ := newTestEngine(t)
	if err := restored.ImportSnapshot(snap); err != nil {
		t.Fatalf("import: %v", err)
	}
	if got, want := restored.StateDigest(), e.StateDigest(); got != want {
		t.Fatalf("digest mismatch: got %s want %s", got, want)
	}
	if h, _ := restored.DeadGenerationHolder(1); h != "B" {
		t.Fatalf("dead holder: got %q", h)
	}
	if restored.PointsOf("A") != 30 {
		t.Fatalf("points: got %d want 30", restored.PointsOf("A"))
	}
}

func TestSnapshot_ImportRejectsBrokenState(t *testing.T) {
	e, _, _ := newStartedEngine(t, "A")
	before := e.StateDigest()

	snap := e.ExportSnapshot(0)
	snap.State.PreviousHolder = snap.State.CurrentHolder
	if err := e.ImportSnapshot(snap); err == nil {
		t.Fatalf("expected invariant error")
	}
	if e.StateDigest() != before {
		t.Fatalf("failed import changed state")
	}

	snap = e.ExportSnapshot(0)
	snap.Header.GameID = "other"
	if err := e.ImportSnapshot(snap); err == nil {
		t.Fatalf("expected game id mismatch")
	}
}
