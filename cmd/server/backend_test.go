package main

import (
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"

	"thecore.gg/internal/ledger"
	persistlog "thecore.gg/internal/persistence/log"
	"thecore.gg/internal/persistence/snapshot"
	"thecore.gg/internal/protocol"
	"thecore.gg/internal/sim/game"
	"thecore.gg/internal/sim/sequencer"
	"thecore.gg/internal/sim/tuning"
)

func retiredSnapshot(holder string) snapshot.SnapshotV1 {
	return snapshot.SnapshotV1{
		Header: snapshot.Header{Version: snapshot.CurrentVersion, GameID: "core_test", Tick: 1500},
		Reason: "GENERATION_END",
		State: snapshot.StateV1{
			CurrentHolder:      "bob",
			LastTransferTick:   1500,
			LastActivityTick:   1500,
			ActiveGenerationID: 2,
			GenerationCounter:  2,
			Admin:              "alice",
			Initialized:        true,
			Active:             true,
		},
		Deaths: []snapshot.DeathV1{{Generation: 1, Holder: holder, Tick: 1500, Reason: "ABANDONED"}},
		Seq:    7,
	}
}

func TestWriteSnapshot_ArchivesGenerationEnd(t *testing.T) {
	dir := t.TempDir()
	writeSnapshot(dir, retiredSnapshot("alice"), nil, log.New(io.Discard, "", 0))

	if _, err := os.Stat(filepath.Join(dir, "snapshots", "1500.snap.zst")); err != nil {
		t.Fatalf("snapshot not written: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "archives", "generation_001", "1500.snap.zst")); err != nil {
		t.Fatalf("archive not written: %v", err)
	}
	if got := latestSnapshot(dir); got != filepath.Join(dir, "snapshots", "1500.snap.zst") {
		t.Fatalf("latestSnapshot=%q", got)
	}
}

func TestLatestSnapshot_PicksHighestTick(t *testing.T) {
	dir := t.TempDir()
	snapDir := filepath.Join(dir, "snapshots")
	if err := os.MkdirAll(snapDir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	for _, name := range []string{"90.snap.zst", "1200.snap.zst", "300.snap.zst", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(snapDir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if got := latestSnapshot(dir); filepath.Base(got) != "1200.snap.zst" {
		t.Fatalf("latestSnapshot=%q", got)
	}
	if got := latestSnapshot(t.TempDir()); got != "" {
		t.Fatalf("empty dir: %q", got)
	}
}

func TestOpenLedger_SQLiteMustMatchSnapshot(t *testing.T) {
	dir := t.TempDir()

	led, closeFn, err := openLedger("sqlite", dir, nil)
	if err != nil {
		t.Fatalf("open fresh: %v", err)
	}
	if err := led.Mint("alice", 1); err != nil {
		t.Fatalf("mint 1: %v", err)
	}
	if err := led.Mint("bob", 2); err != nil {
		t.Fatalf("mint 2: %v", err)
	}
	closeFn()

	snap := retiredSnapshot("alice")
	_, closeFn, err = openLedger("sqlite", dir, &snap)
	if err != nil {
		t.Fatalf("matching snapshot: %v", err)
	}
	closeFn()

	other := retiredSnapshot("carol")
	if _, _, err := openLedger("sqlite", dir, &other); err == nil {
		t.Fatalf("expected mismatch error")
	}
	if _, _, err := openLedger("sqlite", dir, nil); err == nil {
		t.Fatalf("expected mismatch error for fresh start over a used ledger")
	}
}

func TestOpenLedger_MemorySeedsFromSnapshot(t *testing.T) {
	snap := retiredSnapshot("alice")
	led, closeFn, err := openLedger("memory", t.TempDir(), &snap)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer closeFn()

	mem, ok := led.(*ledger.Memory)
	if !ok {
		t.Fatalf("unexpected ledger type %T", led)
	}
	if owner, ok := mem.OwnerOf(1); !ok || owner != "alice" {
		t.Fatalf("owner of 1 = %q,%v", owner, ok)
	}
	if owner, ok := mem.OwnerOf(2); !ok || owner != "bob" {
		t.Fatalf("owner of 2 = %q,%v", owner, ok)
	}

	if _, _, err := openLedger("postgres", t.TempDir(), nil); err == nil {
		t.Fatalf("expected unsupported backend error")
	}
}

func TestRestart_AfterCrashBetweenSnapshots(t *testing.T) {
	dir := t.TempDir()
	logger := log.New(io.Discard, "", 0)
	params := tuning.Defaults().Params()
	gameCfg := game.Config{ID: "core_test", Params: params}

	led, closeLedger, err := openLedger("sqlite", dir, nil)
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	seq, err := sequencer.New(sequencer.Config{TickRateHz: 4}, led, gameCfg, logger)
	if err != nil {
		t.Fatalf("sequencer: %v", err)
	}
	actions := persistlog.NewActionLogger(dir)
	t.Cleanup(func() { _ = actions.Close() })
	seq.SetActionLogger(actions)

	if res := seq.ApplyAt(1, "alice", sequencer.Action{Op: protocol.OpInitialize}); !res.Accepted() {
		t.Fatalf("initialize: %v", res.Err)
	}
	snap := seq.Engine().ExportSnapshot(1)
	snap.Seq = 1
	writeSnapshot(dir, snap, nil, logger)
	if res := seq.ApplyAt(5, "alice", sequencer.Action{Op: protocol.OpPass, To: "bob"}); !res.Accepted() {
		t.Fatalf("pass: %v", res.Err)
	}
	want := seq.Engine().StateDigest()
	// Crash: the ledger has the transfer, the latest snapshot does not, and the action
	// log is never closed.
	closeLedger()

	onDisk, err := snapshot.ReadSnapshot(latestSnapshot(dir))
	if err != nil {
		t.Fatalf("read snapshot: %v", err)
	}
	if _, _, err := openLedger("sqlite", dir, &onDisk); err == nil {
		t.Fatalf("expected the stale snapshot to disagree with the ledger")
	}

	resumed, err := recoverState(dir, "core_test", params, &onDisk, logger)
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if resumed.Seq != 2 || resumed.Header.Tick != 5 || resumed.State.CurrentHolder != "bob" {
		t.Fatalf("unexpected recovered state: seq=%d tick=%d holder=%s", resumed.Seq, resumed.Header.Tick, resumed.State.CurrentHolder)
	}

	led2, closeLedger2, err := openLedger("sqlite", dir, resumed)
	if err != nil {
		t.Fatalf("reopen ledger: %v", err)
	}
	defer closeLedger2()
	seq2, err := sequencer.New(sequencer.Config{TickRateHz: 4}, led2, gameCfg, logger)
	if err != nil {
		t.Fatalf("sequencer: %v", err)
	}
	if err := seq2.Restore(*resumed); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if got := seq2.Engine().StateDigest(); got != want {
		t.Fatalf("digest after restart: got=%s want=%s", got, want)
	}
	if res := seq2.ApplyAt(10, "bob", sequencer.Action{Op: protocol.OpPass, To: "carol"}); !res.Accepted() || res.Seq != 3 {
		t.Fatalf("pass after restart: seq=%d err=%v", res.Seq, res.Err)
	}
}

func TestRecoverState_FreshGame(t *testing.T) {
	got, err := recoverState(t.TempDir(), "core_test", tuning.Defaults().Params(), nil, log.New(io.Discard, "", 0))
	if err != nil || got != nil {
		t.Fatalf("fresh game: %+v %v", got, err)
	}
}
