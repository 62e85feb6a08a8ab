package replay

import (
	"io"
	"log"
	"path/filepath"
	"testing"

	"thecore.gg/internal/ledger"
	persistlog "thecore.gg/internal/persistence/log"
	"thecore.gg/internal/protocol"
	"thecore.gg/internal/sim/game"
	"thecore.gg/internal/sim/sequencer"
	"thecore.gg/internal/sim/tuning"
)

func newSequencer(t *testing.T, led game.Ledger) *sequencer.Sequencer {
	t.Helper()
	seq, err := sequencer.New(sequencer.Config{TickRateHz: 1}, led, game.Config{ID: "core_test", Params: tuning.Defaults().Params()}, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("sequencer: %v", err)
	}
	return seq
}

// play applies a short game and leaves its action log open, as a crashed server would.
func play(t *testing.T, dir string) *sequencer.Sequencer {
	t.Helper()
	seq := newSequencer(t, ledger.NewMemory())
	actions := persistlog.NewActionLogger(dir)
	t.Cleanup(func() { _ = actions.Close() })
	seq.SetActionLogger(actions)

	seq.ApplyAt(1, "alice", sequencer.Action{Op: protocol.OpInitialize})
	seq.ApplyAt(3, "alice", sequencer.Action{Op: protocol.OpPass, To: "bob"})
	seq.ApplyAt(4, "bob", sequencer.Action{Op: protocol.OpPass, To: "alice"})
	seq.ApplyAt(250, "bob", sequencer.Action{Op: protocol.OpPass, To: "carol"})
	return seq
}

func TestRecover_FromGenesis(t *testing.T) {
	dir := t.TempDir()
	live := play(t, dir)

	snap, n, err := Recover("core_test", tuning.Defaults().Params(), nil, filepath.Join(dir, "actions"), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if n != 4 || snap == nil || snap.Seq != 4 || snap.Header.Tick != 250 {
		t.Fatalf("unexpected recovery: n=%d snap=%+v", n, snap)
	}

	resumed := newSequencer(t, ledger.SeedFromSnapshot(*snap))
	if err := resumed.Restore(*snap); err != nil {
		t.Fatalf("restore: %v", err)
	}
	if resumed.Engine().StateDigest() != live.Engine().StateDigest() {
		t.Fatalf("recovered digest differs from the live engine")
	}
	if resumed.Engine().PointsOf("bob") != live.Engine().PointsOf("bob") {
		t.Fatalf("points differ")
	}
}

func TestRecover_FromSnapshot(t *testing.T) {
	dir := t.TempDir()
	seq := newSequencer(t, ledger.NewMemory())
	actions := persistlog.NewActionLogger(dir)
	t.Cleanup(func() { _ = actions.Close() })
	seq.SetActionLogger(actions)

	seq.ApplyAt(1, "alice", sequencer.Action{Op: protocol.OpInitialize})
	base := seq.Engine().ExportSnapshot(1)
	base.Seq = 1
	seq.ApplyAt(8, "alice", sequencer.Action{Op: protocol.OpPass, To: "bob"})

	snap, n, err := Recover("core_test", tuning.Defaults().Params(), &base, filepath.Join(dir, "actions"), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("recover: %v", err)
	}
	if n != 1 || snap.Seq != 2 || snap.State.CurrentHolder != "bob" || snap.State.PreviousHolder != "alice" {
		t.Fatalf("unexpected recovery: n=%d snap=%+v", n, snap)
	}
}

func TestRecover_NothingLogged(t *testing.T) {
	snap, n, err := Recover("core_test", tuning.Defaults().Params(), nil, filepath.Join(t.TempDir(), "actions"), nil)
	if err != nil || n != 0 || snap != nil {
		t.Fatalf("got snap=%v n=%d err=%v", snap, n, err)
	}
}

func TestActions_RejectsSeqGap(t *testing.T) {
	dir := t.TempDir()
	actions := persistlog.NewActionLogger(dir)
	if err := actions.WriteAction(sequencer.ActionLogEntry{Tick: 1, Seq: 2, Caller: "alice", Act: sequencer.Action{Op: protocol.OpInitialize}}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := actions.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	files, err := persistlog.ListFiles(filepath.Join(dir, "actions"), persistlog.ActionPrefix)
	if err != nil {
		t.Fatalf("list: %v", err)
	}

	seq := newSequencer(t, ledger.NewMemory())
	n, err := Actions(seq, files, 0, 0)
	if err == nil || n != 0 {
		t.Fatalf("expected a seq gap error, got n=%d err=%v", n, err)
	}
	if seq.Engine().State().Initialized {
		t.Fatalf("nothing should be applied past a gap")
	}
}
