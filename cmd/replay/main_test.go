package main

import (
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"

	"thecore.gg/internal/ledger"
	persistlog "thecore.gg/internal/persistence/log"
	"thecore.gg/internal/protocol"
	"thecore.gg/internal/sim/game"
	"thecore.gg/internal/sim/replay"
	"thecore.gg/internal/sim/sequencer"
	"thecore.gg/internal/sim/tuning"
)

type step struct {
	tick   uint64
	caller game.ParticipantID
	act    sequencer.Action
}

var script = []step{
	{10, "alice", sequencer.Action{Op: protocol.OpInitialize}},
	{20, "alice", sequencer.Action{Op: protocol.OpPass, To: "bob"}},
	{25, "carol", sequencer.Action{Op: protocol.OpGrab}},
	{400, "bob", sequencer.Action{Op: protocol.OpPass, To: "carol"}},
	{410, "carol", sequencer.Action{Op: protocol.OpPass, To: "bob"}},
	{5000, "dave", sequencer.Action{Op: protocol.OpSpawn}},
	{5001, "dave", sequencer.Action{Op: protocol.OpPass, To: "erin"}},
}

// recordGame plays script on a live sequencer and returns the action log dir.
func recordGame(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	logger := log.New(io.Discard, "", 0)
	seq, err := newReplaySequencer("core_test", tuning.Defaults().Params(), ledger.NewMemory(), logger)
	if err != nil {
		t.Fatalf("sequencer: %v", err)
	}
	actions := persistlog.NewActionLogger(dir)
	seq.SetActionLogger(actions)
	for _, s := range script {
		seq.ApplyAt(s.tick, s.caller, s.act)
	}
	if err := actions.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	return filepath.Join(dir, "actions")
}

func TestReplay_VerifiesRecordedDigests(t *testing.T) {
	actionsDir := recordGame(t)
	files, err := persistlog.ListFiles(actionsDir, persistlog.ActionPrefix)
	if err != nil || len(files) == 0 {
		t.Fatalf("list: %v %v", files, err)
	}

	seq, err := newReplaySequencer("core_test", tuning.Defaults().Params(), ledger.NewMemory(), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("sequencer: %v", err)
	}
	checked, err := replay.Actions(seq, files, 0, 0)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if checked != uint64(len(script)) {
		t.Fatalf("checked=%d want %d", checked, len(script))
	}
	if st := seq.Engine().State(); st.ActiveGenerationID != 2 || st.CurrentHolder != "erin" {
		t.Fatalf("unexpected final state: %+v", st)
	}
}

func TestReplay_StopsAtToSeq(t *testing.T) {
	files, _ := persistlog.ListFiles(recordGame(t), persistlog.ActionPrefix)
	seq, _ := newReplaySequencer("core_test", tuning.Defaults().Params(), ledger.NewMemory(), log.New(io.Discard, "", 0))
	checked, err := replay.Actions(seq, files, 0, 2)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if checked != 2 || seq.Engine().State().CurrentHolder != "bob" {
		t.Fatalf("checked=%d holder=%s", checked, seq.Engine().State().CurrentHolder)
	}
}

func TestReplay_DetectsDivergence(t *testing.T) {
	files, _ := persistlog.ListFiles(recordGame(t), persistlog.ActionPrefix)

	// The same actions under different rules must not verify.
	p := tuning.Defaults().Params()
	p.PointsPerInterval++
	seq, err := newReplaySequencer("core_test", p, ledger.NewMemory(), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("sequencer: %v", err)
	}
	_, err = replay.Actions(seq, files, 0, 0)
	if err == nil || !strings.Contains(err.Error(), "mismatch") {
		t.Fatalf("expected mismatch, got %v", err)
	}
}
