package log

import (
	"path/filepath"
	"testing"
	"time"

	"thecore.gg/internal/sim/game"
	"thecore.gg/internal/sim/sequencer"
)

func TestActionLogger_RoundTripAndRotation(t *testing.T) {
	dir := t.TempDir()
	l := NewActionLogger(dir)
	hour := time.Date(2026, 1, 2, 3, 10, 0, 0, time.UTC)
	l.w.now = func() time.Time { return hour }

	if err := l.WriteAction(sequencer.ActionLogEntry{Tick: 1, Seq: 1, Caller: "A", Act: sequencer.Action{Op: "INITIALIZE"}, Digest: "d1"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	hour = hour.Add(time.Hour)
	if err := l.WriteAction(sequencer.ActionLogEntry{Tick: 2, Seq: 2, Caller: "A", Act: sequencer.Action{Op: "PASS", To: "B"}, Digest: "d2"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := ListFiles(filepath.Join(dir, "actions"), ActionPrefix)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(files) != 2 {
		t.Fatalf("expected one file per hour, got %v", files)
	}
	if filepath.Base(files[0]) != "actions-2026-01-02-03.000.jsonl.zst" {
		t.Fatalf("unexpected file name %s", filepath.Base(files[0]))
	}

	var got []sequencer.ActionLogEntry
	for _, f := range files {
		if err := ReadActions(f, func(e sequencer.ActionLogEntry) error {
			got = append(got, e)
			return nil
		}); err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
	}
	if len(got) != 2 || got[0].Digest != "d1" || got[1].Act.To != "B" {
		t.Fatalf("unexpected entries: %+v", got)
	}
}

func TestAuditLogger_ReadBack(t *testing.T) {
	dir := t.TempDir()
	l := NewAuditLogger(dir)
	l.w.now = func() time.Time { return time.Date(2026, 1, 2, 3, 0, 0, 0, time.UTC) }

	entries := []game.AuditEntry{
		{Tick: 10, Actor: "A", Action: game.AuditInitialize, Generation: 1, To: "A"},
		{Tick: 40, Actor: "B", Action: game.AuditDeath, Generation: 1, From: "A", Reason: game.ReasonAbandoned},
	}
	for _, e := range entries {
		if err := l.WriteAudit(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, err := ListFiles(filepath.Join(dir, "audit"), AuditPrefix)
	if err != nil || len(files) != 1 {
		t.Fatalf("list: %v %v", files, err)
	}
	var got []game.AuditEntry
	if err := ReadAudit(files[0], func(e game.AuditEntry) error {
		got = append(got, e)
		return nil
	}); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[1].Reason != game.ReasonAbandoned || got[1].From != "A" {
		t.Fatalf("unexpected entries: %+v", got)
	}
}

func readAllActions(t *testing.T, dir string) []sequencer.ActionLogEntry {
	t.Helper()
	files, err := ListFiles(dir, ActionPrefix)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var got []sequencer.ActionLogEntry
	for _, f := range files {
		if err := ReadActions(f, func(e sequencer.ActionLogEntry) error {
			got = append(got, e)
			return nil
		}); err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
	}
	return got
}

func TestActionLogger_UnclosedSegmentIsReadable(t *testing.T) {
	dir := t.TempDir()
	hour := time.Date(2026, 1, 2, 3, 10, 0, 0, time.UTC)

	crashed := NewActionLogger(dir)
	crashed.w.now = func() time.Time { return hour }
	t.Cleanup(func() { _ = crashed.Close() })
	for seq := uint64(1); seq <= 3; seq++ {
		if err := crashed.WriteAction(sequencer.ActionLogEntry{Tick: seq, Seq: seq, Caller: "A", Digest: "d"}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}

	// No Close: the segment ends in an unterminated frame.
	got := readAllActions(t, filepath.Join(dir, "actions"))
	if len(got) != 3 || got[2].Seq != 3 {
		t.Fatalf("expected 3 entries from the open segment, got %+v", got)
	}

	// A restart in the same hour starts a new part instead of appending to the torn one.
	restarted := NewActionLogger(dir)
	restarted.w.now = func() time.Time { return hour }
	if err := restarted.WriteAction(sequencer.ActionLogEntry{Tick: 9, Seq: 4, Caller: "B", Digest: "d"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := restarted.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	files, _ := ListFiles(filepath.Join(dir, "actions"), ActionPrefix)
	if len(files) != 2 || filepath.Base(files[1]) != "actions-2026-01-02-03.001.jsonl.zst" {
		t.Fatalf("unexpected segments: %v", files)
	}
	got = readAllActions(t, filepath.Join(dir, "actions"))
	if len(got) != 4 {
		t.Fatalf("expected 4 entries, got %d", len(got))
	}
	for i, e := range got {
		if e.Seq != uint64(i+1) {
			t.Fatalf("entry %d: seq=%d", i, e.Seq)
		}
	}
}
