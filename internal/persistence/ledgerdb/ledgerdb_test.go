package ledgerdb

import (
	"errors"
	"path/filepath"
	"testing"

	"thecore.gg/internal/ledger"
	"thecore.gg/internal/sim/game"
)

var _ game.Ledger = (*DB)(nil)

func openTest(t *testing.T) *DB {
	t.Helper()
	d, err := Open(filepath.Join(t.TempDir(), "ledger.sqlite"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	return d
}

func TestDB_MintAndTransfer(t *testing.T) {
	d := openTest(t)
	if err := d.Mint("A", 1); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := d.Mint("B", 1); !errors.Is(err, ledger.ErrTokenExists) {
		t.Fatalf("expected ErrTokenExists, got %v", err)
	}
	if err := d.TransferOwnership("B", "C", 1); !errors.Is(err, ledger.ErrNotOwner) {
		t.Fatalf("expected ErrNotOwner, got %v", err)
	}
	if err := d.TransferOwnership("A", "C", 2); !errors.Is(err, ledger.ErrNoToken) {
		t.Fatalf("expected ErrNoToken, got %v", err)
	}
	if err := d.TransferOwnership("A", "B", 1); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	owner, ok, err := d.OwnerOf(1)
	if err != nil || !ok || owner != "B" {
		t.Fatalf("owner: got %q %v %v", owner, ok, err)
	}
	hist, err := d.History(1)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 2 || hist[0].From != "" || hist[0].To != "A" || hist[1].From != "A" || hist[1].To != "B" {
		t.Fatalf("unexpected history: %+v", hist)
	}
}

func TestDB_FailedTransferWritesNothing(t *testing.T) {
	d := openTest(t)
	if err := d.Mint("A", 1); err != nil {
		t.Fatalf("mint: %v", err)
	}
	_ = d.TransferOwnership("X", "B", 1)
	hist, err := d.History(1)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(hist) != 1 {
		t.Fatalf("expected only the mint in history, got %d", len(hist))
	}
}

func TestDB_ReopenKeepsOwnership(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.sqlite")
	d, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := d.Mint("A", 1); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := d.Mint("B", 2); err != nil {
		t.Fatalf("mint: %v", err)
	}
	_ = d.Close()

	d2, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer d2.Close()
	want := []ledger.Token{{Generation: 1, Owner: "A"}, {Generation: 2, Owner: "B"}}
	if err := d2.Matches(want); err != nil {
		t.Fatalf("matches: %v", err)
	}
	if err := d2.Matches(want[:1]); err == nil {
		t.Fatalf("expected mismatch")
	}
}
