package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"thecore.gg/internal/ledger"
	"thecore.gg/internal/persistence/ledgerdb"
	"thecore.gg/internal/persistence/snapshot"
	"thecore.gg/internal/sim/game"
)

// openLedger opens the token ledger the engine mints and transfers through. When
// resuming, the ledger must already agree with the ownership the snapshot implies.
func openLedger(kind, gameDir string, snap *snapshot.SnapshotV1) (game.Ledger, func(), error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "memory":
		if snap == nil {
			return ledger.NewMemory(), func() {}, nil
		}
		return ledger.SeedFromSnapshot(*snap), func() {}, nil
	case "", "sqlite":
		db, err := ledgerdb.Open(filepath.Join(gameDir, "ledger", "ledger.sqlite"))
		if err != nil {
			return nil, nil, err
		}
		var want []ledger.Token
		if snap != nil {
			want = ledger.SeedFromSnapshot(*snap).Tokens()
		}
		if err := db.Matches(want); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("ledger does not match snapshot: %w", err)
		}
		return db, func() { _ = db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unsupported -ledger: %s", kind)
	}
}
