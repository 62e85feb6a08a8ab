// Package replay re-applies logged actions to a sequencer and checks them against the
// results and digests the live server recorded.
package replay

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"

	"thecore.gg/internal/ledger"
	persistlog "thecore.gg/internal/persistence/log"
	"thecore.gg/internal/persistence/snapshot"
	"thecore.gg/internal/sim/game"
	"thecore.gg/internal/sim/sequencer"
)

var errStop = errors.New("replay: stop")

// Actions re-applies every logged action after fromSeq, up to toSeq when it is non-zero,
// and checks that each one ends in the logged tick, result code and state digest.
// It returns the number of actions applied.
func Actions(seq *sequencer.Sequencer, files []string, fromSeq, toSeq uint64) (uint64, error) {
	var checked uint64
	next := fromSeq + 1
	for _, path := range files {
		err := persistlog.ReadActions(path, func(entry sequencer.ActionLogEntry) error {
			if entry.Seq <= fromSeq {
				return nil
			}
			if toSeq != 0 && entry.Seq > toSeq {
				return errStop
			}
			if entry.Seq != next {
				return fmt.Errorf("seq gap: want=%d got=%d (file=%s)", next, entry.Seq, filepath.Base(path))
			}
			res := seq.ApplyAt(entry.Tick, entry.Caller, entry.Act)
			if res.Tick != entry.Tick {
				return fmt.Errorf("tick mismatch at seq %d: applied=%d logged=%d", entry.Seq, res.Tick, entry.Tick)
			}
			if res.Code != entry.Code {
				return fmt.Errorf("result mismatch at seq %d (%s by %s): got=%q want=%q", entry.Seq, entry.Act.Op, entry.Caller, res.Code, entry.Code)
			}
			if got := seq.Engine().StateDigest(); got != entry.Digest {
				return fmt.Errorf("digest mismatch at seq %d: got=%s want=%s", entry.Seq, got, entry.Digest)
			}
			next++
			checked++
			return nil
		})
		if errors.Is(err, errStop) {
			return checked, nil
		}
		if err != nil {
			return checked, err
		}
	}
	return checked, nil
}

// Recover rolls a game forward from base (nil for genesis) through the action log in
// actionsDir, against a memory ledger seeded from base. It returns a snapshot of the
// state after the last logged action and how many actions that took. When nothing was
// logged after base, it returns base unchanged.
func Recover(gameID string, params game.Params, base *snapshot.SnapshotV1, actionsDir string, logger *log.Logger) (*snapshot.SnapshotV1, uint64, error) {
	files, err := persistlog.ListFiles(actionsDir, persistlog.ActionPrefix)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, 0, err
	}
	if len(files) == 0 {
		return base, 0, nil
	}

	led := ledger.NewMemory()
	var fromSeq uint64
	if base != nil {
		led = ledger.SeedFromSnapshot(*base)
		fromSeq = base.Seq
	}
	seq, err := sequencer.New(sequencer.Config{TickRateHz: 1}, led, game.Config{ID: gameID, Params: params}, logger)
	if err != nil {
		return nil, 0, err
	}
	if base != nil {
		if err := seq.Restore(*base); err != nil {
			return nil, 0, err
		}
	}

	n, err := Actions(seq, files, fromSeq, 0)
	if err != nil {
		return nil, n, err
	}
	if n == 0 {
		return base, 0, nil
	}
	snap := seq.Engine().ExportSnapshot(seq.CurrentTick())
	snap.Seq = fromSeq + n
	return &snap, n, nil
}
