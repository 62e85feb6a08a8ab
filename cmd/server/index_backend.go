package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"thecore.gg/internal/persistence/indexdb"
	"thecore.gg/internal/persistence/snapshot"
	"thecore.gg/internal/sim/sequencer"
	"thecore.gg/internal/sim/tuning"
)

type runtimeIndex interface {
	sequencer.ActionLogger
	sequencer.AuditLogger
	Close() error
	Stats() indexdb.Stats
	UpsertTuning(gameID string, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
	RecordGeneration(death snapshot.DeathV1, archivedSnapshotPath string)
}

func openRuntimeIndex(gameDir, backend string, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend = strings.ToLower(strings.TrimSpace(backend))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		idx, err := indexdb.OpenSQLite(filepath.Join(gameDir, "index", "game.sqlite"))
		if err != nil {
			return nil, err
		}
		return idx, nil
	default:
		return nil, fmt.Errorf("unsupported CORE_INDEX_BACKEND: %s", backend)
	}
}
