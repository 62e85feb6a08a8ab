package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"thecore.gg/internal/persistence/snapshot"
)

// ReasonGenerationEnd marks snapshots taken right after a generation was retired.
const ReasonGenerationEnd = "GENERATION_END"

type GenerationArchiveMeta struct {
	Generation uint64 `json:"generation"`
	Holder     string `json:"holder"`
	DeathTick  uint64 `json:"death_tick"`
	Reason     string `json:"reason"`
	Snapshot   string `json:"snapshot"`
	CreatedAt  string `json:"created_at"`

	SafeLimitTicks       uint64 `json:"safe_limit_ticks"`
	PhoenixCooldownTicks uint64 `json:"phoenix_cooldown_ticks"`
}

// ArchiveGenerationSnapshot copies a generation-end snapshot into
// `gameDir/archives/generation_<NNN>/`, keyed by the generation that just died.
// It returns the retired death record and archived=true when the snapshot closes a generation.
func ArchiveGenerationSnapshot(gameDir, snapshotPath string, snap snapshot.SnapshotV1) (death snapshot.DeathV1, archivedPath string, archived bool, err error) {
	if snap.Reason != ReasonGenerationEnd || len(snap.Deaths) == 0 {
		return death, "", false, nil
	}
	// Deaths are ordered by generation; the last one is the generation just retired.
	death = snap.Deaths[len(snap.Deaths)-1]
	if death.Generation == 0 {
		return death, "", false, nil
	}

	archiveDir := filepath.Join(gameDir, "archives", fmt.Sprintf("generation_%03d", death.Generation))
	if err := os.MkdirAll(archiveDir, 0o755); err != nil {
		return death, "", false, err
	}

	dst := filepath.Join(archiveDir, filepath.Base(snapshotPath))
	if err := copyFile(snapshotPath, dst); err != nil {
		return death, "", false, err
	}

	meta := GenerationArchiveMeta{
		Generation:           death.Generation,
		Holder:               death.Holder,
		DeathTick:            death.Tick,
		Reason:               death.Reason,
		Snapshot:             filepath.Base(dst),
		CreatedAt:            time.Now().UTC().Format(time.RFC3339Nano),
		SafeLimitTicks:       snap.Params.SafeLimitTicks,
		PhoenixCooldownTicks: snap.Params.PhoenixCooldownTicks,
	}
	if b, err := json.MarshalIndent(meta, "", "  "); err == nil {
		_ = os.WriteFile(filepath.Join(archiveDir, "meta.json"), b, 0o644)
	}

	return death, dst, true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() { _ = out.Close() }()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
