package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const CurrentVersion = 1

type Header struct {
	Version int    `json:"version"`
	GameID  string `json:"game_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	// Reason is why this snapshot was taken (PERIODIC, GENERATION_END, ADMIN, SHUTDOWN).
	Reason string `json:"reason,omitempty"`

	// Params captured for deterministic replay/resume.
	Params ParamsV1 `json:"params"`
	State  StateV1  `json:"state"`

	Points     []PointsV1   `json:"points"`
	Identities []IdentityV1 `json:"identities"`
	Deaths     []DeathV1    `json:"deaths"`

	// Seq is the number of operations applied so far (used to align action logs on replay).
	Seq uint64 `json:"seq"`
}

type ParamsV1 struct {
	PointsPerInterval    uint64 `json:"points_per_interval"`
	IntervalTicks        uint64 `json:"interval_ticks"`
	SafeLimitTicks       uint64 `json:"safe_limit_ticks"`
	BurnRateBps          uint64 `json:"burn_rate_bps"`
	BurnIntervalTicks    uint64 `json:"burn_interval_ticks"`
	InactivityLimitTicks uint64 `json:"inactivity_limit_ticks"`
	PhoenixCooldownTicks uint64 `json:"phoenix_cooldown_ticks"`
}

type StateV1 struct {
	CurrentHolder      string `json:"current_holder"`
	PreviousHolder     string `json:"previous_holder"`
	LastTransferTick   uint64 `json:"last_transfer_tick"`
	LastActivityTick   uint64 `json:"last_activity_tick"`
	ActiveGenerationID uint64 `json:"active_generation_id"`
	GenerationCounter  uint64 `json:"generation_counter"`
	Admin              string `json:"admin"`
	Initialized        bool   `json:"initialized"`
	Active             bool   `json:"active"`
}

type PointsV1 struct {
	Participant string `json:"participant"`
	Balance     uint64 `json:"balance"`
}

type IdentityV1 struct {
	Participant string `json:"participant"`
	Handle      uint64 `json:"handle"`
}

type DeathV1 struct {
	Generation uint64 `json:"generation"`
	Holder     string `json:"holder"`
	Tick       uint64 `json:"tick"`
	Reason     string `json:"reason"`
}

// WriteSnapshot writes snap to path.tmp and renames it into place once every layer has
// been flushed and closed, so path is either absent or complete.
func WriteSnapshot(path string, snap SnapshotV1) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(tmp)
		}
	}()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}
	if err := encode(enc, snap); err != nil {
		_ = enc.Close()
		return err
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("zstd close: %w", err)
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func encode(w io.Writer, snap SnapshotV1) error {
	bw := bufio.NewWriterSize(w, 64*1024)
	hb, err := json.Marshal(snap.Header)
	if err != nil {
		return err
	}
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return fmt.Errorf("gob encode: %w", err)
	}
	return bw.Flush()
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 64*1024)

	// Header line is for humans/tools; gob carries it too.
	_, _ = br.ReadBytes('\n')

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != CurrentVersion {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}

// ReadHeader reads only the JSON header line of a snapshot.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, err
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("snapshot header: %w", err)
	}
	return h, nil
}
