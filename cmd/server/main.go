package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"thecore.gg/internal/persistence/archive"
	persistlog "thecore.gg/internal/persistence/log"
	"thecore.gg/internal/persistence/snapshot"
	"thecore.gg/internal/sim/game"
	"thecore.gg/internal/sim/replay"
	"thecore.gg/internal/sim/sequencer"
	"thecore.gg/internal/sim/tuning"
	"thecore.gg/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		gameID     = flag.String("game", "core_1", "game id")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "./configs/tuning.yaml", "path to tuning.yaml")
		ledgerKind = flag.String("ledger", "sqlite", "token ledger backend: sqlite|memory")
		disableDB  = flag.Bool("disable_db", false, "disable indexing (actions/audit + snapshot and generation metadata)")

		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	host, err := loadHostEnv()
	if err != nil {
		logger.Fatalf("host env: %v", err)
	}

	gameDir := filepath.Join(*dataDir, "games", *gameID)
	_ = os.MkdirAll(gameDir, 0o755)

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(gameDir)
	}

	// Tuning is required for a fresh game; a resume takes its rules from the snapshot.
	tune, tuneErr := tuning.Load(*tuningPath)
	if tuneErr != nil {
		if snapshotToLoad == "" || !errors.Is(tuneErr, os.ErrNotExist) {
			logger.Fatalf("load tuning: %v", tuneErr)
		}
		logger.Printf("tuning not found (%s); using defaults", *tuningPath)
		tune = tuning.Defaults()
	}

	var snap *snapshot.SnapshotV1
	if snapshotToLoad != "" {
		s, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if s.Header.GameID != "" && s.Header.GameID != *gameID {
			logger.Fatalf("snapshot game id mismatch: flag=%s snap=%s", *gameID, s.Header.GameID)
		}
		snap = &s
	}

	// The action log may run ahead of the latest snapshot after a crash; roll forward
	// through it so the engine catches up with the ledger.
	snap, err = recoverState(gameDir, *gameID, tune.Params(), snap, logger)
	if err != nil {
		logger.Fatalf("recover from action log: %v", err)
	}

	// Optional read-model index (does not affect engine determinism).
	idx, err := openRuntimeIndex(gameDir, host.IndexBackend, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTuning(*gameID, tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
	}

	led, closeLedger, err := openLedger(*ledgerKind, gameDir, snap)
	if err != nil {
		logger.Fatalf("open ledger: %v", err)
	}
	defer closeLedger()

	seq, err := sequencer.New(sequencer.Config{
		TickRateHz:         tune.TickRateHz,
		SnapshotEveryTicks: tune.SnapshotEveryTicks,
	}, led, game.Config{ID: *gameID, Params: tune.Params()}, logger)
	if err != nil {
		logger.Fatalf("sequencer: %v", err)
	}
	if snap != nil {
		if err := seq.Restore(*snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed at tick=%d seq=%d generation=%d",
			snap.Header.Tick, snap.Seq, snap.State.ActiveGenerationID)
	}

	actionLog := persistlog.NewActionLogger(gameDir)
	auditLog := persistlog.NewAuditLogger(gameDir)
	defer actionLog.Close()
	defer auditLog.Close()
	if idx != nil {
		seq.SetActionLogger(multiActionLogger{a: actionLog, b: idx})
		seq.SetAuditLogger(multiAuditLogger{a: auditLog, b: idx})
	} else {
		seq.SetActionLogger(actionLog)
		seq.SetAuditLogger(auditLog)
	}

	ctx, cancel := signalContext()
	defer cancel()

	// Snapshot writer. It drains the sink after the sequencer stops so the
	// shutdown snapshot reaches disk.
	snapCh := make(chan snapshot.SnapshotV1, 4)
	seq.SetSnapshotSink(snapCh)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for s := range snapCh {
			writeSnapshot(gameDir, s, idx, logger)
		}
	}()

	runDone := make(chan struct{})
	go func() {
		defer close(runDone)
		defer close(snapCh)
		if err := seq.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("sequencer stopped: %v", err)
		}
	}()

	api := &adminAPI{gameID: *gameID, game: seq, index: idx}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", api.metricsHandler)
	mux.HandleFunc("/v1/metadata", api.metadataHandler)

	if host.adminHTTPEnabled() {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", api.stateHandler)
		mux.HandleFunc("/admin/v1/snapshot", api.snapshotHandler)
	} else {
		logger.Printf("admin endpoints disabled (CORE_ENABLE_ADMIN_HTTP=false)")
	}
	if host.EnablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(seq, ws.RateLimits{
		ActPerSecond: tune.RateLimits.ActPerSecond,
		ActBurst:     tune.RateLimits.ActBurst,
	}, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s game=%s ledger=%s tick_rate=%d", *addr, *gameID, *ledgerKind, tune.TickRateHz)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		cancel()
		<-runDone
		<-writerDone
		logger.Fatalf("ListenAndServe: %v", err)
	}
	<-runDone
	<-writerDone
	logger.Printf("stopped at tick=%d", seq.CurrentTick())
}

// writeSnapshot persists one exported snapshot, indexes it, and archives it when it
// closed a generation.
func writeSnapshot(gameDir string, snap snapshot.SnapshotV1, idx runtimeIndex, logger *log.Logger) {
	path := filepath.Join(gameDir, "snapshots", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
	if err := snapshot.WriteSnapshot(path, snap); err != nil {
		logger.Printf("snapshot write: %v", err)
		return
	}
	if idx != nil {
		idx.RecordSnapshot(path, snap)
	}

	death, archivedPath, ok, err := archive.ArchiveGenerationSnapshot(gameDir, path, snap)
	if err != nil {
		logger.Printf("archive generation snapshot: %v", err)
		return
	}
	if !ok {
		return
	}
	logger.Printf("generation %d retired holder=%s reason=%s archive=%s", death.Generation, death.Holder, death.Reason, archivedPath)
	if idx != nil {
		idx.RecordGeneration(death, archivedPath)
	}
}

// recoverState returns the state to resume from: snap advanced through any actions
// logged after it, or nil for a fresh game.
func recoverState(gameDir, gameID string, params game.Params, snap *snapshot.SnapshotV1, logger *log.Logger) (*snapshot.SnapshotV1, error) {
	recovered, n, err := replay.Recover(gameID, params, snap, filepath.Join(gameDir, "actions"), logger)
	if err != nil {
		return nil, err
	}
	if n > 0 {
		logger.Printf("replayed %d logged actions past the snapshot; now at tick=%d seq=%d", n, recovered.Header.Tick, recovered.Seq)
	}
	return recovered, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func latestSnapshot(gameDir string) string {
	dir := filepath.Join(gameDir, "snapshots")
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		tick, err := strconv.ParseUint(strings.TrimSuffix(name, ".snap.zst"), 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

type multiActionLogger struct {
	a sequencer.ActionLogger
	b sequencer.ActionLogger
}

func (m multiActionLogger) WriteAction(entry sequencer.ActionLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteAction(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAction(entry)
	}
	return nil
}

type multiAuditLogger struct {
	a sequencer.AuditLogger
	b sequencer.AuditLogger
}

func (m multiAuditLogger) WriteAudit(entry game.AuditEntry) error {
	if m.a != nil {
		_ = m.a.WriteAudit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteAudit(entry)
	}
	return nil
}
