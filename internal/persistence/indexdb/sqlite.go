package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"thecore.gg/internal/persistence/snapshot"
	"thecore.gg/internal/sim/game"
	"thecore.gg/internal/sim/sequencer"
	"thecore.gg/internal/sim/tuning"
)

// SQLiteIndex is a queryable secondary index of the action and audit logs. Writes are
// queued and applied by one goroutine in batched transactions; when the queue is full
// entries are dropped and counted. The JSONL logs remain the source of truth.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool

	dropAction     atomic.Uint64
	dropAudit      atomic.Uint64
	dropSnapshot   atomic.Uint64
	dropGeneration atomic.Uint64
}

type Stats struct {
	QueueDepth          int    `json:"queue_depth"`
	DropActionTotal     uint64 `json:"drop_action_total"`
	DropAuditTotal      uint64 `json:"drop_audit_total"`
	DropSnapshotTotal   uint64 `json:"drop_snapshot_total"`
	DropGenerationTotal uint64 `json:"drop_generation_total"`
}

type reqKind int

const (
	reqAction reqKind = iota + 1
	reqAudit
	reqSnapshot
	reqGeneration
)

type req struct {
	kind reqKind

	action     sequencer.ActionLogEntry
	audit      game.AuditEntry
	snapshot   snapshotRow
	generation generationRow
}

type snapshotRow struct {
	Tick         uint64
	Path         string
	Reason       string
	Seq          uint64
	Generation   uint64
	Holder       string
	Participants int
	Deaths       int
}

type generationRow struct {
	Generation uint64
	Holder     string
	DeathTick  uint64
	Reason     string
	Path       string
	RecordedAt string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL is much faster for append-style workloads.
	// NORMAL is a decent durability/perf tradeoff for a secondary index.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS tuning (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS actions (
			seq INTEGER PRIMARY KEY,
			tick INTEGER NOT NULL,
			caller TEXT NOT NULL,
			op TEXT NOT NULL,
			code TEXT NOT NULL,
			digest TEXT NOT NULL,
			act_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_actions_caller_tick ON actions(caller, tick);`,
		`CREATE TABLE IF NOT EXISTS audits (
			tick INTEGER NOT NULL,
			seq INTEGER NOT NULL,
			actor TEXT NOT NULL,
			action TEXT NOT NULL,
			generation INTEGER NOT NULL,
			from_participant TEXT NOT NULL,
			to_participant TEXT NOT NULL,
			reason TEXT,
			raw_json TEXT NOT NULL,
			PRIMARY KEY (tick, seq)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_actor_tick ON audits(actor, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_audits_generation ON audits(generation, tick);`,
		`CREATE TABLE IF NOT EXISTS snapshots (
			tick INTEGER PRIMARY KEY,
			path TEXT NOT NULL,
			reason TEXT NOT NULL,
			seq INTEGER NOT NULL,
			generation INTEGER NOT NULL,
			holder TEXT NOT NULL,
			participants INTEGER NOT NULL,
			deaths INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS generations (
			generation INTEGER PRIMARY KEY,
			holder TEXT NOT NULL,
			death_tick INTEGER NOT NULL,
			reason TEXT NOT NULL,
			snapshot_path TEXT NOT NULL,
			recorded_at TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_generations_holder ON generations(holder);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:          len(s.ch),
		DropActionTotal:     s.dropAction.Load(),
		DropAuditTotal:      s.dropAudit.Load(),
		DropSnapshotTotal:   s.dropSnapshot.Load(),
		DropGenerationTotal: s.dropGeneration.Load(),
	}
}

func (s *SQLiteIndex) enqueue(r req, drops *atomic.Uint64) {
	select {
	case s.ch <- r:
	default:
		drops.Add(1)
	}
}

func (s *SQLiteIndex) WriteAction(entry sequencer.ActionLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	s.enqueue(req{kind: reqAction, action: entry}, &s.dropAction)
	return nil
}

func (s *SQLiteIndex) WriteAudit(entry game.AuditEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	s.enqueue(req{kind: reqAudit, audit: entry}, &s.dropAudit)
	return nil
}

func (s *SQLiteIndex) RecordSnapshot(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	r := snapshotRow{
		Tick:         snap.Header.Tick,
		Path:         path,
		Reason:       snap.Reason,
		Seq:          snap.Seq,
		Generation:   snap.State.ActiveGenerationID,
		Holder:       snap.State.CurrentHolder,
		Participants: len(snap.Points),
		Deaths:       len(snap.Deaths),
	}
	s.enqueue(req{kind: reqSnapshot, snapshot: r}, &s.dropSnapshot)
}

// RecordGeneration indexes a retired generation and the archived snapshot that closed it.
func (s *SQLiteIndex) RecordGeneration(d snapshot.DeathV1, archivedSnapshotPath string) {
	if s == nil || s.closed.Load() {
		return
	}
	if d.Generation == 0 {
		return
	}
	r := generationRow{
		Generation: d.Generation,
		Holder:     d.Holder,
		DeathTick:  d.Tick,
		Reason:     d.Reason,
		Path:       archivedSnapshotPath,
		RecordedAt: time.Now().UTC().Format(time.RFC3339Nano),
	}
	s.enqueue(req{kind: reqGeneration, generation: r}, &s.dropGeneration)
}

// UpsertTuning stores the tuning values actually applied (canonical JSON).
func (s *SQLiteIndex) UpsertTuning(gameID string, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('game_id',?)`, gameID); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO tuning(name,digest,json,updated_at) VALUES('tuning',?,?,?)`, hex.EncodeToString(sum[:]), string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	// Prepared statements (on db; executed within tx).
	insertAction, _ := s.db.Prepare(`INSERT OR REPLACE INTO actions(seq,tick,caller,op,code,digest,act_json) VALUES(?,?,?,?,?,?,?)`)
	insertAudit, _ := s.db.Prepare(`INSERT OR REPLACE INTO audits(tick,seq,actor,action,generation,from_participant,to_participant,reason,raw_json) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertSnapshot, _ := s.db.Prepare(`INSERT OR REPLACE INTO snapshots(tick,path,reason,seq,generation,holder,participants,deaths) VALUES(?,?,?,?,?,?,?,?)`)
	insertGeneration, _ := s.db.Prepare(`INSERT OR REPLACE INTO generations(generation,holder,death_tick,reason,snapshot_path,recorded_at) VALUES(?,?,?,?,?,?)`)
	defer func() {
		for _, st := range []*sql.Stmt{insertAction, insertAudit, insertSnapshot, insertGeneration} {
			if st != nil {
				_ = st.Close()
			}
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second

		lastAuditTick uint64
		auditSeq      int
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			// If we can't start a tx, we can't do much; sleep a bit.
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	exec := func(st *sql.Stmt, args ...any) {
		if st == nil || tx == nil {
			return
		}
		if _, err := tx.Stmt(st).Exec(args...); err != nil {
			rollback()
			return
		}
		opCount++
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqAction:
			a := r.action
			actJSON, _ := json.Marshal(a.Act)
			exec(insertAction, int64(a.Seq), int64(a.Tick), string(a.Caller), a.Act.Op, a.Code, a.Digest, string(actJSON))

		case reqAudit:
			a := r.audit
			if a.Tick != lastAuditTick {
				lastAuditTick = a.Tick
				auditSeq = 0
			}
			seq := auditSeq
			auditSeq++
			raw, _ := json.Marshal(a)
			exec(insertAudit, int64(a.Tick), seq, string(a.Actor), a.Action, int64(a.Generation), string(a.From), string(a.To), a.Reason, string(raw))

		case reqSnapshot:
			sn := r.snapshot
			exec(insertSnapshot, int64(sn.Tick), sn.Path, sn.Reason, int64(sn.Seq), int64(sn.Generation), sn.Holder, sn.Participants, sn.Deaths)

		case reqGeneration:
			g := r.generation
			exec(insertGeneration, int64(g.Generation), g.Holder, int64(g.DeathTick), g.Reason, g.Path, g.RecordedAt)
		}
		if tx != nil && (opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait) {
			commit()
		}
	}

	commit()
}
